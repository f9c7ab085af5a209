package store

import (
	"testing"

	"ots-go/internal/config"
)

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr bool
	}{
		{
			name: "memory store",
			cfg:  config.StoreConfig{Type: "memory"},
		},
		{
			name:    "sqlite without data dir",
			cfg:     config.StoreConfig{Type: "sqlite"},
			wantErr: true,
		},
		{
			name:    "unknown type",
			cfg:     config.StoreConfig{Type: "redis"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewStoreFromConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewStoreFromConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				defer s.Close()
			}
		})
	}
}

func TestNewStoreFromConfig_SQLite(t *testing.T) {
	cfg := config.StoreConfig{Type: "sqlite", DataDir: t.TempDir()}
	s, err := NewStoreFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewStoreFromConfig() error = %v", err)
	}
	defer s.Close()

	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("store type = %T, want *SQLiteStore", s)
	}
}
