package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestChunkNonce(t *testing.T) {
	tests := []struct {
		name    string
		base    []byte
		counter uint64
		want    []byte
		wantErr error
	}{
		{
			name:    "counter zero is identity",
			base:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5},
			counter: 0,
			want:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5},
		},
		{
			name:    "simple addition",
			base:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5},
			counter: 10,
			want:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 15},
		},
		{
			name:    "carry across one byte",
			base:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff},
			counter: 1,
			want:    []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0},
		},
		{
			name:    "carry across many bytes",
			base:    []byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
			counter: 1,
			want:    []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			name:    "large counter",
			base:    make([]byte, 12),
			counter: 1<<40 | 7,
			want:    []byte{0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 7},
		},
		{
			name:    "overflow past 96 bits",
			base:    bytes.Repeat([]byte{0xff}, 12),
			counter: 1,
			wantErr: ErrNonceOverflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chunkNonce(tt.base, tt.counter)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("chunkNonce() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("chunkNonce() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("chunkNonce() = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestChunkNonce_DoesNotMutateBase(t *testing.T) {
	base := []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff}
	saved := append([]byte(nil), base...)

	if _, err := chunkNonce(base, 1); err != nil {
		t.Fatalf("chunkNonce() error = %v", err)
	}
	if !bytes.Equal(base, saved) {
		t.Errorf("base nonce was mutated: %x", base)
	}
}

func TestChunkNonce_DistinctCountersDistinctNonces(t *testing.T) {
	base := make([]byte, 12)
	base[11] = 0xfe

	seen := make(map[string]uint64)
	for i := uint64(0); i < 512; i++ {
		nonce, err := chunkNonce(base, i)
		if err != nil {
			t.Fatalf("chunkNonce(%d) error = %v", i, err)
		}
		if prev, ok := seen[string(nonce)]; ok {
			t.Fatalf("nonce collision between counters %d and %d", prev, i)
		}
		seen[string(nonce)] = i
	}
}
