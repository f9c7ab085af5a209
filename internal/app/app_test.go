package app

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ots-go/internal/config"
	"ots-go/internal/ots"
)

func newTestApp(t *testing.T) *OTSApp {
	t.Helper()

	base := t.TempDir()
	cfg := config.NewConfig(base)
	cfg.Store = config.StoreConfig{Type: "memory"}
	cfg.Blob = config.BlobConfig{Type: "memory"}
	cfg.Crypto = config.CryptoConfig{Argon2Time: 1, Argon2Memory: 1024, Argon2Parallelism: 1}
	cfg.BaseURL = "https://ots.example.com"

	a, err := NewOTSApp(cfg, "Test")
	if err != nil {
		t.Fatalf("NewOTSApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.txt")
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestOTSApp_UploadDownload(t *testing.T) {
	t.Run("unprotected round trip", func(t *testing.T) {
		a := newTestApp(t)
		content := []byte("the app layer works")
		src := writeTempFile(t, content)

		res, err := a.Upload(src, "", "")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if res.Protected {
			t.Error("Protected = true, want false")
		}
		if res.DownloadURL != "https://ots.example.com/d/"+res.Token {
			t.Errorf("DownloadURL = %q", res.DownloadURL)
		}

		out := filepath.Join(t.TempDir(), "out.txt")
		saved, err := a.Download(res.Token, "", out)
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		got, err := os.ReadFile(saved)
		if err != nil {
			t.Fatalf("reading output: %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Error("plaintext mismatch")
		}

		if _, err := a.Download(res.Token, "", out); !errors.Is(err, ots.ErrNotFound) {
			t.Errorf("second Download() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("protected round trip", func(t *testing.T) {
		a := newTestApp(t)
		src := writeTempFile(t, []byte("guarded payload"))

		res, err := a.Upload(src, "letmein", "secret.bin")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if !res.Protected {
			t.Error("Protected = false, want true")
		}

		st, err := a.Status(res.Token)
		if err != nil {
			t.Fatalf("Status() error = %v", err)
		}
		if !st.Exists || !st.Protected {
			t.Errorf("status = %+v", st)
		}

		out := filepath.Join(t.TempDir(), "out.bin")
		if _, err := a.Download(res.Token, "wrong", out); err == nil {
			t.Fatal("Download() with wrong password succeeded")
		}
		if _, err := a.Download(res.Token, "letmein", out); err != nil {
			t.Fatalf("Download() error = %v", err)
		}
	})

	t.Run("default output path uses uploaded name", func(t *testing.T) {
		a := newTestApp(t)
		src := writeTempFile(t, []byte("named"))

		res, err := a.Upload(src, "", "given-name.txt")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}

		dir := t.TempDir()
		prev, _ := os.Getwd()
		os.Chdir(dir)
		defer os.Chdir(prev)

		saved, err := a.Download(res.Token, "", "")
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if filepath.Base(saved) != "given-name.txt" {
			t.Errorf("saved as %q, want given-name.txt", saved)
		}
	})

	t.Run("upload of missing file fails", func(t *testing.T) {
		a := newTestApp(t)
		if _, err := a.Upload("/no/such/file", "", ""); err == nil {
			t.Fatal("Upload() expected error")
		}
	})
}

func TestOTSApp_Counters(t *testing.T) {
	a := newTestApp(t)
	src := writeTempFile(t, []byte("counted"))

	res, err := a.Upload(src, "", "")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := a.Download(res.Token, "", filepath.Join(t.TempDir(), "o")); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	counters, err := a.Counters()
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if counters[ots.CounterUploads] != 1 || counters[ots.CounterDownloads] != 1 {
		t.Errorf("counters = %v", counters)
	}

	if err := a.ResetCounters(); err != nil {
		t.Fatalf("ResetCounters() error = %v", err)
	}
	counters, _ = a.Counters()
	if counters[ots.CounterUploads] != 0 {
		t.Errorf("uploads counter = %d after reset, want 0", counters[ots.CounterUploads])
	}
}

func TestOTSApp_Reconcile(t *testing.T) {
	a := newTestApp(t)

	report, err := a.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if report.OrphanBlobs.Removed != 0 || report.OrphanMetadata.Removed != 0 {
		t.Errorf("empty stores produced removals: %+v", report)
	}
}
