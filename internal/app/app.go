package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"ots-go/internal/blob"
	"ots-go/internal/config"
	"ots-go/internal/crypto"
	"ots-go/internal/ots"
	"ots-go/internal/store"
)

// OTSApp is the application layer between the CLI and the exchange service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the store lifecycle on Close.
type OTSApp struct {
	cfg     *config.Config
	store   ots.MetadataStore
	blobs   ots.BlobStore
	service *ots.Service
	recon   *ots.Reconciler
	links   *ots.LinkGenerator
	logger  ots.Logger
	logFile *os.File
}

// NewOTSApp creates a fully wired OTSApp from the given config.
// operation identifies the CLI command being run (e.g. "Upload", "Download").
// The caller must call Close when done.
func NewOTSApp(cfg *config.Config, operation string) (*OTSApp, error) {
	ctx := context.Background()

	st, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating metadata store: %w", err)
	}

	bl, err := blob.NewBlobStoreFromConfig(ctx, cfg.Blob)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}
	if err := bl.ValidateSetup(); err != nil {
		st.Close()
		return nil, fmt.Errorf("validating blob store: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	log := &slogAdapter{l: logger}

	kdf := crypto.Params{
		Time:        cfg.Crypto.Argon2Time,
		Memory:      cfg.Crypto.Argon2Memory,
		Parallelism: cfg.Crypto.Argon2Parallelism,
	}
	svc := ots.NewService(st, bl, log, ots.RealClock{}, ots.RandomTokenSource{}, ots.ServiceParams{
		KDF:         kdf,
		TTLSeconds:  cfg.Secrets.TTLSeconds,
		MaxRetries:  cfg.Secrets.MaxRetries,
		MaxFileSize: cfg.Secrets.MaxFileSize,
	})

	grace := time.Duration(cfg.Reconcile.GraceSeconds) * time.Second
	if grace <= 0 {
		grace = config.DefaultGraceSeconds * time.Second
	}
	recon := ots.NewReconciler(st, bl, log, ots.RealClock{}, ots.UUIDGenerator{}, grace)

	a := &OTSApp{
		cfg:     cfg,
		store:   st,
		blobs:   bl,
		service: svc,
		recon:   recon,
		links:   ots.NewLinkGenerator(cfg.BaseURL),
		logger:  log,
		logFile: logFile,
	}

	// Every startup repairs whatever the last run left behind. Failures are
	// logged, never fatal: a broken sweep must not block an upload.
	if operation != "Reconcile" {
		if _, err := a.recon.Run(ctx); err != nil {
			log.Warn("startup reconciliation failed", "error", err)
		}
	}

	return a, nil
}

// UploadResult describes a completed upload for CLI output.
type UploadResult struct {
	Token       string
	DownloadURL string
	InfoURL     string
	Protected   bool
	Size        int64
}

// Upload encrypts and stores the file at rawPath. A non-empty password makes
// the secret password-protected. name overrides the filename offered to the
// recipient; empty means the file's own base name.
func (a *OTSApp) Upload(rawPath, password, name string) (*UploadResult, error) {
	f, err := os.Open(rawPath)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", rawPath)
	}

	if name == "" {
		name = filepath.Base(rawPath)
	}
	contentType := mimeTypeByName(name)

	res, err := a.service.CreateSecret(context.Background(), f, name, contentType, password)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		Token:       res.Token,
		DownloadURL: a.links.DownloadURL(res.Token),
		InfoURL:     a.links.InfoURL(res.Token),
		Protected:   res.Protected,
		Size:        res.Size,
	}, nil
}

// Status reports a token's state without consuming it.
func (a *OTSApp) Status(token string) (*ots.Status, error) {
	return a.service.GetStatus(context.Background(), token)
}

// Download retrieves a secret and writes the plaintext to outPath. An empty
// outPath means the uploader's filename in the current directory. password is
// required for protected secrets and ignored for unprotected ones. Returns
// the path written.
//
// The secret is consumed the moment retrieval succeeds; a failed local write
// afterwards cannot bring it back.
func (a *OTSApp) Download(token, password, outPath string) (string, error) {
	ctx := context.Background()

	var stream *ots.DecryptedStream
	var err error
	if password == "" {
		stream, err = a.service.RetrieveUnprotected(ctx, token)
	} else {
		stream, err = a.service.SubmitPassword(ctx, token, password)
	}
	if err != nil {
		return "", err
	}
	defer stream.Close()

	if outPath == "" {
		outPath = stream.Filename
		if outPath == "" {
			outPath = token
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating output file: %w", err)
	}

	if _, err := io.Copy(out, stream); err != nil {
		out.Close()
		os.Remove(outPath)
		return "", fmt.Errorf("writing plaintext: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("closing output file: %w", err)
	}

	return outPath, nil
}

// Reconcile runs both orphan sweeps and returns the report.
func (a *OTSApp) Reconcile() (*ots.ReconcileReport, error) {
	return a.recon.Run(context.Background())
}

// Counters returns the current usage counters.
func (a *OTSApp) Counters() (map[string]int64, error) {
	ctx := context.Background()
	out := make(map[string]int64, len(ots.CounterNames))
	for _, name := range ots.CounterNames {
		v, err := a.store.GetCounter(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("reading counter %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// ResetCounters zeroes all usage counters.
func (a *OTSApp) ResetCounters() error {
	return a.store.ResetCounters(context.Background(), ots.CounterNames)
}

// mimeTypeByName guesses a content type from the filename extension.
func mimeTypeByName(name string) string {
	ct := mime.TypeByExtension(filepath.Ext(name))
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

// Close releases the store and the log file.
func (a *OTSApp) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing metadata store: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
