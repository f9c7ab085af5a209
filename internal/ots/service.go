package ots

import (
	"context"
	"fmt"
	"io"
	"time"

	"ots-go/internal/crypto"
)

// Service is the orchestration layer for the one-time exchange: upload,
// status, the password-gated unlock workflow, and the consume-decrypt-delete
// download path. It owns no synchronization of its own: the exactly-once
// download guarantee rests entirely on MetadataStore.AtomicConsume.
type Service struct {
	store  MetadataStore
	blobs  BlobStore
	logger Logger
	clock  Clock
	tokens TokenSource

	kdf         crypto.Params
	ttlSeconds  int64
	maxRetries  int
	maxFileSize int64 // 0 disables the limit
}

// ServiceParams holds the tunables for a Service.
type ServiceParams struct {
	KDF         crypto.Params
	TTLSeconds  int64
	MaxRetries  int
	MaxFileSize int64
}

// NewService creates a Service with the provided dependencies.
func NewService(store MetadataStore, blobs BlobStore, logger Logger, clock Clock, tokens TokenSource, params ServiceParams) *Service {
	if params.TTLSeconds <= 0 {
		params.TTLSeconds = 5 * 60 * 60
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 5
	}
	if params.KDF == (crypto.Params{}) {
		params.KDF = crypto.DefaultParams
	}
	return &Service{
		store:       store,
		blobs:       blobs,
		logger:      logger,
		clock:       clock,
		tokens:      tokens,
		kdf:         params.KDF,
		ttlSeconds:  params.TTLSeconds,
		maxRetries:  params.MaxRetries,
		maxFileSize: params.MaxFileSize,
	}
}

// CreateResult is returned by CreateSecret.
type CreateResult struct {
	Token     string
	Protected bool
	Size      int64 // ciphertext bytes written to the blob store
}

// CreateSecret encrypts the incoming byte stream into the blob store and
// commits the metadata record. The blob is always written before the record,
// so a record is never visible without its blob; the inverse window (blob
// without record, after a crash) is closed by reconciliation.
//
// An empty password selects random-key mode; a non-empty password selects
// password-derived-key mode with a bcrypt gate hash.
func (s *Service) CreateSecret(ctx context.Context, r io.Reader, originalName, contentType, password string) (*CreateResult, error) {
	token, err := s.tokens.NewToken()
	if err != nil {
		return nil, err
	}

	protected := password != ""
	rec := &FileRecord{
		Token:            token,
		BlobRef:          token,
		OriginalFilename: originalName,
		ContentType:      contentType,
		Protected:        protected,
		TTLSeconds:       s.ttlSeconds,
	}

	var key []byte
	if protected {
		salt, err := crypto.GenerateSalt()
		if err != nil {
			return nil, err
		}
		hash, err := crypto.HashPassword(password)
		if err != nil {
			return nil, err
		}
		key = crypto.DeriveKey(password, salt, s.kdf)
		rec.KDFSalt = salt
		rec.PasswordHash = hash
	} else {
		key, err = crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		rec.RawKey = key
	}

	if s.maxFileSize > 0 {
		r = &limitedReader{r: r, remaining: s.maxFileSize}
	}

	written, baseNonce, err := s.encryptToBlob(ctx, token, r, key)
	if err != nil {
		return nil, err
	}
	rec.BaseNonce = baseNonce

	if err := rec.Validate(); err != nil {
		s.discardBlob(token)
		return nil, fmt.Errorf("assembling record: %w", err)
	}

	if err := s.store.Put(ctx, rec); err != nil {
		// The blob is now an orphan; remove it immediately rather than
		// leaving it for the next reconciliation sweep.
		s.discardBlob(token)
		return nil, fmt.Errorf("storing record: %w", err)
	}

	s.bumpCounter(CounterUploads)
	s.logger.Info("secret created", "token", token, "protected", protected, "bytes", written)
	return &CreateResult{Token: token, Protected: protected, Size: written}, nil
}

// encryptToBlob couples the chunked encryptor to the blob writer through a
// pipe so the whole file never sits in memory.
func (s *Service) encryptToBlob(ctx context.Context, token string, r io.Reader, key []byte) (int64, []byte, error) {
	pr, pw := io.Pipe()

	type encResult struct {
		nonce []byte
		err   error
	}
	done := make(chan encResult, 1)
	go func() {
		nonce, err := crypto.EncryptStream(pw, r, key)
		pw.CloseWithError(err)
		done <- encResult{nonce: nonce, err: err}
	}()

	written, putErr := s.blobs.Put(ctx, token, pr)
	pr.CloseWithError(putErr)
	enc := <-done

	// The encryptor's error is the root cause when both sides fail: a read
	// failure aborts the pipe, which the blob writer then observes.
	if enc.err != nil {
		s.discardBlob(token)
		return 0, nil, fmt.Errorf("encrypting upload: %w", enc.err)
	}
	if putErr != nil {
		s.discardBlob(token)
		return 0, nil, fmt.Errorf("writing blob: %w", putErr)
	}
	return written, enc.nonce, nil
}

// discardBlob removes a blob outside the request context: cleanup must not
// be skipped because the request was already canceled.
func (s *Service) discardBlob(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, token); err != nil {
		s.logger.Warn("failed to discard blob, reconciliation will collect it", "token", token, "error", err)
	}
}

// Status describes a token's state for the recipient, without touching it.
type Status struct {
	Exists            bool
	Protected         bool
	LockedOut         bool
	AttemptsRemaining int
}

// GetStatus reports the current state of a token. The attempt budget is read
// fresh from the store on every call; nothing here is cached, so a locked-out
// token can never read as unlocked from a stale decision.
func (s *Service) GetStatus(ctx context.Context, token string) (*Status, error) {
	rec, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return &Status{}, nil
	}

	st := &Status{Exists: true, Protected: rec.Protected}
	if rec.Protected {
		st.LockedOut = rec.AttemptCount >= s.maxRetries
		if !st.LockedOut {
			st.AttemptsRemaining = s.maxRetries - rec.AttemptCount
		}
	}
	return st, nil
}

// RetrieveUnprotected is the fast path for records without a password gate:
// atomic consume, then a decrypt stream whose Close deletes the blob.
// Protected records are refused without being consumed.
func (s *Service) RetrieveUnprotected(ctx context.Context, token string) (*DecryptedStream, error) {
	rec, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.Protected {
		return nil, ErrPasswordRequired
	}

	rec, err = s.store.AtomicConsume(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Lost the race to another caller. Indistinguishable from absent.
		return nil, ErrNotFound
	}

	return s.openStream(ctx, rec, rec.RawKey, CounterUnprotectedDownloads)
}

// SubmitPassword drives the unlock state machine for one submission:
//
//	Exhausted  -> rejected before the password is even checked
//	wrong pw   -> atomic attempt increment, possibly transitioning to Exhausted
//	correct pw -> counter reset, atomic consume, decrypt stream
//
// The attempt count is re-read from the store on every call and exhaustion
// never deletes the record or blob: guessing passwords must not let a
// non-owner destroy someone else's secret.
func (s *Service) SubmitPassword(ctx context.Context, token, password string) (*DecryptedStream, error) {
	rec, err := s.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if !rec.Protected {
		return s.RetrieveUnprotected(ctx, token)
	}

	if rec.AttemptCount >= s.maxRetries {
		return nil, ErrLockedOut
	}

	ok, err := crypto.CheckPassword(rec.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		count, err := s.store.IncrementAttempt(ctx, token)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			// Record vanished between the read and the increment.
			return nil, ErrNotFound
		}
		if count >= s.maxRetries {
			s.logger.Warn("secret locked out", "token", token, "attempts", count)
			return nil, ErrLockedOut
		}
		return nil, &WrongPasswordError{Remaining: s.maxRetries - count}
	}

	if err := s.store.ResetAttempts(ctx, token); err != nil {
		return nil, err
	}

	rec, err = s.store.AtomicConsume(ctx, token)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	key := crypto.DeriveKey(password, rec.KDFSalt, s.kdf)
	return s.openStream(ctx, rec, key, CounterProtectedDownloads)
}

// openStream opens the consumed record's blob and wires up the decrypt
// reader. The returned stream's Close deletes the blob and bumps the usage
// counters; it is the caller's single obligation on every outcome.
func (s *Service) openStream(ctx context.Context, rec *FileRecord, key []byte, downloadCounter string) (*DecryptedStream, error) {
	rc, err := s.blobs.Open(ctx, rec.BlobRef)
	if err != nil {
		// The record is already consumed; the secret is lost either way.
		s.logger.Error("blob missing for consumed record", "token", rec.Token, "error", err)
		return nil, fmt.Errorf("%w: blob unavailable", ErrNotFound)
	}

	dr, err := crypto.NewDecryptReader(rc, key, rec.BaseNonce)
	if err != nil {
		rc.Close()
		s.discardBlob(rec.BlobRef)
		return nil, err
	}

	token := rec.Token
	blobRef := rec.BlobRef
	return &DecryptedStream{
		Filename:    rec.OriginalFilename,
		ContentType: rec.ContentType,
		reader:      dr,
		cleanup: func() error {
			rc.Close()
			s.discardBlob(blobRef)
			s.bumpCounter(CounterDownloads)
			s.bumpCounter(CounterDeletions)
			s.bumpCounter(downloadCounter)
			s.logger.Info("secret consumed", "token", token)
			return nil
		},
	}, nil
}

// bumpCounter records a usage counter, outside any request context. Counter
// failures are logged and never surface to the caller.
func (s *Service) bumpCounter(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.store.IncrementCounter(ctx, name, 1); err != nil {
		s.logger.Warn("failed to bump counter", "counter", name, "error", err)
	}
}

// limitedReader fails with ErrTooLarge once more than remaining bytes have
// been read, instead of silently truncating.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrTooLarge
	}
	if l.remaining == 0 {
		// Allowance exhausted: any further byte makes the upload too
		// large, but a clean EOF here means the file was exactly at the
		// limit.
		var one [1]byte
		n, err := l.r.Read(one[:])
		if n > 0 {
			l.remaining = -1
			return 0, ErrTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.remaining {
		p = p[:l.remaining]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	return n, err
}
