package ots

import (
	"io"
	"sync"
)

// DecryptedStream is the plaintext of a consumed secret, decrypted lazily as
// it is read. By the time a caller holds one, the metadata record is already
// gone; Close releases the blob and must run on every exit path, whether
// full delivery, client abort, or a mid-stream authentication failure.
type DecryptedStream struct {
	Filename    string
	ContentType string

	reader    io.Reader
	closeOnce sync.Once
	closeErr  error
	cleanup   func() error
}

func (d *DecryptedStream) Read(p []byte) (int, error) {
	return d.reader.Read(p)
}

// Close runs the cleanup exactly once; repeated calls return the first
// result.
func (d *DecryptedStream) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.cleanup()
	})
	return d.closeErr
}
