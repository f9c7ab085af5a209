package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChunkSize is the plaintext chunk length. Each chunk becomes one frame on
// disk: a 4-byte big-endian ciphertext length followed by ciphertext and tag.
// The final chunk may be shorter; an empty file has zero frames.
const ChunkSize = 64 * 1024

// maxFrameSize bounds the ciphertext length field during decryption so a
// corrupted header cannot force a large allocation.
const maxFrameSize = ChunkSize + chacha20poly1305.Overhead

// ErrAuthentication is returned when an AEAD tag fails to verify: wrong key,
// wrong nonce, or truncated/corrupted ciphertext. No plaintext from the
// failing chunk or any later chunk is ever yielded.
var ErrAuthentication = errors.New("ciphertext authentication failed")

// EncryptStream reads plaintext from src in 64 KiB chunks, encrypts each
// chunk with ChaCha20-Poly1305 under a fresh random base nonce, and writes
// the framed ciphertext to dst. Returns the base nonce, which the caller
// must persist alongside the key material to decrypt later.
//
// Memory use is O(ChunkSize) regardless of input size.
func EncryptStream(dst io.Writer, src io.Reader, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	baseNonce, err := GenerateBaseNonce()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, ChunkSize)
	var header [4]byte
	var counter uint64

	for {
		n, readErr := io.ReadFull(src, buf)
		if readErr == io.EOF {
			break
		}
		if readErr != nil && readErr != io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("reading plaintext: %w", readErr)
		}

		nonce, err := chunkNonce(baseNonce, counter)
		if err != nil {
			return nil, err
		}
		counter++

		ciphertext := aead.Seal(nil, nonce, buf[:n], nil)
		binary.BigEndian.PutUint32(header[:], uint32(len(ciphertext)))
		if _, err := dst.Write(header[:]); err != nil {
			return nil, fmt.Errorf("writing frame header: %w", err)
		}
		if _, err := dst.Write(ciphertext); err != nil {
			return nil, fmt.Errorf("writing frame: %w", err)
		}

		if readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	return baseNonce, nil
}

// DecryptReader lazily decrypts a framed ciphertext stream produced by
// EncryptStream. It implements io.Reader over the plaintext; frames are read
// and authenticated one at a time, so memory use is O(ChunkSize).
//
// Once any frame fails authentication the reader is poisoned: every
// subsequent Read returns the same error and no further plaintext is
// yielded. The stream is restartable only by re-opening the source from
// offset 0.
type DecryptReader struct {
	src       io.Reader
	aead      cipher.AEAD
	baseNonce []byte
	counter   uint64
	plain     []byte // unread plaintext of the current chunk
	err       error  // sticky
}

// NewDecryptReader creates a DecryptReader over src with the given key and
// the base nonce recorded at encryption time.
func NewDecryptReader(src io.Reader, key, baseNonce []byte) (*DecryptReader, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(baseNonce) != NonceSize {
		return nil, fmt.Errorf("invalid base nonce length %d", len(baseNonce))
	}
	nonce := make([]byte, NonceSize)
	copy(nonce, baseNonce)
	return &DecryptReader{src: src, aead: aead, baseNonce: nonce}, nil
}

func (d *DecryptReader) Read(p []byte) (int, error) {
	for len(d.plain) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		if err := d.nextChunk(); err != nil {
			d.err = err
			return 0, err
		}
	}
	n := copy(p, d.plain)
	d.plain = d.plain[n:]
	return n, nil
}

// nextChunk reads and authenticates the next frame, filling d.plain.
// Returns io.EOF on a clean frame boundary.
func (d *DecryptReader) nextChunk() error {
	var header [4]byte
	if _, err := io.ReadFull(d.src, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("reading frame header: %w", err)
	}

	frameLen := binary.BigEndian.Uint32(header[:])
	if frameLen < chacha20poly1305.Overhead || frameLen > maxFrameSize {
		return fmt.Errorf("invalid frame length %d: %w", frameLen, ErrAuthentication)
	}

	ciphertext := make([]byte, frameLen)
	if _, err := io.ReadFull(d.src, ciphertext); err != nil {
		return fmt.Errorf("truncated frame: %w", ErrAuthentication)
	}

	nonce, err := chunkNonce(d.baseNonce, d.counter)
	if err != nil {
		return err
	}

	plain, err := d.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ErrAuthentication
	}
	d.counter++
	d.plain = plain
	return nil
}
