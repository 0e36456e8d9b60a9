// Package crypto decrypts encrypted event payloads with an account key.
//
// Encrypted payloads are nonce|ciphertext sealed with AES-256-GCM. The event
// ID is bound as additional data so a payload cannot be replayed under
// another event.
package crypto

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/pushsync/internal/ir"
)

// KeySize is the required key length in bytes.
const KeySize = 32

// ErrShortPayload is returned for ciphertext shorter than a nonce.
var ErrShortPayload = errors.New("crypto: payload shorter than nonce")

// Decrypter implements the pipeline's decrypt step.
type Decrypter struct {
	aead   cipher.AEAD
	logger *slog.Logger
}

// Option configures a Decrypter.
type Option func(*Decrypter)

// WithLogger sets the logger used for dropped events.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decrypter) {
		d.logger = l
	}
}

// New creates a decrypter for a 32-byte key.
func New(key []byte, opts ...Option) (*Decrypter, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	d := &Decrypter{aead: aead, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Decrypt returns the events with plaintext bodies, in input order.
// Plaintext events pass through; events that fail to open are logged and
// omitted.
func (d *Decrypter) Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent {
	out := make([]ir.UpdateEvent, 0, len(events))
	for _, ev := range events {
		if !ev.Encrypted {
			if !ev.Decrypted() {
				ev = ev.WithData(ev.Payload)
			}
			out = append(out, ev)
			continue
		}
		plain, err := d.open(ev)
		if err != nil {
			d.logger.WarnContext(ctx, "dropping undecryptable event",
				"event_id", ev.ID.String(),
				"kind", string(ev.Kind),
				"error", err,
			)
			continue
		}
		out = append(out, ev.WithData(plain))
	}
	return out
}

func (d *Decrypter) open(ev ir.UpdateEvent) ([]byte, error) {
	ns := d.aead.NonceSize()
	if len(ev.Payload) < ns {
		return nil, ErrShortPayload
	}
	nonce, ct := ev.Payload[:ns], ev.Payload[ns:]
	plain, err := d.aead.Open(nil, nonce, ct, []byte(ev.ID))
	if err != nil {
		return nil, fmt.Errorf("crypto: open: %w", err)
	}
	if plain == nil {
		plain = []byte{}
	}
	return plain, nil
}

// Seal encrypts plaintext for the event id, returning nonce|ciphertext.
// It is the inverse of the decrypt step and is used to build fixtures.
func Seal(key []byte, id ir.EventID, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(id)), nil
}

// LoadKey reads a key file holding either the raw 32 bytes or their
// standard base64 encoding.
func LoadKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if len(data) == KeySize {
		return data, nil
	}
	trimmed := bytes.TrimSpace(data)
	key, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("key file %s: not %d raw bytes and not base64: %w", path, KeySize, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("key file %s: decoded key is %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

// Plaintext is the decrypt step for accounts without a key. Encrypted
// events cannot be opened and are dropped.
type Plaintext struct{}

// Decrypt passes plaintext events through and omits encrypted ones.
func (Plaintext) Decrypt(ctx context.Context, events []ir.UpdateEvent) []ir.UpdateEvent {
	out := make([]ir.UpdateEvent, 0, len(events))
	for _, ev := range events {
		if ev.Encrypted {
			slog.WarnContext(ctx, "dropping encrypted event: no key configured",
				"event_id", ev.ID.String(),
				"kind", string(ev.Kind),
			)
			continue
		}
		if !ev.Decrypted() {
			ev = ev.WithData(ev.Payload)
		}
		out = append(out, ev)
	}
	return out
}
