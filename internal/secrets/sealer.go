// Package secrets seals backend connection contexts (tokens, passwords)
// before they reach the durable store.
//
// The X25519 identity lives next to the config file and is created on first
// use. There is no passphrase: the identity protects stored secrets from
// casual inspection of the database file, not from someone holding the
// whole config directory.
package secrets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// Sealer encrypts and decrypts small payloads with one age identity.
type Sealer struct {
	identity *age.X25519Identity
}

// LoadOrCreate reads the identity at path, generating and writing a new one
// (mode 0600) if the file does not exist.
func LoadOrCreate(path string) (*Sealer, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading identity: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing identity: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return &Sealer{identity: x}, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity found in %s", path)
}

func create(path string) (*Sealer, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating identity: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating identity directory: %w", err)
	}

	// O_EXCL so two processes racing on first use cannot overwrite each other.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return LoadOrCreate(path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	content := fmt.Sprintf("# public key: %s\n%s\n", identity.Recipient(), identity)
	if _, err := io.WriteString(f, content); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing identity: %w", err)
	}

	return &Sealer{identity: identity}, nil
}

// Recipient returns the public key sealed payloads are encrypted to.
func (s *Sealer) Recipient() string {
	return s.identity.Recipient().String()
}

// Seal encrypts plaintext and returns it as ASCII-armored text.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	var buf bytes.Buffer
	aw := armor.NewWriter(&buf)

	w, err := age.Encrypt(aw, s.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return "", fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", fmt.Errorf("finalizing armor: %w", err)
	}

	return buf.String(), nil
}

// Open decrypts text produced by Seal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	r, err := age.Decrypt(armor.NewReader(strings.NewReader(sealed)), s.identity)
	if err != nil {
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	return plaintext, nil
}

type envelope struct {
	Sealed string `json:"sealed"`
}

// SealJSON wraps a JSON document as {"sealed": "<armored ciphertext>"}.
func (s *Sealer) SealJSON(doc json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(doc) {
		return nil, fmt.Errorf("sealing context: invalid JSON")
	}
	sealed, err := s.Seal(doc)
	if err != nil {
		return nil, fmt.Errorf("sealing context: %w", err)
	}
	return json.Marshal(envelope{Sealed: sealed})
}

// OpenJSON reverses SealJSON. Documents that are not sealed envelopes are
// returned unchanged, so contexts written without sealing still load.
func (s *Sealer) OpenJSON(doc json.RawMessage) (json.RawMessage, error) {
	sealed, ok := IsSealed(doc)
	if !ok {
		return doc, nil
	}
	plaintext, err := s.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("opening sealed context: %w", err)
	}
	if !json.Valid(plaintext) {
		return nil, fmt.Errorf("opening sealed context: invalid JSON")
	}
	return json.RawMessage(plaintext), nil
}

// IsSealed reports whether doc is a sealed envelope and returns its ciphertext.
func IsSealed(doc json.RawMessage) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil || len(fields) != 1 {
		return "", false
	}
	raw, ok := fields["sealed"]
	if !ok {
		return "", false
	}
	var sealed string
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return "", false
	}
	return sealed, strings.HasPrefix(sealed, armor.Header)
}
