package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// ErrKeyExists is returned by WriteFiles when the private key file is already present.
var ErrKeyExists = errors.New("private key already exists")

// KeyPair holds an Ed25519 key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKey is the private key in PEM-encoded OpenSSH format.
	PrivateKey []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// GenerateEd25519KeyPair generates a new Ed25519 key pair. The comment is
// embedded in the private key and appended to the public key line.
func GenerateEd25519KeyPair(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSH public key: %w", err)
	}

	authorized := ssh.MarshalAuthorizedKey(sshPub)
	if comment != "" {
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}

	return &KeyPair{
		PrivateKey: pem.EncodeToMemory(block),
		PublicKey:  authorized,
	}, nil
}

// WriteFiles stores the pair as privatePath (0600) and privatePath+".pub" (0644).
// An existing private key is never overwritten.
func (k *KeyPair) WriteFiles(privatePath string) error {
	if _, err := os.Stat(privatePath); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyExists, privatePath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", privatePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(privatePath), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(privatePath, k.PrivateKey, 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(privatePath+".pub", k.PublicKey, 0o644); err != nil { //nolint:gosec // public key
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}
