package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/8inary/infra/internal/util/keygen"
)

// generateKeyPair creates the key pair (for testing injection).
var generateKeyPair = keygen.GenerateEd25519KeyPair

// Keygen creates the management SSH key. An empty path uses the invoking
// user's ~/.ssh/id_ed25519 on this host. An existing key is left untouched.
func Keygen(ctx context.Context, path, comment string) error {
	if path == "" {
		var err error
		path, err = defaultKeyPath(ctx)
		if err != nil {
			return err
		}
	}

	kp, err := generateKeyPair(comment)
	if err != nil {
		return err
	}
	if err := kp.WriteFiles(path); err != nil {
		if errors.Is(err, keygen.ErrKeyExists) {
			fmt.Fprintf(stdout, "key already exists at %s\n", path)
			return nil
		}
		return err
	}

	fmt.Fprintf(stdout, "wrote %s and %s.pub\n", path, path)
	fmt.Fprintf(stdout, "%s", kp.PublicKey)
	return nil
}
