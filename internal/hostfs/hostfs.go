// Package hostfs reads and writes files on a machine through its transport,
// so file-based steps work the same locally and over SSH.
package hostfs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/8inary/infra/internal/transport"
)

// exitNotExist is the status the read script uses for a missing file.
const exitNotExist = 44

// FS is file access on one machine.
type FS interface {
	// ReadFile returns the file content. A missing file yields an error
	// matching fs.ErrNotExist.
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile replaces path atomically with data.
	WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error
	// Exists reports whether path exists.
	Exists(ctx context.Context, path string) (bool, error)
	// MkdirAll creates path and its parents.
	MkdirAll(ctx context.Context, path string) error
}

// TransportFS implements FS with shell commands.
type TransportFS struct {
	exec transport.Transport
}

// New returns an FS backed by t.
func New(t transport.Transport) *TransportFS {
	return &TransportFS{exec: t}
}

// ReadFile implements FS.
func (f *TransportFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	q := shellescape.Quote(path)
	cmd := fmt.Sprintf("if [ -e %s ]; then base64 < %s; else exit %d; fi", q, q, exitNotExist)

	res, err := f.exec.Execute(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if res.ExitCode == exitNotExist {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(res.Stdout), ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return data, nil
}

// WriteFile implements FS. Content is staged next to path and renamed.
func (f *TransportFS) WriteFile(ctx context.Context, path string, data []byte, perm fs.FileMode) error {
	q := shellescape.Quote(path)
	tmp := shellescape.Quote(path + ".infra-tmp")
	cmd := fmt.Sprintf("printf '%%s' %s | base64 -d > %s && chmod %o %s && mv -f %s %s",
		base64.StdEncoding.EncodeToString(data), tmp, perm.Perm(), tmp, tmp, q)

	if _, err := transport.Run(ctx, f.exec, cmd); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Exists implements FS.
func (f *TransportFS) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := transport.Succeeds(ctx, f.exec, "test -e "+shellescape.Quote(path))
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return ok, nil
}

// MkdirAll implements FS.
func (f *TransportFS) MkdirAll(ctx context.Context, path string) error {
	if _, err := transport.Run(ctx, f.exec, "mkdir -p "+shellescape.Quote(path)); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

// Fingerprint returns the hex SHA-256 of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MatchesFingerprint reports whether the file at path hashes to want. A
// missing or unreadable file does not match; only a failure to reach the
// machine is returned as an error.
func MatchesFingerprint(ctx context.Context, f FS, path, want string) (bool, error) {
	data, err := f.ReadFile(ctx, path)
	if err != nil {
		var launchErr *transport.LaunchError
		if errors.As(err, &launchErr) {
			return false, err
		}
		return false, nil
	}
	return Fingerprint(data) == want, nil
}
