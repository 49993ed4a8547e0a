package hostfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/8inary/infra/internal/hostfs/hostfstest"
	"github.com/8inary/infra/internal/transport"
	"github.com/8inary/infra/internal/transport/transporttest"
)

func TestTransportFS_LocalRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	f := New(transport.NewLocal())

	path := filepath.Join(dir, "nested dir", "k8s.conf")
	require.NoError(t, f.MkdirAll(ctx, filepath.Dir(path)))

	content := []byte("overlay\nbr_netfilter\n")
	require.NoError(t, f.WriteFile(ctx, path, content, 0o644))

	got, err := f.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o644), info.Mode().Perm())

	exists, err := f.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = os.Stat(path + ".infra-tmp")
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestTransportFS_ReadMissing(t *testing.T) {
	t.Parallel()
	f := New(transport.NewLocal())

	_, err := f.ReadFile(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	exists, err := f.Exists(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTransportFS_EmptyAndBinary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := New(transport.NewLocal())
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, f.WriteFile(ctx, empty, nil, 0o600))
	got, err := f.ReadFile(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, got)

	bin := filepath.Join(dir, "bin")
	payload := []byte{0, 1, 2, '\'', '"', '$', '\n', 255}
	require.NoError(t, f.WriteFile(ctx, bin, payload, 0o600))
	got, err = f.ReadFile(ctx, bin)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestTransportFS_LaunchErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection reset")
	f := New(transporttest.New().On("base64", transporttest.Reply{Err: boom}))

	_, err := f.ReadFile(context.Background(), "/etc/fstab")
	require.ErrorIs(t, err, boom)

	ok, err := MatchesFingerprint(context.Background(), f, "/etc/fstab", "x")
	require.ErrorIs(t, err, boom)
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"fcaf07413a456d658640930cef56ed4d13330123e3b522c481021613c64755e3",
		Fingerprint([]byte("overlay\nbr_netfilter\n")))
}

func TestMatchesFingerprint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	want := Fingerprint([]byte("blessed\n"))

	mem := hostfstest.New(map[string]string{
		"/ok":      "blessed\n",
		"/mutated": "blessed!",
	})
	mem.ReadErr["/denied"] = errors.New("permission denied")

	tests := []struct {
		path string
		want bool
	}{
		{"/ok", true},
		{"/mutated", false},
		{"/missing", false},
		{"/denied", false},
	}
	for _, tt := range tests {
		ok, err := MatchesFingerprint(ctx, mem, tt.path, want)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, ok, tt.path)
	}
}
