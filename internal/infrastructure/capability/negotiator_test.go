package capability

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

type fakeShell struct {
	native        bool
	granted       bool
	permissionErr error
	mkdirErr      error
	removedPaths  []string
}

func (f *fakeShell) IsNative() bool { return f.native }

func (f *fakeShell) EnsurePermission(ctx context.Context) (bool, error) {
	return f.granted, f.permissionErr
}

func (f *fakeShell) MkdirAll(path string) error { return f.mkdirErr }

func (f *fakeShell) RemoveAll(path string) error {
	f.removedPaths = append(f.removedPaths, path)
	return nil
}

func TestNegotiateNonNativeHostFallsBack(t *testing.T) {
	shell := &fakeShell{native: false}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateEmbedded, choice.Kind)
	assert.False(t, choice.PermissionGranted)
}

func TestNegotiateDeniedPermissionFallsBack(t *testing.T) {
	shell := &fakeShell{native: true, granted: false}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateEmbedded, choice.Kind)
	assert.False(t, choice.PermissionGranted)
}

func TestNegotiatePermissionErrorFallsBack(t *testing.T) {
	shell := &fakeShell{native: true, permissionErr: errors.New("host unavailable")}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateEmbedded, choice.Kind)
}

func TestNegotiateGrantedButProbeFailsFallsBack(t *testing.T) {
	// Permission granted yet the write probe fails: advertised capability
	// without a working write path resolves to the embedded substrate.
	shell := &fakeShell{native: true, granted: true, mkdirErr: errors.New("read-only volume")}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateEmbedded, choice.Kind)
	assert.True(t, choice.PermissionGranted)
	assert.False(t, choice.ProbeSucceeded)
	assert.NotEmpty(t, shell.removedPaths, "probe cleanup runs even on failure")
}

func TestNegotiateNativeWhenProbeSucceeds(t *testing.T) {
	shell := &fakeShell{native: true, granted: true}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateNative, choice.Kind)
	assert.True(t, choice.PermissionGranted)
	assert.True(t, choice.ProbeSucceeded)
	require.Len(t, shell.removedPaths, 1)
	assert.Contains(t, shell.removedPaths[0], ".probe-")
}

func TestDeviceShellProbeLeavesNoResidue(t *testing.T) {
	root := t.TempDir()
	n := NewNegotiator(DeviceShell{}, root, logging.NewTestLogger())

	choice := n.Negotiate(context.Background())
	assert.Equal(t, SubstrateNative, choice.Kind)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, filepath.Join(root, entry.Name()), ".probe-")
	}
}

func TestProbeDirectoriesAreUnique(t *testing.T) {
	shell := &fakeShell{native: true, granted: true}
	n := NewNegotiator(shell, t.TempDir(), logging.NewTestLogger())

	n.Negotiate(context.Background())
	n.Negotiate(context.Background())

	require.Len(t, shell.removedPaths, 2)
	assert.NotEqual(t, shell.removedPaths[0], shell.removedPaths[1])
}
