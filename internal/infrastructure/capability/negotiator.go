// Package capability decides which storage substrate a device gets. The
// decision is never taken on advertised features alone: a write probe has to
// succeed before the native filesystem is selected.
package capability

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/simbavista/tour360-go/internal/infrastructure/observability/logging"
)

// Substrate identifies the storage backing chosen for this device.
type Substrate string

const (
	// SubstrateNative stores tours as files under a writable directory.
	SubstrateNative Substrate = "native"
	// SubstrateEmbedded stores tours inside the sqlite object store.
	SubstrateEmbedded Substrate = "embedded"
)

// Choice is the outcome of a negotiation.
type Choice struct {
	Kind              Substrate `json:"kind"`
	PermissionGranted bool      `json:"permissionGranted"`
	ProbeSucceeded    bool      `json:"probeSucceeded"`
	Reason            string    `json:"reason"`
}

// Shell abstracts the host platform: whether native file storage is
// offered at all, and whether the user has granted access to it.
type Shell interface {
	// IsNative reports whether the host offers direct filesystem storage.
	IsNative() bool
	// EnsurePermission checks and, when needed, requests storage
	// permission. It reports whether access is granted.
	EnsurePermission(ctx context.Context) (bool, error)
	// MkdirAll and RemoveAll carry the write probe.
	MkdirAll(path string) error
	RemoveAll(path string) error
}

// DeviceShell is the Shell backed by the real host.
type DeviceShell struct{}

func (DeviceShell) IsNative() bool { return true }

// EnsurePermission on a real host resolves to whether the process can
// create files; the probe settles the rest.
func (DeviceShell) EnsurePermission(ctx context.Context) (bool, error) { return true, nil }

func (DeviceShell) MkdirAll(path string) error  { return os.MkdirAll(path, 0o755) }
func (DeviceShell) RemoveAll(path string) error { return os.RemoveAll(path) }

// Negotiator picks a substrate for a storage root.
type Negotiator struct {
	shell  Shell
	root   string
	logger *logging.ChanneledLogger
}

// NewNegotiator builds a negotiator probing under root.
func NewNegotiator(shell Shell, root string, logger *logging.ChanneledLogger) *Negotiator {
	return &Negotiator{shell: shell, root: root, logger: logger}
}

// Negotiate returns the substrate to use. Negotiation itself never fails;
// any obstacle on the native path resolves to the embedded substrate.
func (n *Negotiator) Negotiate(ctx context.Context) Choice {
	if !n.shell.IsNative() {
		return n.resolved(Choice{Kind: SubstrateEmbedded, Reason: "no native filesystem offered"})
	}

	granted, err := n.shell.EnsurePermission(ctx)
	if err != nil {
		return n.resolved(Choice{Kind: SubstrateEmbedded, Reason: "permission check failed: " + err.Error()})
	}
	if !granted {
		return n.resolved(Choice{Kind: SubstrateEmbedded, Reason: "storage permission not granted"})
	}

	if probeErr := n.probe(); probeErr != nil {
		// Advertised capability without a working write path.
		return n.resolved(Choice{
			Kind:              SubstrateEmbedded,
			PermissionGranted: true,
			Reason:            "write probe failed: " + probeErr.Error(),
		})
	}

	return n.resolved(Choice{
		Kind:              SubstrateNative,
		PermissionGranted: true,
		ProbeSucceeded:    true,
		Reason:            "native filesystem verified",
	})
}

// probe creates and removes a uniquely named directory under the root. The
// removal runs even when the create fails, so a half-made probe directory
// never lingers.
func (n *Negotiator) probe() error {
	probeDir := filepath.Join(n.root, ".probe-"+ulid.Make().String())
	defer func() {
		_ = n.shell.RemoveAll(probeDir)
	}()

	start := time.Now()
	err := n.shell.MkdirAll(probeDir)
	if n.logger != nil {
		n.logger.Storage().Debug("Storage write probe",
			"dir", probeDir,
			"ok", err == nil,
			"duration", time.Since(start))
	}
	return err
}

func (n *Negotiator) resolved(c Choice) Choice {
	if n.logger != nil {
		n.logger.Storage().Info("Storage substrate negotiated",
			"kind", string(c.Kind),
			"permissionGranted", c.PermissionGranted,
			"probeSucceeded", c.ProbeSucceeded,
			"reason", c.Reason)
	}
	return c
}
