// Package mount keeps the named mountpoints a node may read from.
//
// A Registry is an ordinary value: build one from configuration and hand it to
// the resolver. Each Open dials a fresh connection that the caller owns.
package mount

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"

	"tableread/internal/connection"
	"tableread/internal/connection/hubfs"
	"tableread/internal/connection/localfs"
	"tableread/internal/connection/sftpfs"
	"tableread/internal/errs"
)

// Kind selects the backend of a mountpoint.
type Kind string

const (
	KindLocal Kind = "local"
	KindSFTP  Kind = "sftp"
	KindHub   Kind = "hub"
)

// Mountpoint is one named mount.
type Mountpoint struct {
	Name string `json:"name" mapstructure:"name"`
	Kind Kind   `json:"kind" mapstructure:"kind"`

	// Root is the directory for local mounts.
	Root string `json:"root" mapstructure:"root"`

	// SFTP carries the server settings for sftp mounts.
	SFTP sftpfs.Config `json:"sftp" mapstructure:"sftp"`

	// Space is the hub space id for hub mounts.
	Space string `json:"space" mapstructure:"space"`
}

// Validate checks the fields required by the mount's kind.
func (m Mountpoint) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errs.Configurationf("mount: name must not be empty")
	}
	switch m.Kind {
	case KindLocal:
		if m.Root == "" {
			return errs.Configurationf("mount %q: root must not be empty", m.Name)
		}
	case KindSFTP:
		if m.SFTP.Addr == "" {
			return errs.Configurationf("mount %q: sftp.addr must not be empty", m.Name)
		}
	case KindHub:
		if m.Space == "" {
			return errs.Configurationf("mount %q: space must not be empty", m.Name)
		}
	default:
		return errs.Configurationf("mount %q: unknown kind %q", m.Name, m.Kind)
	}
	return nil
}

// Dialer opens a connection for a mountpoint.
type Dialer func(ctx context.Context, m Mountpoint) (connection.Connection, error)

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	mounts  map[string]Mountpoint
	dialers map[Kind]Dialer
	logger  log.Interface
}

// NewRegistry builds a registry with the default dialers. hub configures the
// endpoint used by hub mounts.
func NewRegistry(hub hubfs.Config, mounts ...Mountpoint) (*Registry, error) {
	r := &Registry{
		mounts: make(map[string]Mountpoint, len(mounts)),
		dialers: map[Kind]Dialer{
			KindLocal: dialLocal,
			KindSFTP:  dialSFTP,
			KindHub: func(ctx context.Context, m Mountpoint) (connection.Connection, error) {
				fs, err := hubfs.Dial(ctx, hub, m.Space)
				if err != nil {
					return nil, err
				}
				return fs, nil
			},
		},
		logger: log.Log,
	}
	for _, m := range mounts {
		if err := r.Add(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// WithLogger sets the logger used for dial events.
func (r *Registry) WithLogger(l log.Interface) *Registry {
	r.mu.Lock()
	r.logger = l
	r.mu.Unlock()
	return r
}

// Add registers m. Names are unique.
func (r *Registry) Add(m Mountpoint) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.mounts[m.Name]; dup {
		return errs.Configurationf("mount %q: duplicate name", m.Name)
	}
	r.mounts[m.Name] = m
	return nil
}

// SetDialer replaces the dialer for kind.
func (r *Registry) SetDialer(kind Kind, d Dialer) {
	r.mu.Lock()
	r.dialers[kind] = d
	r.mu.Unlock()
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.mounts))
	for n := range r.mounts {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Open dials a new connection to the named mountpoint. The caller closes it.
func (r *Registry) Open(ctx context.Context, name string) (connection.Connection, error) {
	if err := errs.CheckContext(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	m, ok := r.mounts[name]
	dial := r.dialers[m.Kind]
	logger := r.logger
	r.mu.RUnlock()

	if !ok {
		return nil, errs.Resolutionf("mount %q: not registered (known: %s)", name, strings.Join(r.Names(), ", "))
	}
	if dial == nil {
		return nil, errs.Resolutionf("mount %q: no dialer for kind %q", name, m.Kind)
	}

	logger.WithFields(log.Fields{"mount": name, "kind": string(m.Kind)}).Debug("dialing mountpoint")
	conn, err := dial(ctx, m)
	if err != nil {
		if errs.KindOf(err) == errs.KindCancelled {
			return nil, err
		}
		return nil, errs.Resolution(err, "mount %q", name)
	}
	return conn, nil
}

func dialLocal(_ context.Context, m Mountpoint) (connection.Connection, error) {
	fs, err := localfs.NewBasePath(m.Root)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func dialSFTP(ctx context.Context, m Mountpoint) (connection.Connection, error) {
	cfg := m.SFTP
	if cfg.Root == "" {
		cfg.Root = m.Root
	}
	fs, err := sftpfs.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return fs, nil
}
