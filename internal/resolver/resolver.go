// Package resolver maps a location category and specifier to a
// provider.Factory, opening the connection the category needs.
package resolver

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/afero"

	"tableread/internal/connection"
	"tableread/internal/connection/hubfs"
	"tableread/internal/connection/localfs"
	"tableread/internal/errs"
	"tableread/internal/location"
	"tableread/internal/mount"
	"tableread/internal/provider"
)

// Workspace gives the roots that Relative locations are resolved against.
type Workspace struct {
	WorkflowDir string `json:"workflow_dir" mapstructure:"workflow_dir"`
	// DataDir defaults to <WorkflowDir>/data.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
	// Mountpoint names the current mountpoint in the registry.
	Mountpoint string `json:"mountpoint" mapstructure:"mountpoint"`
	// Space is the current hub space id.
	Space string `json:"space" mapstructure:"space"`
}

// DataRoot returns the effective data directory.
func (w Workspace) DataRoot() string {
	if w.DataDir != "" {
		return w.DataDir
	}
	if w.WorkflowDir == "" {
		return ""
	}
	return filepath.Join(w.WorkflowDir, "data")
}

// HubDialer opens a connection to a hub space.
type HubDialer func(ctx context.Context, cfg hubfs.Config, space string) (connection.Connection, error)

// Env is everything the resolver needs to open connections.
type Env struct {
	Workspace Workspace
	Mounts    *mount.Registry
	Hub       hubfs.Config
	URL       provider.URLOptions

	// Fs is the filesystem Local and workflow/data locations live on.
	// Defaults to the OS filesystem.
	Fs afero.Fs
	// HubDial defaults to hubfs.Dial.
	HubDial HubDialer
	Logger  log.Interface
}

type constructor func(ctx context.Context, specifier string, conn connection.Connection) (provider.Factory, error)

// Resolver creates factories. It holds no open resources itself.
type Resolver struct {
	env          Env
	logger       log.Interface
	constructors map[location.Category]constructor
}

// New returns a resolver over env.
func New(env Env) *Resolver {
	if env.Fs == nil {
		env.Fs = afero.NewOsFs()
	}
	if env.HubDial == nil {
		env.HubDial = dialHub
	}
	if env.Logger == nil {
		env.Logger = log.Log
	}
	if env.Mounts == nil {
		env.Mounts, _ = mount.NewRegistry(env.Hub)
	}
	r := &Resolver{env: env, logger: env.Logger}
	r.constructors = map[location.Category]constructor{
		location.Local:      r.local,
		location.Relative:   r.relative,
		location.Mountpoint: r.mountpoint,
		location.HubSpace:   r.hubSpace,
		location.CustomURL:  r.customURL,
		location.Connected:  r.connected,
	}
	return r
}

// Resolve returns a factory for locations of category and specifier. conn is
// only used, and required, for Connected. The caller closes the factory.
func (r *Resolver) Resolve(ctx context.Context, category location.Category, specifier string, conn connection.Connection) (provider.Factory, error) {
	if err := errs.CheckContext(ctx); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, errs.Configurationf("resolver: unknown category %d", int(category))
	}
	if category.RequiresSpecifier() && strings.TrimSpace(specifier) == "" {
		return nil, errs.Configurationf("resolver: category %s requires a specifier", category)
	}
	if category == location.Connected && connection.IsNil(conn) {
		return nil, errs.Configurationf("resolver: category %s requires a connection", category)
	}
	build, ok := r.constructors[category]
	if !ok {
		return nil, errs.Configurationf("resolver: no constructor for category %s", category)
	}

	r.logger.WithFields(log.Fields{"category": category.String(), "specifier": specifier}).Debug("resolving")
	return build(ctx, specifier, conn)
}

func (r *Resolver) local(context.Context, string, connection.Connection) (provider.Factory, error) {
	return provider.NewConnFactory(location.Local, "", localfs.New(r.env.Fs)), nil
}

func (r *Resolver) relative(ctx context.Context, specifier string, _ connection.Connection) (provider.Factory, error) {
	ws := r.env.Workspace
	var (
		conn connection.Connection
		err  error
	)
	switch specifier {
	case location.RelativeToWorkflow:
		conn, err = r.rooted(ws.WorkflowDir, "workflow_dir")
	case location.RelativeToData:
		conn, err = r.rooted(ws.DataRoot(), "data_dir")
	case location.RelativeToMountpoint:
		if ws.Mountpoint == "" {
			return nil, errs.Configurationf("resolver: no current mountpoint in workspace")
		}
		conn, err = r.env.Mounts.Open(ctx, ws.Mountpoint)
	case location.RelativeToSpace:
		if ws.Space == "" {
			return nil, errs.Configurationf("resolver: no current hub space in workspace")
		}
		conn, err = r.openHub(ctx, ws.Space)
	default:
		return nil, errs.Configurationf("resolver: unknown relative specifier %q", specifier)
	}
	if err != nil {
		return nil, err
	}
	return provider.NewConnFactory(location.Relative, specifier, conn), nil
}

func (r *Resolver) rooted(dir, key string) (connection.Connection, error) {
	if dir == "" {
		return nil, errs.Configurationf("resolver: workspace %s is not set", key)
	}
	fs, err := localfs.NewRooted(r.env.Fs, dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

func (r *Resolver) mountpoint(ctx context.Context, name string, _ connection.Connection) (provider.Factory, error) {
	conn, err := r.env.Mounts.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return provider.NewConnFactory(location.Mountpoint, name, conn), nil
}

func (r *Resolver) hubSpace(ctx context.Context, space string, _ connection.Connection) (provider.Factory, error) {
	conn, err := r.openHub(ctx, space)
	if err != nil {
		return nil, err
	}
	return provider.NewConnFactory(location.HubSpace, space, conn), nil
}

func (r *Resolver) openHub(ctx context.Context, space string) (connection.Connection, error) {
	conn, err := r.env.HubDial(ctx, r.env.Hub, space)
	if err != nil {
		if errs.KindOf(err) == errs.KindUnknown {
			return nil, errs.Resolution(err, "resolver: hub space %q", space)
		}
		return nil, err
	}
	return conn, nil
}

func (r *Resolver) customURL(context.Context, string, connection.Connection) (provider.Factory, error) {
	opts := r.env.URL
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	return provider.NewURLFactory(opts), nil
}

func (r *Resolver) connected(_ context.Context, _ string, conn connection.Connection) (provider.Factory, error) {
	return provider.NewConnFactory(location.Connected, "", connection.Unowned(conn)), nil
}

func dialHub(ctx context.Context, cfg hubfs.Config, space string) (connection.Connection, error) {
	fs, err := hubfs.Dial(ctx, cfg, space)
	if err != nil {
		return nil, err
	}
	return fs, nil
}
