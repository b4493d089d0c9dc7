package resolver

import (
	"context"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/connection"
	"tableread/internal/connection/hubfs"
	"tableread/internal/connection/localfs"
	"tableread/internal/errs"
	"tableread/internal/location"
	"tableread/internal/mount"
)

// testEnv builds an environment where every category resolves against an
// in-memory filesystem:
//
//	/wf/flow.csv        workflow
//	/wf/data/d.csv      data
//	/mnt/m.csv          mountpoint "shared"
//	/hub/team/h.csv     hub space "team"
//	/abs/l.csv          local
func testEnv(t *testing.T) (Env, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, body := range map[string]string{
		"/wf/flow.csv":    "w\n",
		"/wf/data/d.csv":  "d\n",
		"/mnt/m.csv":      "m\n",
		"/hub/team/h.csv": "h\n",
		"/abs/l.csv":      "l\n",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}

	mounts, err := mount.NewRegistry(hubfs.Config{}, mount.Mountpoint{Name: "shared", Kind: mount.KindLocal, Root: "/mnt"})
	require.NoError(t, err)
	mounts.SetDialer(mount.KindLocal, func(_ context.Context, m mount.Mountpoint) (connection.Connection, error) {
		c, err := localfs.NewRooted(fs, m.Root)
		if err != nil {
			return nil, err
		}
		return c, nil
	})

	env := Env{
		Workspace: Workspace{WorkflowDir: "/wf", Mountpoint: "shared", Space: "team"},
		Mounts:    mounts,
		Fs:        fs,
		HubDial: func(_ context.Context, _ hubfs.Config, space string) (connection.Connection, error) {
			c, err := localfs.NewRooted(fs, "/hub/"+space)
			if err != nil {
				return nil, errs.Resolution(err, "hub space %q", space)
			}
			return c, nil
		},
	}
	return env, fs
}

func TestConstructorsCoverEveryCategory(t *testing.T) {
	t.Parallel()

	r := New(Env{})
	for _, c := range location.Categories {
		_, ok := r.constructors[c]
		assert.True(t, ok, "no constructor for %s", c)
	}
	assert.Len(t, r.constructors, len(location.Categories))
}

// For every category a valid descriptor yields a factory whose Create does not
// report a configuration error for a well-formed location.
func TestResolve_EveryCategory(t *testing.T) {
	t.Parallel()

	env, fs := testEnv(t)
	caller, err := localfs.NewRooted(fs, "/abs")
	require.NoError(t, err)

	tests := []struct {
		loc  location.Location
		conn connection.Connection
		want string
	}{
		{location.New(location.Local, "", "/abs/l.csv"), nil, "l\n"},
		{location.New(location.Relative, location.RelativeToWorkflow, "flow.csv"), nil, "w\n"},
		{location.New(location.Relative, location.RelativeToData, "d.csv"), nil, "d\n"},
		{location.New(location.Relative, location.RelativeToMountpoint, "m.csv"), nil, "m\n"},
		{location.New(location.Relative, location.RelativeToSpace, "h.csv"), nil, "h\n"},
		{location.New(location.Mountpoint, "shared", "m.csv"), nil, "m\n"},
		{location.New(location.HubSpace, "team", "h.csv"), nil, "h\n"},
		{location.New(location.Connected, "", "l.csv"), caller, "l\n"},
		{location.New(location.CustomURL, "", "https://example.invalid/t.csv"), nil, ""},
	}

	r := New(env)
	ctx := context.Background()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.loc.String(), func(t *testing.T) {
			t.Parallel()

			f, err := r.Resolve(ctx, tt.loc.Category, tt.loc.Specifier, tt.conn)
			require.NoError(t, err)
			defer func() { assert.NoError(t, f.Close()) }()

			p, err := f.Create(tt.loc)
			require.NoError(t, err)
			defer p.Close()

			_, err = p.UncheckedPath()
			require.NoError(t, err)

			if tt.want == "" {
				return
			}
			path, err := p.Path(ctx)
			require.NoError(t, err)
			rc, err := path.Open(ctx)
			require.NoError(t, err)
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestResolve_ConnectedLeavesCallerOpen(t *testing.T) {
	t.Parallel()

	env, fs := testEnv(t)
	caller, err := localfs.NewRooted(fs, "/abs")
	require.NoError(t, err)

	ctx := context.Background()
	f, err := New(env).Resolve(ctx, location.Connected, "", caller)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = caller.Stat(ctx, "l.csv")
	assert.NoError(t, err)

	// Other categories own their connection and close it with the factory.
	f, err = New(env).Resolve(ctx, location.Relative, location.RelativeToWorkflow, nil)
	require.NoError(t, err)
	p, err := f.Create(location.New(location.Relative, location.RelativeToWorkflow, "flow.csv"))
	require.NoError(t, err)
	path, err := p.Path(ctx)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	_, err = path.Stat(ctx)
	assert.ErrorIs(t, err, errs.ErrUseAfterClose)
}

func TestResolve_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	r := New(env)
	ctx := context.Background()

	tests := []struct {
		name      string
		category  location.Category
		specifier string
		conn      connection.Connection
	}{
		{"unknown category", location.Category(99), "", nil},
		{"zero category", location.Category(0), "", nil},
		{"relative without specifier", location.Relative, "", nil},
		{"mountpoint without specifier", location.Mountpoint, "", nil},
		{"hub without specifier", location.HubSpace, "", nil},
		{"connected without connection", location.Connected, "", nil},
		{"unknown relative specifier", location.Relative, "home", nil},
		{"relative with blank specifier", location.Relative, "   ", nil},
		{"mountpoint with blank specifier", location.Mountpoint, "   ", nil},
		{"hub with blank specifier", location.HubSpace, "\t", nil},
		{"connected with typed nil connection", location.Connected, "", (*localfs.FS)(nil)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Resolve(ctx, tt.category, tt.specifier, tt.conn)
			assert.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestResolve_WorkspaceNotSet(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	env.Workspace = Workspace{}
	r := New(env)
	ctx := context.Background()

	for _, spec := range location.RelativeSpecifiers {
		_, err := r.Resolve(ctx, location.Relative, spec, nil)
		assert.ErrorIs(t, err, errs.ErrConfiguration, spec)
	}
}

func TestResolve_ResolutionErrors(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	env.Workspace.WorkflowDir = "/nowhere"
	env.HubDial = func(context.Context, hubfs.Config, string) (connection.Connection, error) {
		return nil, errors.New("503 from hub")
	}
	r := New(env)
	ctx := context.Background()

	_, err := r.Resolve(ctx, location.Mountpoint, "unknown", nil)
	assert.ErrorIs(t, err, errs.ErrResolution)

	_, err = r.Resolve(ctx, location.Relative, location.RelativeToWorkflow, nil)
	assert.ErrorIs(t, err, errs.ErrResolution)

	_, err = r.Resolve(ctx, location.HubSpace, "team", nil)
	assert.ErrorIs(t, err, errs.ErrResolution)
}

func TestResolve_Cancelled(t *testing.T) {
	t.Parallel()

	env, _ := testEnv(t)
	r := New(env)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, location.Local, "", nil)
	assert.ErrorIs(t, err, errs.ErrCancelled)
}

func TestResolve_ConnectedDoesNotOwnConnection(t *testing.T) {
	t.Parallel()

	env, fs := testEnv(t)
	caller, err := localfs.NewRooted(fs, "/abs")
	require.NoError(t, err)

	f, err := New(env).Resolve(context.Background(), location.Connected, "", caller)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = caller.Stat(context.Background(), "l.csv")
	assert.NoError(t, err, "caller's connection must stay open")
}

func TestWorkspace_DataRoot(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Workspace{}.DataRoot())
	assert.Equal(t, "/wf/data", Workspace{WorkflowDir: "/wf"}.DataRoot())
	assert.Equal(t, "/elsewhere", Workspace{WorkflowDir: "/wf", DataDir: "/elsewhere"}.DataRoot())
}
