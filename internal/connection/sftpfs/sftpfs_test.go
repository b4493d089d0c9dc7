package sftpfs

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// newInMemory starts an in-memory SFTP server on a net.Pipe and returns a
// client connected to it, pre-populated with files.
func newInMemory(t *testing.T, files map[string]string) *sftp.Client {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	srv := sftp.NewRequestServer(serverConn, sftp.InMemHandler())
	go func() { _ = srv.Serve() }()

	client, err := sftp.NewClientPipe(clientConn, clientConn)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
		_ = srv.Close()
	})

	for name, body := range files {
		dir := name[:len(name)-len(lastElem(name))]
		if dir != "/" {
			require.NoError(t, client.MkdirAll(dir))
		}
		f, err := client.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
		require.NoError(t, f.Close())
	}
	return client
}

func lastElem(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

func TestStatOpenBelowRoot(t *testing.T) {
	t.Parallel()

	client := newInMemory(t, map[string]string{
		"/exports/sales/q1.csv": "region,total\nnorth,10\n",
	})
	fs := NewFromClient(client, "/exports", nil)
	ctx := context.Background()

	fi, err := fs.Stat(ctx, "sales/q1.csv")
	require.NoError(t, err)
	assert.Equal(t, "q1.csv", fi.Name)
	assert.False(t, fi.IsDir)

	rc, err := fs.Open(ctx, "sales/q1.csv")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "region,total\nnorth,10\n", string(b))

	_, err = fs.Stat(ctx, "sales/q2.csv")
	assert.True(t, connection.IsNotExist(err), "got %v", err)

	_, err = fs.Open(ctx, "sales/q2.csv")
	assert.True(t, connection.IsNotExist(err), "got %v", err)
}

func TestRemotePathCannotEscapeRoot(t *testing.T) {
	t.Parallel()

	fs := &FS{root: "/exports"}
	assert.Equal(t, "/exports/a.csv", fs.remote("../../a.csv"))
	assert.Equal(t, "/exports/x/y.csv", fs.remote("/x/y.csv"))
	assert.Equal(t, "/exports", fs.remote(""))
}

func TestCloseIsIdempotentAndCallsCloser(t *testing.T) {
	t.Parallel()

	client := newInMemory(t, nil)
	calls := 0
	fs := NewFromClient(client, "", func() error { calls++; return nil })

	require.NoError(t, fs.Close())
	require.NoError(t, fs.Close())
	assert.Equal(t, 1, calls)

	_, err := fs.Stat(context.Background(), "a")
	assert.ErrorIs(t, err, errs.ErrUseAfterClose)
}

func TestClientConfigValidation(t *testing.T) {
	t.Parallel()

	_, err := clientConfig(Config{})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	cfg, err := clientConfig(Config{Addr: "h:22", User: "u", Password: "p"})
	require.NoError(t, err)
	assert.Equal(t, "u", cfg.User)
	assert.Len(t, cfg.Auth, 1)
	assert.NotZero(t, cfg.Timeout)

	_, err = clientConfig(Config{Addr: "h", KeyFile: "/does/not/exist"})
	assert.ErrorIs(t, err, errs.ErrResolution)
}
