// Package sftpfs implements connection.Connection over SFTP. It backs sftp
// mountpoints and sftp:// custom URLs.
package sftpfs

import (
	"context"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/pkg/sftp"
	"go.uber.org/multierr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"tableread/internal/connection"
	"tableread/internal/errs"
)

// Config describes how to reach an SFTP server.
type Config struct {
	// Addr is host:port. Port 22 is assumed when missing.
	Addr     string `json:"addr" mapstructure:"addr"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	// KeyFile is a PEM private key used for public-key auth.
	KeyFile string `json:"key_file" mapstructure:"key_file"`
	// KnownHostsFile enables host key checking. When empty, host keys are not
	// verified.
	KnownHostsFile string `json:"known_hosts_file" mapstructure:"known_hosts_file"`
	// Root is the remote directory names are resolved below. Defaults to "/".
	Root    string        `json:"root" mapstructure:"root"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// FS is an SFTP connection. *sftp.Client is safe for concurrent use, so one
// FS may back several open paths.
type FS struct {
	client *sftp.Client
	root   string
	closer func() error
	closed atomic.Bool
}

// Dial connects and authenticates according to cfg.
func Dial(ctx context.Context, cfg Config) (*FS, error) {
	clientCfg, err := clientConfig(cfg)
	if err != nil {
		return nil, err
	}
	addr := cfg.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "22")
	}

	d := net.Dialer{Timeout: clientCfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "sftpfs: dial %s", addr)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "sftpfs: ssh handshake with %s", addr)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, errors.Wrapf(err, "sftpfs: start sftp subsystem on %s", addr)
	}

	log.WithFields(log.Fields{"addr": addr, "user": cfg.User, "root": cfg.Root}).Debug("sftpfs: connected")
	return NewFromClient(client, cfg.Root, sshClient.Close), nil
}

// NewFromClient wraps an established client. closeFn, if non-nil, is called
// after the client is closed (e.g. to close the underlying ssh connection).
func NewFromClient(client *sftp.Client, root string, closeFn func() error) *FS {
	if root == "" {
		root = "/"
	}
	return &FS{client: client, root: path.Clean(root), closer: closeFn}
}

func clientConfig(cfg Config) (*ssh.ClientConfig, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errs.Configurationf("sftpfs: addr must not be empty")
	}
	var auth []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, errs.Resolution(err, "sftpfs: read key file")
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, errs.Configurationf("sftpfs: parse key file %s: %v", cfg.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	hostKey := ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts_file
	if cfg.KnownHostsFile != "" {
		cb, err := knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, errs.Configurationf("sftpfs: known hosts %s: %v", cfg.KnownHostsFile, err)
		}
		hostKey = cb
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

func (f *FS) Scheme() string { return "sftp" }

// remote maps name to an absolute remote path that cannot escape the root.
func (f *FS) remote(name string) string {
	return path.Join(f.root, path.Clean("/"+name))
}

func (f *FS) check(ctx context.Context) error {
	if err := errs.CheckContext(ctx); err != nil {
		return err
	}
	if f.closed.Load() {
		return errs.UseAfterClosef("sftpfs: connection closed")
	}
	return nil
}

// Stat implements connection.Connection.
func (f *FS) Stat(ctx context.Context, name string) (connection.FileInfo, error) {
	if err := f.check(ctx); err != nil {
		return connection.FileInfo{}, err
	}
	fi, err := f.client.Stat(f.remote(name))
	if err != nil {
		if connection.IsNotExist(err) {
			return connection.FileInfo{}, connection.NotExist("sftp", name)
		}
		return connection.FileInfo{}, errors.Wrapf(err, "sftpfs: stat %s", name)
	}
	return connection.FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}, nil
}

// Open implements connection.Connection.
func (f *FS) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := f.check(ctx); err != nil {
		return nil, err
	}
	fd, err := f.client.Open(f.remote(name))
	if err != nil {
		if connection.IsNotExist(err) {
			return nil, connection.NotExist("sftp", name)
		}
		return nil, errors.Wrapf(err, "sftpfs: open %s", name)
	}
	return fd, nil
}

// Close closes the sftp session and then the transport. It is idempotent.
func (f *FS) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	err := f.client.Close()
	if f.closer != nil {
		err = multierr.Append(err, f.closer())
	}
	return err
}
