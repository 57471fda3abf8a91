package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/interpro-loader/internal/errors"
)

const (
	defaultDialTimeout = 30 * time.Second
	anonymousUser      = "anonymous"
)

func (f *Fetcher) dialTimeout() time.Duration {
	if f.settings.Timeout > 0 && f.settings.Timeout < defaultDialTimeout {
		return f.settings.Timeout
	}
	return defaultDialTimeout
}

func (f *Fetcher) copyHTTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	body, _, err := f.http.Open(ctx, u.String())
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()
	return io.Copy(w, body)
}

// copyFTP retrieves u over FTP. Anonymous login is used unless the URL
// carries credentials, as on the EBI mirror.
func (f *Fetcher) copyFTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "21")
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithTimeout(f.dialTimeout()),
		ftp.DialWithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("ftp: connection failed: %w", err)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := anonymousUser, anonymousUser
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return 0, fmt.Errorf("ftp: login failed: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return 0, fmt.Errorf("ftp: retrieve failed: %w", err)
	}
	// Closing the data connection unblocks io.Copy on cancellation.
	stop := context.AfterFunc(ctx, func() { _ = resp.Close() })
	defer stop()
	defer func() { _ = resp.Close() }()

	n, err := io.Copy(w, resp)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	return n, err
}

// copySFTP retrieves u over SFTP with password authentication from the URL.
func (f *Fetcher) copySFTP(ctx context.Context, u *url.URL, w io.Writer) (int64, error) {
	if u.User == nil {
		return 0, errors.NewStd("sftp: no authentication method provided")
	}
	password, _ := u.User.Password()

	hostKeyCallback, err := f.hostKeyCallback()
	if err != nil {
		return 0, err
	}

	config := &ssh.ClientConfig{
		User:            u.User.Username(),
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         f.dialTimeout(),
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}

	dialer := &net.Dialer{Timeout: config.Timeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("sftp: failed to connect: %w", err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, config)
	if err != nil {
		_ = netConn.Close()
		return 0, fmt.Errorf("sftp: ssh handshake failed: %w", err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)
	defer func() { _ = sshClient.Close() }()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return 0, fmt.Errorf("sftp: failed to create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = sshClient.Close() })
	defer stop()

	remote, err := client.Open(u.Path)
	if err != nil {
		return 0, fmt.Errorf("sftp: failed to open %s: %w", u.Path, err)
	}
	defer func() { _ = remote.Close() }()

	n, err := remote.WriteTo(w)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return n, ctxErr
	}
	return n, err
}

func (f *Fetcher) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if f.settings.SFTP.InsecureIgnoreHostKey {
		f.log.Warn("sftp host key verification disabled")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in via sources.sftp.insecure_ignore_host_key
	}
	if f.settings.SFTP.KnownHostsFile == "" {
		return nil, errors.NewStd("sftp: sources.sftp.known_hosts_file is not set")
	}
	cb, err := knownhosts.New(f.settings.SFTP.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("sftp: failed to load known hosts: %w", err)
	}
	return cb, nil
}
