// Package remote runs single commands on the DUT over SSH.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrConnection means the remote session could not be established.
	ErrConnection = errors.New("remote connection failed")
	// ErrExec means a remote command wrote to stderr or could not be run.
	ErrExec = errors.New("remote command failed")
)

// ExecError carries the stderr lines that failed a remote command.
type ExecError struct {
	Command string
	Stderr  []string
	Err     error
}

func (e *ExecError) Error() string {
	if len(e.Stderr) > 0 {
		return fmt.Sprintf("%s: %q wrote to stderr: %s", ErrExec, e.Command, strings.Join(e.Stderr, " | "))
	}
	return fmt.Sprintf("%s: %q: %v", ErrExec, e.Command, e.Err)
}

// Is lets errors.Is match ErrExec.
func (e *ExecError) Is(target error) bool { return target == ErrExec }

func (e *ExecError) Unwrap() error { return e.Err }

// Output is the captured result of a remote command. Lines are trimmed and
// blank stderr lines are dropped.
type Output struct {
	Stdout     []string
	Stderr     []string
	ExitStatus int
}

// Session executes commands on one remote host.
type Session interface {
	Exec(ctx context.Context, command string) (Output, error)
	Close() error
}

// Dialer opens sessions to a host alias.
type Dialer interface {
	Dial(ctx context.Context, alias string) (Session, error)
}

// SSHDialer opens SSH sessions using agent and identity-file authentication.
type SSHDialer struct {
	Resolver Resolver
	Timeout  time.Duration
	// KnownHosts is an OpenSSH known_hosts file. When empty any host key is
	// accepted.
	KnownHosts string
}

// NewSSHDialer returns a dialer resolving aliases through r.
func NewSSHDialer(r Resolver, timeout time.Duration, knownHosts string) *SSHDialer {
	return &SSHDialer{Resolver: r, Timeout: timeout, KnownHosts: knownHosts}
}

// Dial implements Dialer.
func (d *SSHDialer) Dial(ctx context.Context, alias string) (Session, error) {
	p, err := d.Resolver.Resolve(alias)
	if err != nil {
		return nil, err
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if d.KnownHosts != "" {
		hostKeys, err = knownhosts.New(expandHome(d.KnownHosts))
		if err != nil {
			return nil, fmt.Errorf("%w: known hosts: %v", ErrConnection, err)
		}
	}

	auth, agentConn := authMethods(p)
	cfg := &ssh.ClientConfig{
		User:            p.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         d.Timeout,
	}

	addr := net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeQuietly(agentConn)
		return nil, fmt.Errorf("%w: dial %s (%s): %v", ErrConnection, alias, addr, err)
	}
	// The handshake is bounded by the dial timeout and by ctx; a peer that
	// accepts TCP but never speaks SSH must not hang the sweep.
	if d.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(d.Timeout))
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	interrupted := !stop()
	if err == nil && interrupted {
		c.Close()
		err = ctx.Err()
	}
	if err != nil {
		conn.Close()
		closeQuietly(agentConn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: handshake with %s: %w", ErrConnection, addr, ctxErr)
		}
		return nil, fmt.Errorf("%w: handshake with %s: %v", ErrConnection, addr, err)
	}
	conn.SetDeadline(time.Time{})
	return &SSHSession{client: ssh.NewClient(c, chans, reqs), agentConn: agentConn}, nil
}

// authMethods prefers a running ssh-agent and falls back to key files.
func authMethods(p ConnectionParams) ([]ssh.AuthMethod, io.Closer) {
	var methods []ssh.AuthMethod
	var agentConn io.Closer
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if c, err := net.Dial("unix", sock); err == nil {
			agentConn = c
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(c).Signers))
		}
	}

	files := p.IdentityFiles
	if len(files) == 0 {
		for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
			files = append(files, expandHome("~/.ssh/"+name))
		}
	}
	var signers []ssh.Signer
	for _, f := range files {
		key, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		s, err := ssh.ParsePrivateKey(key)
		if err != nil {
			continue
		}
		signers = append(signers, s)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, agentConn
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}

// SSHSession is a Session backed by an SSH client connection.
type SSHSession struct {
	client    *ssh.Client
	agentConn io.Closer
}

// Exec runs command and collects its output. Any stderr output fails the
// command with an ExecError; a non-zero exit status alone does not.
func (s *SSHSession) Exec(ctx context.Context, command string) (Output, error) {
	var out Output
	sess, err := s.client.NewSession()
	if err != nil {
		return out, &ExecError{Command: command, Err: err}
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return out, &ExecError{Command: command, Err: err}
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return out, &ExecError{Command: command, Err: err}
	}
	if err := sess.Start(command); err != nil {
		return out, &ExecError{Command: command, Err: err}
	}
	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		var err error
		out.Stdout, err = readLines(stdout, false)
		return err
	})
	g.Go(func() error {
		var err error
		out.Stderr, err = readLines(stderr, true)
		return err
	})
	readErr := g.Wait()
	waitErr := sess.Wait()

	if ctx.Err() != nil {
		return out, &ExecError{Command: command, Err: ctx.Err()}
	}
	if len(out.Stderr) > 0 {
		return out, &ExecError{Command: command, Stderr: out.Stderr}
	}
	var exitErr *ssh.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		out.ExitStatus = exitErr.ExitStatus()
	case waitErr != nil:
		return out, &ExecError{Command: command, Err: waitErr}
	}
	if readErr != nil {
		return out, &ExecError{Command: command, Err: readErr}
	}
	return out, nil
}

// Close closes the connection.
func (s *SSHSession) Close() error {
	err := s.client.Close()
	closeQuietly(s.agentConn)
	return err
}

func readLines(r io.Reader, skipBlank bool) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, bufio.MaxScanTokenSize), 1024*1024)
	for sc.Scan() {
		l := strings.TrimSpace(sc.Text())
		if skipBlank && l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines, sc.Err()
}
