package preflight

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ping/ping"

	"dutbench/internal/remote"
)

type fakePinger struct {
	host  string
	stats ping.Statistics
	err   error
}

func (f *fakePinger) Ping(_ context.Context, host string) (ping.Statistics, error) {
	f.host = host
	return f.stats, f.err
}

type fakeResolver struct{}

func (fakeResolver) Resolve(alias string) (remote.ConnectionParams, error) {
	return remote.ConnectionParams{Alias: alias, Host: "10.0.0.7", Port: 22}, nil
}

type fakeSession struct {
	cmds   []string
	err    error
	closed bool
}

func (s *fakeSession) Exec(_ context.Context, cmd string) (remote.Output, error) {
	s.cmds = append(s.cmds, cmd)
	return remote.Output{Stdout: []string{"dut"}}, s.err
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	sess *fakeSession
	err  error
}

func (d *fakeDialer) Dial(context.Context, string) (remote.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sess, nil
}

type fakeGenerator struct{ err error }

func (g fakeGenerator) Check() error { return g.err }

func TestRunAllChecks(t *testing.T) {
	p := &fakePinger{stats: ping.Statistics{PacketsSent: 3, PacketsRecv: 3}}
	sess := &fakeSession{}
	c := &Checker{Resolver: fakeResolver{}, Dialer: &fakeDialer{sess: sess}, Pinger: p, Generator: fakeGenerator{}}
	if err := c.Run(context.Background(), "cab1"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.host != "10.0.0.7" {
		t.Fatalf("pinged %q, want resolved host", p.host)
	}
	if len(sess.cmds) != 1 || sess.cmds[0] != "uname -n" || !sess.closed {
		t.Fatalf("unexpected session use %+v", sess)
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("no MoonGen")
	sess := &fakeSession{}
	c := &Checker{Dialer: &fakeDialer{sess: sess}, Generator: fakeGenerator{err: boom}}
	if err := c.Run(context.Background(), "cab1"); !errors.Is(err, boom) {
		t.Fatalf("expected generator error, got %v", err)
	}
	if len(sess.cmds) != 0 {
		t.Fatal("session must not be used after a failed check")
	}

	p := &fakePinger{err: ErrUnreachable}
	c = &Checker{Pinger: p, Dialer: &fakeDialer{sess: sess}}
	if err := c.Run(context.Background(), "cab1"); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
	if p.host != "cab1" {
		t.Fatalf("without a resolver the alias is pinged, got %q", p.host)
	}
}

func TestRunReportsSessionErrors(t *testing.T) {
	c := &Checker{Dialer: &fakeDialer{err: remote.ErrConnection}}
	if err := c.Run(context.Background(), "cab1"); !errors.Is(err, remote.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}

	sess := &fakeSession{err: &remote.ExecError{Command: "id", Stderr: []string{"denied"}}}
	c = &Checker{Dialer: &fakeDialer{sess: sess}, Command: "id"}
	if err := c.Run(context.Background(), "cab1"); !errors.Is(err, remote.ErrExec) {
		t.Fatalf("expected ErrExec, got %v", err)
	}
	if !sess.closed {
		t.Fatal("session not closed")
	}
}

func TestICMPPingerRejectsBadHost(t *testing.T) {
	_, err := ICMPPinger{Count: 1}.Ping(context.Background(), "no such host.invalid")
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}
