// Package preflight verifies the bench can reach the DUT and start the
// generator before a sweep begins.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ping/ping"

	"dutbench/internal/logging"
	"dutbench/internal/remote"
)

// ErrUnreachable means the DUT did not answer ICMP echo requests.
var ErrUnreachable = errors.New("dut unreachable")

// Pinger sends echo requests to a host.
type Pinger interface {
	Ping(ctx context.Context, host string) (ping.Statistics, error)
}

// ICMPPinger pings with go-ping.
type ICMPPinger struct {
	Count      int
	Timeout    time.Duration
	Privileged bool
}

// Ping implements Pinger.
func (p ICMPPinger) Ping(ctx context.Context, host string) (ping.Statistics, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return ping.Statistics{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	pinger.Count = p.Count
	if pinger.Count <= 0 {
		pinger.Count = 3
	}
	if p.Timeout > 0 {
		pinger.Timeout = p.Timeout
	}
	pinger.SetPrivileged(p.Privileged)

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()
	if err := pinger.Run(); err != nil {
		return ping.Statistics{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	stats := pinger.Statistics()
	if err := ctx.Err(); err != nil {
		return *stats, err
	}
	if stats.PacketsRecv == 0 {
		return *stats, fmt.Errorf("%w: %s: no replies to %d requests", ErrUnreachable, host, stats.PacketsSent)
	}
	return *stats, nil
}

// GeneratorCheck reports whether the generator can be started.
type GeneratorCheck interface {
	Check() error
}

// Checker runs the preflight checks. Nil fields skip their check.
type Checker struct {
	Resolver  remote.Resolver
	Dialer    remote.Dialer
	Pinger    Pinger
	Generator GeneratorCheck
	// Command is run over SSH to prove the session works.
	Command string
}

// Run checks the generator, then pings and opens a session to alias.
func (c *Checker) Run(ctx context.Context, alias string) error {
	logger := logging.FromContext(ctx).With("host", alias)

	if c.Generator != nil {
		if err := c.Generator.Check(); err != nil {
			return err
		}
	}

	if c.Pinger != nil {
		host := alias
		if c.Resolver != nil {
			p, err := c.Resolver.Resolve(alias)
			if err != nil {
				return err
			}
			host = p.Host
		}
		stats, err := c.Pinger.Ping(ctx, host)
		if err != nil {
			return err
		}
		logger.Info("dut answers ping", "addr", host, "received", stats.PacketsRecv, "avg_rtt", stats.AvgRtt)
	}

	if c.Dialer != nil {
		sess, err := c.Dialer.Dial(ctx, alias)
		if err != nil {
			return err
		}
		defer sess.Close()
		cmd := c.Command
		if cmd == "" {
			cmd = "uname -n"
		}
		out, err := sess.Exec(ctx, cmd)
		if err != nil {
			return err
		}
		logger.Info("dut session ok", "cmd", cmd, "output", strings.Join(out.Stdout, " "))
	}
	return nil
}
