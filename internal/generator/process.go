// Package generator owns the lifecycle of the external traffic generator:
// launching it against a log file, waiting for it to start transmitting and
// tearing it down again.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/shlex"

	"dutbench/internal/logging"
	"dutbench/internal/traffic"
)

var (
	// ErrLaunch means the generator could not be started.
	ErrLaunch = errors.New("generator launch failed")
	// ErrExitedEarly means the generator exited before it started transmitting.
	ErrExitedEarly = fmt.Errorf("%w: exited before transmitting", ErrLaunch)
)

// Handle is a running generator owned by the caller.
type Handle interface {
	Pid() int
	LogPath() string
	// Exited reports whether the process has terminated.
	Exited() bool
	// Interrupt asks the process group to stop and flush its summary.
	Interrupt() error
	// ForceKill kills the whole process group.
	ForceKill() error
	// Wait blocks up to d for the process to exit and reports whether it did.
	Wait(d time.Duration) bool
	// Close releases the log file. It does not stop the process.
	Close() error
}

// Config describes how the generator is invoked.
type Config struct {
	// Command is the program and its leading arguments, split like a shell would.
	Command string
	LogPath string
	// RandomArg is passed as the size argument for random sized packets.
	RandomArg string
	// PTY runs the generator on a pseudo terminal so it line-buffers its output.
	PTY bool
}

// Launcher starts generator processes for traffic conditions.
type Launcher struct {
	cfg  Config
	argv []string
	sup  *Supervisor
}

// NewLauncher parses cfg.Command. Launched processes are registered with sup
// when it is non-nil.
func NewLauncher(cfg Config, sup *Supervisor) (*Launcher, error) {
	argv, err := shlex.Split(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse command %q: %v", ErrLaunch, cfg.Command, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrLaunch)
	}
	for i, a := range argv {
		argv[i] = expandHome(a)
	}
	if cfg.LogPath == "" {
		return nil, fmt.Errorf("%w: no log path", ErrLaunch)
	}
	cfg.LogPath = expandHome(cfg.LogPath)
	if cfg.RandomArg == "" {
		cfg.RandomArg = "r"
	}
	return &Launcher{cfg: cfg, argv: argv, sup: sup}, nil
}

// Check reports whether the generator binary can be found.
func (l *Launcher) Check() error {
	if _, err := exec.LookPath(l.argv[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	return nil
}

// LogPath is the file every launched generator writes to.
func (l *Launcher) LogPath() string { return l.cfg.LogPath }

// Args returns the full argument vector for c: direction 0, count 1, the
// target id, the rate and the packet size.
func (l *Launcher) Args(c traffic.Condition) []string {
	size := string(c.Size)
	if c.Size == traffic.Random {
		size = l.cfg.RandomArg
	}
	args := append([]string(nil), l.argv...)
	return append(args, "0", "1", strconv.Itoa(c.TargetID),
		"-r", strconv.Itoa(c.Rate),
		"-s", size)
}

// Launch starts the generator for c with its output truncating the log file.
func (l *Launcher) Launch(ctx context.Context, c traffic.Condition) (Handle, error) {
	logger := logging.FromContext(ctx)
	args := l.Args(c)

	if err := os.MkdirAll(filepath.Dir(l.cfg.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
	}
	logFile, err := os.OpenFile(l.cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log: %v", ErrLaunch, err)
	}

	cmd := exec.Command(args[0], args[1:]...)
	p := &Process{cmd: cmd, log: logFile, logPath: l.cfg.LogPath, done: make(chan struct{})}

	if l.cfg.PTY {
		// pty.Start puts the child in its own session, so its pgid is its pid.
		tty, err := pty.Start(cmd)
		if err != nil {
			logFile.Close()
			return nil, fmt.Errorf("%w: start %s: %v", ErrLaunch, args[0], err)
		}
		p.tty = tty
		p.copied = make(chan struct{})
		go func() {
			defer close(p.copied)
			_, _ = io.Copy(logFile, tty)
		}()
	} else {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			logFile.Close()
			return nil, fmt.Errorf("%w: start %s: %v", ErrLaunch, args[0], err)
		}
	}
	p.pgid = cmd.Process.Pid

	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	if l.sup != nil {
		l.sup.track(p)
	}
	logger.Debug("generator launched", "pid", p.Pid(), "args", strings.Join(args, " "), "log", l.cfg.LogPath)
	return p, nil
}

// Process is a generator launched in its own process group.
type Process struct {
	cmd     *exec.Cmd
	log     *os.File
	tty     *os.File
	copied  chan struct{}
	logPath string
	pgid    int

	done    chan struct{}
	waitErr error

	closeOnce sync.Once
	closeErr  error
}

func (p *Process) Pid() int        { return p.cmd.Process.Pid }
func (p *Process) LogPath() string { return p.logPath }

func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// ExitErr is the error returned by the process once it exited.
func (p *Process) ExitErr() error {
	if !p.Exited() {
		return nil
	}
	return p.waitErr
}

func (p *Process) signal(sig syscall.Signal) error {
	if p.Exited() {
		return nil
	}
	if err := syscall.Kill(-p.pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal %v to group %d: %w", sig, p.pgid, err)
	}
	return nil
}

func (p *Process) Interrupt() error { return p.signal(syscall.SIGINT) }

func (p *Process) ForceKill() error { return p.signal(syscall.SIGKILL) }

func (p *Process) Wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}

// Close drains pending terminal output into the log and closes it.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.tty != nil {
			if p.Exited() {
				select {
				case <-p.copied:
				case <-time.After(time.Second):
				}
			}
			p.tty.Close()
			<-p.copied
		}
		p.closeErr = p.log.Close()
	})
	return p.closeErr
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Default().Warn("cannot expand home directory", "path", p, "err", err)
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
