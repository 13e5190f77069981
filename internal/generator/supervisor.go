package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"

	"dutbench/internal/logging"
)

// Supervisor tracks every generator launched by this process and kills the
// ones left behind. It only ever looks at descendants of the current process.
type Supervisor struct {
	// Name matches descendant processes by executable name. Empty disables
	// the descendant scan.
	Name string

	mu    sync.Mutex
	procs map[int]*Process
}

// NewSupervisor returns a Supervisor matching descendants named like the
// executable in command.
func NewSupervisor(name string) *Supervisor {
	if name != "" {
		name = filepath.Base(name)
	}
	return &Supervisor{Name: name, procs: map[int]*Process{}}
}

func (s *Supervisor) track(p *Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[p.pgid] = p
}

// Sweep force-kills tracked generators that are still alive and any
// descendant process matching Name. It returns how many were signalled.
func (s *Supervisor) Sweep(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)
	killed := 0
	groups := map[int]bool{}

	s.mu.Lock()
	for pgid, p := range s.procs {
		if p.Exited() {
			delete(s.procs, pgid)
			continue
		}
		groups[pgid] = true
		if err := p.ForceKill(); err != nil {
			logger.Warn("kill straggler group failed", "pgid", pgid, "err", err)
			continue
		}
		killed++
	}
	s.mu.Unlock()

	if s.Name == "" {
		return killed, nil
	}
	descendants, err := descendantsOf(ctx, int32(os.Getpid()))
	if err != nil {
		return killed, err
	}
	for _, d := range descendants {
		name, err := d.NameWithContext(ctx)
		if err != nil || name != s.Name {
			continue
		}
		if pgid, err := syscall.Getpgid(int(d.Pid)); err == nil && groups[pgid] {
			continue
		}
		if err := d.KillWithContext(ctx); err != nil {
			logger.Warn("kill straggler failed", "pid", d.Pid, "err", err)
			continue
		}
		logger.Info("killed straggler generator", "pid", d.Pid)
		killed++
	}
	return killed, nil
}

// KillAll force-kills every tracked group and closes their logs. It is meant
// for abnormal termination of the orchestrator.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for pgid, p := range s.procs {
		_ = p.ForceKill()
		p.Wait(InterruptGrace)
		_ = p.Close()
		delete(s.procs, pgid)
	}
}

func descendantsOf(ctx context.Context, pid int32) ([]*process.Process, error) {
	root, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, err
	}
	var out []*process.Process
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		children, err := p.ChildrenWithContext(ctx)
		if errors.Is(err, process.ErrorNoChildren) {
			continue
		}
		if err != nil {
			// The process may have exited between listing and inspection.
			continue
		}
		out = append(out, children...)
		queue = append(queue, children...)
	}
	return out, nil
}
