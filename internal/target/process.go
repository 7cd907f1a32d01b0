// Package target stops and starts the Antigravity IDE and locates its state
// database.
package target

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Controller is the OS-facing side of a switch.
type Controller interface {
	// Stop force-terminates every IDE process. Nothing running is not an error.
	Stop(ctx context.Context) error
	// Start launches the IDE detached from this process.
	Start(ctx context.Context) error
	// StateDBPath returns the IDE's state.vscdb path.
	StateDBPath() string
}

// Command is a program and its arguments.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// layout is the per-OS description of how to control the IDE.
type layout struct {
	stop []Command
	// find lists matching pids one per line; each is killed except this
	// process, whose own command line may match the pattern.
	find    *Command
	start   []Command
	stateDB string
}

// Options overrides the platform defaults.
type Options struct {
	// Executable replaces the platform launch candidates.
	Executable string
	// StateDBPath replaces the platform state database location.
	StateDBPath string
}

// Process controls a locally installed IDE with OS commands.
type Process struct {
	layout layout

	run      func(ctx context.Context, c Command) error
	output   func(ctx context.Context, c Command) ([]byte, error)
	spawn    func(c Command) error
	lookPath func(file string) (string, error)
	pid      int
}

// NewProcess returns a controller for the current OS.
func NewProcess(opts Options) (*Process, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return newProcess(platformLayout(home), opts), nil
}

func newProcess(l layout, opts Options) *Process {
	if opts.Executable != "" {
		l.start = []Command{{Name: opts.Executable}}
	}
	if opts.StateDBPath != "" {
		l.stateDB = opts.StateDBPath
	}
	return &Process{
		layout:   l,
		run:      runCommand,
		output:   outputCommand,
		spawn:    spawnCommand,
		lookPath: exec.LookPath,
		pid:      os.Getpid(),
	}
}

// StateDBPath returns the IDE's state.vscdb path.
func (p *Process) StateDBPath() string {
	return p.layout.stateDB
}

// Stop runs every kill command. A command that matched no process exits
// non-zero; that and any other failure is collected, never short-circuited.
func (p *Process) Stop(ctx context.Context) error {
	var errs []error
	for _, c := range p.layout.stop {
		if err := p.run(ctx, c); err != nil {
			log.Printf("[target] %q: %v", c.String(), err)
			errs = append(errs, fmt.Errorf("%s: %w", c.String(), err))
		}
	}
	if p.layout.find != nil {
		if err := p.killMatching(ctx, *p.layout.find); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Process) killMatching(ctx context.Context, find Command) error {
	out, err := p.output(ctx, find)
	if err != nil {
		// pgrep exits 1 when nothing matched.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		log.Printf("[target] %q: %v", find.String(), err)
		return fmt.Errorf("%s: %w", find.String(), err)
	}

	var errs []error
	for _, field := range strings.Fields(string(out)) {
		pid, err := strconv.Atoi(field)
		if err != nil || pid == p.pid {
			continue
		}
		kill := Command{Name: "kill", Args: []string{"-9", field}}
		if err := p.run(ctx, kill); err != nil {
			log.Printf("[target] %q: %v", kill.String(), err)
			errs = append(errs, fmt.Errorf("%s: %w", kill.String(), err))
		}
	}
	return errors.Join(errs...)
}

// Start launches the first launch candidate whose program can be found.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	for _, c := range p.layout.start {
		if _, err := p.lookPath(c.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		if err := p.spawn(c); err != nil {
			return fmt.Errorf("start %q: %w", c.String(), err)
		}
		log.Printf("🚀 [target] Started %q", c.String())
		return nil
	}
	if len(errs) == 0 {
		return errors.New("no launch command configured")
	}
	return fmt.Errorf("Antigravity executable not found: %w", errors.Join(errs...))
}

func runCommand(ctx context.Context, c Command) error {
	out, err := exec.CommandContext(ctx, c.Name, c.Args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return err
}

func outputCommand(ctx context.Context, c Command) ([]byte, error) {
	return exec.CommandContext(ctx, c.Name, c.Args...).Output()
}

// spawnCommand starts c without waiting for it; the child is reaped in the
// background so it does not linger as a zombie.
func spawnCommand(c Command) error {
	cmd := exec.Command(c.Name, c.Args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
