package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

type viewerExitedMsg struct {
	file string
	err  error
}

// viewers tracks the structure viewer processes started from the shell so
// they can be stopped when it quits.
type viewers struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running map[*exec.Cmd]string // process -> snapshot file
}

func newViewers() *viewers {
	ctx, cancel := context.WithCancel(context.Background())
	return &viewers{ctx: ctx, cancel: cancel, running: map[*exec.Cmd]string{}}
}

// start runs argv with file appended and returns a command reporting the
// exit. The file is removed once the viewer is gone.
func (v *viewers) start(argv []string, file string) (tea.Cmd, error) {
	if len(argv) == 0 {
		return nil, errors.New("no viewer configured")
	}
	args := append(append([]string{}, argv[1:]...), file)
	cmd := exec.CommandContext(v.ctx, argv[0], args...)
	if err := cmd.Start(); err != nil {
		os.Remove(file)
		return nil, fmt.Errorf("start viewer %s: %w", argv[0], err)
	}
	slog.Debug("viewer started", "cmd", argv, "file", file, "pid", cmd.Process.Pid)
	v.mu.Lock()
	v.running[cmd] = file
	v.mu.Unlock()
	return func() tea.Msg {
		err := cmd.Wait()
		v.mu.Lock()
		delete(v.running, cmd)
		v.mu.Unlock()
		os.Remove(file)
		return viewerExitedMsg{file: file, err: err}
	}, nil
}

func (v *viewers) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.running)
}

// stopAll kills every running viewer.
func (v *viewers) stopAll() {
	v.cancel()
	v.mu.Lock()
	defer v.mu.Unlock()
	for cmd, file := range v.running {
		if cmd.Process != nil {
			cmd.Process.Kill()
			slog.Debug("viewer stopped", "pid", cmd.Process.Pid)
		}
		os.Remove(file)
	}
}
