package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/comfyendpoints/runtime/internal/config"
	"github.com/comfyendpoints/runtime/internal/logging"
)

// engineProcess wraps the running graph engine subprocess: its stdout and
// stderr are tailed into the global EngineOutputStore when one is
// initialized, and discarded otherwise. Neither the gateway nor the
// degraded endpoint serves the captured output.
//
// exited is closed (never sent on) when the subprocess's Wait returns, so
// both the main shutdown select and Stop can each read it without
// coordinating who consumes the one value first.
type engineProcess struct {
	cmd     *exec.Cmd
	exited  chan struct{}
	waitErr error
}

// startEngine launches cfg.Engine.Command and begins tailing its output:
// construct, start, and hand back a channel the caller selects on rather
// than blocking here.
func startEngine(cfg *config.Config) (*engineProcess, error) {
	command := cfg.Engine.Command
	cmd := exec.Command(command[0], command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine process: %w", err)
	}
	logging.Op().Info("engine subprocess started", "pid", cmd.Process.Pid, "command", command)

	if store := logging.GetEngineOutputStore(); store != nil {
		go tailStream(store, "stdout", stdout)
		go tailStream(store, "stderr", stderr)
	} else {
		go io.Copy(io.Discard, stdout)
		go io.Copy(io.Discard, stderr)
	}

	ep := &engineProcess{cmd: cmd, exited: make(chan struct{})}
	go func() {
		ep.waitErr = cmd.Wait()
		close(ep.exited)
	}()
	return ep, nil
}

func tailStream(store *logging.EngineOutputStore, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		store.Append(stream, scanner.Text())
	}
}

// Exited returns a channel closed when the engine subprocess terminates on
// its own; safe to select on from multiple places. Call WaitErr after it
// closes to retrieve the underlying Wait error.
func (p *engineProcess) Exited() <-chan struct{} {
	return p.exited
}

// WaitErr returns the subprocess's Wait error; only meaningful after
// Exited has closed.
func (p *engineProcess) WaitErr() error {
	return p.waitErr
}

// Stop signals the engine subprocess to terminate and waits briefly for it
// to exit, escalating to SIGKILL if it does not. Safe to call after the
// subprocess has already exited on its own.
func (p *engineProcess) Stop() {
	if p == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.exited:
		return
	default:
	}
	p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.exited:
	case <-time.After(10 * time.Second):
		p.cmd.Process.Kill()
		<-p.exited
	}
}
