package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
)

// maxLineBytes caps one output line. Longer lines are split.
const maxLineBytes = 64 * 1024

// execSpawner starts the real edge binary.
type execSpawner struct{}

func (execSpawner) Spawn(_ context.Context, path string, args []string) (Process, error) {
	// Not CommandContext: the edge outlives the request that started it.
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &execProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
}

func (p *execProcess) Pid() int          { return p.cmd.Process.Pid }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }
func (p *execProcess) Wait() error       { return p.cmd.Wait() }
func (p *execProcess) Interrupt() error  { return interruptPID(p.Pid()) }
func (p *execProcess) Kill() error       { return killPID(p.Pid()) }

// splitLines is bufio.ScanLines that hands out over-long lines in
// maxLineBytes chunks instead of failing.
func splitLines(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= maxLineBytes {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	return advance, token, err
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)
	sc.Split(splitLines)
	return sc
}
