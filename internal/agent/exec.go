package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"agentq/internal/config"
	logx "agentq/pkg/logx"
)

// Exec spawns an autonomous CLI (e.g. a coding agent) with the prompt as its
// final argument and the workspace as its working directory. stdout and
// stderr are streamed line by line; stdout is also accumulated as the
// result output.
type Exec struct {
	command string
	args    []string
	log     logx.Logger
}

func NewExec(cfg config.ExecAgentConfig, log logx.Logger) (*Exec, error) {
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("agent: exec command is required")
	}
	return &Exec{command: cfg.Command, args: append([]string(nil), cfg.Args...), log: log}, nil
}

func (e *Exec) Kind() string { return "exec" }

func (e *Exec) Execute(ctx context.Context, workspacePath, prompt string, onStream StreamFunc) (Result, error) {
	args := append(append([]string(nil), e.args...), prompt)
	cmd := exec.CommandContext(ctx, e.command, args...)
	cmd.Dir = workspacePath
	// No stdin: a blocked read must not hold the pipeline.
	cmd.Stdin = strings.NewReader("")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	if err := cmd.Start(); err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	e.log.Debug("agent process started",
		logx.String("command", e.command), logx.String("workspace", workspacePath))

	var (
		mu     sync.Mutex
		out    strings.Builder
		errOut strings.Builder
		wg     sync.WaitGroup
	)
	stream := func(r io.Reader, stderrStream bool) {
		defer wg.Done()
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			mu.Lock()
			if stderrStream {
				errOut.WriteString(line)
				errOut.WriteString("\n")
			} else {
				out.WriteString(line)
				out.WriteString("\n")
			}
			mu.Unlock()
			if onStream != nil {
				if stderrStream {
					onStream("[stderr] " + line)
				} else {
					onStream(line)
				}
			}
		}
	}
	wg.Add(2)
	go stream(stdout, false)
	go stream(stderr, true)

	wg.Wait()
	waitErr := cmd.Wait()

	mu.Lock()
	output := out.String()
	errOutput := errOut.String()
	mu.Unlock()

	if ctx.Err() != nil {
		// The process was killed by cancellation/deadline; report it as a
		// timeout so the log line is distinguishable from an agent error.
		return Result{Success: false, Output: output,
			Error: fmt.Sprintf("agent timed out or was cancelled: %v", ctx.Err())}, nil
	}
	if waitErr != nil {
		msg := strings.TrimSpace(errOutput)
		if msg == "" {
			msg = waitErr.Error()
		}
		return Result{Success: false, Output: output, Error: msg}, nil
	}
	return Result{Success: true, Output: output}, nil
}
