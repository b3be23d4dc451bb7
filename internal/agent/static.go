package agent

import (
	"context"

	"agentq/internal/config"
)

// Static returns a canned result without doing any work. Used for dry runs
// and as the standard test double.
type Static struct {
	output string
	fail   bool
}

func NewStatic(cfg config.StaticAgentConfig) *Static {
	return &Static{output: cfg.Output, fail: cfg.Fail}
}

func (s *Static) Kind() string { return "static" }

func (s *Static) Execute(ctx context.Context, workspacePath, prompt string, onStream StreamFunc) (Result, error) {
	if s.fail {
		return Result{Success: false, Error: "static agent configured to fail"}, nil
	}
	if onStream != nil && s.output != "" {
		onStream(s.output)
	}
	return Result{Success: true, Output: s.output}, nil
}
