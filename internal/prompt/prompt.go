// Package prompt builds the briefing handed to the agent capability for one
// execution: prior memory plus the user's request, wrapped in standing
// instructions about autonomy and memory upkeep.
package prompt

import "strings"

// Input carries the two variable parts of a prompt.
type Input struct {
	Memory      string
	UserRequest string
}

const template = `# Task
Complete the user's request and save any produced files to the current working directory.

# Context from Memory
%MEMORY%

# User Request
%REQUEST%

# Instructions
1. Work inside the current directory; it is your workspace for this task
2. Save output files with meaningful, descriptive filenames
3. After completing the task, update the memory file with a summary of what you accomplished
4. If the accumulated memory grows very large, compress it: keep recent and
   relevant information, summarize older entries, preserve key findings and
   data sources

# Autonomous Problem Solving
- Never ask questions the user cannot reasonably answer
- Make reasonable assumptions and proceed
- Choose sensible defaults when multiple options exist
- If unsure about a detail, pick the most logical option and continue

# Output Requirements
- Result files saved to the current directory
- Updated memory file with a task summary`

// Build renders the prompt. Empty memory renders a placeholder so the agent
// knows this is a fresh series rather than a truncated context.
func Build(in Input) string {
	mem := strings.TrimSpace(in.Memory)
	if mem == "" {
		mem = "No previous memory available."
	}
	out := strings.ReplaceAll(template, "%MEMORY%", mem)
	out = strings.ReplaceAll(out, "%REQUEST%", in.UserRequest)
	return strings.TrimSpace(out)
}
