package exec

import (
	"context"
	"fmt"
	"strings"
)

// PolicyExitCode is reported for commands refused by a Policy.
const PolicyExitCode = 126

// Policy refuses commands that match any deny pattern.
type Policy struct {
	Deny []string
}

// Check returns an error naming the first deny pattern command matches.
func (p *Policy) Check(command string) error {
	if p == nil {
		return nil
	}
	normalized := strings.Join(strings.Fields(command), " ")
	for _, pattern := range p.Deny {
		if matchesPattern(normalized, pattern) {
			return fmt.Errorf("policy violation: command matches deny pattern %q", pattern)
		}
	}
	return nil
}

// matchesPattern checks if a command matches a pattern
// Supports exact match and trailing wildcard patterns
func matchesPattern(command, pattern string) bool {
	pattern = strings.Join(strings.Fields(pattern), " ")
	if pattern == "" {
		return false
	}
	if command == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(command, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// Guarded runs commands through Runner after checking them against Policy.
// Refused commands are not launched and report PolicyExitCode.
type Guarded struct {
	Runner Runner
	Policy *Policy
}

// Run implements Runner.
func (g *Guarded) Run(ctx context.Context, command string) (*Result, error) {
	if err := g.Policy.Check(command); err != nil {
		return &Result{
			Command:  command,
			ExitCode: PolicyExitCode,
			Output:   err.Error() + "\n",
		}, nil
	}
	return g.Runner.Run(ctx, command)
}
