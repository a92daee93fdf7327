package gitexec

import (
	"context"
	"strings"
	"sync"
)

// ScriptRunner is a Runner for tests. Responses are keyed by the joined
// argument list; a key may also be a prefix of the argument list. Calls are
// recorded in order.
type ScriptRunner struct {
	mu        sync.Mutex
	responses map[string]ScriptResponse
	calls     [][]string
}

// ScriptResponse is one canned outcome for a ScriptRunner key.
type ScriptResponse struct {
	Result *Result
	Err    error
}

// NewScriptRunner builds a ScriptRunner with no canned responses. Unmatched
// commands succeed with empty output.
func NewScriptRunner() *ScriptRunner {
	return &ScriptRunner{responses: make(map[string]ScriptResponse)}
}

// Stub registers the outcome for commands whose joined arguments equal or
// start with key.
func (s *ScriptRunner) Stub(key string, result *Result, err error) *ScriptRunner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[key] = ScriptResponse{Result: result, Err: err}
	return s
}

// StubOutput registers a successful command producing stdout.
func (s *ScriptRunner) StubOutput(key, stdout string) *ScriptRunner {
	return s.Stub(key, &Result{ExitCode: 0, Stdout: stdout}, nil)
}

// StubFailure registers a command that exits non-zero with stderr.
func (s *ScriptRunner) StubFailure(key string, exitCode int, stderr string) *ScriptRunner {
	return s.Stub(key, &Result{ExitCode: exitCode, Stderr: stderr}, nil)
}

// Run implements Runner.
func (s *ScriptRunner) Run(ctx context.Context, args ...string) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]string, len(args))
	copy(copied, args)
	s.calls = append(s.calls, copied)

	joined := strings.Join(args, " ")
	if resp, ok := s.responses[joined]; ok {
		return resp.Result, resp.Err
	}
	for key, resp := range s.responses {
		if strings.HasPrefix(joined, key) {
			return resp.Result, resp.Err
		}
	}
	return &Result{ExitCode: 0}, nil
}

// Calls returns every recorded invocation's argument list.
func (s *ScriptRunner) Calls() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many recorded invocations start with key.
func (s *ScriptRunner) CallCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, call := range s.calls {
		if strings.HasPrefix(strings.Join(call, " "), key) {
			n++
		}
	}
	return n
}
