package invoker

import (
	"context"
	"strings"
	"sync"
)

// Outcome is one scripted response of a Fake. Rules are evaluated in order;
// the first whose Match accepts the request wins. A nil Match matches
// everything. Do, when set, runs before the result is returned so a test can
// mimic a command's filesystem effects.
type Outcome struct {
	Match  func(Request) bool
	Do     func(Request)
	Result Result
	Err    error
}

// Fake is a scripted Invoker for tests. It records every request and
// replays canned outcomes; requests matching no rule succeed with exit 0.
type Fake struct {
	mu       sync.Mutex
	outcomes []Outcome
	calls    []Request
}

func NewFake() *Fake {
	return &Fake{}
}

// On appends a scripted outcome.
func (f *Fake) On(o Outcome) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	return f
}

// FailCommand scripts a non-zero exit for every command whose argv contains
// the given substring.
func (f *Fake) FailCommand(substr string, exitCode int, stderr string) *Fake {
	return f.On(Outcome{
		Match:  MatchArgv(substr),
		Result: Result{ExitCode: exitCode, Stderr: stderr},
	})
}

// RespondCommand scripts stdout for every command whose argv contains the
// given substring.
func (f *Fake) RespondCommand(substr, stdout string) *Fake {
	return f.On(Outcome{
		Match:  MatchArgv(substr),
		Result: Result{Stdout: stdout},
	})
}

// MatchArgv returns a matcher that accepts requests whose joined argv
// contains the substring.
func MatchArgv(substr string) func(Request) bool {
	return func(req Request) bool {
		return strings.Contains(strings.Join(req.Argv, " "), substr)
	}
}

// Run records the request and replays the first matching outcome.
func (f *Fake) Run(_ context.Context, req Request) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	for _, o := range f.outcomes {
		if o.Match == nil || o.Match(req) {
			if o.Do != nil {
				o.Do(req)
			}
			if o.Err != nil {
				return nil, o.Err
			}
			res := o.Result
			return &res, nil
		}
	}
	return &Result{}, nil
}

// Calls returns a copy of all recorded requests.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsMatching returns recorded requests whose joined argv contains the
// substring.
func (f *Fake) CallsMatching(substr string) []Request {
	var out []Request
	for _, c := range f.Calls() {
		if strings.Contains(strings.Join(c.Argv, " "), substr) {
			out = append(out, c)
		}
	}
	return out
}
