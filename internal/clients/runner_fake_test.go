package clients

import (
	"context"
	"strings"
	"sync"
)

// fakeRunner is a test double for Runner. Responses are keyed by the full
// command line; unknown commands succeed with empty output.
type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeRunner) on(cmdline, out string, err error) *fakeRunner {
	f.outputs[cmdline] = out
	if err != nil {
		f.errs[cmdline] = err
	}
	return f
}

func (f *fakeRunner) record(name string, args []string) string {
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	f.mu.Lock()
	f.calls = append(f.calls, line)
	f.mu.Unlock()
	return line
}

func (f *fakeRunner) Output(_ context.Context, name string, args ...string) ([]byte, error) {
	line := f.record(name, args)
	return []byte(f.outputs[line]), f.errs[line]
}

func (f *fakeRunner) Stream(_ context.Context, name string, args ...string) error {
	line := f.record(name, args)
	return f.errs[line]
}

func (f *fakeRunner) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
