package pipeline

import (
	"context"
	"sync"
)

type fakeClassifier struct {
	mu      sync.Mutex
	verdict func(text string) (Verdict, error)
	calls   []string
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (Verdict, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.verdict == nil {
		return Verdict{}, nil
	}
	return f.verdict(text)
}

type generateCall struct {
	system string
	user   string
}

type fakeGenerator struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []generateCall
}

func (f *fakeGenerator) Generate(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, generateCall{system: system, user: user})
	return f.reply, f.err
}

type notification struct {
	title string
	body  string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []notification
}

func (f *fakeNotifier) Notify(_ context.Context, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{title: title, body: body})
	return f.err
}

func (f *fakeNotifier) titles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, n := range f.sent {
		out[i] = n.title
	}
	return out
}

// recordingInjector logs every call in order as "clip:<text>" or "paste".
type recordingInjector struct {
	mu       sync.Mutex
	ops      []string
	clipErr  error
	pasteErr error
	// failAt makes the n-th SetClipboard call (1-based) fail.
	failAt int
	clips  int
}

func (r *recordingInjector) SetClipboard(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips++
	if r.failAt > 0 && r.clips == r.failAt {
		return r.clipErr
	}
	r.ops = append(r.ops, "clip:"+text)
	return nil
}

func (r *recordingInjector) PasteAndSubmit(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pasteErr != nil {
		return r.pasteErr
	}
	r.ops = append(r.ops, "paste")
	return nil
}

func (r *recordingInjector) clipped() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, op := range r.ops {
		if len(op) > 5 && op[:5] == "clip:" {
			out = append(out, op[5:])
		}
	}
	return out
}

type fakeJournal struct {
	mu        sync.Mutex
	flags     []FlagRecord
	responses []ResponseRecord
	err       error
}

func (f *fakeJournal) RecordFlag(_ context.Context, r FlagRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = append(f.flags, r)
	return f.err
}

func (f *fakeJournal) RecordResponse(_ context.Context, r ResponseRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, r)
	return f.err
}

type fakeUsers struct {
	undesirable map[string]string
	err         error
}

func (f *fakeUsers) Undesirable(_ context.Context, identity string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	reason, ok := f.undesirable[identity]
	return reason, ok, nil
}
