package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charlesng35/doctracker/pkg/mail"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fakeLoader struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
	calls      int
	from, to   time.Time
}

func (f *fakeLoader) LoadCandidates(_ context.Context, from, to time.Time) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	var out []Candidate
	for _, c := range f.candidates {
		if !c.ExpirationDate.Before(from) && !c.ExpirationDate.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeLoader) LoadUserDocuments(_ context.Context, userID string, from time.Time) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []Candidate
	for _, c := range f.candidates {
		if c.UserID == userID && !c.ExpirationDate.Before(from) {
			out = append(out, c)
		}
	}
	return out, f.err
}

type fakeResolver struct {
	mu       sync.Mutex
	policies map[string]Policy
	err      error
	largest  int
	calls    int
}

func (f *fakeResolver) Resolve(_ context.Context, userID string) (Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Policy{}, f.err
	}
	p, ok := f.policies[userID]
	if !ok {
		return Policy{}, ErrUserUnresolvable
	}
	return p, nil
}

func (f *fakeResolver) LargestConfiguredInterval(context.Context) (int, error) {
	return f.largest, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	claims   map[string]string
	sent     map[string]bool
	released int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{claims: map[string]string{}, sent: map[string]bool{}}
}

func (f *fakeLedger) Claim(_ context.Context, _ string, runDate time.Time, n Notification) (Claim, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s|%d|%s", n.DocumentID, n.Interval, runDate.Format("2006-01-02"))
	if _, taken := f.claims[key]; taken {
		return Claim{}, false, nil
	}
	f.claims[key] = key
	return Claim{ID: key}, true, nil
}

func (f *fakeLedger) MarkSent(_ context.Context, claim Claim, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[claim.ID] = true
	return nil
}

func (f *fakeLedger) Release(_ context.Context, claim Claim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claims, claim.ID)
	f.released++
	return nil
}

type fakeMailer struct {
	mu        sync.Mutex
	messages  []mail.Message
	failFor   map[string]bool
	verifyErr error
	block     chan struct{}
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, to := range msg.To {
		if f.failFor[to] {
			return errors.New("relay rejected recipient")
		}
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMailer) Verify(context.Context) error {
	return f.verifyErr
}

func (f *fakeMailer) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		out = append(out, m.To...)
	}
	return out
}

type memoryRecorder struct {
	mu   sync.Mutex
	last *Summary
}

func (r *memoryRecorder) RecordRun(_ context.Context, s Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = &s
	return nil
}

func (r *memoryRecorder) LastRun(context.Context) (Summary, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Summary{}, false, nil
	}
	return *r.last, true, nil
}
