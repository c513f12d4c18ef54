package batch

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certforge/certmailer/internal/certstore"
)

// fakeDispatcher records every raw payload it accepts and can fail
// selected recipients.
type fakeDispatcher struct {
	mu     sync.Mutex
	raws   []string
	failFn func(raw string) error
}

func (f *fakeDispatcher) Send(ctx context.Context, raw string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.failFn != nil {
		if err := f.failFn(raw); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.raws = append(f.raws, raw)
	f.mu.Unlock()
	return nil
}

func (f *fakeDispatcher) decoded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.raws))
	for i, raw := range f.raws {
		b, _ := base64.RawURLEncoding.DecodeString(raw)
		out[i] = string(b)
	}
	return out
}

func writeCerts(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("certificate_%d.png", i))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("cert-%d", i)), 0o644))
	}
}

func newTestExecutor(d Dispatcher) *Executor {
	return NewExecutor(certstore.NewLocal(""), func(string) Dispatcher { return d })
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeCerts(t, dir, 2)

	fake := &fakeDispatcher{}
	exec := newTestExecutor(fake)

	res, err := exec.Run(context.Background(), Request{
		Token: "tok",
		Recipients: []Recipient{
			{Email: "a@x.com", Name: "Alice"},
			{Email: "b@x.com", Name: "Bob"},
		},
		Subject:         "Hi",
		BodyTemplate:    "Hello {{name}}",
		CertificatesDir: dir,
		LaneCount:       1,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 0, res.Failed)

	msgs := fake.decoded()
	require.Len(t, msgs, 2)
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, "Hello Alice")
	assert.Contains(t, joined, "Hello Bob")
	assert.Contains(t, joined, "Subject: Hi")
}

func TestRun_PartialFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	recipients := make([]Recipient, 5)
	for i := range recipients {
		recipients[i] = Recipient{Email: fmt.Sprintf("r%d@x.com", i), Name: fmt.Sprintf("R%d", i)}
	}
	// Certificate 3 (recipient index 2) is missing.
	for _, n := range []int{1, 2, 4, 5} {
		require.NoError(t, os.WriteFile(
			filepath.Join(dir, fmt.Sprintf("certificate_%d.png", n)), []byte("c"), 0o644))
	}

	exec := newTestExecutor(&fakeDispatcher{})
	res, err := exec.Run(context.Background(), Request{
		Token:           "tok",
		Recipients:      recipients,
		BodyTemplate:    "x",
		CertificatesDir: dir,
		LaneCount:       3,
	})

	require.NoError(t, err)
	assert.Equal(t, 4, res.Sent)
	assert.Equal(t, 1, res.Failed)
	for _, o := range res.Results {
		if o.Status == StatusFailed {
			assert.Equal(t, "r2@x.com", o.Email)
			assert.Contains(t, o.Error, "certificate not found")
		}
	}
}

func TestRun_NoRecipientLostOrDuplicated(t *testing.T) {
	const n = 20
	dir := t.TempDir()
	writeCerts(t, dir, n)

	recipients := make([]Recipient, n)
	for i := range recipients {
		recipients[i] = Recipient{Email: fmt.Sprintf("u%d@x.com", i), Name: fmt.Sprintf("U%d", i)}
	}

	exec := newTestExecutor(&fakeDispatcher{})
	res, err := exec.Run(context.Background(), Request{
		Token:           "tok",
		Recipients:      recipients,
		BodyTemplate:    "x",
		CertificatesDir: dir,
		LaneCount:       5,
	})

	require.NoError(t, err)
	require.Len(t, res.Results, n)
	seen := make(map[string]int)
	for _, o := range res.Results {
		seen[o.Email]++
	}
	for _, r := range recipients {
		assert.Equal(t, 1, seen[r.Email], "exactly one outcome for %s", r.Email)
	}
}

func TestRun_DispatchErrorRecordedPerRecipient(t *testing.T) {
	dir := t.TempDir()
	writeCerts(t, dir, 2)

	fake := &fakeDispatcher{failFn: func(raw string) error {
		b, _ := base64.RawURLEncoding.DecodeString(raw)
		if strings.Contains(string(b), "bad@x.com") {
			return errors.New("Rate limit exceeded")
		}
		return nil
	}}
	exec := newTestExecutor(fake)

	res, err := exec.Run(context.Background(), Request{
		Token: "tok",
		Recipients: []Recipient{
			{Email: "good@x.com", Name: "Good"},
			{Email: "bad@x.com", Name: "Bad"},
		},
		BodyTemplate:    "x",
		CertificatesDir: dir,
		LaneCount:       2,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, 1, res.Failed)
	for _, o := range res.Results {
		if o.Email == "bad@x.com" {
			assert.Equal(t, StatusFailed, o.Status)
			assert.Contains(t, o.Error, "Rate limit exceeded")
		} else {
			assert.Equal(t, StatusSuccess, o.Status)
		}
	}
}

func TestRun_ExplicitCertificatePath(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "special.png")
	require.NoError(t, os.WriteFile(custom, []byte("special"), 0o644))

	fake := &fakeDispatcher{}
	exec := newTestExecutor(fake)

	res, err := exec.Run(context.Background(), Request{
		Token: "tok",
		Recipients: []Recipient{
			{Email: "a@x.com", Name: "Alice", CertificatePath: custom},
		},
		BodyTemplate:    "x",
		CertificatesDir: t.TempDir(),
		LaneCount:       1,
	})

	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Contains(t, fake.decoded()[0], `filename="special.png"`)
}

func TestRun_Preconditions(t *testing.T) {
	exec := newTestExecutor(&fakeDispatcher{})

	_, err := exec.Run(context.Background(), Request{Token: "tok", LaneCount: 1})
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = exec.Run(context.Background(), Request{
		Recipients: []Recipient{{Email: "a@x.com"}}, LaneCount: 1,
	})
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = exec.Run(context.Background(), Request{
		Token:      "tok",
		Recipients: []Recipient{{Email: "a@x.com"}},
		LaneCount:  0,
	})
	assert.Error(t, err, "invalid lane count must fail the whole batch")
}

func TestRun_CancelDuringSleep(t *testing.T) {
	dir := t.TempDir()
	writeCerts(t, dir, 3)

	recipients := []Recipient{
		{Email: "a@x.com", Name: "A"},
		{Email: "b@x.com", Name: "B"},
		{Email: "c@x.com", Name: "C"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := newTestExecutor(&fakeDispatcher{})
	res, err := exec.Run(ctx, Request{
		Token:           "tok",
		Recipients:      recipients,
		BodyTemplate:    "x",
		CertificatesDir: dir,
		LaneCount:       1,
		MinDelaySeconds: 60,
		MaxDelaySeconds: 120,
	})

	require.NoError(t, err, "cancellation settles tasks, it does not error the batch")
	require.Len(t, res.Results, 3)
	// The first task has offset 0 and may have raced past the dispatch;
	// everyone else was still asleep and must have failed.
	assert.GreaterOrEqual(t, res.Failed, 2)
}
