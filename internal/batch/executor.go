// Package batch orchestrates one certificate-email batch: it schedules a
// jittered send time per recipient, runs every recipient's task
// concurrently, and aggregates per-recipient outcomes. One recipient
// failing never affects another.
package batch

import (
	"context"
	"errors"
	"time"

	"github.com/certforge/certmailer/internal/certstore"
	"github.com/certforge/certmailer/internal/compose"
	"github.com/certforge/certmailer/internal/gmail"
	"github.com/certforge/certmailer/internal/pkg/logger"
	"github.com/certforge/certmailer/internal/schedule"
)

// Batch-level precondition failures. These abort the whole call before
// any scheduling happens; everything after that point is reported per
// recipient instead.
var (
	ErrNoRecipients = errors.New("batch: no recipients")
	ErrMissingToken = errors.New("batch: missing access token")
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Recipient is one entry of the batch. Identity is the email address;
// duplicates are sent twice.
type Recipient struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	CertificatePath string `json:"certificatePath,omitempty"`
}

// Outcome is the terminal result for one recipient. Outcomes arrive in
// completion order, not input order; match by email.
type Outcome struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Result aggregates a finished batch.
type Result struct {
	Sent    int       `json:"sent"`
	Failed  int       `json:"failed"`
	Results []Outcome `json:"results"`
}

// Request carries everything one batch run needs. No state outlives the
// call.
type Request struct {
	Token           string
	Recipients      []Recipient
	Subject         string
	BodyTemplate    string
	CertificatesDir string
	LaneCount       int
	MinDelaySeconds float64
	MaxDelaySeconds float64
}

// Dispatcher sends one composed raw message.
type Dispatcher interface {
	Send(ctx context.Context, raw string) error
}

// DispatcherFactory builds a Dispatcher for a batch's bearer token.
type DispatcherFactory func(token string) Dispatcher

// Executor runs batches against a certificate resolver and a mail
// dispatcher.
type Executor struct {
	certs certstore.Resolver
	dial  DispatcherFactory
}

// NewExecutor creates an Executor. A nil factory dials the real Gmail API.
func NewExecutor(certs certstore.Resolver, dial DispatcherFactory) *Executor {
	if dial == nil {
		dial = func(token string) Dispatcher { return gmail.NewClient(token) }
	}
	return &Executor{certs: certs, dial: dial}
}

// Run executes the batch and blocks until every recipient's task has
// settled. Per-recipient errors become failed Outcomes; only precondition
// failures return an error. Cancelling ctx aborts pending sleeps and
// in-flight sends, recording those recipients as failed.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}
	if len(req.Recipients) == 0 {
		return nil, ErrNoRecipients
	}

	offsets, err := schedule.WithLanes(len(req.Recipients), req.LaneCount, req.MinDelaySeconds, req.MaxDelaySeconds)
	if err != nil {
		return nil, err
	}

	logger.Info("starting batch",
		"recipients", len(req.Recipients),
		"lanes", req.LaneCount,
		"delay_min_s", req.MinDelaySeconds,
		"delay_max_s", req.MaxDelaySeconds)

	dispatcher := e.dial(req.Token)

	outcomes := make(chan Outcome, len(req.Recipients))
	for i, r := range req.Recipients {
		go func(i int, r Recipient) {
			outcomes <- e.sendOne(ctx, dispatcher, req, r, i, offsets[i])
		}(i, r)
	}

	// Single collector; tasks never share a result slice.
	result := &Result{Results: make([]Outcome, 0, len(req.Recipients))}
	for range req.Recipients {
		o := <-outcomes
		result.Results = append(result.Results, o)
		if o.Status == StatusSuccess {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	logger.Info("batch complete", "sent", result.Sent, "failed", result.Failed)
	return result, nil
}

// sendOne drives a single recipient: wait for the scheduled offset,
// resolve the certificate, compose, dispatch. Every error path ends in a
// failed Outcome.
func (e *Executor) sendOne(ctx context.Context, d Dispatcher, req Request, r Recipient, index int, offset time.Duration) Outcome {
	fail := func(err error) Outcome {
		logger.Warn("send failed", "email", r.Email, "error", err)
		return Outcome{Email: r.Email, Name: r.Name, Status: StatusFailed, Error: err.Error()}
	}

	if offset > 0 {
		timer := time.NewTimer(offset)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fail(ctx.Err())
		}
	}

	cert, filename, err := e.certs.Resolve(ctx, certstore.Query{
		ExplicitPath: r.CertificatePath,
		Dir:          req.CertificatesDir,
		Index:        index,
		Name:         r.Name,
	})
	if err != nil {
		return fail(err)
	}

	body := compose.Personalize(req.BodyTemplate, r.Name)
	raw := compose.Message(r.Email, req.Subject, body, cert, filename)

	if err := d.Send(ctx, raw); err != nil {
		return fail(err)
	}

	logger.Debug("sent", "email", r.Email, "offset", offset)
	return Outcome{Email: r.Email, Name: r.Name, Status: StatusSuccess}
}
