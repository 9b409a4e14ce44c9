package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"

	"github.com/rowjay/solr-backups/internal/solr"
	"github.com/rowjay/solr-backups/internal/util"
)

var (
	// ErrExhausted wraps the last attempt error once no attempts remain.
	ErrExhausted = errors.New("retries exhausted")
	// ErrPollTimeout is an attempt that did not finish within the poll timeout.
	ErrPollTimeout = errors.New("timed out waiting for async request")
	// ErrRemoteFailed is an attempt the cluster reported as failed or unknown.
	ErrRemoteFailed = errors.New("async request failed")
)

const forgetTimeout = 5 * time.Second

// API is the subset of the Solr client the dispatcher drives.
type API interface {
	Submit(ctx context.Context, req solr.AsyncRequest) error
	RequestStatus(ctx context.Context, requestID string) (solr.Status, error)
	DeleteStatus(ctx context.Context, requestID string) error
}

// Task is one collection to back up or restore.
type Task struct {
	Action     solr.Action // solr.ActionBackup or solr.ActionRestore
	Collection string
	// BackupName is the logical run name for backups, from which attempt
	// names are derived. For restores it is the recorded attempt name and
	// is reused on every retry.
	BackupName string
	Location   string
	Repository string
}

func (t Task) attemptName(n int) string {
	if t.Action == solr.ActionRestore {
		return t.BackupName
	}
	return util.AttemptName(t.BackupName, t.Collection, n)
}

// Policy bounds retries and polling for a single collection.
type Policy struct {
	MaxAttempts  int
	Backoff      time.Duration // wait before the second attempt, doubled after
	MaxBackoff   time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration // per attempt; zero waits indefinitely
}

// Attempt records one submission.
type Attempt struct {
	Number    int
	Name      string
	RequestID string
	State     State // Succeeded or Failed
	Polls     int
	Err       error
}

// Outcome is the result for one collection.
type Outcome struct {
	Collection string
	Name       string // successful attempt name
	State      State  // Succeeded, Exhausted, or Failed when the run was cancelled
	Attempts   []Attempt
	Err        error
}

// OK reports whether the collection succeeded.
func (o Outcome) OK() bool { return o.State == Succeeded }

type Dispatcher struct {
	API    API
	Clock  clock.Clock
	Policy Policy
	// Observe, when set, sees every state change.
	Observe func(Transition)
	// NewRequestID generates async request ids.
	NewRequestID func() string
}

func New(api API, clk clock.Clock, policy Policy) *Dispatcher {
	if clk == nil {
		clk = clock.WallClock
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Dispatcher{API: api, Clock: clk, Policy: policy, NewRequestID: uuid.NewString}
}

// Run drives one task to Succeeded or Exhausted. A cancelled context stops
// it in Failed.
func (d *Dispatcher) Run(ctx context.Context, task Task) Outcome {
	out := Outcome{Collection: task.Collection}
	var (
		att      Attempt
		deadline time.Time
	)
	state := Submitted
	for {
		switch state {
		case Submitted:
			att = Attempt{Number: len(out.Attempts), Name: task.attemptName(len(out.Attempts)), RequestID: d.NewRequestID()}
			err := d.API.Submit(ctx, solr.AsyncRequest{
				Action:     task.Action,
				Collection: task.Collection,
				Name:       att.Name,
				Location:   task.Location,
				Repository: task.Repository,
				RequestID:  att.RequestID,
			})
			if err != nil {
				att.Err = fmt.Errorf("submit %s: %w", att.Name, err)
				state = d.move(task, att, state, Failed)
				continue
			}
			if d.Policy.PollTimeout > 0 {
				deadline = d.Clock.Now().Add(d.Policy.PollTimeout)
			}
			state = d.move(task, att, state, Polling)

		case Polling:
			next, err := d.poll(ctx, &att, deadline)
			att.Err = err
			if next != Polling {
				// A cancelled run leaves the request running on the cluster.
				if ctx.Err() == nil {
					d.forget(ctx, att.RequestID)
				}
				state = d.move(task, att, state, next)
			}

		case Succeeded:
			att.State = Succeeded
			out.Attempts = append(out.Attempts, att)
			out.State = Succeeded
			out.Name = att.Name
			return out

		case Failed:
			att.State = Failed
			out.Attempts = append(out.Attempts, att)
			if err := ctx.Err(); err != nil {
				out.State = Failed
				out.Err = err
				return out
			}
			if len(out.Attempts) >= d.Policy.MaxAttempts {
				out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, len(out.Attempts), att.Err)
				state = d.move(task, att, state, Exhausted)
				continue
			}
			wait := util.Backoff(d.Policy.Backoff, d.Policy.MaxBackoff, len(out.Attempts)-1)
			if err := d.sleep(ctx, wait); err != nil {
				out.State = Failed
				out.Err = err
				return out
			}
			state = Submitted

		case Exhausted:
			out.State = Exhausted
			return out
		}
	}
}

// poll waits one interval and asks for the attempt's status.
func (d *Dispatcher) poll(ctx context.Context, att *Attempt, deadline time.Time) (State, error) {
	if !deadline.IsZero() && !d.Clock.Now().Before(deadline) {
		return Failed, fmt.Errorf("%s: %w after %s", att.Name, ErrPollTimeout, d.Policy.PollTimeout)
	}
	if err := d.sleep(ctx, d.Policy.PollInterval); err != nil {
		return Failed, err
	}
	att.Polls++
	st, err := d.API.RequestStatus(ctx, att.RequestID)
	if err != nil {
		return Failed, fmt.Errorf("poll %s: %w", att.Name, err)
	}
	switch {
	case !st.State.Terminal():
		return Polling, nil
	case st.State == solr.StateCompleted:
		return Succeeded, nil
	default:
		return Failed, fmt.Errorf("%s %s: %w: %s", att.Name, st.State, ErrRemoteFailed, st.Msg)
	}
}

// forget clears the stored async status; failures only leave a stale entry
// on the cluster.
func (d *Dispatcher) forget(ctx context.Context, requestID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	_ = d.API.DeleteStatus(ctx, requestID)
}

func (d *Dispatcher) move(task Task, att Attempt, from, to State) State {
	if d.Observe != nil {
		d.Observe(Transition{
			Collection: task.Collection,
			Attempt:    att.Number,
			Name:       att.Name,
			RequestID:  att.RequestID,
			From:       from,
			To:         to,
			Err:        att.Err,
		})
	}
	return to
}

func (d *Dispatcher) sleep(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	select {
	case <-d.Clock.After(dur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
