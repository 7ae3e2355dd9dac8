// Package latest runs "latest request wins" operations: starting a call
// cancels the previous in-flight call of the same Runner, and the cancelled
// call reports ErrSuperseded instead of its own result.
package latest

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a call that a newer call replaced. It is not a
// failure and should not be shown to users.
var ErrSuperseded = errors.New("superseded by a newer request")

// IsSuperseded reports whether err comes from a replaced call.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}

// Runner serializes intent, not execution: calls may overlap, but only the
// newest one's result is reported.
type Runner struct {
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelCauseFunc
}

// Do runs fn with a context that is cancelled when a newer Do starts on r.
// If that happened, Do returns ErrSuperseded whatever fn returned.
func (r *Runner) Do(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithCancelCause(ctx)

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel(ErrSuperseded)
	}
	r.seq++
	mine := r.seq
	r.cancel = cancel
	r.mu.Unlock()

	err := fn(cctx)

	r.mu.Lock()
	superseded := r.seq != mine
	if !superseded {
		r.cancel = nil
	}
	r.mu.Unlock()
	cancel(nil)

	if superseded {
		return ErrSuperseded
	}
	return err
}

// Cancel supersedes the in-flight call, if any.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel(ErrSuperseded)
		r.cancel = nil
	}
	r.seq++
}

// Run is Do for calls that produce a value. On ErrSuperseded the zero value
// is returned.
func Run[T any](ctx context.Context, r *Runner, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Group holds one Runner per operation name.
type Group struct {
	mu      sync.Mutex
	runners map[string]*Runner
}

// Runner returns the Runner for name, creating it on first use.
func (g *Group) Runner(name string) *Runner {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.runners == nil {
		g.runners = make(map[string]*Runner)
	}
	r, ok := g.runners[name]
	if !ok {
		r = &Runner{}
		g.runners[name] = r
	}
	return r
}

// Do runs fn on the Runner named name.
func (g *Group) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	return g.Runner(name).Do(ctx, fn)
}

// CancelAll supersedes every in-flight call in the group.
func (g *Group) CancelAll() {
	g.mu.Lock()
	runners := make([]*Runner, 0, len(g.runners))
	for _, r := range g.runners {
		runners = append(runners, r)
	}
	g.mu.Unlock()
	for _, r := range runners {
		r.Cancel()
	}
}
