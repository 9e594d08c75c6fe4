package hooks

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrHookNotFound is reported when a single-target query names a plugin
	// with no hook in the queried category.
	ErrHookNotFound = errors.New("hook not found")

	// ErrHookPanic wraps a panic raised inside a plugin's hook.
	ErrHookPanic = errors.New("hook panicked")
)

// Outcome classifies the result of a single-target hook call.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNotFound
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is returned by single-target queries. Err is set whenever Outcome
// is not OutcomeOK; it is informational and never needs to be propagated.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Err     error
}

// OK reports whether the hook ran and succeeded.
func (r Result[T]) OK() bool { return r.Outcome == OutcomeOK }

// NotFound reports whether no hook was registered for the target.
func (r Result[T]) NotFound() bool { return r.Outcome == OutcomeNotFound }

// safeCall runs fn, turning a panic into an error.
func safeCall[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			var zero T
			v = zero
			err = fmt.Errorf("%w: %v", ErrHookPanic, p)
		}
	}()
	return fn()
}

func (r *Registry) hookFailed(cat Category, pluginID, op string, err error) {
	r.logger.Warn("plugin hook failed",
		zap.String("category", string(cat)),
		zap.String("plugin", pluginID),
		zap.String("operation", op),
		zap.Error(err))
	if r.observer != nil {
		r.observer.HookFailed(cat, pluginID, op)
	}
}

// fanOut calls fn on every hook of set in registration order and
// concatenates the results. A hook that errors or panics is logged and
// left out; fanOut itself never fails.
func fanOut[H, R any](r *Registry, cat Category, set *hookSet[H], op string, fn func(pluginID string, h H) ([]R, error)) []R {
	r.mu.RLock()
	entries := set.snapshot()
	r.mu.RUnlock()

	out := make([]R, 0)
	for _, e := range entries {
		items, err := safeCall(func() ([]R, error) { return fn(e.pluginID, e.hook) })
		if err != nil {
			r.hookFailed(cat, e.pluginID, op, err)
			continue
		}
		out = append(out, items...)
	}
	return out
}

// callOne invokes the hook pluginID registered in set.
func callOne[H, T any](r *Registry, cat Category, set *hookSet[H], pluginID, op string, fn func(h H) (T, error)) Result[T] {
	r.mu.RLock()
	h, ok := set.get(pluginID)
	r.mu.RUnlock()

	if !ok {
		return Result[T]{
			Outcome: OutcomeNotFound,
			Err:     fmt.Errorf("%w: %s hook for plugin %q", ErrHookNotFound, cat, pluginID),
		}
	}

	v, err := safeCall(func() (T, error) { return fn(h) })
	if err != nil {
		r.hookFailed(cat, pluginID, op, err)
		return Result[T]{Outcome: OutcomeFailed, Err: err}
	}
	return Result[T]{Value: v, Outcome: OutcomeOK}
}
