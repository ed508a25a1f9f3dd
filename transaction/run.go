package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"allolib-studio/command"
)

// UndoableType is the command type of entries registered by RunUndoable.
const UndoableType = "transaction"

// Result reports the outcome of a Run helper. The helpers never return an
// error or panic of fn to the caller any other way.
type Result[T any] struct {
	Success  bool
	Value    T
	Err      error
	Duration time.Duration
}

// Error returns the failure message, or "" on success.
func (r Result[T]) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// protect runs fn and converts a panic into an error.
func protect[T any](fn func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Run executes fn inside a transaction: commit on success, rollback on error
// or panic.
func Run[T any](m *Manager, description string, fn func() (T, error)) Result[T] {
	return RunContext(context.Background(), m, description, func(context.Context) (T, error) {
		return fn()
	})
}

// RunContext is Run for work that honors a context. A context cancelled by
// the time fn returns counts as a failure and rolls back.
func RunContext[T any](ctx context.Context, m *Manager, description string, fn func(context.Context) (T, error)) Result[T] {
	start := m.clock.Now()
	fail := func(err error) Result[T] {
		return Result[T]{Err: err, Duration: m.clock.Now().Sub(start)}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	id, err := m.Begin(description)
	if err != nil {
		return fail(err)
	}

	value, err := protect(func() (T, error) { return fn(ctx) })
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if rbErr := m.Rollback(id); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return fail(err)
	}

	if err := m.Commit(id); err != nil {
		return fail(err)
	}
	return Result[T]{Success: true, Value: value, Duration: m.clock.Now().Sub(start)}
}

// RunUndoable runs fn between two snapshots and, on success, records one
// undo entry that swaps between them. On failure the before snapshot is
// restored directly and nothing is recorded.
func RunUndoable[T any](m *Manager, description string, fn func() (T, error)) Result[T] {
	start := m.clock.Now()
	fail := func(err error) Result[T] {
		return Result[T]{Err: err, Duration: m.clock.Now().Sub(start)}
	}

	before, err := m.Capture()
	if err != nil {
		return fail(err)
	}

	value, err := protect(fn)
	if err != nil {
		if restoreErr := m.Apply(before); restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
		return fail(err)
	}

	after, err := m.Capture()
	if err != nil {
		if restoreErr := m.Apply(before); restoreErr != nil {
			err = errors.Join(err, restoreErr)
		}
		return fail(err)
	}

	if m.commands != nil {
		m.commands.Record(command.Func(command.Spec{
			Type:        UndoableType,
			Description: description,
			Execute:     func() { m.applyLogged(after, "redo "+description) },
			Undo:        func() { m.applyLogged(before, "undo "+description) },
			Metadata: map[string]any{
				"before": before.Digest(),
				"after":  after.Digest(),
			},
		}))
	}
	return Result[T]{Success: true, Value: value, Duration: m.clock.Now().Sub(start)}
}
