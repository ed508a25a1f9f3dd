// Package command implements the undo/redo history: reversible commands,
// merge-coalescing of rapid edits, batches, and grouped execution with
// rollback.
package command

import (
	"time"

	"github.com/google/uuid"
)

// MergeWindow is how close (measured from the first command of a merged run)
// a value change must follow the top of the undo stack to collapse into it.
const MergeWindow = 500 * time.Millisecond

// Command is a reversible unit of work. Execute followed by Undo must leave
// the state it touches exactly as it was.
type Command interface {
	ID() string
	Type() string
	Description() string
	Timestamp() time.Time
	Metadata() map[string]any
	Execute()
	Undo()
}

// Mergeable is implemented by commands that can coalesce into the previous
// top of the undo stack. The check is asymmetric: the stack calls
// candidate.CanMerge(top), and Merge must return a command that keeps top's
// identity and timestamp.
type Mergeable interface {
	Command
	CanMerge(prev Command) bool
	Merge(prev Command) Command
}

// stamper is satisfied by everything embedding Base. The stack records the
// execution time through it.
type stamper interface {
	stamp(t time.Time)
}

// Base carries the identity fields every command needs. Embed it and
// construct with NewBase.
type Base struct {
	id          string
	typ         string
	description string
	timestamp   time.Time
	metadata    map[string]any
}

// NewBase returns a Base with a fresh id.
func NewBase(typ, description string) Base {
	return Base{
		id:          uuid.NewString(),
		typ:         typ,
		description: description,
	}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) Type() string         { return b.typ }
func (b *Base) Description() string  { return b.description }
func (b *Base) Timestamp() time.Time { return b.timestamp }

// Metadata returns the opaque metadata map, creating it on first use.
func (b *Base) Metadata() map[string]any {
	if b.metadata == nil {
		b.metadata = make(map[string]any)
	}
	return b.metadata
}

// stamp sets the execution time once; redo and merges keep the original.
func (b *Base) stamp(t time.Time) {
	if b.timestamp.IsZero() {
		b.timestamp = t
	}
}

// Spec describes a closure-backed command for Func.
type Spec struct {
	Type        string
	Description string
	Execute     func()
	Undo        func()
	Metadata    map[string]any
}

type funcCommand struct {
	Base
	execute func()
	undo    func()
}

// Func builds a command from a pair of closures.
func Func(spec Spec) Command {
	c := &funcCommand{
		Base:    NewBase(spec.Type, spec.Description),
		execute: spec.Execute,
		undo:    spec.Undo,
	}
	c.metadata = spec.Metadata
	return c
}

func (c *funcCommand) Execute() {
	if c.execute != nil {
		c.execute()
	}
}

func (c *funcCommand) Undo() {
	if c.undo != nil {
		c.undo()
	}
}

// ValueChange sets a value from before to after through apply. Two changes
// with the same type and key inside MergeWindow coalesce into one undo step.
type ValueChange[T any] struct {
	Base
	key    string
	before T
	after  T
	apply  func(T)
}

// NewValueChange builds a mergeable value change. key identifies the thing
// being edited (e.g. "clip-1/note-3/startTime").
func NewValueChange[T any](typ, key, description string, before, after T, apply func(T)) *ValueChange[T] {
	return &ValueChange[T]{
		Base:   NewBase(typ, description),
		key:    key,
		before: before,
		after:  after,
		apply:  apply,
	}
}

func (c *ValueChange[T]) Key() string { return c.key }
func (c *ValueChange[T]) Before() T   { return c.before }
func (c *ValueChange[T]) After() T    { return c.after }

func (c *ValueChange[T]) Execute() { c.apply(c.after) }
func (c *ValueChange[T]) Undo()    { c.apply(c.before) }

// CanMerge reports whether c may fold into prev.
func (c *ValueChange[T]) CanMerge(prev Command) bool {
	p, ok := prev.(*ValueChange[T])
	if !ok {
		return false
	}
	if p.typ != c.typ || p.key != c.key {
		return false
	}
	return c.Timestamp().Sub(p.Timestamp()) < MergeWindow
}

// Merge keeps prev's identity, timestamp and before value, and c's after value.
func (c *ValueChange[T]) Merge(prev Command) Command {
	p := prev.(*ValueChange[T])
	return &ValueChange[T]{
		Base:   p.Base,
		key:    p.key,
		before: p.before,
		after:  c.after,
		apply:  c.apply,
	}
}

// BatchType is the type tag of Batch commands.
const BatchType = "batch"

// Batch runs its children in order and undoes them in reverse. It owns the
// children; they are never pushed onto a stack on their own.
type Batch struct {
	Base
	commands []Command
}

// NewBatch wraps commands into one undo step.
func NewBatch(description string, commands []Command) *Batch {
	return &Batch{
		Base:     NewBase(BatchType, description),
		commands: append([]Command(nil), commands...),
	}
}

// Commands returns the children in execution order.
func (b *Batch) Commands() []Command {
	return append([]Command(nil), b.commands...)
}

func (b *Batch) Execute() {
	for _, c := range b.commands {
		c.Execute()
	}
}

func (b *Batch) Undo() {
	for i := len(b.commands) - 1; i >= 0; i-- {
		b.commands[i].Undo()
	}
}
