package command

import (
	"fmt"
	"log/slog"

	"allolib-studio/clock"
	"allolib-studio/debug"
)

// DefaultMaxHistory is the undo depth used when none is configured.
const DefaultMaxHistory = 100

// Stack holds the undo and redo histories. It is not safe for concurrent
// use; all calls are expected on the host's single update goroutine.
type Stack struct {
	undo       []Command
	redo       []Command
	maxHistory int
	busy       bool

	clock     clock.Clock
	logger    *slog.Logger
	listeners []func()
}

// Option configures a Stack.
type Option func(*Stack)

// WithMaxHistory bounds the undo stack. Values below 1 are ignored.
func WithMaxHistory(n int) Option {
	return func(s *Stack) {
		if n > 0 {
			s.maxHistory = n
		}
	}
}

// WithClock sets the clock used to stamp executed commands.
func WithClock(c clock.Clock) Option {
	return func(s *Stack) { s.clock = c }
}

// WithLogger sets the logger used for dropped calls and rollback failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stack) { s.logger = l }
}

// NewStack creates an empty history.
func NewStack(opts ...Option) *Stack {
	s := &Stack{
		maxHistory: DefaultMaxHistory,
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = debug.Logger()
	}
	return s
}

// OnChange registers fn to run after every change to either stack.
func (s *Stack) OnChange(fn func()) {
	s.listeners = append(s.listeners, fn)
}

// enter sets the in-progress flag. A call that arrives while another
// execute/undo/redo is running is dropped, not queued.
func (s *Stack) enter(op string) bool {
	if s.busy {
		s.logger.Warn("re-entrant call ignored", "category", "command", "op", op)
		return false
	}
	s.busy = true
	return true
}

func (s *Stack) leave() {
	s.busy = false
}

// Execute runs cmd once and records it, merging into the top entry when
// cmd is Mergeable and accepts it. Returns false if the call was dropped
// because another operation is in progress.
func (s *Stack) Execute(cmd Command) bool {
	if !s.enter("execute") {
		return false
	}
	defer s.leave()

	cmd.Execute()
	s.stamp(cmd)
	s.push(cmd, true)
	return true
}

// ExecuteBatch executes commands as a single undo step. An empty list is a
// no-op and a single command is executed on its own.
func (s *Stack) ExecuteBatch(commands []Command, description string) bool {
	switch len(commands) {
	case 0:
		return false
	case 1:
		return s.Execute(commands[0])
	default:
		return s.Execute(NewBatch(description, commands))
	}
}

// Record pushes a command whose effect is already applied, without
// executing it. Merging does not apply.
func (s *Stack) Record(cmd Command) bool {
	if !s.enter("record") {
		return false
	}
	defer s.leave()

	s.stamp(cmd)
	s.push(cmd, false)
	return true
}

// Undo reverts the most recent command. Returns false when there is nothing
// to undo or the call was dropped.
func (s *Stack) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	if !s.enter("undo") {
		return false
	}
	defer s.leave()

	cmd := s.undo[len(s.undo)-1]
	cmd.Undo()
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, cmd)
	s.notify()
	return true
}

// Redo re-executes the most recently undone command.
func (s *Stack) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	if !s.enter("redo") {
		return false
	}
	defer s.leave()

	cmd := s.redo[len(s.redo)-1]
	cmd.Execute()
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, cmd)
	s.notify()
	return true
}

// RunTransaction hands fn an add function that executes each command
// immediately. When fn returns nil the executed commands become one undo
// entry (they are not run again). When fn returns an error or panics, every
// command added so far is undone in reverse order and the error is returned
// (or the panic resumed). A failing undo during that rollback is logged and
// skipped.
func (s *Stack) RunTransaction(description string, fn func(add func(Command)) error) (err error) {
	var recorded []Command

	add := func(cmd Command) {
		if !s.enter("transaction add") {
			return
		}
		defer s.leave()
		cmd.Execute()
		s.stamp(cmd)
		recorded = append(recorded, cmd)
	}

	defer func() {
		if r := recover(); r != nil {
			s.rollback(description, recorded)
			panic(r)
		}
	}()

	if err := fn(add); err != nil {
		s.rollback(description, recorded)
		return err
	}
	if len(recorded) == 0 {
		return nil
	}

	batch := NewBatch(description, recorded)
	s.stamp(batch)
	s.push(batch, false)
	return nil
}

func (s *Stack) rollback(description string, recorded []Command) {
	for i := len(recorded) - 1; i >= 0; i-- {
		cmd := recorded[i]
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Warn("undo failed during rollback",
						"category", "command",
						"transaction", description,
						"command", cmd.Description(),
						"error", fmt.Sprint(r))
				}
			}()
			cmd.Undo()
		}()
	}
}

func (s *Stack) stamp(cmd Command) {
	if st, ok := cmd.(stamper); ok {
		st.stamp(s.clock.Now())
	}
}

// push records cmd on the undo stack, clears redo and enforces the bound.
func (s *Stack) push(cmd Command, allowMerge bool) {
	merged := false
	if allowMerge && len(s.undo) > 0 {
		top := s.undo[len(s.undo)-1]
		if m, ok := cmd.(Mergeable); ok && m.CanMerge(top) {
			s.undo[len(s.undo)-1] = m.Merge(top)
			merged = true
		}
	}
	if !merged {
		s.undo = append(s.undo, cmd)
	}
	s.redo = nil
	s.trim()
	s.notify()
}

func (s *Stack) trim() {
	if over := len(s.undo) - s.maxHistory; over > 0 {
		s.undo = append([]Command(nil), s.undo[over:]...)
	}
}

func (s *Stack) notify() {
	for _, fn := range s.listeners {
		fn()
	}
}

// CanUndo reports whether Undo would do anything.
func (s *Stack) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether Redo would do anything.
func (s *Stack) CanRedo() bool { return len(s.redo) > 0 }

// UndoDescription describes the command Undo would revert ("" if none).
func (s *Stack) UndoDescription() string {
	if len(s.undo) == 0 {
		return ""
	}
	return s.undo[len(s.undo)-1].Description()
}

// RedoDescription describes the command Redo would apply ("" if none).
func (s *Stack) RedoDescription() string {
	if len(s.redo) == 0 {
		return ""
	}
	return s.redo[len(s.redo)-1].Description()
}

// UndoHistory returns the undo stack, oldest first.
func (s *Stack) UndoHistory() []Command {
	return append([]Command(nil), s.undo...)
}

// RedoHistory returns the redo stack, oldest first (the next redo is last).
func (s *Stack) RedoHistory() []Command {
	return append([]Command(nil), s.redo...)
}

// MaxHistory returns the undo bound.
func (s *Stack) MaxHistory() int { return s.maxHistory }

// SetMaxHistory changes the undo bound, dropping the oldest entries if the
// stack is already longer.
func (s *Stack) SetMaxHistory(n int) {
	if n < 1 {
		return
	}
	s.maxHistory = n
	s.trim()
	s.notify()
}

// Clear drops both histories.
func (s *Stack) Clear() {
	s.undo = nil
	s.redo = nil
	s.notify()
}
