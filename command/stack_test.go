package command

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"pgregory.net/rapid"

	"allolib-studio/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestStack(opts ...Option) (*Stack, *clock.FakeClock) {
	c := clock.Fake(epoch)
	return NewStack(append([]Option{WithClock(c)}, opts...)...), c
}

// appendCommand appends name to a shared log on execute and removes it on undo.
func appendCommand(log *[]string, name string) Command {
	return Func(Spec{
		Type:        "append",
		Description: "append " + name,
		Execute:     func() { *log = append(*log, name) },
		Undo:        func() { *log = (*log)[:len(*log)-1] },
	})
}

func TestMergeCoalescing(t *testing.T) {
	s, c := newTestStack()
	value := 0.0
	set := func(v float64) { value = v }

	s.Execute(NewValueChange("slider", "gain", "set gain", 0.0, 0.3, set))
	c.Advance(200 * time.Millisecond)
	s.Execute(NewValueChange("slider", "gain", "set gain", 0.3, 0.7, set))

	if got := len(s.UndoHistory()); got != 1 {
		t.Fatalf("undo entries = %d, want 1", got)
	}
	if !s.Undo() {
		t.Fatalf("Undo() = false")
	}
	if value != 0 {
		t.Fatalf("value after undo = %v, want 0", value)
	}
	if !s.Redo() {
		t.Fatalf("Redo() = false")
	}
	if value != 0.7 {
		t.Fatalf("value after redo = %v, want 0.7", value)
	}
}

func TestMergeKeepsOriginalIdentityAndTimestamp(t *testing.T) {
	s, c := newTestStack()
	set := func(int) {}

	first := NewValueChange("move", "note-1", "move note", 0, 1, set)
	s.Execute(first)
	c.Advance(100 * time.Millisecond)
	s.Execute(NewValueChange("move", "note-1", "move note", 1, 2, set))
	c.Advance(100 * time.Millisecond)
	s.Execute(NewValueChange("move", "note-1", "move note", 2, 3, set))

	hist := s.UndoHistory()
	if len(hist) != 1 {
		t.Fatalf("undo entries = %d, want 1", len(hist))
	}
	top := hist[0].(*ValueChange[int])
	if top.ID() != first.ID() {
		t.Fatalf("merged id = %s, want %s", top.ID(), first.ID())
	}
	if !top.Timestamp().Equal(epoch) {
		t.Fatalf("merged timestamp = %v, want %v", top.Timestamp(), epoch)
	}
	if top.Before() != 0 || top.After() != 3 {
		t.Fatalf("merged before/after = %d/%d, want 0/3", top.Before(), top.After())
	}
}

func TestMergeWindowMeasuredFromFirstCommand(t *testing.T) {
	s, c := newTestStack()
	set := func(int) {}

	s.Execute(NewValueChange("move", "k", "move", 0, 1, set))
	c.Advance(300 * time.Millisecond)
	s.Execute(NewValueChange("move", "k", "move", 1, 2, set))
	c.Advance(300 * time.Millisecond)
	s.Execute(NewValueChange("move", "k", "move", 2, 3, set))

	if got := len(s.UndoHistory()); got != 2 {
		t.Fatalf("undo entries = %d, want 2", got)
	}
}

func TestNoMergeAcrossKeysOrTypes(t *testing.T) {
	s, _ := newTestStack()
	set := func(int) {}

	s.Execute(NewValueChange("move", "a", "move a", 0, 1, set))
	s.Execute(NewValueChange("move", "b", "move b", 0, 1, set))
	s.Execute(NewValueChange("resize", "b", "resize b", 0, 1, set))
	s.Execute(NewValueChange[float64]("resize", "b", "resize b", 0, 1, func(float64) {}))

	if got := len(s.UndoHistory()); got != 4 {
		t.Fatalf("undo entries = %d, want 4", got)
	}
}

func TestRedoInvalidation(t *testing.T) {
	s, _ := newTestStack()
	var log []string

	s.Execute(appendCommand(&log, "a"))
	s.Undo()
	if !s.CanRedo() {
		t.Fatalf("CanRedo() = false after undo")
	}
	s.Execute(appendCommand(&log, "b"))
	if s.CanRedo() {
		t.Fatalf("CanRedo() = true after new execute")
	}
	if s.Redo() {
		t.Fatalf("Redo() = true, want false")
	}
	if !reflect.DeepEqual(log, []string{"b"}) {
		t.Fatalf("log = %v, want [b]", log)
	}
}

func TestBatchAtomicity(t *testing.T) {
	s, _ := newTestStack()
	var trace []string
	step := func(name string) Command {
		return Func(Spec{
			Type:        "step",
			Description: name,
			Execute:     func() { trace = append(trace, "do "+name) },
			Undo:        func() { trace = append(trace, "undo "+name) },
		})
	}

	s.ExecuteBatch([]Command{step("A"), step("B"), step("C")}, "three steps")
	if got := len(s.UndoHistory()); got != 1 {
		t.Fatalf("undo entries = %d, want 1", got)
	}
	if got := s.UndoDescription(); got != "three steps" {
		t.Fatalf("UndoDescription() = %q, want %q", got, "three steps")
	}

	trace = nil
	s.Undo()
	if want := []string{"undo C", "undo B", "undo A"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("undo order = %v, want %v", trace, want)
	}

	trace = nil
	s.Redo()
	if want := []string{"do A", "do B", "do C"}; !reflect.DeepEqual(trace, want) {
		t.Fatalf("redo order = %v, want %v", trace, want)
	}
}

func TestExecuteBatchDegenerateSizes(t *testing.T) {
	s, _ := newTestStack()
	var log []string

	if s.ExecuteBatch(nil, "nothing") {
		t.Fatalf("ExecuteBatch(nil) = true")
	}
	if s.CanUndo() {
		t.Fatalf("empty batch produced an undo entry")
	}

	single := appendCommand(&log, "x")
	s.ExecuteBatch([]Command{single}, "one")
	hist := s.UndoHistory()
	if len(hist) != 1 || hist[0] != single {
		t.Fatalf("single-command batch should push the command itself, got %v", hist)
	}
}

func TestHistoryBound(t *testing.T) {
	const max, extra = 5, 3
	s, _ := newTestStack(WithMaxHistory(max))
	var log []string

	for i := 0; i < max+extra; i++ {
		s.Execute(appendCommand(&log, fmt.Sprint(i)))
	}
	hist := s.UndoHistory()
	if len(hist) != max {
		t.Fatalf("undo entries = %d, want %d", len(hist), max)
	}
	if got := hist[0].Description(); got != fmt.Sprintf("append %d", extra) {
		t.Fatalf("oldest entry = %q, want %q", got, fmt.Sprintf("append %d", extra))
	}
	for s.Undo() {
	}
	if want := []string{"0", "1", "2"}; !reflect.DeepEqual(log, want) {
		t.Fatalf("log after undoing everything = %v, want %v", log, want)
	}
}

func TestSetMaxHistoryTrims(t *testing.T) {
	s, _ := newTestStack()
	var log []string
	for i := 0; i < 10; i++ {
		s.Execute(appendCommand(&log, fmt.Sprint(i)))
	}
	s.SetMaxHistory(4)
	if got := len(s.UndoHistory()); got != 4 {
		t.Fatalf("undo entries = %d, want 4", got)
	}
}

func TestUndoRedoEmpty(t *testing.T) {
	s, _ := newTestStack()
	if s.Undo() {
		t.Fatalf("Undo() on empty stack = true")
	}
	if s.Redo() {
		t.Fatalf("Redo() on empty stack = true")
	}
	if s.UndoDescription() != "" || s.RedoDescription() != "" {
		t.Fatalf("descriptions on empty stack should be empty")
	}
}

func TestReentrantExecuteIsDropped(t *testing.T) {
	s, _ := newTestStack()
	var log []string
	var nestedResult bool

	outer := Func(Spec{
		Type:        "outer",
		Description: "outer",
		Execute: func() {
			log = append(log, "outer")
			nestedResult = s.Execute(appendCommand(&log, "inner"))
		},
		Undo: func() { log = log[:0] },
	})

	if !s.Execute(outer) {
		t.Fatalf("outer Execute() = false")
	}
	if nestedResult {
		t.Fatalf("nested Execute() = true, want dropped")
	}
	if !reflect.DeepEqual(log, []string{"outer"}) {
		t.Fatalf("log = %v, want [outer]", log)
	}
	if got := len(s.UndoHistory()); got != 1 {
		t.Fatalf("undo entries = %d, want 1", got)
	}
	// The guard resets: later calls go through.
	if !s.Execute(appendCommand(&log, "later")) {
		t.Fatalf("Execute after nested drop = false")
	}
}

func TestRunTransactionRecordsOneEntryWithoutReexecuting(t *testing.T) {
	s, _ := newTestStack()
	executions := 0
	value := 0
	inc := func() Command {
		return Func(Spec{
			Type:        "inc",
			Description: "inc",
			Execute:     func() { executions++; value++ },
			Undo:        func() { value-- },
		})
	}

	err := s.RunTransaction("add three", func(add func(Command)) error {
		add(inc())
		add(inc())
		if value != 2 {
			t.Fatalf("commands should execute immediately, value = %d", value)
		}
		add(inc())
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	if executions != 3 {
		t.Fatalf("executions = %d, want 3", executions)
	}
	if got := len(s.UndoHistory()); got != 1 {
		t.Fatalf("undo entries = %d, want 1", got)
	}
	s.Undo()
	if value != 0 {
		t.Fatalf("value after undo = %d, want 0", value)
	}
}

func TestRunTransactionRollsBackOnError(t *testing.T) {
	s, _ := newTestStack()
	var log []string
	s.Execute(appendCommand(&log, "before"))
	s.Undo() // leave something on the redo stack
	s.Redo()
	boom := errors.New("boom")

	err := s.RunTransaction("failing", func(add func(Command)) error {
		add(appendCommand(&log, "a"))
		add(appendCommand(&log, "b"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTransaction error = %v, want %v", err, boom)
	}
	if !reflect.DeepEqual(log, []string{"before"}) {
		t.Fatalf("log = %v, want [before]", log)
	}
	if got := len(s.UndoHistory()); got != 1 {
		t.Fatalf("undo entries = %d, want 1", got)
	}
}

func TestRunTransactionRollbackSurvivesFailingUndo(t *testing.T) {
	s, _ := newTestStack()
	var log []string
	broken := Func(Spec{
		Type:        "broken",
		Description: "broken",
		Execute:     func() {},
		Undo:        func() { panic("cannot undo") },
	})

	err := s.RunTransaction("partial", func(add func(Command)) error {
		add(appendCommand(&log, "a"))
		add(broken)
		add(appendCommand(&log, "b"))
		return errors.New("fail")
	})
	if err == nil || err.Error() != "fail" {
		t.Fatalf("RunTransaction error = %v, want fail", err)
	}
	if len(log) != 0 {
		t.Fatalf("log = %v, want empty after rollback", log)
	}
}

func TestRunTransactionRepanics(t *testing.T) {
	s, _ := newTestStack()
	var log []string

	defer func() {
		r := recover()
		if r != "kaboom" {
			t.Fatalf("recovered %v, want kaboom", r)
		}
		if len(log) != 0 {
			t.Fatalf("log = %v, want empty", log)
		}
		if s.CanUndo() {
			t.Fatalf("panicking transaction left an undo entry")
		}
	}()
	s.RunTransaction("panicky", func(add func(Command)) error {
		add(appendCommand(&log, "a"))
		panic("kaboom")
	})
}

func TestRunTransactionEmptyIsNoop(t *testing.T) {
	s, _ := newTestStack()
	if err := s.RunTransaction("empty", func(func(Command)) error { return nil }); err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	if s.CanUndo() {
		t.Fatalf("empty transaction pushed an entry")
	}
}

func TestRecordDoesNotExecute(t *testing.T) {
	s, _ := newTestStack()
	executed := false
	undone := false
	s.Record(Func(Spec{
		Type:        "applied",
		Description: "applied",
		Execute:     func() { executed = true },
		Undo:        func() { undone = true },
	}))
	if executed {
		t.Fatalf("Record executed the command")
	}
	s.Undo()
	if !undone {
		t.Fatalf("Undo did not reach recorded command")
	}
}

func TestOnChangeFires(t *testing.T) {
	s, _ := newTestStack()
	var log []string
	changes := 0
	s.OnChange(func() { changes++ })
	s.Execute(appendCommand(&log, "a"))
	s.Undo()
	s.Redo()
	s.Clear()
	if changes != 4 {
		t.Fatalf("changes = %d, want 4", changes)
	}
}

func TestUndoRedoRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s, _ := newTestStack(WithMaxHistory(1000))
		var log []string
		n := rapid.IntRange(1, 40).Draw(rt, "n")
		for i := 0; i < n; i++ {
			s.Execute(appendCommand(&log, fmt.Sprint(i)))
		}
		full := append([]string(nil), log...)

		undos := rapid.IntRange(0, n).Draw(rt, "undos")
		for i := 0; i < undos; i++ {
			s.Undo()
		}
		if len(log) != n-undos {
			rt.Fatalf("len(log) = %d, want %d", len(log), n-undos)
		}
		for s.Redo() {
		}
		if !reflect.DeepEqual(log, full) {
			rt.Fatalf("log after redo = %v, want %v", log, full)
		}
	})
}
