package transaction

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"allolib-studio/clock"
	"allolib-studio/command"
	"allolib-studio/debug"
)

// DefaultMaxHistory bounds the finished-transaction history.
const DefaultMaxHistory = 50

var (
	// ErrNoTransaction is returned by Commit/Rollback with nothing open.
	ErrNoTransaction = errors.New("no open transaction")
	// ErrMismatch is returned when the id passed to Commit/Rollback is not
	// the innermost open transaction. The stack is left untouched.
	ErrMismatch = errors.New("transaction id does not match innermost transaction")
)

// Transaction is one begin..commit/rollback unit. Completed and RolledBack
// are mutually exclusive and both false while open.
type Transaction struct {
	ID          string
	Description string
	StartedAt   time.Time
	FinishedAt  time.Time
	Completed   bool
	RolledBack  bool

	snapshot *Snapshot
	digest   string
	archive  []byte
}

// Open reports whether the transaction has not finished yet.
func (t *Transaction) Open() bool {
	return !t.Completed && !t.RolledBack
}

// Snapshot returns the state captured at begin. It is nil once the
// transaction has moved to history; use ArchivedSnapshot there.
func (t *Transaction) Snapshot() *Snapshot {
	return t.snapshot
}

// SnapshotDigest returns the digest of the begin snapshot.
func (t *Transaction) SnapshotDigest() string {
	return t.digest
}

// Manager keeps the registered stores, the stack of open transactions and a
// bounded history of finished ones.
type Manager struct {
	stores     []Store
	open       []*Transaction
	history    []*Transaction
	maxHistory int

	commands *command.Stack
	clock    clock.Clock
	logger   *slog.Logger

	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxHistory bounds how many finished transactions are kept.
func WithMaxHistory(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxHistory = n
		}
	}
}

// WithClock sets the clock used for start/finish times and durations.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithCommandStack lets RunUndoable register its undo entries.
func WithCommandStack(s *command.Stack) Option {
	return func(m *Manager) { m.commands = s }
}

// New creates a manager over stores. More stores can be added with Register.
func New(stores []Store, opts ...Option) (*Manager, error) {
	m := &Manager{
		stores:     append([]Store(nil), stores...),
		maxHistory: DefaultMaxHistory,
		clock:      clock.Real(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = debug.Logger()
	}

	var err error
	if m.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest)); err != nil {
		return nil, fmt.Errorf("snapshot encoder: %w", err)
	}
	if m.decoder, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("snapshot decoder: %w", err)
	}
	return m, nil
}

// Register adds a store to future captures.
func (m *Manager) Register(s Store) {
	m.stores = append(m.stores, s)
}

// SetCommandStack attaches (or detaches, with nil) the undo history used by
// RunUndoable.
func (m *Manager) SetCommandStack(s *command.Stack) {
	m.commands = s
}

// Capture serializes every registered store.
func (m *Manager) Capture() (*Snapshot, error) {
	snap := &Snapshot{
		States:     make(map[string][]byte, len(m.stores)),
		CapturedAt: m.clock.Now(),
	}
	for _, s := range m.stores {
		data, err := s.MarshalState()
		if err != nil {
			return nil, fmt.Errorf("capture %s: %w", s.StoreName(), err)
		}
		snap.States[s.StoreName()] = data
	}
	return snap, nil
}

// Apply overwrites every registered store with its state in snap. All
// stores are attempted even when one fails; the failures are joined.
func (m *Manager) Apply(snap *Snapshot) error {
	var errs []error
	for _, s := range m.stores {
		data, ok := snap.States[s.StoreName()]
		if !ok {
			m.logger.Warn("store missing from snapshot", "category", "transaction", "store", s.StoreName())
			continue
		}
		if err := s.RestoreState(data); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", s.StoreName(), err))
		}
	}
	return errors.Join(errs...)
}

// applyLogged is Apply for callers that cannot return an error (undo
// entries).
func (m *Manager) applyLogged(snap *Snapshot, why string) {
	if err := m.Apply(snap); err != nil {
		m.logger.Warn("snapshot restore failed", "category", "transaction", "during", why, "error", err)
	}
}

// Begin captures a snapshot and opens a transaction on top of the stack.
func (m *Manager) Begin(description string) (string, error) {
	snap, err := m.Capture()
	if err != nil {
		return "", err
	}
	tx := &Transaction{
		ID:          uuid.NewString(),
		Description: description,
		StartedAt:   snap.CapturedAt,
		snapshot:    snap,
		digest:      snap.Digest(),
	}
	m.open = append(m.open, tx)
	debug.Log("transaction", "begin %s %q depth=%d", tx.ID, description, len(m.open))
	return tx.ID, nil
}

// top returns the innermost open transaction if id is empty or matches it.
func (m *Manager) top(op, id string) (*Transaction, error) {
	if len(m.open) == 0 {
		m.logger.Warn(op+" with no open transaction", "category", "transaction", "id", id)
		return nil, ErrNoTransaction
	}
	tx := m.open[len(m.open)-1]
	if id != "" && id != tx.ID {
		m.logger.Warn(op+" id mismatch", "category", "transaction", "id", id, "top", tx.ID)
		return nil, ErrMismatch
	}
	return tx, nil
}

// Commit closes the innermost transaction and keeps its effects. An empty
// id means "whatever is on top".
func (m *Manager) Commit(id string) error {
	tx, err := m.top("commit", id)
	if err != nil {
		return err
	}
	m.open = m.open[:len(m.open)-1]
	tx.Completed = true
	tx.FinishedAt = m.clock.Now()
	m.archive(tx)
	return nil
}

// Rollback closes the innermost transaction and restores its begin
// snapshot. The transaction is finished even if a store fails to restore;
// that failure is returned.
func (m *Manager) Rollback(id string) error {
	tx, err := m.top("rollback", id)
	if err != nil {
		return err
	}
	m.open = m.open[:len(m.open)-1]
	restoreErr := m.Apply(tx.snapshot)
	tx.RolledBack = true
	tx.FinishedAt = m.clock.Now()
	m.archive(tx)
	return restoreErr
}

// RollbackAll rolls back every open transaction, innermost first.
func (m *Manager) RollbackAll() error {
	var errs []error
	for len(m.open) > 0 {
		if err := m.Rollback(""); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// archive moves tx into the bounded history, compressing its snapshot.
func (m *Manager) archive(tx *Transaction) {
	if data, err := json.Marshal(tx.snapshot); err == nil {
		tx.archive = m.encoder.EncodeAll(data, nil)
	} else {
		m.logger.Warn("snapshot archive failed", "category", "transaction", "id", tx.ID, "error", err)
	}
	tx.snapshot = nil

	m.history = append(m.history, tx)
	if over := len(m.history) - m.maxHistory; over > 0 {
		m.history = append([]*Transaction(nil), m.history[over:]...)
	}
	debug.Log("transaction", "finish %s completed=%v rolledBack=%v", tx.ID, tx.Completed, tx.RolledBack)
}

// ArchivedSnapshot decompresses the begin snapshot of a finished transaction.
func (m *Manager) ArchivedSnapshot(tx *Transaction) (*Snapshot, error) {
	if tx.snapshot != nil {
		return tx.snapshot, nil
	}
	if tx.archive == nil {
		return nil, fmt.Errorf("transaction %s has no archived snapshot", tx.ID)
	}
	data, err := m.decoder.DecodeAll(tx.archive, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Depth is the number of open transactions.
func (m *Manager) Depth() int { return len(m.open) }

// InTransaction reports whether any transaction is open.
func (m *Manager) InTransaction() bool { return len(m.open) > 0 }

// Current returns the innermost open transaction, or nil.
func (m *Manager) Current() *Transaction {
	if len(m.open) == 0 {
		return nil
	}
	return m.open[len(m.open)-1]
}

// History returns finished transactions, oldest first.
func (m *Manager) History() []*Transaction {
	return append([]*Transaction(nil), m.history...)
}

// CreateSavepoint captures the stores without opening a transaction.
func (m *Manager) CreateSavepoint() (*Snapshot, error) {
	return m.Capture()
}

// RestoreSavepoint overwrites the stores with a savepoint.
func (m *Manager) RestoreSavepoint(snap *Snapshot) error {
	return m.Apply(snap)
}
