package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrUndoExpired is returned when a delete-for-me undo arrives after the
// grace window has passed. The entry is then permanent until the
// conversation's ledger is independently cleared.
var ErrUndoExpired = errors.New("undo window expired")

// DefaultUndoGrace is how long a delete-for-me action can be undone.
const DefaultUndoGrace = 10 * time.Second

// Ledger is the per-user exclusion bookkeeping for conversations: message
// tombstones ("delete for me"), clear-chat cutoffs, and composer drafts.
// Entries are private to this client and namespaced by conversation id; the
// counterpart's view of the shared record is never affected.
//
// A small in-memory mirror of the removed-id sets backs the render filter so
// visibility checks stay off the database. Writes are append-only set
// membership, so last-write-wins between the chat view and background
// listeners is safe without further coordination.
type Ledger struct {
	db        *sqlx.DB
	undoGrace time.Duration

	mu      sync.RWMutex
	removed map[string]map[string]time.Time
	cleared map[string]time.Time

	now func() time.Time
}

// New builds a Ledger over an opened database. A zero undoGrace selects
// DefaultUndoGrace.
func New(db *sqlx.DB, undoGrace time.Duration) (*Ledger, error) {
	if undoGrace <= 0 {
		undoGrace = DefaultUndoGrace
	}
	l := &Ledger{
		db:        db,
		undoGrace: undoGrace,
		removed:   make(map[string]map[string]time.Time),
		cleared:   make(map[string]time.Time),
		now:       time.Now,
	}
	if err := l.hydrate(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) hydrate() error {
	rows, err := l.db.Queryx(`SELECT conversation_id, message_id, removed_at FROM removed_messages`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var conv, msg string
		var at time.Time
		if err := rows.Scan(&conv, &msg, &at); err != nil {
			return err
		}
		l.cacheRemoved(conv, msg, at)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	cleared, err := l.db.Queryx(`SELECT conversation_id, cleared_at FROM cleared_conversations`)
	if err != nil {
		return err
	}
	defer cleared.Close()
	for cleared.Next() {
		var conv string
		var at time.Time
		if err := cleared.Scan(&conv, &at); err != nil {
			return err
		}
		l.cleared[conv] = at
	}
	return cleared.Err()
}

func (l *Ledger) cacheRemoved(conversationID, messageID string, at time.Time) {
	if _, ok := l.removed[conversationID]; !ok {
		l.removed[conversationID] = make(map[string]time.Time)
	}
	l.removed[conversationID][messageID] = at
}

// MarkRemoved persists a delete-for-me tombstone. Idempotent: re-marking an
// already removed message keeps the original removal time, so replaying a
// remote mirror event cannot extend the undo window.
func (l *Ledger) MarkRemoved(ctx context.Context, conversationID, messageID string) error {
	at := l.now()
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO removed_messages (conversation_id, message_id, removed_at) VALUES (?, ?, ?)
         ON CONFLICT (conversation_id, message_id) DO NOTHING`,
		conversationID, messageID, at); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.removed[conversationID][messageID]; !ok {
		l.cacheRemoved(conversationID, messageID, at)
	}
	return nil
}

// IsRemoved is the render-filter membership test. It never mutates anything.
func (l *Ledger) IsRemoved(conversationID, messageID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.removed[conversationID][messageID]
	return ok
}

// Unmark undoes a delete-for-me within the grace window. Past the window the
// tombstone is permanent and ErrUndoExpired is returned. The durable row goes
// first: dropping only the cached entry would let the message reappear now
// and re-hide on the next restart.
func (l *Ledger) Unmark(ctx context.Context, conversationID, messageID string) error {
	l.mu.RLock()
	at, ok := l.removed[conversationID][messageID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	if l.now().Sub(at) > l.undoGrace {
		return ErrUndoExpired
	}

	if _, err := l.db.ExecContext(ctx,
		`DELETE FROM removed_messages WHERE conversation_id = ? AND message_id = ?`,
		conversationID, messageID); err != nil {
		return err
	}

	l.mu.Lock()
	delete(l.removed[conversationID], messageID)
	l.mu.Unlock()
	return nil
}

// SetClearedAt records a clear-chat cutoff for the conversation. The stored
// value only ever moves forward: the effective cutoff is the max of the local
// clear time and any server-confirmed clear time, so clearing on one device
// is honored even from a second device after resync.
func (l *Ledger) SetClearedAt(ctx context.Context, conversationID string, at time.Time) error {
	l.mu.Lock()
	if current, ok := l.cleared[conversationID]; ok && !at.After(current) {
		l.mu.Unlock()
		return nil
	}
	l.cleared[conversationID] = at
	l.mu.Unlock()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO cleared_conversations (conversation_id, cleared_at) VALUES (?, ?)
         ON CONFLICT (conversation_id) DO UPDATE SET cleared_at = excluded.cleared_at
         WHERE excluded.cleared_at > cleared_conversations.cleared_at`,
		conversationID, at)
	return err
}

// ClearedAt returns the effective cutoff, zero when the chat was never
// cleared.
func (l *Ledger) ClearedAt(conversationID string) time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cleared[conversationID]
}

// SaveDraft stores the composer draft for a conversation. An empty draft
// deletes the row.
func (l *Ledger) SaveDraft(ctx context.Context, conversationID, body string) error {
	if body == "" {
		_, err := l.db.ExecContext(ctx, `DELETE FROM drafts WHERE conversation_id = ?`, conversationID)
		return err
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO drafts (conversation_id, body, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (conversation_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		conversationID, body, l.now())
	return err
}

// Draft returns the saved composer draft, empty when none exists.
func (l *Ledger) Draft(ctx context.Context, conversationID string) (string, error) {
	var body string
	err := l.db.GetContext(ctx, &body, `SELECT body FROM drafts WHERE conversation_id = ?`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return body, err
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
