// Package dialog is the per-user conversation core: session store, state
// machine, and the only layer that turns failures into chat-visible text.
package dialog

import (
	"sync"
	"time"

	"github.com/ivmorgun/cashbot/internal/domain"
)

// DefaultSessionTTL bounds how long an abandoned dialog survives.
const DefaultSessionTTL = 30 * time.Minute

// Session is the in-progress dialog of one user. It is exclusively owned
// by that user's event handling; the transport serializes per-chat.
type Session struct {
	UserID int64
	ChatID int64
	State  State
	Draft  domain.Draft

	// MsgID is the bot message the next prompt replaces in place. Set from
	// the pressed button's message on callbacks, zero after free text: a
	// typed message gets a fresh prompt below it.
	MsgID int

	// Options is the list the current pick keyboard was built from;
	// ActPick indexes into it.
	Options []string

	// Fund-rule editing scratch. RuleIdx is -1 while adding a new rule.
	RuleIdx   int
	RuleDraft domain.FundRule

	// Add-wallet scratch.
	Slots      []domain.WalletSlot
	SlotIdx    int
	WalletName string

	// Edit-last scratch: the register row being patched.
	LastRow int

	touched time.Time
}

// Repo is the session repository the machine is wired with; keyed by user.
type Repo interface {
	Get(userID int64) (*Session, bool)
	Put(s *Session)
	Delete(userID int64)
}

// MemoryStore is the in-memory session repository with TTL expiry.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[int64]*Session),
	}
}

// Get returns the live session of the user; an expired session is dropped
// as if it never existed.
func (m *MemoryStore) Get(userID int64) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, false
	}
	if m.now().Sub(s.touched) > m.ttl {
		delete(m.sessions, userID)
		return nil, false
	}
	s.touched = m.now()
	return s, true
}

// Put stores the session, refreshing its expiry.
func (m *MemoryStore) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.touched = m.now()
	m.sessions[s.UserID] = s
}

// Delete removes the session.
func (m *MemoryStore) Delete(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}
