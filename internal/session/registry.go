package session

import (
	"log/slog"
	"sort"
	"sync"
)

// ///////////////////////////////////////////////
// Roster
// ///////////////////////////////////////////////

// Member is one roster entry from the chat platform.
type Member struct {
	// ID is the platform user ID.
	ID string
	// DisplayName is the user's display name.
	DisplayName string
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Registry owns the userID-to-session map. It is populated once at startup
// (roster seed plus snapshot restore) and only read afterwards; per-session
// state is guarded by each session's own lock, so different users never
// contend.
type Registry struct {
	env *Env

	// mu guards the sessions map itself, not the sessions.
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry bound to the application context.
func NewRegistry(env *Env) *Registry {
	return &Registry{env: env, sessions: make(map[string]*Session)}
}

// Seed creates a fresh logged-out session for every roster member not
// already known. Returns the number of sessions created.
func (r *Registry) Seed(members []Member) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, m := range members {
		if _, ok := r.sessions[m.ID]; ok {
			continue
		}
		r.sessions[m.ID] = New(r.env, m.ID, m.DisplayName)
		added++
	}
	return added
}

// Restore rehydrates sessions from a snapshot, replacing any seeded entry
// for the same user. Active sessions come back with their follow-up timer
// re-armed for the remaining delay. Entries with an unknown status token are
// skipped with a warning. Returns the number of sessions restored.
func (r *Registry) Restore(persisted []PersistedSession) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for _, p := range persisted {
		s, ok := restoreSession(r.env, p)
		if !ok {
			slog.Warn("skipping snapshot entry with unknown status", "user", p.DisplayName, "status", p.Status)
			continue
		}
		r.sessions[p.UserID] = s
		slog.Info("restored session", "user", p.DisplayName, "status", p.Status)
		restored++
	}
	return restored
}

// Deliver routes one inbound message to its user's session. Messages from
// users the registry does not know are dropped; the roster is only read at
// startup, so a teammate added mid-day is picked up on the next restart.
func (r *Registry) Deliver(userID, text string) {
	r.mu.RLock()
	s, ok := r.sessions[userID]
	r.mu.RUnlock()
	if !ok {
		slog.Debug("message from unknown user dropped", "user_id", userID)
		return
	}
	s.HandleCommand(text)
}

// Get returns the session for a user ID, if known.
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Len returns the number of known sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Persistable returns the durable projection of every non-logged-out
// session, ordered by user ID so snapshot files are deterministic.
// Logged-out sessions carry no live obligations and are omitted.
func (r *Registry) Persistable() []PersistedSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []PersistedSession
	for _, s := range r.sessions {
		p := s.persisted()
		if p.Status == statusNameLoggedOut {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
