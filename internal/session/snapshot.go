package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/soundrex/whatudoing/internal/atomicfile"
	"github.com/soundrex/whatudoing/internal/migrate"
)

// ///////////////////////////////////////////////
// Persisted Projection
// ///////////////////////////////////////////////

// Status tokens used in the snapshot file. Kept separate from
// [Status.String], which is user-facing text.
const (
	statusNameActive    = "active"
	statusNamePaused    = "paused"
	statusNameLoggedOut = "logged_out"
)

// statusName returns the durable token for a status.
func statusName(s Status) string {
	switch s {
	case StatusActive:
		return statusNameActive
	case StatusPaused:
		return statusNamePaused
	default:
		return statusNameLoggedOut
	}
}

// statusFromName parses a durable status token.
func statusFromName(name string) (Status, bool) {
	switch name {
	case statusNameActive:
		return StatusActive, true
	case statusNamePaused:
		return StatusPaused, true
	case statusNameLoggedOut:
		return StatusLoggedOut, true
	default:
		return StatusLoggedOut, false
	}
}

// PersistedSession is the durable projection of a [Session]: only the fields
// that survive a restart. The mutex and timer handle are deliberately absent;
// they are reconstructed fresh on load.
type PersistedSession struct {
	// UserID is the platform user ID.
	UserID string `json:"userId"`
	// DisplayName is the user's display name for logs and reports.
	DisplayName string `json:"displayName"`
	// Status is the durable status token ("active", "paused", "logged_out").
	Status string `json:"status"`
	// Anchor is the apparent start of the current follow-up interval.
	Anchor time.Time `json:"anchor"`
	// PausedAt is the pause instant, zero unless paused.
	PausedAt time.Time `json:"pausedAt,omitzero"`
	// Worked is the accumulated working time in nanoseconds.
	Worked time.Duration `json:"worked"`
	// Updates is the ordered task descriptions collected since login.
	Updates []string `json:"updates"`
}

// snapshotFile is the on-disk snapshot schema. It is versioned the same way
// as the config file so future field changes can migrate old snapshots.
type snapshotFile struct {
	// Version is the schema version, used for migration.
	Version int `json:"$version"`
	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"savedAt"`
	// Sessions holds every non-logged-out session at shutdown.
	Sessions []PersistedSession `json:"sessions"`
}

// ///////////////////////////////////////////////
// Session <-> Projection
// ///////////////////////////////////////////////

// persisted returns the durable projection of the session.
func (s *Session) persisted() PersistedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	updates := make([]string, len(s.updates))
	copy(updates, s.updates)
	return PersistedSession{
		UserID:      s.id,
		DisplayName: s.name,
		Status:      statusName(s.status),
		Anchor:      s.anchor,
		PausedAt:    s.pausedAt,
		Worked:      s.worked,
		Updates:     updates,
	}
}

// restoreSession rebuilds a live session from its persisted projection,
// reconstructing the lock implicitly and re-arming the follow-up timer for an
// active session with the time already elapsed since the anchor, so a restart
// neither resets nor double-counts the interval.
func restoreSession(env *Env, p PersistedSession) (*Session, bool) {
	status, ok := statusFromName(p.Status)
	if !ok {
		return nil, false
	}
	updates := make([]string, len(p.Updates))
	copy(updates, p.Updates)
	s := &Session{
		env:      env,
		id:       p.UserID,
		name:     p.DisplayName,
		status:   status,
		anchor:   p.Anchor,
		pausedAt: p.PausedAt,
		worked:   p.Worked,
		updates:  updates,
	}
	if status == StatusActive {
		s.mu.Lock()
		s.armFollowup(env.now().Sub(p.Anchor))
		s.mu.Unlock()
	}
	return s, true
}

// ///////////////////////////////////////////////
// Snapshot I/O
// ///////////////////////////////////////////////

// SaveSnapshot atomically writes the persisted sessions to path. The file is
// written once, at shutdown; a failure here means live session state would be
// lost, so callers must treat it as fatal.
func SaveSnapshot(path string, sessions []PersistedSession) error {
	data, err := json.Marshal(snapshotFile{
		Version:  migrate.Snapshot.CurrentVersion,
		SavedAt:  time.Now(),
		Sessions: sessions,
	})
	if err != nil {
		return fmt.Errorf("marshalling snapshot: %w", err)
	}
	if err := atomicfile.Write(path, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads the snapshot at path. A missing file is normal (first
// run or clean previous day) and returns nil sessions with no error. A
// corrupted or future-versioned file is backed up to .corrupted and reported
// as an error; callers recover by starting every user fresh.
func LoadSnapshot(path string) ([]PersistedSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		backupCorruptSnapshot(path, data)
		return nil, fmt.Errorf("corrupted snapshot (backed up): %w", err)
	}
	if f.Version == 0 {
		f.Version = 1
	}

	if f.Version > migrate.Snapshot.CurrentVersion {
		backupCorruptSnapshot(path, data)
		return nil, fmt.Errorf("snapshot version %d is newer than supported %d", f.Version, migrate.Snapshot.CurrentVersion)
	}

	if migrate.Snapshot.NeedsMigration(f.Version) {
		migrated, _, migrateErr := migrate.Snapshot.Run(data, f.Version)
		if migrateErr != nil {
			return nil, fmt.Errorf("snapshot migration failed: %w", migrateErr)
		}
		f = snapshotFile{}
		if err := json.Unmarshal(migrated, &f); err != nil {
			return nil, fmt.Errorf("unmarshal migrated snapshot: %w", err)
		}
	}

	return f.Sessions, nil
}

// backupCorruptSnapshot preserves unreadable snapshot bytes for inspection.
func backupCorruptSnapshot(path string, data []byte) {
	corruptedPath := path + ".corrupted"
	if wErr := os.WriteFile(corruptedPath, data, 0o600); wErr != nil {
		slog.Warn("failed to back up corrupted snapshot", "path", corruptedPath, "error", wErr)
	}
}
