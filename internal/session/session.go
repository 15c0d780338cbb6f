// Package session implements per-user work-tracking sessions: the status
// state machine, the command table that drives it, the follow-up timer
// integration, and the registry that owns every known user.
//
// The package provides three core capabilities:
//
//   - State machine: login/pause/resume/logout/update transitions with
//     working-time accounting, guarded per user by a mutex that also
//     serializes follow-up timer callbacks (see [Session]).
//   - Command dispatch: parsing raw message text into a verb plus optional
//     argument and validating it against the command table (see
//     [Session.HandleCommand]).
//   - Persistence: a durable projection of every non-logged-out session,
//     written at shutdown and rehydrated at startup with timers re-armed
//     for the remaining delay (see [Registry.Persistable] and
//     [Registry.Restore]).
package session

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/soundrex/whatudoing/internal/report"
	"github.com/soundrex/whatudoing/internal/timer"
)

// ///////////////////////////////////////////////
// Status
// ///////////////////////////////////////////////

// Status is a user's position in the daily work cycle.
type Status int

const (
	// StatusLoggedOut is the initial status and the terminal status for a
	// finished day. No timer is armed.
	StatusLoggedOut Status = iota
	// StatusActive means the user is working and exactly one follow-up
	// timer is armed.
	StatusActive
	// StatusPaused means the user is on a break; the timer is canceled and
	// the pause instant is recorded.
	StatusPaused
)

// String returns the user-facing status name, as interpolated into the
// illegal-transition rejection message.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	default:
		return "logged out"
	}
}

// ///////////////////////////////////////////////
// External Collaborators
// ///////////////////////////////////////////////

// Messenger delivers outbound messages to a user. Implementations are
// fire-and-forget; the state machine logs failures and moves on.
type Messenger interface {
	SendMessage(userID, text string) error
}

// ReportSink delivers the end-of-day summary document to a user and any
// additional recipients.
type ReportSink interface {
	SendReport(userID string, recipients []string, title, body string) error
}

// ActivityLog records one timestamped line per session event in a durable
// per-user audit log. It is never read back at runtime.
type ActivityLog interface {
	Append(displayName, line string) error
}

// ///////////////////////////////////////////////
// Messages and Settings
// ///////////////////////////////////////////////

// Messages holds the bot's user-facing texts. The InvalidStatus text supports
// a {status} placeholder replaced with the current status name.
type Messages struct {
	Morning       string
	Followup      string
	Update        string
	Pause         string
	Resume        string
	Logout        string
	Help          string
	InvalidInput  string
	NoArguments   string
	InvalidStatus string
}

// invalidStatusFor renders the illegal-transition rejection for a status.
func (m Messages) invalidStatusFor(s Status) string {
	return strings.ReplaceAll(m.InvalidStatus, "{status}", s.String())
}

// Settings holds the tunable values sessions read on every transition, so a
// config reload takes effect without restarting sessions.
type Settings struct {
	// FollowupInterval is how long an active user may go without an update
	// before the bot asks for one.
	FollowupInterval time.Duration
	// Messages holds the bot's message texts.
	Messages Messages
	// ReportRecipients receive every user's end-of-day report.
	ReportRecipients []string
}

// ///////////////////////////////////////////////
// Env
// ///////////////////////////////////////////////

// Env is the application context shared by the registry and every session:
// the outbound collaborators plus the live settings. It replaces any notion
// of package-global state so tests can construct isolated instances.
type Env struct {
	// Messenger sends user-visible acks and nags.
	Messenger Messenger
	// Reports delivers end-of-day summaries.
	Reports ReportSink
	// Worklog records the per-user audit trail.
	Worklog ActivityLog

	// mu guards settings against concurrent reload and reads.
	mu       sync.RWMutex
	settings Settings

	// now is the clock; tests substitute a fixed or stepped clock.
	now func() time.Time
}

// NewEnv creates an application context with the given collaborators and
// initial settings.
func NewEnv(m Messenger, r ReportSink, w ActivityLog, s Settings) *Env {
	return &Env{
		Messenger: m,
		Reports:   r,
		Worklog:   w,
		settings:  s,
		now:       time.Now,
	}
}

// Settings returns a copy of the current settings.
func (e *Env) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings replaces the current settings. Sessions pick up the new
// values on their next transition; already-armed timers keep their old delay.
func (e *Env) UpdateSettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// Session is one user's work-tracking state. All mutation happens under mu,
// which serializes user commands against the follow-up timer callback. The
// timer handle and the mutex are live-only fields; persistence goes through
// the [PersistedSession] projection instead.
type Session struct {
	env  *Env
	id   string
	name string

	mu sync.Mutex
	// status is the current position in the work cycle.
	status Status
	// anchor marks the apparent start of the current follow-up interval:
	// FollowupInterval before whenever the timer is due to fire. Elapsed and
	// remaining time across pause/resume and restarts derive from it.
	anchor time.Time
	// pausedAt is the pause instant, set only while paused.
	pausedAt time.Time
	// worked accumulates working time while logged in.
	worked time.Duration
	// updates collects the free-text task descriptions since login.
	updates []string
	// followup is the single outstanding timer handle, nil unless active.
	followup *timer.Handle
}

// New creates a logged-out session for a roster member.
func New(env *Env, id, displayName string) *Session {
	return &Session{env: env, id: id, name: displayName}
}

// ID returns the platform user ID.
func (s *Session) ID() string { return s.id }

// DisplayName returns the user's display name used for logs and reports.
func (s *Session) DisplayName() string { return s.name }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Worked returns the accumulated working time booked so far. Time since the
// last anchor is not included until the next transition books it.
func (s *Session) Worked() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.worked
}

// Updates returns a copy of the task descriptions collected since login.
func (s *Session) Updates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.updates))
	copy(out, s.updates)
	return out
}

// ///////////////////////////////////////////////
// Outbound Helpers
// ///////////////////////////////////////////////

// send delivers a message to the session's user. Failures are logged and
// otherwise ignored; the transition proceeds as if the message was sent.
func (s *Session) send(text string) {
	if err := s.env.Messenger.SendMessage(s.id, text); err != nil {
		slog.Warn("message send failed", "user", s.name, "error", err)
	}
}

// logActivity appends a line to the user's audit log.
func (s *Session) logActivity(line string) {
	if err := s.env.Worklog.Append(s.name, line); err != nil {
		slog.Warn("worklog append failed", "user", s.name, "error", err)
	}
}

// ///////////////////////////////////////////////
// Follow-up Timer
// ///////////////////////////////////////////////

// armFollowup starts the countdown for the next timely follow-up, with
// elapsed time already spent on the current interval. The anchor records the
// apparent interval start (now minus elapsed) so accounting stays continuous
// across pause/resume and restarts. Caller must hold s.mu.
func (s *Session) armFollowup(elapsed time.Duration) {
	interval := s.env.Settings().FollowupInterval
	s.anchor = s.env.now().Add(-elapsed)
	s.followup = timer.Arm(interval-elapsed, s.timelyFollowup)
}

// cancelFollowup stops any outstanding timer. Best-effort: a callback that
// already began is neutralized by the status re-check in timelyFollowup.
// Caller must hold s.mu.
func (s *Session) cancelFollowup() {
	s.followup.Cancel()
	s.followup = nil
}

// timelyFollowup runs on the timer goroutine when a full interval passed
// with no update. The status is re-checked under the lock: a pause or logout
// that won the lock first turns a stale fire into a no-op.
func (s *Session) timelyFollowup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return
	}
	cfg := s.env.Settings()
	s.worked += cfg.FollowupInterval
	s.send(cfg.Messages.Followup)
	s.armFollowup(0)
}

// ///////////////////////////////////////////////
// Transitions
// ///////////////////////////////////////////////
//
// All transition methods are invoked by the dispatcher with s.mu held and
// the status guard already checked against the command table.

// login starts a fresh day: zeroed working time, empty update list, timer
// armed for a full interval.
func (s *Session) login(string) {
	s.status = StatusActive
	s.worked = 0
	s.updates = []string{}
	s.send(s.env.Settings().Messages.Morning)
	s.logActivity("logged in")
	s.armFollowup(0)
}

// update records a task description, books the time since the anchor, and
// restarts the follow-up countdown.
func (s *Session) update(content string) {
	s.send(s.env.Settings().Messages.Update)
	s.logActivity("work update: " + content)
	s.updates = append(s.updates, content)
	s.cancelFollowup()
	s.worked += s.env.now().Sub(s.anchor)
	s.armFollowup(0)
}

// pause records the pause instant and cancels the timer. Time between the
// anchor and the pause stays unbooked until resume/logout accounts for it.
func (s *Session) pause(string) {
	s.status = StatusPaused
	s.pausedAt = s.env.now()
	s.cancelFollowup()
	s.send(s.env.Settings().Messages.Pause)
	s.logActivity("paused for break")
}

// resume rearms the timer with the time already spent before the pause, so
// the interval and the accounting continue where they left off.
func (s *Session) resume(string) {
	s.status = StatusActive
	elapsed := s.pausedAt.Sub(s.anchor)
	s.pausedAt = time.Time{}
	s.armFollowup(elapsed)
	s.send(s.env.Settings().Messages.Resume)
	s.logActivity("resumed working")
}

// logout finalizes the day: books the remaining time (up to the pause
// instant if paused), cancels the timer, and relays the daily report.
func (s *Session) logout(string) {
	final := s.env.now()
	if s.status == StatusPaused {
		final = s.pausedAt
	}
	s.worked += final.Sub(s.anchor)
	s.send(s.env.Settings().Messages.Logout)
	s.logActivity("logged out")
	s.status = StatusLoggedOut
	s.pausedAt = time.Time{}
	s.cancelFollowup()
	s.relayStats()
}

// help sends the static help text. No state change.
func (s *Session) help(string) {
	s.send(s.env.Settings().Messages.Help)
}

// workTime reports the working time so far, including the unbooked stretch
// since the anchor (up to the pause instant if paused). No state change.
func (s *Session) workTime(string) {
	ending := s.env.now()
	if s.status == StatusPaused {
		ending = s.pausedAt
	}
	total := s.worked + ending.Sub(s.anchor)
	s.send("You have worked for " + report.FormatClock(total) + " hours")
}

// relayStats delivers the end-of-day summary to the user and the configured
// report recipients. Caller must hold s.mu.
func (s *Session) relayStats() {
	cfg := s.env.Settings()
	body := report.Build(s.env.now(), s.worked, s.updates)
	if err := s.env.Reports.SendReport(s.id, cfg.ReportRecipients, report.Title(s.name), body); err != nil {
		slog.Warn("report delivery failed", "user", s.name, "error", err)
	}
}
