package session

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Test Fakes
// ///////////////////////////////////////////////

// fakeClock is a manually advanced clock injected as Env.now.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeMessenger records every outbound message and signals a channel so tests
// can wait for asynchronous timer sends.
type fakeMessenger struct {
	mu     sync.Mutex
	sent   []string
	notify chan string
	err    error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{notify: make(chan string, 16)}
}

func (m *fakeMessenger) SendMessage(userID, text string) error {
	m.mu.Lock()
	m.sent = append(m.sent, text)
	m.mu.Unlock()
	select {
	case m.notify <- text:
	default:
	}
	return m.err
}

func (m *fakeMessenger) messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *fakeMessenger) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1]
}

// wait blocks until a message arrives or the timeout expires.
func (m *fakeMessenger) wait(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case text := <-m.notify:
		return text
	case <-time.After(timeout):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

// fakeReportSink records report deliveries.
type fakeReportSink struct {
	mu         sync.Mutex
	userID     string
	recipients []string
	title      string
	body       string
	calls      int
}

func (r *fakeReportSink) SendReport(userID string, recipients []string, title, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userID = userID
	r.recipients = recipients
	r.title = title
	r.body = body
	r.calls++
	return nil
}

// fakeActivityLog records appended worklog lines.
type fakeActivityLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *fakeActivityLog) Append(displayName, line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, displayName+": "+line)
	return nil
}

func (l *fakeActivityLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// ///////////////////////////////////////////////
// Test Harness
// ///////////////////////////////////////////////

func testMessages() Messages {
	return Messages{
		Morning:       "good morning!",
		Followup:      "what have you been doing?",
		Update:        "thanks for the update!",
		Pause:         "enjoy the break",
		Resume:        "hello again!",
		Logout:        "bye bye!",
		Help:          "help text",
		InvalidInput:  "not sure what you mean",
		NoArguments:   "this command takes no arguments",
		InvalidStatus: "can't do this while you're {status}!",
	}
}

type harness struct {
	session   *Session
	env       *Env
	clock     *fakeClock
	messenger *fakeMessenger
	reports   *fakeReportSink
	worklog   *fakeActivityLog
}

// newHarness builds a session wired to fakes with a manual clock. The long
// interval keeps real timers from firing during clock-driven tests.
func newHarness(t *testing.T, interval time.Duration) *harness {
	t.Helper()
	clock := newFakeClock()
	messenger := newFakeMessenger()
	reports := &fakeReportSink{}
	worklog := &fakeActivityLog{}
	env := NewEnv(messenger, reports, worklog, Settings{
		FollowupInterval: interval,
		Messages:         testMessages(),
		ReportRecipients: []string{"UBOSS"},
	})
	env.now = clock.now
	return &harness{
		session:   New(env, "U123", "riya"),
		env:       env,
		clock:     clock,
		messenger: messenger,
		reports:   reports,
		worklog:   worklog,
	}
}

// ///////////////////////////////////////////////
// Basic Transitions
// ///////////////////////////////////////////////

func TestLoginStartsFreshDay(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")

	if got := h.session.Status(); got != StatusActive {
		t.Errorf("status = %v, want active", got)
	}
	if got := h.session.Worked(); got != 0 {
		t.Errorf("worked = %v, want 0", got)
	}
	if got := h.messenger.last(); got != "good morning!" {
		t.Errorf("last message = %q, want morning greeting", got)
	}
	h.session.mu.Lock()
	armed := h.session.followup != nil
	h.session.mu.Unlock()
	if !armed {
		t.Error("follow-up timer not armed after login")
	}

	lines := h.worklog.all()
	if len(lines) != 1 || lines[0] != "riya: logged in" {
		t.Errorf("worklog = %v, want single login line", lines)
	}
}

func TestLoginResetsPreviousDay(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(30 * time.Minute)
	h.session.HandleCommand("update wrote tests")
	h.session.HandleCommand("logout")

	h.session.HandleCommand("login")
	if got := h.session.Worked(); got != 0 {
		t.Errorf("worked = %v after re-login, want 0", got)
	}
	if got := h.session.Updates(); len(got) != 0 {
		t.Errorf("updates = %v after re-login, want empty", got)
	}
}

func TestUpdateBooksElapsedAndRestartsInterval(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(25 * time.Minute)
	h.session.HandleCommand("update reviewed the mixer PR")

	if got := h.session.Worked(); got != 25*time.Minute {
		t.Errorf("worked = %v, want 25m", got)
	}
	updates := h.session.Updates()
	if len(updates) != 1 || updates[0] != "reviewed the mixer PR" {
		t.Errorf("updates = %v, want the recorded task", updates)
	}
	if got := h.messenger.last(); got != "thanks for the update!" {
		t.Errorf("last message = %q, want update ack", got)
	}

	// The interval restarts: anchor moves to the update instant.
	h.session.mu.Lock()
	anchor := h.session.anchor
	h.session.mu.Unlock()
	if !anchor.Equal(h.clock.now()) {
		t.Errorf("anchor = %v, want %v", anchor, h.clock.now())
	}
}

func TestEmptyUpdateStillRearms(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(10 * time.Minute)
	h.session.HandleCommand("update")

	if got := h.session.Worked(); got != 10*time.Minute {
		t.Errorf("worked = %v, want 10m", got)
	}
	updates := h.session.Updates()
	if len(updates) != 1 || updates[0] != "" {
		t.Errorf("updates = %v, want one empty entry", updates)
	}
}

// ///////////////////////////////////////////////
// Pause / Resume
// ///////////////////////////////////////////////

func TestPauseResumeContinuesInterval(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")

	h.clock.advance(20 * time.Minute)
	h.session.HandleCommand("pause")
	if got := h.session.Status(); got != StatusPaused {
		t.Fatalf("status = %v, want paused", got)
	}
	h.session.mu.Lock()
	armed := h.session.followup != nil
	h.session.mu.Unlock()
	if armed {
		t.Error("follow-up timer still armed while paused")
	}

	h.clock.advance(30 * time.Minute) // break time, not booked
	h.session.HandleCommand("resume")
	if got := h.session.Status(); got != StatusActive {
		t.Fatalf("status = %v, want active", got)
	}

	// The anchor backdates by the 20 minutes worked before the pause, so the
	// interval continues instead of restarting.
	h.session.mu.Lock()
	anchor := h.session.anchor
	h.session.mu.Unlock()
	if want := h.clock.now().Add(-20 * time.Minute); !anchor.Equal(want) {
		t.Errorf("anchor = %v, want %v", anchor, want)
	}

	h.clock.advance(40 * time.Minute)
	h.session.HandleCommand("logout")
	if got, want := h.session.Worked(), 60*time.Minute; got != want {
		t.Errorf("worked = %v, want %v (break excluded)", got, want)
	}
}

func TestLogoutWhilePausedBooksToPauseInstant(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(15 * time.Minute)
	h.session.HandleCommand("pause")
	h.clock.advance(2 * time.Hour) // long break, never resumed
	h.session.HandleCommand("logout")

	if got := h.session.Worked(); got != 15*time.Minute {
		t.Errorf("worked = %v, want 15m", got)
	}
	if got := h.session.Status(); got != StatusLoggedOut {
		t.Errorf("status = %v, want logged out", got)
	}
}

// ///////////////////////////////////////////////
// Logout and Report
// ///////////////////////////////////////////////

func TestLogoutDeliversReport(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(30 * time.Minute)
	h.session.HandleCommand("update tuned the limiter")
	h.clock.advance(30 * time.Minute)
	h.session.HandleCommand("logout")

	h.reports.mu.Lock()
	defer h.reports.mu.Unlock()
	if h.reports.calls != 1 {
		t.Fatalf("report calls = %d, want 1", h.reports.calls)
	}
	if h.reports.userID != "U123" {
		t.Errorf("report user = %q, want U123", h.reports.userID)
	}
	if len(h.reports.recipients) != 1 || h.reports.recipients[0] != "UBOSS" {
		t.Errorf("report recipients = %v, want [UBOSS]", h.reports.recipients)
	}
	if h.reports.title != "riya_stats.txt" {
		t.Errorf("report title = %q", h.reports.title)
	}
	if !strings.Contains(h.reports.body, "tuned the limiter") {
		t.Errorf("report body missing task:\n%s", h.reports.body)
	}
	if !strings.Contains(h.reports.body, "1:00:00") {
		t.Errorf("report body missing worked time:\n%s", h.reports.body)
	}
}

// ///////////////////////////////////////////////
// Follow-up Timer
// ///////////////////////////////////////////////

func TestFollowupFiresAndBooksFullInterval(t *testing.T) {
	h := newHarness(t, 30*time.Millisecond)
	h.env.now = time.Now // timer tests run on the real clock
	h.session.HandleCommand("login")
	h.messenger.wait(t, time.Second) // morning greeting

	if got := h.messenger.wait(t, time.Second); got != "what have you been doing?" {
		t.Fatalf("follow-up message = %q", got)
	}
	if got := h.session.Worked(); got < 30*time.Millisecond {
		t.Errorf("worked = %v, want at least one interval", got)
	}

	// The timer re-arms itself: a second nag arrives without any command.
	if got := h.messenger.wait(t, time.Second); got != "what have you been doing?" {
		t.Fatalf("second follow-up message = %q", got)
	}

	h.session.HandleCommand("logout")
}

func TestPauseSilencesFollowup(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)
	h.env.now = time.Now
	h.session.HandleCommand("login")
	h.session.HandleCommand("pause")

	time.Sleep(120 * time.Millisecond)
	for _, msg := range h.messenger.messages() {
		if msg == "what have you been doing?" {
			t.Fatal("follow-up fired while paused")
		}
	}
}

func TestLogoutSilencesFollowup(t *testing.T) {
	h := newHarness(t, 40*time.Millisecond)
	h.env.now = time.Now
	h.session.HandleCommand("login")
	h.session.HandleCommand("logout")

	time.Sleep(120 * time.Millisecond)
	for _, msg := range h.messenger.messages() {
		if msg == "what have you been doing?" {
			t.Fatal("follow-up fired after logout")
		}
	}
}

func TestUpdateRestartsFollowupCountdown(t *testing.T) {
	h := newHarness(t, 60*time.Millisecond)
	h.env.now = time.Now
	h.session.HandleCommand("login")

	// Keep updating faster than the interval; no nag should arrive.
	for i := 0; i < 4; i++ {
		time.Sleep(25 * time.Millisecond)
		h.session.HandleCommand("update still at it")
	}
	for _, msg := range h.messenger.messages() {
		if msg == "what have you been doing?" {
			t.Fatal("follow-up fired despite timely updates")
		}
	}
	h.session.HandleCommand("logout")
}

// ///////////////////////////////////////////////
// Work Time Query
// ///////////////////////////////////////////////

func TestGetWorkTime(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(90 * time.Minute)
	h.session.HandleCommand("get_work_time")

	if got, want := h.messenger.last(), "You have worked for 1:30:00 hours"; got != want {
		t.Errorf("work time message = %q, want %q", got, want)
	}
	if got := h.session.Status(); got != StatusActive {
		t.Errorf("status changed by query: %v", got)
	}
}

func TestGetWorkTimeWhilePausedExcludesBreak(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")
	h.clock.advance(45 * time.Minute)
	h.session.HandleCommand("pause")
	h.clock.advance(3 * time.Hour)
	h.session.HandleCommand("get_work_time")

	if got, want := h.messenger.last(), "You have worked for 0:45:00 hours"; got != want {
		t.Errorf("work time message = %q, want %q", got, want)
	}
}

// ///////////////////////////////////////////////
// Settings Reload
// ///////////////////////////////////////////////

func TestUpdatedSettingsApplyToNextTransition(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.session.HandleCommand("login")

	s := h.env.Settings()
	s.Messages.Update = "noted."
	h.env.UpdateSettings(s)

	h.session.HandleCommand("update switched tasks")
	if got := h.messenger.last(); got != "noted." {
		t.Errorf("last message = %q, want reloaded ack text", got)
	}
}

// ///////////////////////////////////////////////
// Failure Tolerance
// ///////////////////////////////////////////////

func TestSendFailureDoesNotBlockTransition(t *testing.T) {
	h := newHarness(t, time.Hour)
	h.messenger.err = errors.New("slack is down")

	h.session.HandleCommand("login")
	if got := h.session.Status(); got != StatusActive {
		t.Errorf("status = %v, want active despite send failure", got)
	}
}
