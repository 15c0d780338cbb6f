// Package worklog maintains the append-only per-user activity log: one
// timestamped line per session event, written to a plain log file per user
// and mirrored to an optional live channel. The files are an audit record;
// nothing reads them back at runtime.
package worklog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundrex/whatudoing/internal/paths"
)

// Mirror posts a worklog line to a shared channel. The Slack client
// satisfies this with PostMessage.
type Mirror interface {
	PostMessage(channel, text string) error
}

// Logger appends activity lines to per-user log files under a directory.
// It satisfies the session package's ActivityLog interface.
type Logger struct {
	// dir is the worklog directory; one file per display name.
	dir string
	// mirror posts each line to channel; nil disables mirroring.
	mirror Mirror
	// channel is the live-updates channel name.
	channel string
	// now is the clock; tests substitute a fixed clock.
	now func() time.Time
}

// New creates the worklog directory if needed and returns a Logger.
// A nil mirror or empty channel disables the live mirror.
func New(dir string, mirror Mirror, channel string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create worklog dir: %w", err)
	}
	return &Logger{dir: dir, mirror: mirror, channel: channel, now: time.Now}, nil
}

// Append writes one timestamped line to the user's log file and mirrors it
// to the live channel. Embedded newlines are indented so multi-line updates
// stay attached to their timestamp. Mirror failures are logged, not
// returned; the durable file is the record that matters.
func (l *Logger) Append(displayName, line string) error {
	entry := l.now().Format("2006-01-02 15:04:05") + ": " +
		strings.ReplaceAll(line, "\n", "\n\t") + "\n"

	path := filepath.Join(l.dir, paths.WorklogFile(displayName))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open worklog %s: %w", path, err)
	}
	if _, err := f.WriteString(entry); err != nil {
		f.Close()
		return fmt.Errorf("append worklog %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close worklog %s: %w", path, err)
	}

	if l.mirror != nil && l.channel != "" {
		if err := l.mirror.PostMessage(l.channel, displayName+" "+line); err != nil {
			slog.Warn("worklog mirror failed", "channel", l.channel, "error", err)
		}
	}
	return nil
}
