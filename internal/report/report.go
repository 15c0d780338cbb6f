// Package report formats the end-of-day work summary that is delivered to a
// user and the configured recipients on logout.
package report

import (
	"fmt"
	"strings"
	"time"
)

// statsTemplate is the body of the daily report. Placeholders: date, worked
// time, task list.
const statsTemplate = "Your Work Update for %s:\n\n" +
	"Today you worked for %s hours. Here's what you did in that time:\n" +
	"%s\n\n" +
	"Cheers!"

// Title returns the upload file name for a user's daily report.
func Title(displayName string) string {
	return displayName + "_stats.txt"
}

// Build renders the report body for one user's day. Each task becomes a
// " => " bullet with embedded newlines indented so multi-line updates stay
// readable in the uploaded file.
func Build(date time.Time, worked time.Duration, tasks []string) string {
	bullets := make([]string, len(tasks))
	for i, task := range tasks {
		bullets[i] = " => " + strings.ReplaceAll(task, "\n", "\n    ")
	}
	return fmt.Sprintf(statsTemplate,
		date.Format("2006-01-02"),
		FormatClock(worked),
		strings.Join(bullets, "\n"),
	)
}

// FormatClock renders a duration as H:MM:SS. Negative durations render as
// zero; sub-second remainders are rounded.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
