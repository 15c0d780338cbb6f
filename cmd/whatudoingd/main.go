// Package main implements the whatudoing daemon, a Slack bot that tracks
// each team member's daily work sessions and nags for timely updates.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	rootpkg "github.com/soundrex/whatudoing"
	"github.com/soundrex/whatudoing/internal/config"
	"github.com/soundrex/whatudoing/internal/logger"
	"github.com/soundrex/whatudoing/internal/paths"
	"github.com/soundrex/whatudoing/internal/session"
	"github.com/soundrex/whatudoing/internal/slack"
	"github.com/soundrex/whatudoing/internal/worklog"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//   - goreleaser: -X main.version={{.Version}}  -> "0.1.0"
//   - make build: -X main.version=$(VERSION)    -> "0.0.0-dev+05ffee5"
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically, so dev builds get a useful version string
// without needing git at runtime.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags at build time it is returned as-is; otherwise VCS revision and dirty
// state embedded by the Go toolchain are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this instance wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the PID file at [DataPaths.PID], acquires an
// advisory file lock, and writes "PID:TOKEN" content. The returned file handle
// must be kept open for the lifetime of the daemon to hold the lock; pass it to
// [removePID] on shutdown.
func writePID(paths DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(paths.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	content := fmt.Sprintf("%d:%s", os.Getpid(), token)
	if _, err := f.WriteString(content); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the advisory lock, closes the file handle, and removes the
// PID file only if the stored token matches, preventing accidental removal of a
// file owned by a different daemon instance.
func removePID(paths DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(paths.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(paths.PID())
	}
}

// checkStalePID checks whether another daemon instance is running. It attempts
// to acquire the advisory lock on the PID file; if the lock fails, another
// instance holds it. If the lock succeeds, any previous instance is dead and
// the stale file is cleaned up.
func checkStalePID(paths DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(paths.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(paths.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if len(parts) >= 1 {
			if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
				return true, p
			}
		}
		return true, 0
	}

	// Lock acquired -- previous instance is dead. Clean up stale file.
	_ = unlockFile(f)
	f.Close()
	os.Remove(paths.PID())
	return false, 0
}

// ///////////////////////////////////////////////
// Settings Mapping
// ///////////////////////////////////////////////

// buildSettings maps the loaded [config.Config] into the flat
// [session.Settings] struct that sessions read on every transition.
func buildSettings(cfg *config.Config) session.Settings {
	return session.Settings{
		FollowupInterval: cfg.FollowupInterval(),
		ReportRecipients: cfg.Report.Recipients,
		Messages: session.Messages{
			Morning:       cfg.Messages.Morning,
			Followup:      cfg.Messages.Followup,
			Update:        cfg.Messages.Update,
			Pause:         cfg.Messages.Pause,
			Resume:        cfg.Messages.Resume,
			Logout:        cfg.Messages.Logout,
			Help:          cfg.Messages.Help,
			InvalidInput:  cfg.Messages.InvalidInput,
			NoArguments:   cfg.Messages.NoArguments,
			InvalidStatus: cfg.Messages.InvalidStatus,
		},
	}
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns the platform default directory for daemon data,
// typically ~/.whatudoing. Falls back to ./.whatudoing if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run owns the daemon lifecycle end to end. It returns an error for any
// condition that must surface as a nonzero exit code -- including a failed
// snapshot save at shutdown, which would otherwise silently drop live
// session state.
func run() error {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, snapshot, and logs")
	flag.Parse()

	dataPaths := DataPaths{Root: *dataDir}

	if err := os.MkdirAll(dataPaths.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if alive, pid := checkStalePID(dataPaths); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	if _, err := os.Stat(dataPaths.Config()); os.IsNotExist(err) {
		if writeErr := os.WriteFile(dataPaths.Config(), rootpkg.DefaultConfigTOML, 0o644); writeErr != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", writeErr)
		}
	}

	cfg, err := config.Load(dataPaths.Root)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Slack.Token == "" {
		return fmt.Errorf("no Slack token: set WHATUDOING_SLACK_TOKEN")
	}

	logLevel := logger.ParseLevel(cfg.Log.Level)
	log, logCloser, err := logger.NewLogger(dataPaths.Log(), logLevel, cfg.Log.MaxSizeMB)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("whatudoingd starting", "version", ver, "data_dir", dataPaths.Root)

	token := pidToken()
	pidFile, err := writePID(dataPaths, token)
	if err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer removePID(dataPaths, token, pidFile)

	client := slack.NewClient(cfg.Slack.Token, cfg.Slack.APIBaseURL)

	wlog, err := worklog.New(dataPaths.Worklogs(), client, cfg.Slack.LiveChannel)
	if err != nil {
		return fmt.Errorf("init worklog: %w", err)
	}

	env := session.NewEnv(client, client, wlog, buildSettings(cfg))
	registry := session.NewRegistry(env)

	if err := populateRegistry(registry, client, cfg); err != nil {
		return err
	}
	restoreSnapshot(registry, dataPaths)

	watcher, err := config.NewWatcher(dataPaths.Config())
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()
	if watcher.Polling() {
		slog.Info("using polling mode for config watching")
	}

	rtm := slack.NewRTM(client, cfg.Slack.BotID, cfg.ReconnectDelay())
	go rtm.Run()
	defer rtm.Close()

	loop(registry, env, rtm, watcher, dataPaths)

	// Shutdown: every non-logged-out session must reach disk. A failure
	// here is the one error the daemon is not allowed to swallow.
	if err := session.SaveSnapshot(dataPaths.Snapshot(), registry.Persistable()); err != nil {
		logger.Fail(log, "snapshot save failed, live session state lost", "error", err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	slog.Info("snapshot saved, shutting down")
	return nil
}

// ///////////////////////////////////////////////
// Startup Population
// ///////////////////////////////////////////////

// populateRegistry seeds a fresh logged-out session for every current roster
// member, skipping accounts matched by the configured ignore patterns.
func populateRegistry(registry *session.Registry, client *slack.Client, cfg *config.Config) error {
	users, err := client.ListUsers()
	if err != nil {
		return fmt.Errorf("fetch roster: %w", err)
	}
	var members []session.Member
	for _, u := range users {
		if cfg.IgnoredUser(u.Name) {
			slog.Debug("ignoring roster member", "name", u.Name)
			continue
		}
		members = append(members, session.Member{ID: u.ID, DisplayName: u.Name})
	}
	added := registry.Seed(members)
	slog.Info("roster seeded", "members", added)
	return nil
}

// restoreSnapshot overlays persisted sessions from the previous run onto the
// seeded registry and removes the consumed snapshot file so a crash loop
// cannot replay stale state. Corruption or absence is recovered locally:
// affected users simply start the day logged out.
func restoreSnapshot(registry *session.Registry, dataPaths DataPaths) {
	persisted, err := session.LoadSnapshot(dataPaths.Snapshot())
	if err != nil {
		slog.Warn("snapshot not restored, starting fresh", "error", err)
		return
	}
	if len(persisted) > 0 {
		restored := registry.Restore(persisted)
		slog.Info("sessions restored from snapshot", "count", restored)
	}
	if rmErr := os.Remove(dataPaths.Snapshot()); rmErr != nil && !os.IsNotExist(rmErr) {
		slog.Warn("failed to remove consumed snapshot", "error", rmErr)
	}
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

// loop dispatches inbound messages to the registry, applies config reloads,
// and returns when a shutdown signal arrives. Message order within one user
// follows arrival order; the per-session lock orders them against timer
// callbacks.
func loop(registry *session.Registry, env *session.Env, rtm *slack.RTM, watcher *config.Watcher, dataPaths DataPaths) {
	sigCh := signalChannel()

	for {
		select {
		case <-sigCh:
			slog.Info("received shutdown signal")
			return

		case ev, ok := <-rtm.Events():
			if !ok {
				slog.Warn("message stream closed")
				return
			}
			registry.Deliver(ev.UserID, ev.Text)

		case <-watcher.Events():
			reloadSettings(env, dataPaths)
		}
	}
}

// reloadSettings re-reads the config file and applies the new message texts,
// follow-up interval, and report recipients to the running sessions. A bad
// edit keeps the previous settings. Slack connection settings require a
// restart and are deliberately not reapplied.
func reloadSettings(env *session.Env, dataPaths DataPaths) {
	cfg, err := config.Load(dataPaths.Root)
	if err != nil {
		slog.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	env.UpdateSettings(buildSettings(cfg))
	slog.Info("config reloaded", "followup_minutes", cfg.Followup.IntervalMinutes)
}
