// Package paths centralizes file and directory names used across the project.
// All data directory file names are defined here as the single source of truth.
package paths

import "path/filepath"

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Data directory file names.
const (
	PIDFile      = "daemon.pid"
	ConfigFile   = "config.toml"
	LogFile      = "daemon.log"
	SnapshotFile = "snapshot.json"
	WorklogsDir  = "worklogs"
)

// BinaryName is the daemon binary name.
const BinaryName = "whatudoingd"

// DataDirRel is the default data directory, relative to $HOME.
const DataDirRel = ".whatudoing"

// WorklogFile returns the per-user activity log file name.
// For example, WorklogFile("ada") returns "ada.log".
func WorklogFile(displayName string) string {
	return displayName + ".log"
}

// ///////////////////////////////////////////////
// DataDir
// ///////////////////////////////////////////////

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// PID returns the full path to the PID file.
func (d DataDir) PID() string { return filepath.Join(d.Root, PIDFile) }

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the daemon log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Snapshot returns the full path to the session snapshot file.
func (d DataDir) Snapshot() string { return filepath.Join(d.Root, SnapshotFile) }

// Worklogs returns the full path to the per-user activity log directory.
func (d DataDir) Worklogs() string { return filepath.Join(d.Root, WorklogsDir) }
