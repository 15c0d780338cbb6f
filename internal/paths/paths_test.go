package paths

import (
	"path/filepath"
	"testing"
)

func TestDataDirPaths(t *testing.T) {
	d := DataDir{Root: "/data"}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"pid", d.PID(), filepath.Join("/data", "daemon.pid")},
		{"config", d.Config(), filepath.Join("/data", "config.toml")},
		{"log", d.Log(), filepath.Join("/data", "daemon.log")},
		{"snapshot", d.Snapshot(), filepath.Join("/data", "snapshot.json")},
		{"worklogs", d.Worklogs(), filepath.Join("/data", "worklogs")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestWorklogFile(t *testing.T) {
	if got := WorklogFile("ada"); got != "ada.log" {
		t.Errorf("WorklogFile(ada) = %q", got)
	}
}
