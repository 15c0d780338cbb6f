package main

import (
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/soundrex/whatudoing/internal/config"
)

func TestPidToken(t *testing.T) {
	a := pidToken()
	b := pidToken()
	if len(a) != 16 {
		t.Errorf("token length = %d, want 16", len(a))
	}
	if a == b {
		t.Error("two tokens identical")
	}
}

func TestWritePIDAndCheckStale(t *testing.T) {
	dataPaths := DataPaths{Root: t.TempDir()}
	token := pidToken()

	f, err := writePID(dataPaths, token)
	if err != nil {
		t.Fatalf("writePID: %v", err)
	}

	data, err := os.ReadFile(dataPaths.PID())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := fmt.Sprintf("%d:%s", os.Getpid(), token)
	if string(data) != want {
		t.Errorf("PID file = %q, want %q", data, want)
	}

	// While the lock is held, another instance must see us as alive.
	alive, pid := checkStalePID(dataPaths)
	if !alive {
		t.Error("checkStalePID reported no running instance while locked")
	}
	if pid != os.Getpid() {
		t.Errorf("reported pid = %d, want %d", pid, os.Getpid())
	}

	removePID(dataPaths, token, f)
	if _, err := os.Stat(dataPaths.PID()); !os.IsNotExist(err) {
		t.Error("PID file not removed")
	}
}

func TestCheckStalePIDCleansUpDeadInstance(t *testing.T) {
	dataPaths := DataPaths{Root: t.TempDir()}

	// A PID file with no lock holder is stale.
	if err := os.WriteFile(dataPaths.PID(), []byte("12345:deadbeef"), 0o600); err != nil {
		t.Fatal(err)
	}

	alive, _ := checkStalePID(dataPaths)
	if alive {
		t.Error("stale PID file reported as alive")
	}
	if _, err := os.Stat(dataPaths.PID()); !os.IsNotExist(err) {
		t.Error("stale PID file not cleaned up")
	}
}

func TestRemovePIDRespectsToken(t *testing.T) {
	dataPaths := DataPaths{Root: t.TempDir()}
	f, err := writePID(dataPaths, "owner-token")
	if err != nil {
		t.Fatalf("writePID: %v", err)
	}

	// A mismatched token must leave the file in place.
	removePID(dataPaths, "other-token", f)
	if _, err := os.Stat(dataPaths.PID()); err != nil {
		t.Error("PID file removed despite token mismatch")
	}
}

func TestCheckStalePIDNoFile(t *testing.T) {
	alive, pid := checkStalePID(DataPaths{Root: t.TempDir()})
	if alive || pid != 0 {
		t.Errorf("checkStalePID = (%v, %d), want (false, 0)", alive, pid)
	}
}

func TestBuildSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Followup.IntervalMinutes = 45
	cfg.Report.Recipients = []string{"UBOSS"}
	cfg.Messages.Morning = "good morning"

	s := buildSettings(cfg)
	if s.FollowupInterval != 45*time.Minute {
		t.Errorf("interval = %v", s.FollowupInterval)
	}
	if len(s.ReportRecipients) != 1 || s.ReportRecipients[0] != "UBOSS" {
		t.Errorf("recipients = %v", s.ReportRecipients)
	}
	if s.Messages.Morning != "good morning" {
		t.Errorf("morning = %q", s.Messages.Morning)
	}
	if s.Messages.InvalidStatus == "" {
		t.Error("invalid status text not mapped")
	}
}

func TestDefaultDataDir(t *testing.T) {
	dir := defaultDataDir()
	if dir == "" {
		t.Fatal("empty data dir")
	}
	if !strings.HasSuffix(dir, ".whatudoing") {
		t.Errorf("data dir = %q, want .whatudoing suffix", dir)
	}
}

func TestResolveVersionLdflags(t *testing.T) {
	old := version
	defer func() { version = old }()

	version = "1.2.3"
	if got := resolveVersion(); got != "1.2.3" {
		t.Errorf("resolveVersion = %q, want ldflags value", got)
	}
}
