package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("ACTIVITY_CALLER_ID", "activity-svc")
	t.Setenv("ACTIVITY_SECRET", "as")
	t.Setenv("SETTLEMENT_CALLER_ID", "settlement-svc")
	t.Setenv("SETTLEMENT_SECRET", "ss")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "")
	t.Setenv("PSE_PORT", "")
	t.Setenv("PSE_DATA_DIR", "")
	t.Setenv("LEADERBOARD_SIZE", "")
	t.Setenv("SNAPSHOT_INTERVAL", "")

	c := Load()
	if c.Port != 8090 {
		t.Errorf("port = %d, want 8090", c.Port)
	}
	if c.DataDir != "data" {
		t.Errorf("data dir = %q, want data", c.DataDir)
	}
	if c.BoardSize != 6 {
		t.Errorf("board size = %d, want 6", c.BoardSize)
	}
	if c.SnapshotInterval != time.Minute {
		t.Errorf("snapshot interval = %v, want 1m", c.SnapshotInterval)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_PortPrecedence(t *testing.T) {
	setRequired(t)
	t.Setenv("PORT", "9001")
	t.Setenv("PSE_PORT", "9002")
	if c := Load(); c.Port != 9001 {
		t.Errorf("port = %d, PORT should win", c.Port)
	}
	t.Setenv("PORT", "")
	if c := Load(); c.Port != 9002 {
		t.Errorf("port = %d, want PSE_PORT fallback", c.Port)
	}
}

func TestLoad_SnapshotInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("SNAPSHOT_INTERVAL", "30s")
	if c := Load(); c.SnapshotInterval != 30*time.Second {
		t.Errorf("snapshot interval = %v, want 30s", c.SnapshotInterval)
	}
	t.Setenv("SNAPSHOT_INTERVAL", "garbage")
	if c := Load(); c.SnapshotInterval != time.Minute {
		t.Errorf("snapshot interval = %v, want default on a bad value", c.SnapshotInterval)
	}
}

func TestValidate_RejectsMissingCallers(t *testing.T) {
	setRequired(t)
	t.Setenv("SETTLEMENT_SECRET", "")
	if err := Load().Validate(); err == nil {
		t.Error("missing settlement secret accepted")
	}
	t.Setenv("SETTLEMENT_SECRET", "ss")
	t.Setenv("SETTLEMENT_CALLER_ID", "activity-svc")
	t.Setenv("ACTIVITY_CALLER_ID", "activity-svc")
	if err := Load().Validate(); err == nil {
		t.Error("identical caller identities accepted")
	}
}
