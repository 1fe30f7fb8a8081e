package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	DataDir          string
	BoardSize        int
	SnapshotInterval time.Duration
	Verbose          bool

	// Caller identities and shared secrets for signed requests.
	ActivityCallerID   string
	ActivitySecret     string
	SettlementCallerID string
	SettlementSecret   string

	// Collaborator services; empty URL disables the client.
	TrophyBankURL      string
	TrophyBankSecret   string
	BondRegistryURL    string
	BondRegistrySecret string
	TreasuryURL        string
	TreasurySecret     string
}

func Load() *Config {
	port := 8090
	// Prefer PORT (Render, Fly.io, Railway, etc.) then PSE_PORT
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	} else if p := os.Getenv("PSE_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	}
	dataDir := os.Getenv("PSE_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	boardSize := 6
	if b := os.Getenv("LEADERBOARD_SIZE"); b != "" {
		if v, err := strconv.Atoi(b); err == nil && v > 0 {
			boardSize = v
		}
	}
	snapshotInterval := time.Minute
	if s := os.Getenv("SNAPSHOT_INTERVAL"); s != "" {
		if v, err := time.ParseDuration(s); err == nil && v > 0 {
			snapshotInterval = v
		}
	}
	return &Config{
		Port:             port,
		DataDir:          dataDir,
		BoardSize:        boardSize,
		SnapshotInterval: snapshotInterval,
		Verbose:          os.Getenv("VERBOSE") != "",

		ActivityCallerID:   os.Getenv("ACTIVITY_CALLER_ID"),
		ActivitySecret:     os.Getenv("ACTIVITY_SECRET"),
		SettlementCallerID: os.Getenv("SETTLEMENT_CALLER_ID"),
		SettlementSecret:   os.Getenv("SETTLEMENT_SECRET"),

		TrophyBankURL:      os.Getenv("TROPHY_BANK_URL"),
		TrophyBankSecret:   os.Getenv("TROPHY_BANK_SECRET"),
		BondRegistryURL:    os.Getenv("BOND_REGISTRY_URL"),
		BondRegistrySecret: os.Getenv("BOND_REGISTRY_SECRET"),
		TreasuryURL:        os.Getenv("TREASURY_URL"),
		TreasurySecret:     os.Getenv("TREASURY_SECRET"),
	}
}

// Validate rejects configurations the server cannot safely start with.
func (c *Config) Validate() error {
	if c.ActivityCallerID == "" || c.ActivitySecret == "" {
		return fmt.Errorf("ACTIVITY_CALLER_ID and ACTIVITY_SECRET must be set")
	}
	if c.SettlementCallerID == "" || c.SettlementSecret == "" {
		return fmt.Errorf("SETTLEMENT_CALLER_ID and SETTLEMENT_SECRET must be set")
	}
	if c.ActivityCallerID == c.SettlementCallerID {
		return fmt.Errorf("activity and settlement callers must differ")
	}
	return nil
}
