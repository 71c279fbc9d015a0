package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the game server listens on.
	DefaultAddr = "127.0.0.1:5000"
	// DefaultAdminAddr is the default HTTP address for the operational admin mux.
	DefaultAdminAddr = "127.0.0.1:5001"
	// DefaultTurnTimeout bounds how long an attacker has to fire before the turn is skipped.
	DefaultTurnTimeout = 30 * time.Second
	// DefaultReconnectWindow bounds how long a disconnected player may rejoin before forfeiting.
	DefaultReconnectWindow = 15 * time.Second
	// DefaultRematchPause is the pause between a finished match and the next one.
	DefaultRematchPause = 3 * time.Second
	// DefaultMaxClients bounds concurrent TCP connections. Zero disables the limit.
	DefaultMaxClients = 256
	// DefaultShipCatalogue selects the standard five-ship fleet.
	DefaultShipCatalogue = "standard"

	// DefaultReplayDumpWindow bounds how frequently replay dump triggers may be requested.
	DefaultReplayDumpWindow = time.Minute
	// DefaultReplayDumpBurst sets how many replay dump requests may be made per window.
	DefaultReplayDumpBurst = 1
	// DefaultReplayDir is where completed-match transcripts are written.
	DefaultReplayDir = "storage/replays"

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "battleship.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the game server.
type Config struct {
	Address          string
	AdminAddress     string
	SharedSecret     string
	TurnTimeout      time.Duration
	ReconnectWindow  time.Duration
	RematchPause     time.Duration
	MaxClients       int
	ShipCatalogue    string
	AdminToken       string
	ReplayDir        string
	ReplayDumpWindow time.Duration
	ReplayDumpBurst  int
	Logging          LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:          getString("BATTLESHIP_ADDR", DefaultAddr),
		AdminAddress:     getString("BATTLESHIP_ADMIN_ADDR", DefaultAdminAddr),
		SharedSecret:     os.Getenv("BATTLESHIP_SHARED_SECRET"),
		TurnTimeout:      DefaultTurnTimeout,
		ReconnectWindow:  DefaultReconnectWindow,
		RematchPause:     DefaultRematchPause,
		MaxClients:       DefaultMaxClients,
		ShipCatalogue:    getString("BATTLESHIP_SHIP_CATALOGUE", DefaultShipCatalogue),
		AdminToken:       strings.TrimSpace(os.Getenv("BATTLESHIP_ADMIN_TOKEN")),
		ReplayDir:        getString("BATTLESHIP_REPLAY_DIR", DefaultReplayDir),
		ReplayDumpWindow: DefaultReplayDumpWindow,
		ReplayDumpBurst:  DefaultReplayDumpBurst,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("BATTLESHIP_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("BATTLESHIP_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_TURN_TIMEOUT")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_TURN_TIMEOUT must be a positive duration, got %q", raw))
		} else {
			cfg.TurnTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_RECONNECT_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_RECONNECT_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReconnectWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_REMATCH_PAUSE")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration < 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_REMATCH_PAUSE must be a non-negative duration, got %q", raw))
		} else {
			cfg.RematchPause = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_REPLAY_DUMP_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_REPLAY_DUMP_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ReplayDumpWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLESHIP_REPLAY_DUMP_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLESHIP_REPLAY_DUMP_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayDumpBurst = value
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
