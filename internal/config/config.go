package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	DatabaseName string
	NATSURL      string

	AvgDriveSpeedKmh    float64
	DecisionBufferMin   float64
	CorrectionPadMin    float64
	StationDetourRatio  float64
	OnewayRecoveryMeanH float64
	OnewayRecoveryStdH  float64
	ShareProbability    float64
	RandomSeed          int64

	ScenariosPath   string
	Location        *time.Location
	LogNATSSubjects bool
	MetricsAddr     string
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	// Database URL: prefer DATABASE_URL / PG_DSN, else build from PG* vars
	dsn := firstNonEmpty(
		os.Getenv("DATABASE_URL"),
		os.Getenv("PG_DSN"),
	)
	if dsn == "" {
		host := getenvDefault("PGHOST", "127.0.0.1")
		port := getenvDefault("PGPORT", "5432")
		user := getenvDefault("PGUSER", "postgres")
		pass := os.Getenv("PGPASSWORD")
		db := os.Getenv("PGDATABASE")
		if db == "" {
			return nil, errors.New("PGDATABASE or DATABASE_URL must be set")
		}
		sslmode := getenvDefault("PGSSLMODE", "disable")
		if pass != "" {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode)
		} else {
			cfg.DatabaseURL = fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode)
		}
	} else {
		cfg.DatabaseURL = dsn
	}

	// Optional override of the database name in the DSN, e.g. to point the
	// same cluster DSN at a different trips import.
	cfg.DatabaseName = os.Getenv("DATABASE_NAME")

	cfg.NATSURL = getenvDefault("NATS_URL", "nats://127.0.0.1:4222")

	var err error
	if cfg.AvgDriveSpeedKmh, err = floatEnv("AVG_DRIVE_SPEED_KMH", 50, positive); err != nil {
		return nil, err
	}
	if cfg.DecisionBufferMin, err = floatEnv("DECISION_BUFFER_MIN", 10, nonNegative); err != nil {
		return nil, err
	}
	if cfg.CorrectionPadMin, err = floatEnv("CORRECTION_PAD_MIN", 2, positive); err != nil {
		return nil, err
	}
	if cfg.StationDetourRatio, err = floatEnv("STATION_DETOUR_RATIO", 0.5, positive); err != nil {
		return nil, err
	}
	if cfg.OnewayRecoveryMeanH, err = floatEnv("ONEWAY_RECOVERY_MEAN_H", 1.7, nonNegative); err != nil {
		return nil, err
	}
	if cfg.OnewayRecoveryStdH, err = floatEnv("ONEWAY_RECOVERY_STD_H", 0.7, nonNegative); err != nil {
		return nil, err
	}
	if cfg.ShareProbability, err = floatEnv("SHARE_PROBABILITY", 0.1, nonNegative); err != nil {
		return nil, err
	}

	// Random seed; 0 means derive from the wall clock
	if v := os.Getenv("RANDOM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RANDOM_SEED: %q", v)
		}
		cfg.RandomSeed = seed
	}
	if cfg.RandomSeed == 0 {
		cfg.RandomSeed = time.Now().UnixNano()
	}

	// Optional multi-scenario YAML file
	cfg.ScenariosPath = os.Getenv("SCENARIOS_PATH")

	// Debug logging for NATS publish subjects
	if v := os.Getenv("LOG_NATS_SUBJECTS"); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "t", "yes", "y", "on":
			cfg.LogNATSSubjects = true
		default:
			cfg.LogNATSSubjects = false
		}
	}

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Time zone
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

type bound int

const (
	positive bound = iota
	nonNegative
)

func floatEnv(key string, def float64, b bound) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || (b == positive && f <= 0) || (b == nonNegative && f < 0) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
