package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration to start the leadflow process.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Data is the data directory
	Data string
	// DSN points to where leadflow stores its own data
	DSN string
	// Driver is the database driver (sqlite or postgres)
	Driver string
	// Version is the current version of the binary
	Version string

	// Delivery gateway (WAHA) configuration
	WahaBaseURL   string // LEADFLOW_WAHA_BASE_URL (default: http://localhost:3000)
	WahaAPIKey    string // LEADFLOW_WAHA_API_KEY
	WahaSession   string // LEADFLOW_WAHA_SESSION (default: default)
	AutoReconnect bool   // LEADFLOW_AUTO_RECONNECT (default: true)

	// Dispatch configuration
	Timezone string // LEADFLOW_TIMEZONE (default: America/Sao_Paulo)

	// Semantic classification configuration
	AIEnabled bool   // LEADFLOW_AI_ENABLED
	AIBaseURL string // LEADFLOW_AI_BASE_URL (default: https://api.openai.com/v1)
	AIAPIKey  string // LEADFLOW_AI_API_KEY
	AIModel   string // LEADFLOW_AI_MODEL (default: gpt-4o-mini)
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if semantic classification is enabled and an API
// key is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIEnabled && p.AIAPIKey != ""
}

// getEnvOrDefault returns the environment variable value or the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// FromEnv loads configuration from LEADFLOW_* environment variables.
func (p *Profile) FromEnv() {
	p.WahaBaseURL = getEnvOrDefault("LEADFLOW_WAHA_BASE_URL", "http://localhost:3000")
	p.WahaAPIKey = os.Getenv("LEADFLOW_WAHA_API_KEY")
	p.WahaSession = getEnvOrDefault("LEADFLOW_WAHA_SESSION", "default")
	if v := os.Getenv("LEADFLOW_AUTO_RECONNECT"); v != "" {
		reconnect, err := strconv.ParseBool(v)
		p.AutoReconnect = err == nil && reconnect
	} else {
		p.AutoReconnect = true
	}

	p.Timezone = getEnvOrDefault("LEADFLOW_TIMEZONE", "America/Sao_Paulo")

	p.AIEnabled = os.Getenv("LEADFLOW_AI_ENABLED") == "true"
	p.AIBaseURL = getEnvOrDefault("LEADFLOW_AI_BASE_URL", "https://api.openai.com/v1")
	p.AIAPIKey = os.Getenv("LEADFLOW_AI_API_KEY")
	p.AIModel = getEnvOrDefault("LEADFLOW_AI_MODEL", "gpt-4o-mini")
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}
	if p.Driver == "" {
		p.Driver = "sqlite"
	}

	if p.Driver == "sqlite" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			dbFile := fmt.Sprintf("leadflow_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	} else if p.DSN == "" {
		return errors.New("dsn is required for postgres driver")
	}

	return nil
}
