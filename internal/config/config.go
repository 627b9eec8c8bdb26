package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Role selects which side of the sync protocol this server runs
type Role string

const (
	RoleRemote  Role = "remote"
	RoleCentral Role = "central"
)

// Config holds all application configuration
type Config struct {
	ServerAddress string      `json:"serverAddress" yaml:"serverAddress"`
	DatabasePath  string      `json:"databasePath" yaml:"databasePath"`
	DatabaseURL   string      `json:"databaseUrl" yaml:"databaseUrl"`
	Role          Role        `json:"role" yaml:"role"`
	FileStorage   FileStorage `json:"fileStorage" yaml:"fileStorage"`
	Security      Security    `json:"security" yaml:"security"`
	Sync          Sync        `json:"sync" yaml:"sync"`
	Central       Central     `json:"central" yaml:"central"`
	Maintenance   Maintenance `json:"maintenance" yaml:"maintenance"`
}

// UsePostgres returns true if PostgreSQL should be used
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// FileStorage configuration for sync file attachments
type FileStorage struct {
	BasePath      string `json:"basePath" yaml:"basePath"`
	MaxFileSizeMB int64  `json:"maxFileSizeMB" yaml:"maxFileSizeMB"`
}

// Security configuration for the local admin API
type Security struct {
	APIKey       string `json:"apiKey" yaml:"apiKey"`
	APIKeyHeader string `json:"apiKeyHeader" yaml:"apiKeyHeader"`
}

// Sync configures a remote site's connection to the central server
type Sync struct {
	CentralURL    string `json:"centralUrl" yaml:"centralUrl"`
	SiteID        int32  `json:"siteId" yaml:"siteId"`
	CentralSiteID int32  `json:"centralSiteId" yaml:"centralSiteId"`
	SiteName      string `json:"siteName" yaml:"siteName"`
	// SitePassword is hashed with SHA-256 before it is sent
	SitePassword           string `json:"sitePassword" yaml:"sitePassword"`
	IntervalSeconds        int    `json:"intervalSeconds" yaml:"intervalSeconds"`
	BatchSize              int    `json:"batchSize" yaml:"batchSize"`
	TimeoutSeconds         int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxRetries             uint   `json:"maxRetries" yaml:"maxRetries"`
	IntegrationWaitSeconds int    `json:"integrationWaitSeconds" yaml:"integrationWaitSeconds"`
	RetainBuffer           bool   `json:"retainBuffer" yaml:"retainBuffer"`
	RunProcessors          bool   `json:"runProcessors" yaml:"runProcessors"`
}

// Interval returns the time between scheduled sync cycles
func (s Sync) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// Timeout returns the per-request timeout of the sync client
func (s Sync) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// IntegrationWait returns how long a site waits for the central server to
// integrate its push
func (s Sync) IntegrationWait() time.Duration {
	return time.Duration(s.IntegrationWaitSeconds) * time.Second
}

// Central configures the central server role
type Central struct {
	SiteID int32            `json:"siteId" yaml:"siteId"`
	Sites  []SiteCredential `json:"sites" yaml:"sites"`
}

// SiteCredential lets a remote site authenticate against the central server
type SiteCredential struct {
	SiteID int32  `json:"siteId" yaml:"siteId"`
	Name   string `json:"name" yaml:"name"`
	// PasswordHash is the bcrypt hash of the SHA-256 hex of the site password
	PasswordHash string `json:"passwordHash" yaml:"passwordHash"`
}

// Maintenance configuration for sync buffer and sync log pruning
type Maintenance struct {
	Enabled              bool `json:"enabled" yaml:"enabled"`
	IntervalMinutes      int  `json:"intervalMinutes" yaml:"intervalMinutes"`
	BufferRetentionHours int  `json:"bufferRetentionHours" yaml:"bufferRetentionHours"`
	SyncLogsToKeep       int  `json:"syncLogsToKeep" yaml:"syncLogsToKeep"`
}

// Default configuration
func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":5000",
		DatabasePath:  "supplysync.db",
		Role:          RoleRemote,
		FileStorage: FileStorage{
			BasePath:      "./sync_files",
			MaxFileSizeMB: 50,
		},
		Security: Security{
			APIKey:       "CHANGE_THIS_TO_A_SECURE_API_KEY_AT_LEAST_32_CHARS",
			APIKeyHeader: "X-API-Key",
		},
		Sync: Sync{
			CentralSiteID:          1,
			IntervalSeconds:        300,
			BatchSize:              500,
			TimeoutSeconds:         60,
			MaxRetries:             3,
			IntegrationWaitSeconds: 30,
			RunProcessors:          true,
		},
		Central: Central{
			SiteID: 1,
		},
		Maintenance: Maintenance{
			Enabled:              true,
			IntervalMinutes:      60,
			BufferRetentionHours: 24 * 7,
			SyncLogsToKeep:       500,
		},
	}
}

// Load loads configuration from file or environment
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := decode(configPath, data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configPath, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure file storage directory exists
	if err := os.MkdirAll(cfg.FileStorage.BasePath, 0755); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(cfg.FileStorage.BasePath)
	if err != nil {
		return nil, err
	}
	cfg.FileStorage.BasePath = absPath

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	if addr := os.Getenv("SERVER_ADDRESS"); addr != "" {
		cfg.ServerAddress = addr
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if role := os.Getenv("SYNC_ROLE"); role != "" {
		cfg.Role = Role(role)
	}
	if basePath := os.Getenv("FILE_STORAGE_PATH"); basePath != "" {
		cfg.FileStorage.BasePath = basePath
	}
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		cfg.Security.APIKey = apiKey
	}

	// Sync client
	if url := os.Getenv("SYNC_CENTRAL_URL"); url != "" {
		cfg.Sync.CentralURL = url
	}
	if name := os.Getenv("SYNC_SITE_NAME"); name != "" {
		cfg.Sync.SiteName = name
	}
	if password := os.Getenv("SYNC_SITE_PASSWORD"); password != "" {
		cfg.Sync.SitePassword = password
	}
	if siteID := os.Getenv("SYNC_SITE_ID"); siteID != "" {
		if id, err := strconv.ParseInt(siteID, 10, 32); err == nil {
			cfg.Sync.SiteID = int32(id)
		}
	}
	if interval := os.Getenv("SYNC_INTERVAL_SECONDS"); interval != "" {
		if seconds, err := strconv.Atoi(interval); err == nil && seconds >= 0 {
			cfg.Sync.IntervalSeconds = seconds
		}
	}
	if retain := os.Getenv("SYNC_RETAIN_BUFFER"); retain != "" {
		cfg.Sync.RetainBuffer = retain == "true" || retain == "1"
	}

	// Maintenance
	if enabled := os.Getenv("MAINTENANCE_ENABLED"); enabled != "" {
		cfg.Maintenance.Enabled = enabled == "true" || enabled == "1"
	}
	if interval := os.Getenv("MAINTENANCE_INTERVAL_MINUTES"); interval != "" {
		if minutes, err := strconv.Atoi(interval); err == nil && minutes > 0 {
			cfg.Maintenance.IntervalMinutes = minutes
		}
	}
}

// Validate checks the settings the configured role depends on
func (c *Config) Validate() error {
	switch c.Role {
	case RoleRemote:
		if c.Sync.CentralURL == "" {
			return fmt.Errorf("sync.centralUrl is required for a remote site")
		}
		if c.Sync.SiteName == "" || c.Sync.SitePassword == "" {
			return fmt.Errorf("sync.siteName and sync.sitePassword are required for a remote site")
		}
		if c.Sync.SiteID == 0 {
			return fmt.Errorf("sync.siteId is required for a remote site")
		}
		if c.Sync.SiteID == c.Sync.CentralSiteID {
			return fmt.Errorf("sync.siteId %d is the central server's site id", c.Sync.SiteID)
		}
	case RoleCentral:
		seen := map[string]bool{}
		for _, site := range c.Central.Sites {
			if site.Name == "" || site.PasswordHash == "" || site.SiteID == 0 {
				return fmt.Errorf("central.sites entries need siteId, name and passwordHash")
			}
			if site.SiteID == c.Central.SiteID {
				return fmt.Errorf("site %s uses the central server's site id %d", site.Name, site.SiteID)
			}
			if seen[site.Name] {
				return fmt.Errorf("site %s is configured twice", site.Name)
			}
			seen[site.Name] = true
		}
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}
