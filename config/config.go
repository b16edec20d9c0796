package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Minio     MinioConfig     `yaml:"minio"`
	S3        S3Config        `yaml:"s3"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Roster    RosterConfig    `yaml:"roster"`
	Users     []User          `yaml:"users"`
}

type ServerConfig struct {
	Port           int `yaml:"port"`
	RateLimit      int `yaml:"rate_limit"` // requests per minute per IP
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// BackendConfig points at the storage/backend REST collaborator
type BackendConfig struct {
	APIURL         string `yaml:"api_url"`
	APIToken       string `yaml:"api_token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CallbackSeed   string `yaml:"callback_seed"`
}

// Timeout returns the HTTP client timeout for backend calls
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// Snapshot sources
const (
	SourceAPI   = "api"
	SourceMinio = "minio"
	SourceS3    = "s3"
)

type SnapshotConfig struct {
	Source string `yaml:"source"` // api, minio, s3
}

type MinioConfig struct {
	Endpoint    string `yaml:"endpoint"`
	AccessKey   string `yaml:"access_key"`
	SecretKey   string `yaml:"secret_key"`
	Bucket      string `yaml:"bucket"`
	UseSSL      bool   `yaml:"use_ssl"`
	ExpireDays  int    `yaml:"expire_days"`
	TrashPrefix string `yaml:"trash_prefix"`
}

type S3Config struct {
	Region        string `yaml:"region"`
	Bucket        string `yaml:"bucket"`
	Prefix        string `yaml:"prefix"`
	ExpireMinutes int    `yaml:"expire_minutes"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type DashboardConfig struct {
	LeaderboardSize int `yaml:"leaderboard_size"`
	RecentCount     int `yaml:"recent_count"`
}

// RosterConfig lists who may sign up as an agent
type RosterConfig struct {
	Emails []string `yaml:"emails"`
	Phones []string `yaml:"phones"`
}

type User struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	GivenName  string `yaml:"given_name"`
	FamilyName string `yaml:"family_name"`
	Email      string `yaml:"email"`
	Role       string `yaml:"role"` // agent, admin
}

var GlobalConfig *Config

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 100
	}
	if cfg.Backend.TimeoutSeconds == 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	if cfg.Snapshot.Source == "" {
		cfg.Snapshot.Source = SourceAPI
	}
	if cfg.Minio.ExpireDays == 0 {
		cfg.Minio.ExpireDays = 7
	}
	if cfg.Minio.TrashPrefix == "" {
		cfg.Minio.TrashPrefix = "trash/"
	}
	if cfg.S3.ExpireMinutes == 0 {
		cfg.S3.ExpireMinutes = 60
	}
	if cfg.Auth.TokenExpireHours == 0 {
		cfg.Auth.TokenExpireHours = 24
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Dashboard.LeaderboardSize == 0 {
		cfg.Dashboard.LeaderboardSize = 5
	}
	if cfg.Dashboard.RecentCount == 0 {
		cfg.Dashboard.RecentCount = 3
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
