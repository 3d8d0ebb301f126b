// Package config provides configuration management for the presentation tools server
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/ppttools/internal/storage"
)

// EnvPrefix is prepended to every environment override, e.g. PPT_SERVER_PORT
const EnvPrefix = "PPT"

// Settings holds the application configuration
type Settings struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Workers    WorkerConfig     `mapstructure:"workers"`
	Workspaces WorkspaceConfig  `mapstructure:"workspaces"`
	Features   FeatureConfig    `mapstructure:"features"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	UIDir           string `mapstructure:"uiDir"`
	CertFile        string `mapstructure:"certFile"`
	KeyFile         string `mapstructure:"keyFile"`
	ShutdownTimeout int    `mapstructure:"shutdownTimeout"` // seconds
	AllowedOrigins  string `mapstructure:"allowedOrigins"`
	MaxUploadMB     int64  `mapstructure:"maxUploadMB"`
}

// StorageConfig selects the lease backend and carries per-provider settings
type StorageConfig struct {
	Provider string            `mapstructure:"provider"`
	Local    map[string]string `mapstructure:"local"`
	S3       map[string]string `mapstructure:"s3"`
	Google   map[string]string `mapstructure:"google"`
}

// ProcessingConfig controls the simulated merge and convert operations
type ProcessingConfig struct {
	DelayMillis    int    `mapstructure:"delayMillis"`
	MergedFileName string `mapstructure:"mergedFileName"`
	Accept         string `mapstructure:"accept"`
	UnidocKey      string `mapstructure:"unidocKey"`
}

// WorkerConfig contains worker pool configuration
type WorkerConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queueSize"`
}

// WorkspaceConfig controls workspace expiry
type WorkspaceConfig struct {
	TTLMinutes   int `mapstructure:"ttlMinutes"`
	SweepSeconds int `mapstructure:"sweepSeconds"`
}

// FeatureConfig contains feature flags
type FeatureConfig struct {
	EnableAuth      bool `mapstructure:"enableAuth"`
	EnableWebSocket bool `mapstructure:"enableWebSocket"`
	EnableInspector bool `mapstructure:"enableInspector"`
}

// AuthConfig contains authentication configuration
type AuthConfig struct {
	GoogleClientID     string `mapstructure:"googleClientID"`
	GoogleClientSecret string `mapstructure:"googleClientSecret"`
	OAuthRedirectURL   string `mapstructure:"oauthRedirectURL"`
	SessionHours       int    `mapstructure:"sessionHours"`
}

// LogConfig controls the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.uiDir", "./ui")
	v.SetDefault("server.shutdownTimeout", 30)
	v.SetDefault("server.allowedOrigins", "*")
	v.SetDefault("server.maxUploadMB", 100)

	v.SetDefault("storage.provider", storage.TypeMemory)
	v.SetDefault("storage.local.basePath", "./results")
	// declared so PPT_STORAGE_S3_BUCKET and friends are picked up
	for _, key := range []string{"region", "bucket", "prefix", "endpoint", "accessKey", "secretKey"} {
		v.SetDefault("storage.s3."+key, "")
	}
	for _, key := range []string{"bucket", "prefix", "credentialFile"} {
		v.SetDefault("storage.google."+key, "")
	}

	v.SetDefault("processing.delayMillis", 2500)
	v.SetDefault("processing.mergedFileName", "merged_presentation.pptx")
	v.SetDefault("processing.accept", ".pptx,application/vnd.openxmlformats-officedocument.presentationml.presentation")

	v.SetDefault("workers.count", runtime.NumCPU())
	v.SetDefault("workers.queueSize", 100)

	v.SetDefault("workspaces.ttlMinutes", 60)
	v.SetDefault("workspaces.sweepSeconds", 60)

	v.SetDefault("features.enableAuth", false)
	v.SetDefault("features.enableWebSocket", true)
	v.SetDefault("features.enableInspector", true)

	v.SetDefault("auth.oauthRedirectURL", "http://localhost:8080/api/auth/callback")
	v.SetDefault("auth.sessionHours", 24)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads defaults, then configFile (if set or found as ./pptserver.yaml),
// then PPT_* environment variables
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pptserver")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects settings the server cannot start with
func (s *Settings) Validate() error {
	var errs []error

	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	if (s.Server.CertFile == "") != (s.Server.KeyFile == "") {
		errs = append(errs, errors.New("server.certFile and server.keyFile must be set together"))
	}
	if s.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.maxUploadMB must be positive"))
	}

	switch storage.Canonical(s.Storage.Provider) {
	case storage.TypeMemory, storage.TypeLocal, storage.TypeS3, storage.TypeGCS:
	default:
		errs = append(errs, fmt.Errorf("storage.provider %q is not supported", s.Storage.Provider))
	}

	if s.Processing.DelayMillis < 0 {
		errs = append(errs, errors.New("processing.delayMillis must not be negative"))
	}
	if s.Workers.Count <= 0 {
		errs = append(errs, errors.New("workers.count must be positive"))
	}
	if s.Workers.QueueSize <= 0 {
		errs = append(errs, errors.New("workers.queueSize must be positive"))
	}

	if s.Features.EnableAuth && (s.Auth.GoogleClientID == "" || s.Auth.GoogleClientSecret == "") {
		errs = append(errs, errors.New("auth.googleClientID and auth.googleClientSecret are required when auth is enabled"))
	}

	return errors.Join(errs...)
}

// Address returns the address string for the server to listen on
func (s *Settings) Address() string {
	return fmt.Sprintf("%s:%d", s.Server.Host, s.Server.Port)
}

// ProcessingDelay returns the simulated processing latency
func (s *Settings) ProcessingDelay() time.Duration {
	return time.Duration(s.Processing.DelayMillis) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown budget
func (s *Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.Server.ShutdownTimeout) * time.Second
}

// WorkspaceTTL returns how long an unused workspace lives
func (s *Settings) WorkspaceTTL() time.Duration {
	return time.Duration(s.Workspaces.TTLMinutes) * time.Minute
}

// SweepInterval returns how often expired workspaces are collected
func (s *Settings) SweepInterval() time.Duration {
	return time.Duration(s.Workspaces.SweepSeconds) * time.Second
}

// StorageOptions returns the config map of the selected provider
func (s *Settings) StorageOptions() map[string]string {
	var src map[string]string
	switch storage.Canonical(s.Storage.Provider) {
	case storage.TypeLocal:
		src = s.Storage.Local
	case storage.TypeS3:
		src = s.Storage.S3
	case storage.TypeGCS:
		src = s.Storage.Google
	}

	out := make(map[string]string, len(src))
	for k, v := range src {
		if v != "" {
			out[canonicalKey(k)] = v
		}
	}
	return out
}

var storageKeys = []string{"basePath", "region", "bucket", "prefix", "endpoint", "accessKey", "secretKey", "credentialFile"}

// viper lowercases map keys; providers expect camelCase
func canonicalKey(k string) string {
	for _, known := range storageKeys {
		if strings.EqualFold(k, known) {
			return known
		}
	}
	return k
}

// EnsureUIDir creates the static UI directory if it is missing
func (s *Settings) EnsureUIDir() error {
	if s.Server.UIDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.Server.UIDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", s.Server.UIDir, err)
	}
	return nil
}
