package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rowjay/solr-backups/internal/cryptoutil"
)

const (
	envPrefix = "SOLRBU"
	appName   = "solr-backups"
)

// containerEnv maps config keys to the plain variable names the container
// entrypoint exports.
var containerEnv = map[string]string{
	"solr.host":    "SOLR_HOST",
	"backup.name":  "BACKUP_NAME",
	"backup.path":  "BACKUP_PATH",
	"manifest.dir": "MANIFEST_DIR",
}

// Load reads configuration from a file (optionally encrypted), env vars, and defaults.
func Load(path string) (*Config, error) {
	vp := viper.New()
	vp.SetEnvPrefix(envPrefix)
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)
	if err := bindContainerEnv(vp); err != nil {
		return nil, err
	}

	resolved, err := resolveConfigPath(path)
	if err != nil {
		return nil, err
	}

	if resolved != "" {
		data, readErr := os.ReadFile(resolved)
		if readErr != nil {
			return nil, fmt.Errorf("read config: %w", readErr)
		}
		if isEncryptedPath(resolved) {
			vp.SetConfigType(configTypeFromPath(resolved))
			key := os.Getenv(envPrefix + "_CONFIG_KEY")
			if key == "" {
				key = vp.GetString("global.config_passphrase")
			}
			if key == "" {
				return nil, fmt.Errorf("config file is encrypted but %s_CONFIG_KEY is not set", envPrefix)
			}
			plain, decErr := decryptConfig(data, key)
			if decErr != nil {
				return nil, fmt.Errorf("decrypt config: %w", decErr)
			}
			if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		} else {
			vp.SetConfigFile(resolved)
			if err := vp.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := vp.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	expandEnv(&cfg)
	applyPostLoadDefaults(&cfg)
	return &cfg, nil
}

// Validate checks that the fields required for a backup or restore run are
// set.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateReadOnly is Validate for commands that only read cluster state or
// manifests; they never pass backup.path to Solr.
func (c *Config) ValidateReadOnly() error {
	return c.validate(false)
}

func (c *Config) validate(needPath bool) error {
	var problems []string
	switch c.Global.Mode {
	case ModeBackup, ModeRestore:
	default:
		problems = append(problems, fmt.Sprintf("unsupported mode %q (backup, restore)", c.Global.Mode))
	}
	if c.Solr.Host == "" {
		problems = append(problems, "solr host is required (--host or SOLR_HOST)")
	}
	if c.Backup.Name == "" {
		problems = append(problems, "backup name is required (--name or BACKUP_NAME)")
	}
	if needPath && c.Backup.Path == "" {
		problems = append(problems, "backup path is required (--path or BACKUP_PATH)")
	}
	if strings.ContainsAny(c.Backup.Name, `/\`) {
		problems = append(problems, "backup name must not contain path separators")
	}
	if c.Backup.RetryCount < 1 {
		problems = append(problems, "backup.retry_count must be at least 1")
	}
	if c.Backup.PollInterval <= 0 {
		problems = append(problems, "backup.poll_interval must be positive")
	}
	switch c.Manifest.Backend {
	case "local", "":
	case "s3":
		if c.Manifest.S3.Endpoint == "" || c.Manifest.S3.Bucket == "" {
			problems = append(problems, "s3 endpoint and bucket are required for the s3 manifest backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported manifest backend: %s", c.Manifest.Backend))
	}
	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}

func bindContainerEnv(vp *viper.Viper) error {
	for key, name := range containerEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := vp.BindEnv(key, prefixed, name); err != nil {
			return fmt.Errorf("bind env %s: %w", name, err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		return envPath, nil
	}

	candidates := []string{
		appName + ".yaml",
		appName + ".yml",
		appName + ".toml",
		appName + ".json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	configDir, err := os.UserConfigDir()
	if err == nil {
		base := filepath.Join(configDir, appName)
		for _, c := range candidates {
			p := filepath.Join(base, c)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
		for _, c := range candidates[:3] {
			p := filepath.Join(base, c+".enc")
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}

	return "", nil
}

func isEncryptedPath(path string) bool {
	return strings.HasSuffix(path, ".enc") || strings.HasSuffix(path, ".encrypted")
}

func configTypeFromPath(path string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, ".enc"), ".encrypted")
	switch {
	case strings.HasSuffix(trimmed, ".toml"):
		return "toml"
	case strings.HasSuffix(trimmed, ".json"):
		return "json"
	default:
		return "yaml"
	}
}

func setDefaults(vp *viper.Viper) {
	vp.SetDefault("global.log_level", "info")
	vp.SetDefault("global.log_format", "json")
	vp.SetDefault("global.lock_file", "")
	vp.SetDefault("global.operation_timeout", "12h")
	vp.SetDefault("global.mode", ModeBackup)
	vp.SetDefault("global.fail_fast", false)
	vp.SetDefault("solr.host", "")
	vp.SetDefault("solr.username", "")
	vp.SetDefault("solr.password", "")
	vp.SetDefault("solr.request_timeout", "30s")
	vp.SetDefault("solr.request_retries", 3)
	vp.SetDefault("solr.tls_insecure_skip", false)
	vp.SetDefault("backup.name", "")
	vp.SetDefault("backup.path", "")
	vp.SetDefault("backup.repository", "")
	vp.SetDefault("backup.collections", []string{})
	vp.SetDefault("backup.blacklist", []string{})
	vp.SetDefault("backup.retry_count", 5)
	vp.SetDefault("backup.retry_backoff", "1s")
	vp.SetDefault("backup.max_backoff", "1m")
	vp.SetDefault("backup.poll_interval", "5s")
	vp.SetDefault("backup.poll_timeout", "2h")
	vp.SetDefault("manifest.dir", "./")
	vp.SetDefault("manifest.backend", "local")
}

func applyPostLoadDefaults(cfg *Config) {
	if cfg.Backup.RetryBackoff == 0 {
		cfg.Backup.RetryBackoff = time.Second
	}
	if cfg.Backup.PollInterval == 0 {
		cfg.Backup.PollInterval = 5 * time.Second
	}
	if cfg.Solr.RequestTimeout == 0 {
		cfg.Solr.RequestTimeout = 30 * time.Second
	}
	if cfg.Global.OperationTimeout == 0 {
		cfg.Global.OperationTimeout = 12 * time.Hour
	}
	if cfg.Manifest.Dir == "" {
		cfg.Manifest.Dir = "./"
	}
	cfg.Global.Mode = strings.ToLower(cfg.Global.Mode)
	cfg.Manifest.Backend = strings.ToLower(cfg.Manifest.Backend)
}

func expandEnv(cfg *Config) {
	cfg.Solr.Username = os.ExpandEnv(cfg.Solr.Username)
	cfg.Solr.Password = os.ExpandEnv(cfg.Solr.Password)
	cfg.Manifest.S3.AccessKey = os.ExpandEnv(cfg.Manifest.S3.AccessKey)
	cfg.Manifest.S3.SecretKey = os.ExpandEnv(cfg.Manifest.S3.SecretKey)
	cfg.Manifest.S3.SessionToken = os.ExpandEnv(cfg.Manifest.S3.SessionToken)
	cfg.Notifications = expandNotificationEnv(cfg.Notifications)
}

func expandNotificationEnv(cfg NotificationsConfig) NotificationsConfig {
	for i := range cfg.Webhooks {
		cfg.Webhooks[i].URL = os.ExpandEnv(cfg.Webhooks[i].URL)
	}
	for i := range cfg.Mattermost {
		cfg.Mattermost[i].URL = os.ExpandEnv(cfg.Mattermost[i].URL)
	}
	for i := range cfg.Matrix {
		cfg.Matrix[i].ServerURL = os.ExpandEnv(cfg.Matrix[i].ServerURL)
		cfg.Matrix[i].AccessToken = os.ExpandEnv(cfg.Matrix[i].AccessToken)
		cfg.Matrix[i].RoomID = os.ExpandEnv(cfg.Matrix[i].RoomID)
	}
	return cfg
}

func decryptConfig(ciphertext []byte, key string) ([]byte, error) {
	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return cryptoutil.DecryptConfig(ciphertext, parsed)
}
