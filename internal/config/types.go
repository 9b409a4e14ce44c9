package config

import "time"

const (
	ModeBackup  = "backup"
	ModeRestore = "restore"
)

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Solr          SolrConfig          `mapstructure:"solr"`
	Backup        BackupConfig        `mapstructure:"backup"`
	Manifest      ManifestConfig      `mapstructure:"manifest"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
	Mode             string        `mapstructure:"mode"`              // backup or restore
	FailFast         bool          `mapstructure:"fail_fast"`
}

type SolrConfig struct {
	Host            string        `mapstructure:"host"` // host, host:port or full URL
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RequestRetries  int           `mapstructure:"request_retries"`
	TLSInsecureSkip bool          `mapstructure:"tls_insecure_skip"`
}

type BackupConfig struct {
	Name         string        `mapstructure:"name"`
	Path         string        `mapstructure:"path"`       // shared storage location as seen by Solr nodes
	Repository   string        `mapstructure:"repository"` // optional Solr backup repository
	Collections  []string      `mapstructure:"collections"`
	Blacklist    []string      `mapstructure:"blacklist"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
}

type ManifestConfig struct {
	Dir     string  `mapstructure:"dir"`
	Backend string  `mapstructure:"backend"` // local, s3
	S3      S3Store `mapstructure:"s3"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
