package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the settings file.
var ErrLoadConfig = errors.New("config load failed")

// ErrValidateConfig indicates that the loaded settings are incomplete.
var ErrValidateConfig = errors.New("configuration validation failed")

// Config represents the top-level settings file.
type Config struct {
	Include   []string        `mapstructure:"include"   yaml:"include,omitempty"`
	Server    ServerConfig    `mapstructure:"server"    yaml:"server"`
	Remote    RemoteConfig    `mapstructure:"remote"    yaml:"remote"`
	Backup    BackupConfig    `mapstructure:"backup"    yaml:"backup"`
	Restore   RestoreConfig   `mapstructure:"restore"   yaml:"restore"`
	Retention RetentionConfig `mapstructure:"retention" yaml:"retention"`
	Notify    NotifyConfig    `mapstructure:"notify"    yaml:"notify"`
	Vault     VaultConfig     `mapstructure:"vault"     yaml:"vault"`
}

// ServerConfig identifies the local service instance and its directories.
type ServerConfig struct {
	Name           string `mapstructure:"name"             yaml:"name"`
	DataDir        string `mapstructure:"data_dir"         yaml:"data_dir"`
	ConfigDir      string `mapstructure:"config_dir"       yaml:"config_dir"`
	BackupsSubdir  string `mapstructure:"backups_subdir"   yaml:"backups_subdir"`
	ComposeFile    string `mapstructure:"compose_file"     yaml:"compose_file"`
	Container      string `mapstructure:"container"        yaml:"container"`
	HealthURL      string `mapstructure:"health_url"       yaml:"health_url"`
	StopRebootFile string `mapstructure:"stop_reboot_file" yaml:"stop_reboot_file"`
}

// RemoteConfig describes the storage host holding the shipped archives.
type RemoteConfig struct {
	Host       string `mapstructure:"host"        yaml:"host"`
	User       string `mapstructure:"user"        yaml:"user"`
	ArchiveDir string `mapstructure:"archive_dir" yaml:"archive_dir"`
	ConfigDir  string `mapstructure:"config_dir"  yaml:"config_dir"`
	// HostKind selects the directory-listing format: "linux" for GNU
	// ls --full-time output, "nas" for abbreviated month-name listings.
	HostKind string `mapstructure:"host_kind" yaml:"host_kind"`
}

// BackupConfig contains archive naming and space-check options.
type BackupConfig struct {
	ArchiveSuffix string `mapstructure:"archive_suffix" yaml:"archive_suffix"`
	// SpaceSafetyFactor multiplies the archive size to estimate the
	// worst-case space needed during extraction.
	SpaceSafetyFactor float64 `mapstructure:"space_safety_factor" yaml:"space_safety_factor"`
	Compress          bool    `mapstructure:"compress"            yaml:"compress"`
	TimestampFormat   string  `mapstructure:"timestamp_format"    yaml:"timestamp_format"`
	Owner             string  `mapstructure:"owner"               yaml:"owner"`
}

// RestoreConfig controls the clone flow.
type RestoreConfig struct {
	ReadinessInterval time.Duration `mapstructure:"readiness_interval" yaml:"readiness_interval"`
	// ReadinessTimeout bounds each readiness wait. Zero preserves the
	// unbounded wait of earlier revisions of this tool.
	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
	// RestartOnTransferFailure restarts the original instance when the
	// fetch fails, instead of leaving it stopped.
	RestartOnTransferFailure bool   `mapstructure:"restart_on_transfer_failure" yaml:"restart_on_transfer_failure"`
	LogDir                   string `mapstructure:"log_dir"                     yaml:"log_dir"`
}

// RetentionConfig specifies how long fetched archives are kept locally.
type RetentionConfig struct {
	MaxAge time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// NotifyConfig configures operator reporting.
type NotifyConfig struct {
	Recipient       string `mapstructure:"recipient"        yaml:"recipient"`
	NotifierPath    string `mapstructure:"notifier_path"    yaml:"notifier_path"`
	MonitorURL      string `mapstructure:"monitor_url"      yaml:"monitor_url"`
	MonitorDuration string `mapstructure:"monitor_duration" yaml:"monitor_duration"`
}

// VaultConfig holds connection settings for HashiCorp Vault.
type VaultConfig struct {
	Address     string `mapstructure:"address"      yaml:"address"`
	ApproleName string `mapstructure:"approle_name" yaml:"approle_name,omitempty"`
	RoleID      string `mapstructure:"role_id"      yaml:"role_id,omitempty"`
	// KVPath is the KV location of the monitoring token and notifier
	// SMTP account.
	KVPath string `mapstructure:"kv_path" yaml:"kv_path,omitempty"`
}

// Load reads the settings from the given YAML file using Viper, merges
// any included files, and unmarshals into the Config struct.
func (c *Config) Load(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%w: read base config %s: %v", ErrLoadConfig, path, err)
	}

	// Merge include files (if any)
	for _, inc := range v.GetStringSlice("include") {
		data, err := os.ReadFile(inc)
		if err != nil {
			return fmt.Errorf("%w: read include %s: %v", ErrLoadConfig, inc, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return fmt.Errorf("%w: merge include %s: %v", ErrLoadConfig, inc, err)
		}
	}

	if err := v.UnmarshalExact(c); err != nil {
		return fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}

	c.applyDefaults()
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.BackupsSubdir == "" {
		c.Server.BackupsSubdir = "backups"
	}
	if c.Server.HealthURL == "" {
		c.Server.HealthURL = "https://localhost/-/readiness"
	}
	if c.Backup.ArchiveSuffix == "" {
		c.Backup.ArchiveSuffix = "_gitlab_backup.tar"
	}
	if c.Backup.SpaceSafetyFactor == 0 {
		c.Backup.SpaceSafetyFactor = 1.1
	}
	if c.Backup.TimestampFormat == "" {
		c.Backup.TimestampFormat = "2006-01-02"
	}
	if c.Backup.Owner == "" {
		c.Backup.Owner = "git:git"
	}
	if c.Remote.HostKind == "" {
		c.Remote.HostKind = "linux"
	}
	if c.Restore.ReadinessInterval == 0 {
		c.Restore.ReadinessInterval = 15 * time.Second
	}
	if c.Restore.LogDir == "" {
		c.Restore.LogDir = "/var/log/drclone"
	}
}

// Validate reports missing required keys.
func (c *Config) Validate() error {
	required := map[string]string{
		"server.name":         c.Server.Name,
		"server.data_dir":     c.Server.DataDir,
		"server.config_dir":   c.Server.ConfigDir,
		"server.compose_file": c.Server.ComposeFile,
		"server.container":    c.Server.Container,
		"remote.host":         c.Remote.Host,
		"remote.user":         c.Remote.User,
		"remote.archive_dir":  c.Remote.ArchiveDir,
		"notify.recipient":    c.Notify.Recipient,
	}
	for key, val := range required {
		if val == "" {
			return fmt.Errorf("%w: missing %s", ErrValidateConfig, key)
		}
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("%w: retention.max_age must be positive", ErrValidateConfig)
	}
	return nil
}
