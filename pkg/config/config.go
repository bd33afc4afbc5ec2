package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting the ingester reads. Values come from
// config.json and secret.json (merged, secret wins) with environment
// overrides of the form IRONSWALLOW_DATABASE_STRING.
type Config struct {
	DatabaseString string

	// STOMP
	Hostname   string
	Username   string
	Password   string
	Subscribe  string
	Identifier string
	ClientID   string
	Heartbeat  time.Duration

	// FTP
	FTPHostname string
	FTPUsername string
	FTPPassword string

	// Object store
	S3Access string
	S3Secret string
	S3Bucket string
	S3Region string

	// Behaviour flags
	NoFromFTP     bool
	NoListenSTOMP bool
	SnapshotOnly  bool

	DatasetsDir string
	ListenAddr  string
	MetricsAddr string
	LogLevel    string
	LogJSON     bool
}

// Load reads the given config files (missing files are skipped) and
// returns the merged configuration.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")

	v.SetDefault("heartbeat", "35s")
	v.SetDefault("s3-bucket", "darwin.xmltimetable")
	v.SetDefault("s3-region", "eu-west-1")
	v.SetDefault("datasets", "datasets")
	v.SetDefault("listen", ":36075")
	v.SetDefault("metrics", ":36076")
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix("ironswallow")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if len(paths) == 0 {
		paths = []string{"config.json", "secret.json"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	heartbeat, err := time.ParseDuration(v.GetString("heartbeat"))
	if err != nil {
		return nil, fmt.Errorf("invalid heartbeat: %w", err)
	}

	cfg := &Config{
		DatabaseString: v.GetString("database-string"),
		Hostname:       v.GetString("hostname"),
		Username:       v.GetString("username"),
		Password:       v.GetString("password"),
		Subscribe:      v.GetString("subscribe"),
		Identifier:     v.GetString("identifier"),
		ClientID:       v.GetString("client-id"),
		Heartbeat:      heartbeat,
		FTPHostname:    v.GetString("ftp-hostname"),
		FTPUsername:    v.GetString("ftp-username"),
		FTPPassword:    v.GetString("ftp-password"),
		S3Access:       v.GetString("s3-access"),
		S3Secret:       v.GetString("s3-secret"),
		S3Bucket:       v.GetString("s3-bucket"),
		S3Region:       v.GetString("s3-region"),
		NoFromFTP:      v.GetBool("no_from_ftp"),
		NoListenSTOMP:  v.GetBool("no_listen_stomp"),
		SnapshotOnly:   v.GetBool("ftp_snapshot_base_snapshot_only"),
		DatasetsDir:    v.GetString("datasets"),
		ListenAddr:     v.GetString("listen"),
		MetricsAddr:    v.GetString("metrics"),
		LogLevel:       v.GetString("log-level"),
		LogJSON:        v.GetBool("log-json"),
	}

	if cfg.ClientID == "" {
		cfg.ClientID = cfg.Username
	}
	return cfg, nil
}

// Validate checks the settings a live ingest run cannot do without.
func (c *Config) Validate() error {
	if c.DatabaseString == "" {
		return fmt.Errorf("database-string is required")
	}
	if !c.NoListenSTOMP {
		if c.Hostname == "" {
			return fmt.Errorf("hostname is required unless no_listen_stomp is set")
		}
		if c.Subscribe == "" {
			return fmt.Errorf("subscribe destination is required unless no_listen_stomp is set")
		}
	}
	if !c.NoFromFTP && c.FTPHostname == "" {
		return fmt.Errorf("ftp-hostname is required unless no_from_ftp is set")
	}
	return nil
}
