package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 35*time.Second, cfg.Heartbeat)
	assert.Equal(t, "darwin.xmltimetable", cfg.S3Bucket)
	assert.Equal(t, "eu-west-1", cfg.S3Region)
	assert.Equal(t, "datasets", cfg.DatasetsDir)
	assert.Equal(t, ":36075", cfg.ListenAddr)
	assert.Equal(t, ":36076", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.NoFromFTP)
}

func TestLoadMergesSecretOverConfig(t *testing.T) {
	base := writeConfig(t, "config.json", `{
		"database-string": "postgres://app@db/darwin",
		"hostname": "datafeeds.example:61613",
		"username": "public",
		"password": "placeholder",
		"subscribe": "/topic/darwin.pushport-v16"
	}`)
	secret := writeConfig(t, "secret.json", `{
		"password": "real-password",
		"s3-access": "AKIAEXAMPLE"
	}`)

	cfg, err := Load(base, secret)
	require.NoError(t, err)

	assert.Equal(t, "postgres://app@db/darwin", cfg.DatabaseString)
	assert.Equal(t, "real-password", cfg.Password, "later files win")
	assert.Equal(t, "AKIAEXAMPLE", cfg.S3Access)
	assert.Equal(t, "/topic/darwin.pushport-v16", cfg.Subscribe)
}

func TestLoadClientIDFallsBackToUsername(t *testing.T) {
	path := writeConfig(t, "config.json", `{"username": "public"}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "public", cfg.ClientID)

	path = writeConfig(t, "config.json", `{"username": "public", "client-id": "swallow-1"}`)
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "swallow-1", cfg.ClientID)
}

func TestLoadRejectsBadHeartbeat(t *testing.T) {
	path := writeConfig(t, "config.json", `{"heartbeat": "often"}`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"database-string"`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	full := Config{
		DatabaseString: "postgres://app@db/darwin",
		Hostname:       "datafeeds.example:61613",
		Subscribe:      "/topic/darwin.pushport-v16",
		FTPHostname:    "snapshots.example:21",
	}
	assert.NoError(t, full.Validate())

	missing := full
	missing.DatabaseString = ""
	assert.Error(t, missing.Validate())

	noStomp := full
	noStomp.Hostname = ""
	assert.Error(t, noStomp.Validate())
	noStomp.NoListenSTOMP = true
	assert.NoError(t, noStomp.Validate())

	noFTP := full
	noFTP.FTPHostname = ""
	assert.Error(t, noFTP.Validate())
	noFTP.NoFromFTP = true
	assert.NoError(t, noFTP.Validate())
}
