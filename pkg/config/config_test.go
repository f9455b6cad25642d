package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nexusd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
listenAddr: "127.0.0.1:9000"
clusterAddr: "127.0.0.1:9001"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 4096, cfg.Cache.Capacity)
	assert.Equal(t, 30*time.Second, cfg.Cluster.ReadLockTTL)
	assert.NotEmpty(t, cfg.Node)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
node: "db1"
dataDir: "/var/lib/nexusdb"
listenAddr: "0.0.0.0:8599"
clusterAddr: "0.0.0.0:8600"
cache:
  capacity: 8192
cluster:
  servers: ["db1:8600", "db2:8600"]
  readLockTTL: 45s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db1", cfg.Node)
	assert.Equal(t, "/var/lib/nexusdb", cfg.DataDir)
	assert.Equal(t, 8192, cfg.Cache.Capacity)
	assert.Equal(t, []string{"db1:8600", "db2:8600"}, cfg.Cluster.Servers)
	assert.Equal(t, 45*time.Second, cfg.Cluster.ReadLockTTL)
}

func TestValidateRejectsSameListenAndClusterAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = "127.0.0.1:9000"
	cfg.ClusterAddr = "127.0.0.1:9000"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestLogConfigMapsLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	assert.Equal(t, "debug", string(cfg.LogConfig().Level))
}
