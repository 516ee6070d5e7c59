package util

import (
	"github.com/ValentinKolb/oKV/lib/common"
	dbUtil "github.com/ValentinKolb/oKV/lib/db/util"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func setDefaults(t *testing.T, values map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("engine", "bolt")
	viper.Set("path", "okv.db")
	viper.Set("codec", "json")
	viper.Set("on-decode-error", "skip")
	viper.Set("log-level", "warn")
	viper.Set("shard-id", 100)
	viper.Set("timeout", 5)
	for k, v := range values {
		viper.Set(k, v)
	}
}

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetStoreConfigLocal(t *testing.T) {
	setDefaults(t, map[string]any{"engine": "SQLite", "path": "data.sqlite"})

	conf, err := GetStoreConfig()
	require.NoError(t, err)
	assert.Equal(t, common.EngineSQLite, conf.Engine)
	assert.Equal(t, "data.sqlite", conf.Path)
	assert.Nil(t, conf.ClusterMembers)
}

func TestGetStoreConfigRaft(t *testing.T) {
	setDefaults(t, map[string]any{
		"engine":          "raft",
		"path":            "data",
		"replica-id":      "node-1",
		"cluster-members": "node-1=localhost:63001, node-2=localhost:63002",
	})

	conf, err := GetStoreConfig()
	require.NoError(t, err)
	assert.Equal(t, dbUtil.NodeID("node-1"), conf.ReplicaID)
	assert.Len(t, conf.ClusterMembers, 2)
	assert.Equal(t, "localhost:63001", conf.ClusterMembers[conf.ReplicaID])
	assert.Equal(t, "localhost:63002", conf.ClusterMembers[dbUtil.NodeID("node-2")])
}

func TestGetStoreConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]any
	}{
		{"unknown engine", map[string]any{"engine": "redis"}},
		{"unknown decode policy", map[string]any{"on-decode-error": "ignore"}},
		{"bad member", map[string]any{"engine": "raft", "replica-id": "node-1", "cluster-members": "node-1"}},
		{"replica not a member", map[string]any{"engine": "raft", "replica-id": "node-3", "cluster-members": "node-1=localhost:63001"}},
		{"missing members", map[string]any{"engine": "raft", "replica-id": "node-1", "cluster-members": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setDefaults(t, tt.values)
			_, err := GetStoreConfig()
			assert.Error(t, err)
		})
	}
}
