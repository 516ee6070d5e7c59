package common

import (
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreConfigString(t *testing.T) {
	configs := map[string]StoreConfig{
		"store_config_bolt": {
			Engine:        EngineBolt,
			Path:          "/var/lib/okv/okv.db",
			Codec:         "json",
			OnDecodeError: "skip",
			LogLevel:      "info",
		},
		"store_config_maple": {
			Engine:        EngineMaple,
			Codec:         "binary",
			OnDecodeError: "skip",
			LogLevel:      "debug",
		},
		"store_config_raft": {
			Engine:             EngineRaft,
			Path:               "/var/lib/okv/raft",
			Codec:              "gob",
			OnDecodeError:      "fail",
			LogLevel:           "warn",
			ShardID:            100,
			ReplicaID:          1,
			ClusterMembers:     map[uint64]string{2: "localhost:63002", 1: "localhost:63001"},
			RTTMillisecond:     100,
			SnapshotEntries:    1000,
			CompactionOverhead: 50,
			TimeoutSecond:      5,
		},
	}

	g := goldie.New(t)
	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			g.Assert(t, name, []byte(config.String()))
		})
	}
}

func TestStoreConfigValidate(t *testing.T) {
	valid := StoreConfig{Engine: EngineBolt, Path: "okv.db", OnDecodeError: "skip"}
	require.NoError(t, valid.Validate())

	inMemory := StoreConfig{Engine: EngineMaple, OnDecodeError: "fail"}
	require.NoError(t, inMemory.Validate())

	cases := map[string]StoreConfig{
		"unknown engine":   {Engine: "leveldb", Path: "x", OnDecodeError: "skip"},
		"missing path":     {Engine: EngineSQLite, OnDecodeError: "skip"},
		"bad policy":       {Engine: EngineMaple, OnDecodeError: "ignore"},
		"replica missing":  {Engine: EngineRaft, Path: "x", OnDecodeError: "skip", ShardID: 1, ReplicaID: 3, ClusterMembers: map[uint64]string{1: "a"}},
		"shard id missing": {Engine: EngineRaft, Path: "x", OnDecodeError: "skip", ReplicaID: 1, ClusterMembers: map[uint64]string{1: "a"}},
	}
	for name, c := range cases {
		assert.Error(t, c.Validate(), name)
	}
}

func TestDragonboatConfig(t *testing.T) {
	c := StoreConfig{
		Path:           "/tmp/okv",
		ShardID:        7,
		ReplicaID:      2,
		ClusterMembers: map[uint64]string{2: "localhost:63002"},
		RTTMillisecond: 50,
	}

	rc := c.ToDragonboatConfig()
	assert.Equal(t, uint64(7), rc.ShardID)
	assert.Equal(t, uint64(2), rc.ReplicaID)
	assert.Equal(t, uint64(electionRTTFactor), rc.ElectionRTT)

	nh := c.ToNodeHostConfig()
	assert.Equal(t, "localhost:63002", nh.RaftAddress)
	assert.Equal(t, "/tmp/okv", nh.NodeHostDir)
	assert.Equal(t, uint64(50), nh.RTTMillisecond)
}

func TestParseLogLevel(t *testing.T) {
	level, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, logger.WARNING, level)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)
}
