package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/config"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Store configuration struct
// --------------------------------------------------------------------------

// Engine names accepted by StoreConfig.Engine
const (
	EngineMaple  = "maple"
	EngineBolt   = "bolt"
	EngineSQLite = "sqlite"
	EngineRaft   = "raft"
)

// Engines lists every supported engine name
var Engines = []string{EngineMaple, EngineBolt, EngineSQLite, EngineRaft}

// StoreConfig holds the configuration of the CLI and the engine it opens
type StoreConfig struct {
	// Engine selection
	Engine string // maple, bolt, sqlite or raft
	Path   string // database file (bolt, sqlite) or data directory (raft)
	Shards int    // number of maple shards (0 = number of CPUs)

	// Typed layer
	Codec         string // json, gob or binary
	OnDecodeError string // skip or fail

	// Logging configuration
	LogLevel string

	// Dragonboat parameters (raft engine only)
	ShardID            uint64
	ReplicaID          uint64
	ClusterMembers     map[uint64]string
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	TimeoutSecond      int64
}

// Validate checks the enumerated settings
func (c *StoreConfig) Validate() error {
	if !contains(Engines, c.Engine) {
		return fmt.Errorf("invalid engine %q, must be one of %s", c.Engine, strings.Join(Engines, ", "))
	}
	if c.Engine != EngineMaple && c.Path == "" {
		return fmt.Errorf("engine %s requires a path", c.Engine)
	}
	if c.OnDecodeError != "skip" && c.OnDecodeError != "fail" {
		return fmt.Errorf("invalid decode error policy %q, must be skip or fail", c.OnDecodeError)
	}
	if c.Engine == EngineRaft {
		if _, ok := c.ClusterMembers[c.ReplicaID]; !ok {
			return fmt.Errorf("replica %d is not a cluster member", c.ReplicaID)
		}
		if c.ShardID == 0 {
			return fmt.Errorf("shard id must be greater than 0")
		}
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *StoreConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Engine")
	addField("Engine", c.Engine)
	if c.Engine != EngineMaple {
		addField("Path", c.Path)
	} else {
		shards := "auto"
		if c.Shards > 0 {
			shards = strconv.Itoa(c.Shards)
		}
		addField("Shards", shards)
	}

	addSection("Typed Layer")
	addField("Codec", c.Codec)
	addField("On Decode Error", c.OnDecodeError)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	if c.Engine == EngineRaft {
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Shard ID", strconv.FormatUint(c.ShardID, 10))

		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		addSection("Cluster")
		sb.WriteString("  Initial Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// helper functions to interface with Dragonboat (raft engine)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the StoreConfig to a Dragonboat shard config
func (c *StoreConfig) ToDragonboatConfig() config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            c.ShardID,
		ElectionRTT:        electionRTTFactor,
		HeartbeatRTT:       heartbeatRTTFactor,
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *StoreConfig) ToNodeHostConfig() config.NodeHostConfig {
	dataDir := filepath.Clean(c.Path)
	return config.NodeHostConfig{
		WALDir:         dataDir,
		NodeHostDir:    dataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}
