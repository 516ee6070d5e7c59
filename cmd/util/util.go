package util

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/oKV/lib/common"
	"github.com/ValentinKolb/oKV/lib/db"
	"github.com/ValentinKolb/oKV/lib/db/engines/bolt"
	"github.com/ValentinKolb/oKV/lib/db/engines/maple"
	"github.com/ValentinKolb/oKV/lib/db/engines/sqlite"
	dbUtil "github.com/ValentinKolb/oKV/lib/db/util"
	"github.com/ValentinKolb/oKV/lib/repo"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/ValentinKolb/oKV/lib/store/dstore"
	"github.com/ValentinKolb/oKV/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"time"
)

var log = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags and configuration
// --------------------------------------------------------------------------

// SetupStoreFlags adds the engine and typed layer flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "engine"
	cmd.PersistentFlags().String(key, common.EngineBolt, WrapString("The engine to open (maple, bolt, sqlite, raft). maple keeps everything in memory and is lost on exit"))

	key = "path"
	cmd.PersistentFlags().String(key, "okv.db", WrapString("The database file for bolt and sqlite, the data directory for raft"))

	key = "shards"
	cmd.PersistentFlags().Int(key, 0, WrapString("Number of shards of the maple engine (0 = number of CPUs)"))

	key = "codec"
	cmd.PersistentFlags().String(key, "json", WrapString("The codec objects are stored with (json, gob, binary)"))

	key = "on-decode-error"
	cmd.PersistentFlags().String(key, "skip", WrapString("What to do with records that cannot be decoded (skip, fail)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "shard-id"
	cmd.PersistentFlags().Uint64(key, 100, WrapString("(raft) ID of the RAFT shard holding the data"))

	key = "replica-id"
	cmd.PersistentFlags().String(key, "node-1", WrapString("(raft) ReplicaID is the unique identifier of this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	cmd.PersistentFlags().String(key, "node-1=localhost:63001", WrapString("(raft) Comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "rtt-millisecond"
	cmd.PersistentFlags().Uint64(key, 100, WrapString("(raft) Average Round Trip Time in milliseconds between two NodeHost instances"))

	key = "snapshot-entries"
	cmd.PersistentFlags().Uint64(key, 10, WrapString("(raft) Number of applied log entries between two automatic snapshots (0 disables them)"))

	key = "compaction-overhead"
	cmd.PersistentFlags().Uint64(key, 5, WrapString("(raft) Number of log entries kept after a snapshot"))

	key = "timeout"
	cmd.PersistentFlags().Int64(key, 5, WrapString("(raft) Timeout of a single RAFT request in seconds"))
}

// InitConfig loads .env files and reads environment variables with the OKV_ prefix
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("okv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetStoreConfig reads the store configuration from viper and validates it
func GetStoreConfig() (*common.StoreConfig, error) {
	conf := &common.StoreConfig{
		Engine:             strings.ToLower(viper.GetString("engine")),
		Path:               viper.GetString("path"),
		Shards:             viper.GetInt("shards"),
		Codec:              viper.GetString("codec"),
		OnDecodeError:      viper.GetString("on-decode-error"),
		LogLevel:           viper.GetString("log-level"),
		ShardID:            viper.GetUint64("shard-id"),
		RTTMillisecond:     viper.GetUint64("rtt-millisecond"),
		SnapshotEntries:    viper.GetUint64("snapshot-entries"),
		CompactionOverhead: viper.GetUint64("compaction-overhead"),
		TimeoutSecond:      viper.GetInt64("timeout"),
	}

	if conf.Engine == common.EngineRaft {
		// replica and member names are hashed to numeric ids
		if id := viper.GetString("replica-id"); id != "" {
			conf.ReplicaID = dbUtil.NodeID(id)
		} else {
			return nil, fmt.Errorf("replica-id is required for the raft engine")
		}

		members := viper.GetString("cluster-members")
		if members == "" {
			return nil, fmt.Errorf("cluster-members is required for the raft engine")
		}
		conf.ClusterMembers = make(map[uint64]string)
		for _, member := range strings.Split(members, ",") {
			parts := strings.Split(member, "=")
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
			}
			conf.ClusterMembers[dbUtil.NodeID(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// --------------------------------------------------------------------------
// Session (engine + connection)
// --------------------------------------------------------------------------

// Session bundles everything a command needs to talk to the configured engine
type Session struct {
	Config *common.StoreConfig
	DB     db.KVDB
	Conn   store.IConnection

	nodeHost *dragonboat.NodeHost
}

// DecodePolicy returns the configured decode failure policy
func (s *Session) DecodePolicy() repo.DecodePolicy {
	policy, err := repo.ParseDecodePolicy(s.Config.OnDecodeError)
	if err != nil {
		// Validate rejected everything else already
		return repo.DecodeSkip
	}
	return policy
}

// Close closes the connection (waiting for queued writes), the engine and the raft node
func (s *Session) Close() error {
	err := s.Conn.Close()
	if dbErr := s.DB.Close(); err == nil {
		err = dbErr
	}
	if s.nodeHost != nil {
		s.nodeHost.Close()
	}
	return err
}

// OpenSession reads the configuration, initializes the loggers and opens the engine
func OpenSession() (*Session, error) {
	conf, err := GetStoreConfig()
	if err != nil {
		return nil, err
	}
	if err := common.InitLoggers(*conf); err != nil {
		return nil, err
	}

	s := &Session{Config: conf}
	switch conf.Engine {
	case common.EngineMaple:
		s.DB = maple.NewMapleDB(&maple.DBOptions{NumShards: conf.Shards})
	case common.EngineBolt:
		s.DB, err = bolt.NewBoltDB(bolt.DefaultOptions(conf.Path))
	case common.EngineSQLite:
		s.DB, err = sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: conf.Path})
	case common.EngineRaft:
		s.DB, s.nodeHost, err = startRaft(conf)
	default:
		err = fmt.Errorf("invalid engine %s", conf.Engine)
	}
	if err != nil {
		return nil, err
	}

	s.Conn = lstore.NewLocalConnection(s.DB, lstore.WithName(conf.Engine))
	log.Infof("opened %s engine", conf.Engine)
	return s, nil
}

// startRaft starts a NodeHost with one replica of the configured shard and waits for a leader
func startRaft(conf *common.StoreConfig) (db.KVDB, *dragonboat.NodeHost, error) {
	nodeHost, err := dragonboat.NewNodeHost(conf.ToNodeHostConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create node host: %w", err)
	}

	dbFactory := func() db.KVDB { return maple.NewMapleDB(&maple.DBOptions{NumShards: conf.Shards}) }
	if err := nodeHost.StartConcurrentReplica(conf.ClusterMembers, false, dstore.CreateStateMachineFactory(dbFactory), conf.ToDragonboatConfig()); err != nil {
		nodeHost.Close()
		return nil, nil, fmt.Errorf("failed to start shard %d: %w", conf.ShardID, err)
	}

	timeout := time.Duration(conf.TimeoutSecond) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout*4)
	defer cancel()
	if err := waitForLeader(ctx, nodeHost, conf.ShardID); err != nil {
		nodeHost.Close()
		return nil, nil, err
	}

	return dstore.NewDistributedDB(nodeHost, conf.ShardID, timeout), nodeHost, nil
}

func waitForLeader(ctx context.Context, nh *dragonboat.NodeHost, shardID uint64) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if leader, _, ok, err := nh.GetLeaderID(shardID); err == nil && ok {
			log.Infof("shard %d has leader %d", shardID, leader)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no leader elected for shard %d: %w", shardID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// RunWithSession wraps a command body so that it runs with an open session.
// The session is closed after the body returned, which waits for all queued async writes.
func RunWithSession(run func(s *Session, cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := BindCommandFlags(cmd); err != nil {
			return err
		}
		s, err := OpenSession()
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := s.Close(); err == nil {
				err = closeErr
			}
		}()
		return run(s, cmd, args)
	}
}
