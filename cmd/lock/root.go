package lock

import (
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/ValentinKolb/oKV/lib/lockmgr"
	"github.com/spf13/cobra"
	"time"
)

var (
	acquireTTL time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform lock operations",
		Long:  "Locks are stored in the Locks collection of the configured engine.",
	}

	// acquireCmd represents the acquire command
	acquireCmd = &cobra.Command{
		Use:   "acquire [name]",
		Short: "Acquire a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  util.RunWithSession(runAcquire),
	}

	// releaseCmd represents the release command
	releaseCmd = &cobra.Command{
		Use:   "release [name] [ownerID]",
		Short: "Release a previously acquired lock",
		Long:  "Release a lock using the name and owner ID. The owner ID is printed by the acquire command.",
		Args:  cobra.ExactArgs(2),
		RunE:  util.RunWithSession(runRelease),
	}

	// inspectCmd represents the inspect command
	inspectCmd = &cobra.Command{
		Use:   "inspect [name]",
		Short: "Show the current holder of a lock",
		Args:  cobra.ExactArgs(1),
		RunE:  util.RunWithSession(runInspect),
	}
)

func init() {
	// Add subcommands to lock command
	LockCommands.AddCommand(acquireCmd, releaseCmd, inspectCmd)

	// Add flags specific to acquire
	acquireCmd.Flags().DurationVar(&acquireTTL, "ttl", 30*time.Second, util.WrapString("How long the lock is held (0 for no expiry)"))
}

// runAcquire handles the acquire lock command
func runAcquire(s *util.Session, _ *cobra.Command, args []string) error {
	acquired, ownerID, err := lockmgr.NewLockManager(s.Conn).AcquireLock(args[0], acquireTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	if !acquired {
		fmt.Printf("acquired=false\n")
		return nil
	}
	fmt.Printf("acquired=true, ownerID=%s\n", ownerID)
	return nil
}

// runRelease handles the release lock command
func runRelease(s *util.Session, _ *cobra.Command, args []string) error {
	released, err := lockmgr.NewLockManager(s.Conn).ReleaseLock(args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	fmt.Printf("released=%v\n", released)
	return nil
}

// runInspect handles the inspect lock command
func runInspect(s *util.Session, _ *cobra.Command, args []string) error {
	lock, ok, err := lockmgr.NewLockManager(s.Conn).Inspect(args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Printf("held=false\n")
		return nil
	}

	expires := "never"
	if !lock.ExpiresAt.IsZero() {
		expires = lock.ExpiresAt.Local().Format(time.RFC3339)
	}
	fmt.Printf("held=true, ownerID=%s, expires=%s\n", lock.Owner, expires)
	return nil
}
