package dbcmd

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/ValentinKolb/oKV/lib/common"
	"github.com/spf13/cobra"
	"os"
	"strings"
)

var (
	showMetrics bool

	// DBCommands represents the db command group
	DBCommands = &cobra.Command{
		Use:   "db",
		Short: "Engine level operations",
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Print information about the configured engine",
		Args:  cobra.NoArgs,
		RunE:  util.RunWithSession(runInfo),
	}

	dumpCmd = &cobra.Command{
		Use:   "dump [file]",
		Short: "Write a snapshot of the whole database to a file",
		Long:  util.WrapString("Write a snapshot of the whole database to a file. The dump format is the same for all engines, so a dump can be restored into another engine."),
		Args:  cobra.ExactArgs(1),
		RunE:  util.RunWithSession(runDump),
	}

	restoreCmd = &cobra.Command{
		Use:   "restore [file]",
		Short: "Replace the database content with a dump",
		Args:  cobra.ExactArgs(1),
		RunE:  util.RunWithSession(runRestore),
	}
)

func init() {
	DBCommands.AddCommand(infoCmd, dumpCmd, restoreCmd, perfCmd)

	infoCmd.Flags().BoolVar(&showMetrics, "metrics", false, util.WrapString("Also print the metrics of this process in the Prometheus text format"))
}

func runInfo(s *util.Session, _ *cobra.Command, _ []string) error {
	info, err := s.Conn.GetDBInfo()
	if err != nil {
		return err
	}

	features := make([]string, 0, len(info.SupportedFeatures))
	for _, f := range info.SupportedFeatures {
		features = append(features, f.String())
	}

	fmt.Print(s.Config.String())
	fmt.Println()
	fmt.Printf("DATABASE\n")
	fmt.Printf("  %-22s: %s\n", "Type", info.DbType)
	fmt.Printf("  %-22s: %d\n", "Collections", info.Collections)
	fmt.Printf("  %-22s: %d\n", "Records", info.Records)
	fmt.Printf("  %-22s: %d\n", "Size (bytes)", info.SizeBytes)
	fmt.Printf("  %-22s: %s\n", "Features", strings.Join(features, ", "))

	if info.Metadata != nil {
		meta, err := json.MarshalIndent(info.Metadata, "  ", "  ")
		if err != nil {
			return fmt.Errorf("failed to render metadata: %w", err)
		}
		fmt.Printf("  %-22s: %s\n", "Metadata", meta)
	}

	if showMetrics {
		fmt.Println()
		common.WriteMetrics(os.Stdout)
	}
	return nil
}

func runDump(s *util.Session, _ *cobra.Command, args []string) error {
	file, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := s.DB.Save(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to dump database: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	fmt.Printf("dumped database to %s\n", args[0])
	return nil
}

func runRestore(s *util.Session, _ *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	if err := s.DB.Load(file); err != nil {
		return fmt.Errorf("failed to restore database: %w", err)
	}
	fmt.Printf("restored database from %s\n", args[0])
	return nil
}
