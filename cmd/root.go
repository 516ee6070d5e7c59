package cmd

import (
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/city"
	"github.com/ValentinKolb/oKV/cmd/dbcmd"
	"github.com/ValentinKolb/oKV/cmd/event"
	"github.com/ValentinKolb/oKV/cmd/lock"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "okv",
		Short: "typed object store over transactional key-value engines",
		Long: fmt.Sprintf(`oKV (v%s)

A typed object store written in Go. Objects are encoded with a codec and
stored in collections of a transactional key-value engine (maple, bolt,
sqlite or a RAFT replicated maple).

All flags can be set with environment variables of the form OKV_<flag>
(e.g. OKV_ENGINE=sqlite, OKV_ON_DECODE_ERROR=fail).`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of oKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("oKV v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(event.EventCommands)
	RootCmd.AddCommand(city.CityCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(dbcmd.DBCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
