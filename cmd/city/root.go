package city

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/ValentinKolb/oKV/examples/cities"
	"github.com/ValentinKolb/oKV/lib/repo"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/spf13/cobra"
	"os"
	"path/filepath"
	"sort"
)

var (
	stateFilter   string
	minPopulation int

	// CityCommands represents the city command group
	CityCommands = &cobra.Command{
		Use:   "city",
		Short: "Work with US states and their cities",
	}

	importCmd = &cobra.Command{
		Use:   "import [file.yaml]",
		Short: "Import the states of a data file that are not stored yet",
		Long: util.WrapString(`Reads all states of the YAML file and imports only the states missing in the database.
Every state is written asynchronously, followed by its cities.`),
		Args: cobra.ExactArgs(1),
		RunE: util.RunWithSession(runImport),
	}

	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List cities",
		Args:  cobra.NoArgs,
		RunE:  util.RunWithSession(runList),
	}

	getCmd = &cobra.Command{
		Use:   "get [state] [city]",
		Short: "Print a single city",
		Args:  cobra.ExactArgs(2),
		RunE:  util.RunWithSession(runGet),
	}
)

func init() {
	CityCommands.AddCommand(importCmd, lsCmd, getCmd)

	lsCmd.Flags().StringVar(&stateFilter, "state", "", util.WrapString("Only list cities of this state"))
	lsCmd.Flags().IntVar(&minPopulation, "min-population", 0, util.WrapString("Only list cities with more inhabitants"))
}

// repositories creates the state and city repositories of the session
func repositories(s *util.Session) (*repo.Repository[cities.State], *repo.Repository[cities.City], error) {
	stateSchema, err := cities.StateSchema(s.Config.Codec)
	if err != nil {
		return nil, nil, err
	}
	citySchema, err := cities.CitySchema(s.Config.Codec)
	if err != nil {
		return nil, nil, err
	}
	policy := repo.WithDecodePolicy(s.DecodePolicy())
	return repo.New(s.Conn, stateSchema, policy), repo.New(s.Conn, citySchema, policy), nil
}

func runImport(s *util.Session, cmd *cobra.Command, args []string) error {
	file, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer file.Close()

	data, err := cities.ReadData(file)
	if err != nil {
		return err
	}

	states, citiesRepo, err := repositories(s)
	if err != nil {
		return err
	}

	exec := store.NewQueueExecutor()
	defer exec.Close()

	loader := &cities.Loader{
		States: states,
		Cities: citiesRepo,
		Exec:   exec,
		Out:    cmd.OutOrStdout(),
		Source: filepath.Base(args[0]),
	}

	// completions run on this goroutine until every scheduled state reported back
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	var errs []error
	remaining := 0
	scheduled, err := loader.Load(data, func(state string, err error) {
		if err != nil {
			errs = append(errs, err)
		}
		remaining--
		if remaining == 0 {
			cancel()
		}
	})
	if err != nil {
		return err
	}
	if len(scheduled) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "all states are already imported")
		return nil
	}
	remaining = len(scheduled)
	exec.Run(ctx)

	if remaining > 0 {
		return fmt.Errorf("import interrupted, %d states pending", remaining)
	}
	return errors.Join(errs...)
}

func runList(s *util.Session, cmd *cobra.Command, _ []string) error {
	_, citiesRepo, err := repositories(s)
	if err != nil {
		return err
	}

	all, err := citiesRepo.ReadAll()
	if err != nil {
		return err
	}
	if stateFilter != "" {
		all = cities.InState(all, cities.NormalizeName(stateFilter))
	}
	if minPopulation > 0 {
		all = cities.AbovePopulation(all, minPopulation)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].StateID < all[j].StateID
	})

	out := cmd.OutOrStdout()
	for _, c := range all {
		capital := ""
		if c.Capital {
			capital = " (capital)"
		}
		fmt.Fprintf(out, "%-20s %-24s %10d%s\n", c.StateID, c.Name, c.Population, capital)
	}
	return nil
}

func runGet(s *util.Session, cmd *cobra.Command, args []string) error {
	_, citiesRepo, err := repositories(s)
	if err != nil {
		return err
	}

	key := cities.CityKey(cities.NormalizeName(args[0]), cities.NormalizeName(args[1]))
	c, ok, err := citiesRepo.ReadByKey(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("city %s not found", key)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Name:       %s\n", c.Name)
	fmt.Fprintf(out, "State:      %s\n", c.StateID)
	fmt.Fprintf(out, "Population: %d\n", c.Population)
	fmt.Fprintf(out, "Capital:    %v\n", c.Capital)
	if c.Import != nil {
		fmt.Fprintf(out, "Imported:   %s from %s\n", c.Import.ImportedAt.Local().Format("2006-01-02 15:04:05"), c.Import.Source)
	}
	return nil
}
