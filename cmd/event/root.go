package event

import (
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/ValentinKolb/oKV/examples/events"
	"github.com/ValentinKolb/oKV/lib/repo"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/spf13/cobra"
	"time"
)

var (
	eventColor string
	daysAgo    int
	numDays    int
	byColor    bool
	onlyColor  string

	// EventCommands represents the event command group
	EventCommands = &cobra.Command{
		Use:   "event",
		Short: "Work with colored events",
		Long:  "Events are colored points in time stored in the Events collection.",
	}

	addCmd = &cobra.Command{
		Use:   "add",
		Short: "Add a new event",
		Args:  cobra.NoArgs,
		RunE:  util.RunWithSession(runAdd),
	}

	createSomeCmd = &cobra.Command{
		Use:   "create-some",
		Short: "Create one red event per day for the last days",
		Args:  cobra.NoArgs,
		RunE:  util.RunWithSession(runCreateSome),
	}

	getCmd = &cobra.Command{
		Use:   "get [uuid]",
		Short: "Print a single event",
		Args:  cobra.ExactArgs(1),
		RunE:  util.RunWithSession(runGet),
	}

	lsCmd = &cobra.Command{
		Use:   "ls",
		Short: "List all events sorted by date",
		Args:  cobra.NoArgs,
		RunE:  util.RunWithSession(runList),
	}

	rmCmd = &cobra.Command{
		Use:   "rm [uuid...]",
		Short: "Remove events",
		Args:  cobra.MinimumNArgs(1),
		RunE:  util.RunWithSession(runRemove),
	}
)

func init() {
	EventCommands.AddCommand(addCmd, createSomeCmd, getCmd, lsCmd, rmCmd)

	addCmd.Flags().StringVar(&eventColor, "color", events.Red.String(), util.WrapString("Color of the event (red, blue, green)"))
	addCmd.Flags().IntVar(&daysAgo, "days-ago", 0, util.WrapString("How many days ago the event happened"))

	createSomeCmd.Flags().IntVar(&numDays, "days", 7, util.WrapString("Number of days to create events for"))

	lsCmd.Flags().BoolVar(&byColor, "by-color", false, util.WrapString("Group the events by color"))
	lsCmd.Flags().StringVar(&onlyColor, "color", "", util.WrapString("Only list events of this color"))
}

// repository creates the event repository of the session
func repository(s *util.Session) (*repo.Repository[events.Event], error) {
	schema, err := events.Schema(s.Config.Codec)
	if err != nil {
		return nil, err
	}
	return repo.New(s.Conn, schema, repo.WithDecodePolicy(s.DecodePolicy())), nil
}

func runAdd(s *util.Session, _ *cobra.Command, _ []string) error {
	color, err := events.ParseColor(eventColor)
	if err != nil {
		return err
	}
	r, err := repository(s)
	if err != nil {
		return err
	}

	e := events.New(color, time.Now().Add(-time.Duration(daysAgo)*24*time.Hour))
	if err := r.Write(e); err != nil {
		return fmt.Errorf("failed to add event: %w", err)
	}
	fmt.Println(e.UUID)
	return nil
}

func runCreateSome(s *util.Session, _ *cobra.Command, _ []string) error {
	r, err := repository(s)
	if err != nil {
		return err
	}

	created := events.CreateSomeEvents(numDays, time.Now())
	// completion runs on the writer, the session waits for it when closing
	r.AsyncWrite(created, store.InlineExecutor, func(err error) {
		if err != nil {
			fmt.Printf("failed to create events: %v\n", err)
			return
		}
		fmt.Printf("created %d events\n", len(created))
	})
	return nil
}

func runGet(s *util.Session, _ *cobra.Command, args []string) error {
	r, err := repository(s)
	if err != nil {
		return err
	}

	e, ok, err := r.ReadByKey(args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("event %s not found", args[0])
	}
	printEvent(e)
	return nil
}

func runList(s *util.Session, _ *cobra.Command, _ []string) error {
	r, err := repository(s)
	if err != nil {
		return err
	}

	all, err := r.ReadAll()
	if err != nil {
		return err
	}
	if onlyColor != "" {
		color, err := events.ParseColor(onlyColor)
		if err != nil {
			return err
		}
		all = events.WithColor(all, color)
	}

	for _, group := range events.GroupEvents(all, byColor) {
		fmt.Printf("%s (%d)\n", group.Name, len(group.Events))
		for _, e := range group.Events {
			fmt.Print("  ")
			printEvent(e)
		}
	}
	return nil
}

func runRemove(s *util.Session, _ *cobra.Command, args []string) error {
	r, err := repository(s)
	if err != nil {
		return err
	}

	existing, missing, err := r.FilterExisting(args)
	if err != nil {
		return err
	}
	if err := r.Remove(existing...); err != nil {
		return fmt.Errorf("failed to remove events: %w", err)
	}
	for _, key := range missing {
		fmt.Printf("%s not found\n", key)
	}
	fmt.Printf("removed=%d\n", len(existing))
	return nil
}

func printEvent(e events.Event) {
	fmt.Printf("%s  %-5s  %s\n", e.Date.Local().Format(time.DateTime), e.Color, e.UUID)
}
