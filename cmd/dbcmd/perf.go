package dbcmd

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/oKV/cmd/util"
	"github.com/ValentinKolb/oKV/lib/codec"
	"github.com/ValentinKolb/oKV/lib/repo"
	"github.com/ValentinKolb/oKV/lib/store"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	perfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the configured engine",
		Long:    util.WrapString("Runs the repository operations against the configured engine and reports per operation latency statistics. All records are written to the __perf collection and removed afterwards."),
		Args:    cobra.NoArgs,
		PreRunE: processPerfConfig,
		RunE:    util.RunWithSession(runPerf),
	}
	perfOps         = 1000
	perfNumThreads  = 10
	perfValueSizeKB = 1
	perfSkip        = make([]string, 0)
)

// perfCollection holds the records written by the benchmark
const perfCollection = "__perf"

// perfItem is the object written by the benchmark
type perfItem struct {
	Key     string
	Payload []byte
}

func (p perfItem) Identifier() string {
	return p.Key
}

func init() {
	key := "ops"
	perfCmd.Flags().Int(key, 1000, util.WrapString("Number of operations per benchmark"))
	key = "threads"
	perfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines issuing operations"))
	key = "value-size"
	perfCmd.Flags().Int(key, 1, util.WrapString("Size of the payload of every object (in KB)"))
	key = "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. write,async-write)"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfOps = viper.GetInt("ops")
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfValueSizeKB = viper.GetInt("value-size")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// benchmark is one measured operation
type benchmark struct {
	name string
	op   func(i int) error // called once per operation with the operation number
}

func runPerf(s *util.Session, _ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for oKV")
	fmt.Print(s.Config.String())
	fmt.Printf("\nOps: %d, Threads: %d, Value size: %d KB\n\n", perfOps, perfNumThreads, perfValueSizeKB)

	schema := repo.Schema[perfItem]{Collection: perfCollection}
	var err error
	if schema.Codec, err = codec.ByName[perfItem](s.Config.Codec); err != nil {
		return err
	}
	r := repo.New(s.Conn, schema)

	payload := make([]byte, perfValueSizeKB*1024)
	item := func(i int) perfItem {
		return perfItem{Key: fmt.Sprintf("%s-%d", perfCollection, i), Payload: payload}
	}

	// cleanup
	defer func() {
		keys, err := store.Read(s.Conn, func(tx store.ReadTransaction) ([]string, error) {
			return tx.KeysInCollection(perfCollection)
		})
		if err == nil && len(keys) > 0 {
			err = r.RemoveByKeys(keys...)
		}
		if err != nil {
			fmt.Printf("failed to remove benchmark records: %v\n", err)
		}
	}()

	benchmarks := []benchmark{
		{name: "write", op: func(i int) error {
			return r.Write(item(i))
		}},
		{name: "write-batch", op: func(i int) error {
			batch := make([]perfItem, 10)
			for j := range batch {
				batch[j] = item(i*10 + j)
			}
			return r.Write(batch...)
		}},
		{name: "async-write", op: func(i int) error {
			done := make(chan error, 1)
			r.AsyncWrite([]perfItem{item(i)}, store.InlineExecutor, func(err error) { done <- err })
			return <-done
		}},
		{name: "read", op: func(i int) error {
			_, _, err := r.ReadByKey(item(i).Key)
			return err
		}},
		{name: "read-missing", op: func(i int) error {
			_, _, err := r.ReadByKey(fmt.Sprintf("missing-%d", i))
			return err
		}},
		{name: "filter-existing", op: func(i int) error {
			_, _, err := r.FilterExisting([]string{item(i).Key, fmt.Sprintf("missing-%d", i)})
			return err
		}},
		{name: "remove", op: func(i int) error {
			return r.RemoveByKeys(item(i).Key)
		}},
	}

	results := make(map[string]metrics.Timer)
	for _, b := range benchmarks {
		if shouldSkip(b.name) {
			printResult(b.name, nil)
			continue
		}
		timer := measure(b)
		results[b.name] = timer
		printResult(b.name, timer)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		if err := writeResultsToCSV(csvPath, benchmarks, results, s); err != nil {
			return err
		}
		fmt.Printf("\nresults written to %s\n", csvPath)
	}
	return nil
}

// measure runs perfOps operations of b on perfNumThreads goroutines
func measure(b benchmark) metrics.Timer {
	timer := metrics.NewTimer()
	failures := metrics.NewCounter()

	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			for i := t; i < perfOps; i += perfNumThreads {
				start := time.Now()
				if err := b.op(i); err != nil {
					failures.Inc(1)
					continue
				}
				timer.UpdateSince(start)
			}
		}(t)
	}
	wg.Wait()

	if n := failures.Count(); n > 0 {
		fmt.Printf("(%s) - %d operations failed\n", b.name, n)
	}
	return timer
}

func shouldSkip(test string) bool {
	for _, s := range perfSkip {
		if strings.TrimSpace(s) == test {
			return true
		}
	}
	return false
}

func printResult(test string, timer metrics.Timer) {
	if timer == nil || timer.Count() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	fmt.Printf("%-20smean %s\tp50 %s\tp99 %s\tmax %s\t%.0f ops/sec\n",
		test,
		time.Duration(timer.Mean()),
		time.Duration(timer.Percentile(0.5)),
		time.Duration(timer.Percentile(0.99)),
		time.Duration(timer.Max()),
		timer.RateMean(),
	)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, benchmarks []benchmark, results map[string]metrics.Timer, s *util.Session) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "Count", "MeanNs", "P50Ns", "P99Ns", "MaxNs", "OpsPerSec", "Skipped",
		"Engine", "Codec", "Threads", "ValueSizeKB",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, b := range benchmarks {
		row := []string{b.name, "0", "0", "0", "0", "0", "0", "true"}
		if timer, ok := results[b.name]; ok && timer.Count() > 0 {
			row = []string{
				b.name,
				strconv.FormatInt(timer.Count(), 10),
				fmt.Sprintf("%.0f", timer.Mean()),
				fmt.Sprintf("%.0f", timer.Percentile(0.5)),
				fmt.Sprintf("%.0f", timer.Percentile(0.99)),
				strconv.FormatInt(timer.Max(), 10),
				fmt.Sprintf("%.0f", timer.RateMean()),
				"false",
			}
		}
		row = append(row,
			s.Config.Engine,
			s.Config.Codec,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfValueSizeKB),
		)
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", b.name, err)
		}
	}
	return nil
}
