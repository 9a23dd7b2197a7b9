// Command relidx verifies and benchmarks the B+ tree secondary index.
//
// The default run builds a 5,000-row relation in forward, backward, and
// random key order, indexes each, and checks a table of range-scan
// scenarios plus the error paths. -large repeats the sweep with 300,000
// rows. -bench compares the index against Pebble and writes CSV; -plot
// renders the CSV; -dot exports the tree graph.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
	"github.com/btree-heap-index/relidx/dbms/index/btindex"
)

const (
	relationName = "relA"
	relationSize = 5000
	largeSize    = 300000
)

var out = message.NewPrinter(language.English)

func main() {
	var (
		large  = flag.Bool("large", false, "also run the 300,000-row sweep")
		bench  = flag.Bool("bench", false, "run the btindex/pebble benchmark")
		plot   = flag.Bool("plot", false, "render benchmark results to PNG")
		dot    = flag.Bool("dot", false, "export the tree graph as DOT/PNG")
		cache  = flag.Int("cache", 128, "buffer manager frames")
		logDev = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *logDev {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger = l
	}
	defer logger.Sync()

	cfg := suiteConfig{cache: *cache, logger: logger, exportDot: *dot}

	failed := false
	for _, order := range []string{"forward", "backward", "random"} {
		if err := runSuite(order, relationSize, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "%s suite: %v\n", order, err)
			failed = true
		}
	}
	if *large {
		for _, order := range []string{"forward", "backward", "random"} {
			if err := runSuite(order, largeSize, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "large %s suite: %v\n", order, err)
				failed = true
			}
		}
	}
	if err := runErrorTests(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error tests: %v\n", err)
		failed = true
	}

	if *bench {
		results, err := runBenchmark(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "benchmark: %v\n", err)
			failed = true
		} else if *plot {
			if err := plotResults(results, "results/latency.png"); err != nil {
				fmt.Fprintf(os.Stderr, "plot: %v\n", err)
				failed = true
			}
		}
	}

	if failed {
		os.Exit(1)
	}
	fmt.Println("all checks passed")
}

type suiteConfig struct {
	cache     int
	logger    *zap.Logger
	exportDot bool
}

type scanCheck struct {
	low    int32
	lowOp  index.Operator
	high   int32
	highOp index.Operator
	want   int
}

// scanChecks covers the 5,000-row relation with keys 0..4999.
var scanChecks = []scanCheck{
	{25, index.GT, 40, index.LT, 14},
	{20, index.GTE, 35, index.LTE, 16},
	{-3, index.GT, 3, index.LT, 3},
	{996, index.GT, 1001, index.LT, 4},
	{0, index.GT, 1, index.LT, 0},
	{300, index.GT, 400, index.LT, 99},
	{3000, index.GTE, 4000, index.LT, 1000},
	{0, index.GTE, 5000, index.LT, 5000},
	{0, index.GTE, 5000, index.LTE, 5000},
	{-100, index.GTE, 0, index.LTE, 1},
	{4999, index.GTE, 6000, index.LT, 1},
	{4000, index.GT, 7000, index.LT, 999},
}

// largeChecks covers the 300,000-row relation.
var largeChecks = []scanCheck{
	{30000, index.GTE, 40000, index.LTE, 10001},
	{12345, index.GTE, 12346, index.LT, 1},
	{25000, index.GTE, 26000, index.LT, 1000},
	{209000, index.GTE, 210000, index.LT, 1000},
	{290000, index.GTE, 300000, index.LT, 10000},
}

func runSuite(order string, size int, cfg suiteConfig) error {
	out.Printf("--- %s relation, %d rows\n", order, size)

	var create func(string, int) (map[int32]heap.RID, error)
	switch order {
	case "forward":
		create = createRelationForward
	case "backward":
		create = createRelationBackward
	default:
		create = createRelationRandom
	}
	if _, err := create(relationName, size); err != nil {
		return err
	}
	defer heap.Remove(relationName)

	x, err := btindex.New(relationName, recordKeyOffset, btindex.KeyInt32, cfg.cache, cfg.logger)
	if err != nil {
		return err
	}
	defer os.Remove(x.Name())
	defer x.Close()

	checks := scanChecks
	if size != relationSize {
		checks = largeChecks
	}
	for _, c := range checks {
		got, err := drainScan(x, c.low, c.lowOp, c.high, c.highOp)
		if err != nil {
			return err
		}
		if got != c.want {
			return errors.Errorf("scan %v %d .. %d %v: got %d rids, want %d",
				c.lowOp, c.low, c.high, c.highOp, got, c.want)
		}
		out.Printf("scan %-3v %6d .. %6d %-3v -> %d rids\n",
			c.lowOp, c.low, c.high, c.highOp, got)
	}

	if cfg.exportDot && size == relationSize {
		os.Mkdir("results", 0755)
		x.Print(fmt.Sprintf("btindex_%s", order))
	}
	return nil
}

// drainScan counts the rids a scan yields. A scan whose range holds no
// key counts zero.
func drainScan(x index.SecondaryIndex, low int32, lowOp index.Operator, high int32, highOp index.Operator) (int, error) {
	err := x.StartScan(low, lowOp, high, highOp)
	if err == index.ErrNoSuchKeyFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		_, err := x.ScanNext()
		if err == index.ErrScanCompleted {
			break
		}
		if err != nil {
			return 0, err
		}
		n++
	}
	if err := x.EndScan(); err != nil {
		return 0, err
	}
	return n, nil
}

// runErrorTests exercises the misuse paths on a small fresh index.
func runErrorTests(cfg suiteConfig) error {
	fmt.Println("--- error handling")
	if _, err := createRelationForward(relationName, 10); err != nil {
		return err
	}
	defer heap.Remove(relationName)

	x, err := btindex.New(relationName, recordKeyOffset, btindex.KeyInt32, cfg.cache, cfg.logger)
	if err != nil {
		return err
	}
	defer os.Remove(x.Name())
	defer x.Close()

	steps := []struct {
		name string
		got  error
		want error
	}{
		{"endScan before startScan", x.EndScan(), index.ErrScanNotInitialized},
		{"scanNext before startScan", second(x.ScanNext()), index.ErrScanNotInitialized},
		{"bad low operator", x.StartScan(2, index.LTE, 5, index.LTE), index.ErrBadOpcodes},
		{"bad high operator", x.StartScan(2, index.GTE, 5, index.GTE), index.ErrBadOpcodes},
		{"bad range", x.StartScan(5, index.GTE, 2, index.LTE), index.ErrBadScanrange},
	}
	for _, s := range steps {
		if s.got != s.want {
			return errors.Errorf("%s: got %v, want %v", s.name, s.got, s.want)
		}
		fmt.Printf("%-28s ok\n", s.name)
	}
	return nil
}

func second(_ heap.RID, err error) error { return err }
