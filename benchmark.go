package main

import (
	"encoding/csv"
	"math/rand"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
	"github.com/btree-heap-index/relidx/dbms/index/btindex"
	"github.com/btree-heap-index/relidx/dbms/index/lsm"
)

// BenchResult is one measured operation on one engine.
type BenchResult struct {
	Engine    string
	Operation string
	LatencyNs int64
	MemMB     uint64
	Objects   uint64
}

type memoryStats struct {
	AllocMB     uint64
	HeapObjects uint64
}

// getDetailedMem forces a GC so live data is measured, not garbage.
func getDetailedMem() memoryStats {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return memoryStats{
		AllocMB:     m.Alloc / 1024 / 1024,
		HeapObjects: m.HeapObjects,
	}
}

const (
	benchRows  = 100000
	benchScans = 2000
	benchWidth = 100 // keys per benchmark range scan
)

// runBenchmark loads the same key/rid set into the B+ tree index and into
// Pebble, measures build and range-scan latency on both, cross-checks the
// scan results, and writes results/results.csv.
func runBenchmark(cfg suiteConfig) ([]BenchResult, error) {
	out.Printf("--- benchmark, %d rows\n", benchRows)
	if _, err := createRelationForward(relationName, benchRows); err != nil {
		return nil, err
	}
	defer heap.Remove(relationName)

	var results []BenchResult

	// B+ tree index: build measures the bulk load from the relation.
	start := time.Now()
	bt, err := btindex.New(relationName, recordKeyOffset, btindex.KeyInt32, cfg.cache, cfg.logger)
	if err != nil {
		return nil, err
	}
	defer os.Remove(bt.Name())
	defer bt.Close()
	stats := getDetailedMem()
	results = append(results, BenchResult{
		Engine:    "btindex",
		Operation: "Build",
		LatencyNs: time.Since(start).Nanoseconds() / benchRows,
		MemMB:     stats.AllocMB,
		Objects:   stats.HeapObjects,
	})

	// Pebble: loaded through the same interface from a relation scan.
	pebbleDir, err := os.MkdirTemp("", "relidx-pebble")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(pebbleDir)

	ls, err := lsm.Open(pebbleDir)
	if err != nil {
		return nil, err
	}
	defer ls.Close()

	h, err := heap.Open(relationName)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	scan := h.Scan()
	for {
		rid, rec, err := scan.Next()
		if err == heap.ErrEndOfFile {
			break
		}
		if err != nil {
			h.Close()
			return nil, err
		}
		if err := ls.InsertEntry(btindex.KeyAt(rec, recordKeyOffset), rid); err != nil {
			h.Close()
			return nil, err
		}
	}
	h.Close()
	stats = getDetailedMem()
	results = append(results, BenchResult{
		Engine:    "pebble",
		Operation: "Build",
		LatencyNs: time.Since(start).Nanoseconds() / benchRows,
		MemMB:     stats.AllocMB,
		Objects:   stats.HeapObjects,
	})

	// Range scans: identical bounds on both engines, results cross-checked.
	engines := []struct {
		name string
		idx  index.SecondaryIndex
	}{{"btindex", bt}, {"pebble", ls}}

	lows := make([]int32, benchScans)
	for i := range lows {
		lows[i] = int32(rand.Intn(benchRows - benchWidth))
	}

	counts := make([][]int, len(engines))
	for ei, e := range engines {
		counts[ei] = make([]int, benchScans)
		start = time.Now()
		for i, low := range lows {
			n, err := drainScan(e.idx, low, index.GTE, low+benchWidth, index.LT)
			if err != nil {
				return nil, err
			}
			counts[ei][i] = n
		}
		results = append(results, BenchResult{
			Engine:    e.name,
			Operation: "RangeScan",
			LatencyNs: time.Since(start).Nanoseconds() / benchScans,
			MemMB:     getDetailedMem().AllocMB,
		})
	}
	for i := range lows {
		if counts[0][i] != counts[1][i] {
			out.Printf("MISMATCH at low=%d: btindex=%d pebble=%d\n",
				lows[i], counts[0][i], counts[1][i])
		}
	}

	if err := writeCSV(results, "results/results.csv"); err != nil {
		return nil, err
	}
	return results, nil
}

func writeCSV(results []BenchResult, path string) error {
	os.Mkdir("results", 0755)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"Engine", "Operation", "LatencyNs", "MemMB", "HeapObjects"})
	for _, r := range results {
		w.Write([]string{
			r.Engine,
			r.Operation,
			strconv.FormatInt(r.LatencyNs, 10),
			strconv.FormatUint(r.MemMB, 10),
			strconv.FormatUint(r.Objects, 10),
		})
	}
	w.Flush()
	return w.Error()
}
