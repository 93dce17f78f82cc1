package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"ordercore/internal/chaos"
	"ordercore/internal/model"
	"ordercore/internal/obs"
	"ordercore/internal/processor"
	"ordercore/internal/store"

	"github.com/google/uuid"
)

// chaos runs many processors against one in-memory store with injected
// faults and audits the execution log afterwards.
func main() {
	orders := flag.Int("orders", 1000, "Orders to seed")
	workers := flag.Int("workers", 8, "Concurrent processors")
	cycles := flag.Int("cycles", 50, "Cycles per processor")
	claimLimit := flag.Int("claim-limit", 25, "Orders claimed per cycle (0=unlimited)")
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	claimFailRate := flag.Float64("claim-fail-rate", 0.05, "Claim failure probability [0-1]")
	failRate := flag.Float64("fail-rate", 0.1, "Execute rollback probability [0-1]")
	raceRate := flag.Float64("race-rate", 0.1, "Probability a phantom worker executes first [0-1]")
	maxDelay := flag.Duration("max-delay", time.Millisecond, "Max delay before each execute")
	flag.Parse()

	if *orders <= 0 || *workers <= 0 || *cycles <= 0 {
		log.Fatalf("orders, workers and cycles must be > 0")
	}

	mem := store.NewMemory(*claimLimit)
	for range *orders {
		if err := mem.Insert(model.Order{ID: uuid.NewString()}); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	}

	faulty, err := chaos.NewStore(mem, chaos.Config{
		Seed:          *seed,
		ClaimFailRate: *claimFailRate,
		FailRate:      *failRate,
		RaceRate:      *raceRate,
		MaxDelay:      *maxDelay,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	metrics := obs.NewMetrics()
	ctx := context.Background()
	start := time.Now()

	var wg sync.WaitGroup
	for range *workers {
		p, err := processor.New(faulty, processor.Config{Metrics: metrics})
		if err != nil {
			log.Fatalf("processor init failed: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range *cycles {
				_, _ = p.ProcessOrders(ctx)
			}
		}()
	}
	wg.Wait()

	report := chaos.Audit(mem.Orders(), mem.Logs())
	snap := metrics.Snapshot()
	fmt.Printf("elapsed=%s orders=%d executed=%d pending=%d cycles=%d cycle_errors=%d skipped=%d failed=%d\n",
		time.Since(start), report.Orders, report.Executed, report.Pending,
		snap.Cycles, snap.CycleErrors, snap.Skipped, snap.Failed)

	if err := report.Err(); err != nil {
		for _, v := range report.Violations {
			log.Printf("violation: %s", v)
		}
		log.Fatalf("audit failed: %v", err)
	}
}
