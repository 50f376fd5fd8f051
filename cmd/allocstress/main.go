// File: cmd/allocstress/main.go
// Author: momentics <momentics@gmail.com>
//
// Stress harness for the tiered allocator. Runs churn scenarios
// against a dedicated Pool and dumps metrics, probes and the leak
// report at the end.

package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	"github.com/momentics/tieralloc/control"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/pool"
)

var (
	flagGoroutines int
	flagIters      int
	flagSeed       int64
	flagTrack      bool
	flagVerbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "allocstress",
		Short: "Stress scenarios for the tieralloc pool",
	}
	root.PersistentFlags().IntVarP(&flagGoroutines, "goroutines", "g", 4, "concurrent goroutines")
	root.PersistentFlags().IntVarP(&flagIters, "iters", "n", 5000, "iterations per goroutine")
	root.PersistentFlags().Int64Var(&flagSeed, "seed", time.Now().UnixNano(), "PRNG seed")
	root.PersistentFlags().BoolVar(&flagTrack, "track", false, "enable detailed leak tracking")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log allocator warnings to stderr")

	root.AddCommand(churnCmd(), largeCmd(), mixedCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() *pool.Pool {
	if flagVerbose {
		logging.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	p := pool.New()
	if flagTrack {
		p.EnableLeakTracking(true)
	}
	return p
}

func teardown(p *pool.Pool) {
	metrics := control.NewMetricsRegistry()
	p.PublishMetrics(metrics, "alloc")
	probes := control.NewDebugProbes()
	p.RegisterProbes(probes)

	for k, v := range metrics.GetSnapshot() {
		fmt.Printf("%-28s %v\n", k, v)
	}
	if flagVerbose {
		for k, v := range probes.DumpState() {
			fmt.Printf("probe %-22s %+v\n", k, v)
		}
	}
	if flagTrack {
		p.ReportLeaks(os.Stdout)
	}
	p.Close()
}

// churnCmd mixes small, medium-range and page-sized blocks with
// random alignments, frees half, reallocates, frees all.
func churnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "churn",
		Short: "fragmentation churn across the small size classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := setup()
			rng := rand.New(rand.NewSource(flagSeed))
			alignments := []uintptr{8, 16, 32, 64, 128, 256}

			live := make([]unsafe.Pointer, 0, 1200)
			for i := 0; i < 1200; i++ {
				var size uintptr
				switch i % 3 {
				case 0:
					size = uintptr(16 + rng.Intn(241))
				case 1:
					size = uintptr(257 + rng.Intn(3840))
				default:
					size = uintptr(4097 + rng.Intn(12288))
				}
				ptr, err := p.Allocate(size, alignments[rng.Intn(len(alignments))])
				if err != nil {
					return err
				}
				live = append(live, ptr)
			}
			rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
			for _, ptr := range live[:len(live)/2] {
				if err := p.Deallocate(ptr); err != nil {
					return err
				}
			}
			live = live[len(live)/2:]
			for i := 0; i < 600; i++ {
				ptr, err := p.Allocate(uintptr(1+rng.Intn(1024)), 8)
				if err != nil {
					return err
				}
				live = append(live, ptr)
			}
			for _, ptr := range live {
				if err := p.Deallocate(ptr); err != nil {
					return err
				}
			}

			fmt.Printf("churn done: used=%d net_ops=%d\n", p.CurrentUsedBytes(), p.NetOps())
			teardown(p)
			return nil
		},
	}
}

// largeCmd cycles megabyte-to-gigabyte blocks through the medium,
// large and huge tiers.
func largeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "large",
		Short: "large-block churn across medium/large/huge tiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := setup()
			rng := rand.New(rand.NewSource(flagSeed))
			sizesMiB := []uintptr{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024}

			live := make([]unsafe.Pointer, 0, 300)
			for i := 0; i < 300; i++ {
				size := sizesMiB[rng.Intn(len(sizesMiB))] << 20
				ptr, err := p.Allocate(size, 8)
				if err != nil {
					continue // treat refusals as the nothrow path
				}
				live = append(live, ptr)
			}
			rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
			half := live[:len(live)/2]
			for _, ptr := range half {
				if err := p.Deallocate(ptr); err != nil {
					return err
				}
			}
			live = live[len(live)/2:]
			for i := 0; i < 150; i++ {
				size := sizesMiB[rng.Intn(len(sizesMiB))] << 20
				ptr, err := p.Allocate(size, 8)
				if err != nil {
					continue
				}
				live = append(live, ptr)
			}
			for _, ptr := range live {
				if err := p.Deallocate(ptr); err != nil {
					return err
				}
			}

			fmt.Printf("large done: used=%d net_ops=%d\n", p.CurrentUsedBytes(), p.NetOps())
			teardown(p)
			return nil
		},
	}
}

// mixedCmd is the multithreaded allocate/deallocate cycle with random
// micro-sleeps.
func mixedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mixed",
		Short: "multi-goroutine allocate/free cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := setup()
			var wg sync.WaitGroup
			errs := make(chan error, flagGoroutines)
			for g := 0; g < flagGoroutines; g++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					rng := rand.New(rand.NewSource(seed))
					for i := 0; i < flagIters; i++ {
						ptr, err := p.Allocate(uintptr(1+rng.Intn(2048)), 8)
						if err != nil {
							errs <- err
							return
						}
						if err := p.Deallocate(ptr); err != nil {
							errs <- err
							return
						}
						if rng.Intn(64) == 0 {
							time.Sleep(time.Duration(rng.Intn(50)) * time.Microsecond)
						}
					}
				}(flagSeed + int64(g))
			}
			wg.Wait()
			close(errs)
			if err := <-errs; err != nil {
				return err
			}

			fmt.Printf("mixed done: used=%d net_ops=%d\n", p.CurrentUsedBytes(), p.NetOps())
			teardown(p)
			return nil
		},
	}
}
