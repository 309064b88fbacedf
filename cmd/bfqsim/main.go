// Command bfqsim drives a bfq.Scheduler against an in-memory backend with
// a handful of synthetic request producers, printing dispatch and
// expiration totals when the run ends. It prints no per-producer
// fairness figures.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/blkiosched/bfq"
	"github.com/blkiosched/bfq/backend"
	"github.com/blkiosched/bfq/internal/logging"
)

// producer generates requests for one simulated workload against a
// shared queue.
type producer struct {
	name    string
	queue   *bfq.Queue
	flags   bfq.RequestFlags
	next    bfq.Sector
	rng     *rand.Rand
	seeky   bool
	pending int
	sectors int64 // per-producer sector count; nothing updates or prints it
}

func (p *producer) submit(sched *bfq.Scheduler, now time.Time, maxSector bfq.Sector) {
	if p.pending > 0 {
		return
	}
	sector := p.next
	if p.seeky {
		sector = bfq.Sector(p.rng.Int63n(int64(maxSector)))
	}
	req := &bfq.Request{Sector: sector, Sectors: 64, Flags: p.flags}
	p.next = sector + bfq.Sector(req.Sectors)
	if p.next >= maxSector {
		p.next = 0
	}
	p.pending++
	sched.InsertRequest(p.queue, req)
}

func main() {
	var (
		sizeStr  = flag.String("size", "64M", "size of the simulated backing device")
		duration = flag.Duration("duration", 5*time.Second, "how long to run the simulation")
		verbose  = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	size, err := parseSize(*sizeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -size %q: %v\n", *sizeStr, err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	mem := backend.NewMemory(size)
	defer mem.Close()

	driver := bfq.NewSimDriver(mem)
	sched := bfq.NewScheduler(driver)
	driver.Attach(sched)

	maxSector := bfq.Sector(size / bfq.SectorSize)

	producers := []*producer{
		newProducer(sched, "sequential-reader", bfq.IOPrioBE, 4, bfq.ReqSync, false),
		newProducer(sched, "seeky-reader", bfq.IOPrioBE, 4, bfq.ReqSync, true),
		newProducer(sched, "async-writer", bfq.IOPrioBE, 4, bfq.ReqWrite, false),
		newProducer(sched, "idle-scrubber", bfq.IOPrioIdle, 7, bfq.ReqSync, false),
	}

	setupSignalHandlers(logger)

	fmt.Printf("Simulating against a %s backend for %s\n", formatSize(size), *duration)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	deadline := time.Now().Add(*duration)
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()

loop:
	for time.Now().Before(deadline) {
		select {
		case <-stop:
			logger.Info("received shutdown signal")
			break loop
		case now := <-ticker.C:
			for _, p := range producers {
				p.submit(sched, now, maxSector)
			}
			sched.Dispatch(now)
			n := driver.Drain()
			for _, p := range producers {
				if n > 0 {
					p.pending = 0
				}
			}
		}
	}

	snap := sched.Metrics()
	fmt.Printf("\nDispatches: %d  Sectors served: %d\n", snap.Dispatches, snap.SectorsServed)
	fmt.Printf("Expirations: too-idle=%d timeout=%d exhausted=%d no-more=%d\n",
		snap.ExpireTooIdle, snap.ExpireBudgetTimeout, snap.ExpireBudgetExhausted, snap.ExpireNoMoreRequests)
}

func newProducer(sched *bfq.Scheduler, name string, class bfq.IOPrioClass, prio int, flags bfq.RequestFlags, seeky bool) *producer {
	sync := flags&bfq.ReqWrite == 0 || flags&bfq.ReqSync != 0
	q, err := sched.GetQueue(nil, name, class, prio, sync)
	if err != nil {
		fmt.Fprintf(os.Stderr, "GetQueue(%s): %v\n", name, err)
		os.Exit(1)
	}
	return &producer{
		name:  name,
		queue: q,
		flags: flags,
		rng:   rand.New(rand.NewSource(int64(len(name)) + 1)),
		seeky: seeky,
	}
}

func setupSignalHandlers(logger *logging.Logger) {
	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "\n=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			logger.Info("dumped goroutine stacks")
		}
	}()
}

func parseSize(s string) (int64, error) {
	s = strings.ToUpper(s)
	multiplier := int64(1)
	numStr := s
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier, numStr = 1024, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier, numStr = 1024*1024, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier, numStr = 1024*1024*1024, strings.TrimSuffix(s, "G")
	}
	num, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, err
	}
	return num * multiplier, nil
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	units := []string{"K", "M", "G", "T"}
	return fmt.Sprintf("%.1f %sB", float64(bytes)/float64(div), units[exp])
}
