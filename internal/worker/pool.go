package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/reelworks/vod-worker/internal/logger"
)

const defaultCoolDown = 500 * time.Millisecond

// ProcessorFactory builds the processor for one worker loop. Each loop gets
// its own processor so queue consumers can carry per-worker identity.
type ProcessorFactory func(ctx context.Context, workerID string) (*Processor, error)

// Pool runs Size concurrent processing loops until the context is cancelled,
// then waits up to ShutdownGrace for in-flight tasks to finish.
type Pool struct {
	Size          int
	ShutdownGrace time.Duration
	CoolDown      time.Duration
	Log           *slog.Logger
	NewProcessor  ProcessorFactory
}

// Run blocks until ctx is cancelled and all loops have drained, or the grace
// period expires. Factory errors abort startup before any loop begins.
func (p *Pool) Run(ctx context.Context) error {
	size := p.Size
	if size <= 0 {
		size = 1
	}
	coolDown := p.CoolDown
	if coolDown <= 0 {
		coolDown = defaultCoolDown
	}

	type member struct {
		id   string
		proc *Processor
	}
	members := make([]member, 0, size)
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("worker-%d", i+1)
		proc, err := p.NewProcessor(ctx, id)
		if err != nil {
			return fmt.Errorf("worker pool: build %s: %w", id, err)
		}
		members = append(members, member{id: id, proc: proc})
	}

	var wg sync.WaitGroup
	for _, m := range members {
		wg.Add(1)
		go func(m member) {
			defer wg.Done()
			p.runLoop(ctx, m.id, m.proc, coolDown)
		}(m)
	}

	<-ctx.Done()
	logger.Info(context.Background(), p.Log, "worker pool shutting down", "grace", p.ShutdownGrace.String())

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if p.ShutdownGrace <= 0 {
		<-done
		return nil
	}

	select {
	case <-done:
		return nil
	case <-time.After(p.ShutdownGrace):
		logger.Warn(context.Background(), p.Log, "shutdown grace expired with tasks in flight")
		return nil
	}
}

func (p *Pool) runLoop(ctx context.Context, workerID string, proc *Processor, coolDown time.Duration) {
	logger.Info(ctx, p.Log, "worker started", "worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			logger.Info(context.Background(), p.Log, "worker stopped", "worker_id", workerID)
			return
		default:
		}

		if err := proc.HandleNext(ctx, workerID); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			select {
			case <-time.After(coolDown):
			case <-ctx.Done():
			}
		}
	}
}
