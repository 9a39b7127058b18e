package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper runs one pass of periodic maintenance.
type Sweeper interface {
	Sweep(ctx context.Context) error
}

// Worker runs a Sweeper immediately and then on every tick until stopped.
type Worker struct {
	name     string
	sweeper  Sweeper
	interval time.Duration
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewWorker creates a new Worker instance
func NewWorker(name string, sweeper Sweeper, interval time.Duration) *Worker {
	return &Worker{
		name:     name,
		sweeper:  sweeper,
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start blocks running sweeps until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s worker started with interval: %v", w.name, w.interval)

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped: stop signal received", w.name)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
		log.Printf("%s sweep failed: %v", w.name, err)
	}
}

// Stop signals the loop and waits for the running sweep to finish. It is
// safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	<-w.doneChan
	log.Printf("%s worker shutdown complete", w.name)
}
