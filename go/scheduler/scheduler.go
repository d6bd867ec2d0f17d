// Package scheduler implements the time-driven content posters: the
// shared poll/queue/fire core and the concrete challenge, quest,
// scheduled-message, repeating-message, and Advent of Code schedulers.
//
// Each scheduler runs one long-lived poll goroutine. Every poll
// fetches jobs inside a look-ahead window and spawns one short-lived
// goroutine per job, which sleeps until the job's fire-at instant,
// executes the side effect, and marks the job done through the API.
// A mutex-guarded set of queued job ids guarantees at-most-once
// in-flight posting per id within this process; cross-process
// exclusion is the API's responsibility via the mark-* transitions.
package scheduler

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultPollInterval is the fine-grained schedulers' poll cadence.
const DefaultPollInterval = 30 * time.Second

// DefaultLookAhead is how far ahead the fine-grained schedulers fetch.
const DefaultLookAhead = 45 * time.Second

// core is the shared poll loop embedded by every scheduler.
type core struct {
	name string

	mu      sync.Mutex
	queued  map[string]struct{}
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	jobs    sync.WaitGroup

	// now and sleep are injection points for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func newCore(name string) *core {
	return &core{
		name:   name,
		queued: make(map[string]struct{}),
		now:    time.Now,
		sleep:  realSleep,
	}
}

// realSleep waits for d or cancellation; false means canceled.
func realSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	var timer = time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// start runs the poll loop until Stop. check runs once per iteration;
// nextSleep yields the delay before the next iteration.
func (c *core) start(parent context.Context, check func(context.Context) error, nextSleep func(time.Time) time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	var ctx, cancel = context.WithCancel(parent)
	c.running = true
	c.cancel = cancel
	c.done = make(chan struct{})

	log.WithField("scheduler", c.name).Info("scheduler started")

	go func() {
		defer close(c.done)
		for {
			pollsTotal.WithLabelValues(c.name).Inc()
			if err := check(ctx); err != nil && ctx.Err() == nil {
				log.WithFields(log.Fields{"scheduler": c.name, "err": err}).
					Error("scheduler iteration failed")
			}
			if ctx.Err() != nil {
				return
			}
			if !c.sleep(ctx, nextSleep(c.now())) {
				return
			}
		}
	}()
}

// Stop cancels the poll loop and waits for it and all in-flight job
// goroutines to finish.
func (c *core) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	var cancel, done = c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.jobs.Wait()
	log.WithField("scheduler", c.name).Info("scheduler stopped")
}

// Running reports whether the poll loop is active.
func (c *core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// claim reserves a job id; false means the id is already in flight.
func (c *core) claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, inFlight := c.queued[id]; inFlight {
		return false
	}
	c.queued[id] = struct{}{}
	return true
}

func (c *core) release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.queued, id)
}

// spawnJob queues a job to fire at fireAt. The id is released when the
// job finishes, succeed or fail, so a later poll may retry it if the
// API still reports it pending.
func (c *core) spawnJob(ctx context.Context, id string, fireAt time.Time, run func(context.Context) error) {
	if !c.claim(id) {
		return
	}
	jobsQueuedTotal.WithLabelValues(c.name).Inc()

	c.jobs.Add(1)
	go func() {
		defer c.jobs.Done()
		defer c.release(id)

		if delay := fireAt.Sub(c.now()); delay > 0 {
			if !c.sleep(ctx, delay) {
				return
			}
		}
		if err := run(ctx); err != nil && ctx.Err() == nil {
			jobsFailedTotal.WithLabelValues(c.name).Inc()
			log.WithFields(log.Fields{"scheduler": c.name, "job": id, "err": err}).
				Error("scheduled job failed")
			return
		}
		jobsCompletedTotal.WithLabelValues(c.name).Inc()
	}()
}
