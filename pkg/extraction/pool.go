package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// JobKind selects what a pool worker runs.
type JobKind string

const (
	JobExtract   JobKind = "extract"
	JobSummarize JobKind = "summarize"
)

// Job is one unit of out-of-band memory work.
type Job struct {
	Kind      JobKind
	SessionID string
	UserID    string

	// MaxMessages and Revision apply to extract jobs.
	MaxMessages int
	Revision    bool
}

// PoolConfig configures the extraction worker pool.
type PoolConfig struct {
	// Extractor runs the jobs.
	Extractor *Extractor

	// NumWorkers is the number of background workers (defaults to 3).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to
	// 256).
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool runs extraction and summarization jobs asynchronously so they never
// sit in a chat request's critical path. Replaces detached goroutines with
// an explicit queue: back-pressure drops with a log line, Close drains.
type Pool struct {
	config *PoolConfig
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a Pool and starts its worker goroutines.
func NewPool(c *PoolConfig) (*Pool, error) {
	if c == nil || c.Extractor == nil {
		return nil, errors.New("pool requires an extractor")
	}
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}
	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full and the job dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("memory job queued",
			zap.String("kind", string(job.Kind)),
			zap.String("session_id", job.SessionID),
		)
		return true
	default:
		p.logger.Error("memory job dropped, queue full",
			zap.String("kind", string(job.Kind)),
			zap.String("session_id", job.SessionID),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call during graceful shutdown after the API server has stopped.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("memory worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("memory worker stopped", zap.Uint("worker_id", id))
}

func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	switch job.Kind {
	case JobSummarize:
		if err := p.config.Extractor.Summarize(ctx, job.SessionID, job.UserID); err != nil {
			p.logger.Warn("async summarization failed",
				zap.String("session_id", job.SessionID),
				zap.Error(err),
			)
			return
		}
		p.logger.Info("session summarized",
			zap.String("session_id", job.SessionID),
		)

	default:
		n, errs := p.config.Extractor.Extract(ctx, job.SessionID, job.UserID, job.MaxMessages, job.Revision)
		for _, err := range errs {
			p.logger.Warn("async extraction issue",
				zap.String("session_id", job.SessionID),
				zap.Error(err),
			)
		}
		if n > 0 {
			p.logger.Info("memories extracted",
				zap.String("session_id", job.SessionID),
				zap.Int("spots", n),
			)
		}
	}
}
