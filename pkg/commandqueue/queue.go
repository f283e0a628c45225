package commandqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/supportdesk/internal/observability"
	"github.com/harun/supportdesk/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrLaneCleared is returned to callers whose queued task was dropped by ClearLane.
	ErrLaneCleared = errors.New("lane cleared")
	// ErrClosed is returned when enqueueing on a closed queue.
	ErrClosed = errors.New("command queue closed")
)

// Task is a unit of work executed inside a lane.
type Task func(ctx context.Context) (interface{}, error)

// TaskOptions configures a single enqueue.
type TaskOptions struct {
	// WarnAfter logs a warning (and calls OnWait) when the task is still
	// queued after this long.
	WarnAfter time.Duration
	OnWait    func(wait time.Duration, queuePos int)
}

type taskRecord struct {
	id         string
	task       Task
	ctx        context.Context
	enqueuedAt time.Time
	options    TaskOptions
	result     chan taskResult
}

type taskResult struct {
	value interface{}
	err   error
}

type laneState struct {
	concurrency int
	queue       []*taskRecord
	running     int
	mu          sync.Mutex
}

// LaneStats is a point-in-time view of one lane.
type LaneStats struct {
	Queued      int
	Running     int
	Concurrency int
}

// CommandQueue runs tasks FIFO per lane with a per-lane concurrency limit.
type CommandQueue struct {
	lanes     map[string]*laneState
	taskIDSeq int
	mu        sync.RWMutex
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// ConversationLane returns the lane name used for a conversation.
func ConversationLane(conversationID string) string {
	return "conversation:" + conversationID
}

// New creates an empty queue. Lanes are created on first use with concurrency 1.
func New() *CommandQueue {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	return &CommandQueue{
		lanes:  make(map[string]*laneState),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (cq *CommandQueue) lane(name string) *laneState {
	cq.mu.RLock()
	ls, ok := cq.lanes[name]
	cq.mu.RUnlock()
	if ok {
		return ls
	}

	cq.mu.Lock()
	defer cq.mu.Unlock()
	if ls, ok = cq.lanes[name]; ok {
		return ls
	}
	ls = &laneState{concurrency: 1}
	cq.lanes[name] = ls
	log.Debug().Str("lane", name).Msg("Lane initialized")
	return ls
}

// Enqueue runs task in lane and blocks until it finishes.
func (cq *CommandQueue) Enqueue(lane string, task Task, options *TaskOptions) (interface{}, error) {
	return cq.EnqueueWithContext(context.Background(), lane, task, options)
}

// EnqueueWithContext runs task in lane, carrying ctx values into the task.
// The task context is also cancelled when the queue closes.
func (cq *CommandQueue) EnqueueWithContext(ctx context.Context, lane string, task Task, options *TaskOptions) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cq.ctx.Err() != nil {
		return nil, ErrClosed
	}

	ctx, span := tracing.StartSpan(ctx, "supportdesk.commandqueue", "commandqueue.enqueue",
		attribute.String("lane", lane))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	logger := tracing.LoggerFromContext(ctx, log.Logger)

	cq.mu.Lock()
	cq.taskIDSeq++
	taskID := fmt.Sprintf("%s-%d", lane, cq.taskIDSeq)
	cq.mu.Unlock()

	opts := TaskOptions{}
	if options != nil {
		opts = *options
	}
	record := &taskRecord{
		id:         taskID,
		task:       task,
		ctx:        ctx,
		enqueuedAt: time.Now(),
		options:    opts,
		result:     make(chan taskResult, 1),
	}

	ls := cq.lane(lane)
	ls.mu.Lock()
	ls.queue = append(ls.queue, record)
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	logger.Debug().Str("lane", lane).Str("taskId", taskID).Int("queueSize", queueSize).Msg("Task enqueued")
	observability.RecordQueueEnqueue(lane, queueSize)

	if opts.WarnAfter > 0 {
		go cq.warnIfWaiting(record, lane)
	}
	cq.process(lane)

	result := <-record.result
	err = result.err
	return result.value, result.err
}

func (cq *CommandQueue) process(lane string) {
	ls := cq.lane(lane)
	ls.mu.Lock()
	defer ls.mu.Unlock()

	for ls.running < ls.concurrency && len(ls.queue) > 0 {
		record := ls.queue[0]
		ls.queue = ls.queue[1:]
		ls.running++

		cq.wg.Add(1)
		go cq.execute(lane, record)
	}
}

func (cq *CommandQueue) execute(lane string, record *taskRecord) {
	defer cq.wg.Done()

	runCtx, cancel := context.WithCancel(record.ctx)
	stop := context.AfterFunc(cq.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	logger := tracing.LoggerFromContext(record.ctx, log.Logger)
	start := time.Now()

	value, err := cq.run(runCtx, record.task)
	duration := time.Since(start)

	ls := cq.lane(lane)
	ls.mu.Lock()
	ls.running--
	queueSize := len(ls.queue)
	ls.mu.Unlock()

	record.result <- taskResult{value: value, err: err}

	if err != nil {
		logger.Error().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Err(err).Msg("Task failed")
	} else {
		logger.Debug().Str("lane", lane).Str("taskId", record.id).Dur("duration", duration).Msg("Task completed")
	}
	observability.RecordQueueCompletion(lane, duration, err == nil, queueSize)

	cq.process(lane)
}

// run executes task, turning a panic into an error so the lane keeps draining.
func (cq *CommandQueue) run(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}

func (cq *CommandQueue) warnIfWaiting(record *taskRecord, lane string) {
	timer := time.NewTimer(record.options.WarnAfter)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-cq.ctx.Done():
		return
	}

	ls := cq.lane(lane)
	ls.mu.Lock()
	pos := -1
	for i, r := range ls.queue {
		if r.id == record.id {
			pos = i
			break
		}
	}
	ls.mu.Unlock()
	if pos < 0 {
		return
	}

	wait := time.Since(record.enqueuedAt)
	log.Warn().Str("lane", lane).Str("taskId", record.id).Dur("wait", wait).Int("queuePos", pos).
		Msg("Task waiting longer than expected")
	if record.options.OnWait != nil {
		record.options.OnWait(wait, pos)
	}
}

// Stats returns a snapshot of every known lane.
func (cq *CommandQueue) Stats() map[string]LaneStats {
	cq.mu.RLock()
	defer cq.mu.RUnlock()

	stats := make(map[string]LaneStats, len(cq.lanes))
	for name, ls := range cq.lanes {
		ls.mu.Lock()
		stats[name] = LaneStats{Queued: len(ls.queue), Running: ls.running, Concurrency: ls.concurrency}
		ls.mu.Unlock()
	}
	return stats
}

// ClearLane rejects every queued (not yet running) task in lane with
// ErrLaneCleared and returns how many were dropped.
func (cq *CommandQueue) ClearLane(lane string) int {
	cq.mu.RLock()
	ls, ok := cq.lanes[lane]
	cq.mu.RUnlock()
	if !ok {
		return 0
	}

	ls.mu.Lock()
	dropped := ls.queue
	ls.queue = nil
	ls.mu.Unlock()

	for _, record := range dropped {
		record.result <- taskResult{err: ErrLaneCleared}
	}
	log.Info().Str("lane", lane).Int("cleared", len(dropped)).Msg("Lane cleared")
	observability.RecordQueueEnqueue(lane, 0)
	return len(dropped)
}

// SetConcurrency changes how many tasks of lane may run at once.
func (cq *CommandQueue) SetConcurrency(lane string, concurrency int) {
	if concurrency < 1 {
		concurrency = 1
	}
	ls := cq.lane(lane)
	ls.mu.Lock()
	old := ls.concurrency
	ls.concurrency = concurrency
	ls.mu.Unlock()

	log.Info().Str("lane", lane).Int("oldMax", old).Int("newMax", concurrency).Msg("Lane concurrency updated")
	if concurrency > old {
		cq.process(lane)
	}
}

// WaitForActive polls until no lane has running or queued work, or timeout elapses.
func (cq *CommandQueue) WaitForActive(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		idle := true
		for _, s := range cq.Stats() {
			if s.Running > 0 || s.Queued > 0 {
				idle = false
				break
			}
		}
		if idle {
			return true
		}
		if time.Now().After(deadline) {
			log.Warn().Dur("timeout", timeout).Msg("Timeout waiting for active tasks")
			return false
		}
		<-ticker.C
	}
}

// Close cancels running tasks and waits for them to return.
func (cq *CommandQueue) Close() error {
	cq.cancel()
	cq.wg.Wait()
	return nil
}
