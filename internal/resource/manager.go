// Package resource admits and executes training jobs under a bounded,
// priority-ordered queue. Admission checks live CPU/memory headroom against
// the job's declared requirement; execution happens on a small pool of
// background workers (one by default, since retraining runs are heavyweight
// and not meant to interleave).
package resource

import (
	"container/heap"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/pkg/metrics"
	"github.com/apexflow/retrainctl/pkg/models"
)

// Job is one training run awaiting execution. Run carries the opaque training
// invocation; the manager owns the job from submission to completion.
type Job struct {
	ID          string
	TriggerID   string
	Priority    int // lower value = more urgent
	Requirement models.ResourceRequirement
	SubmittedAt time.Time
	Run         func(ctx context.Context) error

	seq uint64 // submission order, breaks priority ties
}

type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(a, b int) bool {
	if h[a].Priority != h[b].Priority {
		return h[a].Priority < h[b].Priority
	}
	return h[a].seq < h[b].seq
}
func (h jobHeap) Swap(a, b int) { h[a], h[b] = h[b], h[a] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*Job)) }
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return job
}

// Manager is the resource-aware training job queue.
type Manager struct {
	cfg     config.ResourceConfig
	logger  *zap.Logger
	probe   Probe
	journal *Journal // optional; nil disables the durable journal

	mu    sync.Mutex
	queue jobHeap
	seq   uint64

	quit    chan struct{}
	wg      sync.WaitGroup
	started bool
}

// NewManager builds a manager. The journal may be nil.
func NewManager(cfg config.ResourceConfig, probe Probe, journal *Journal, logger *zap.Logger) *Manager {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Manager{
		cfg:     cfg,
		logger:  logger,
		probe:   probe,
		journal: journal,
		quit:    make(chan struct{}),
	}
}

// Start launches the background workers and reports any jobs left pending in
// the journal by a previous run.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	if m.journal != nil {
		if pending, err := m.journal.Pending(); err != nil {
			m.logger.Warn("job_journal_scan_failed", zap.Error(err))
		} else if len(pending) > 0 {
			m.logger.Warn("jobs_pending_from_previous_run", zap.Int("count", len(pending)))
		}
	}

	for i := 0; i < m.cfg.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	m.logger.Info("resource_manager_started", zap.Int("workers", m.cfg.WorkerCount))
}

// QueueLen returns the number of jobs waiting.
func (m *Manager) QueueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Full reports whether the queue is at capacity.
func (m *Manager) Full() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) >= m.cfg.MaxQueueSize
}

// SubmitJob admits the job if the queue has room and the current resource
// headroom covers the job's requirement. Returns false on any rejection;
// rejection is a soft outcome, not an error. Safe to call from any goroutine.
func (m *Manager) SubmitJob(job *Job) bool {
	if job.Requirement.CPUCores <= 0 {
		job.Requirement.CPUCores = m.cfg.CPULimit
	}
	if job.Requirement.MemoryMB <= 0 {
		job.Requirement.MemoryMB = m.cfg.MemoryLimitMB
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	if m.Full() {
		m.logger.Warn("job_queue_full", zap.String("job_id", job.ID))
		metrics.JobsRejected.WithLabelValues("queue_full").Inc()
		return false
	}

	// Probe outside the queue lock: the CPU sample takes real time and must
	// not stall Full() or the worker's dequeue. A race between this reading
	// and execution is an accepted, bounded imprecision.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	head, err := m.probe.Headroom(ctx)
	cancel()
	if err != nil {
		m.logger.Warn("resource_probe_failed", zap.String("job_id", job.ID), zap.Error(err))
		metrics.JobsRejected.WithLabelValues("probe_failed").Inc()
		return false
	}
	if head.FreeCores < float64(job.Requirement.CPUCores) ||
		head.FreeMemoryMB < float64(job.Requirement.MemoryMB) {
		m.logger.Warn("insufficient_resources",
			zap.String("job_id", job.ID),
			zap.Float64("free_cores", head.FreeCores),
			zap.Float64("free_memory_mb", head.FreeMemoryMB),
			zap.Int("want_cores", job.Requirement.CPUCores),
			zap.Int("want_memory_mb", job.Requirement.MemoryMB))
		metrics.JobsRejected.WithLabelValues("insufficient_resources").Inc()
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check capacity: another submission may have raced in during the
	// probe.
	if len(m.queue) >= m.cfg.MaxQueueSize {
		m.logger.Warn("job_queue_full", zap.String("job_id", job.ID))
		metrics.JobsRejected.WithLabelValues("queue_full").Inc()
		return false
	}

	m.seq++
	job.seq = m.seq
	heap.Push(&m.queue, job)

	if m.journal != nil {
		rec := JobRecord{
			ID:          job.ID,
			TriggerID:   job.TriggerID,
			Priority:    job.Priority,
			Requirement: job.Requirement,
			SubmittedAt: job.SubmittedAt,
		}
		if err := m.journal.Append(rec); err != nil {
			m.logger.Error("job_journal_append_failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	m.logger.Info("job_enqueued",
		zap.String("job_id", job.ID),
		zap.String("trigger_id", job.TriggerID),
		zap.Int("priority", job.Priority))
	metrics.JobsEnqueued.Inc()
	return true
}

func (m *Manager) worker() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.quit:
			return
		case <-ticker.C:
			for {
				job := m.pop()
				if job == nil {
					break
				}
				m.execute(job)
			}
		}
	}
}

func (m *Manager) pop() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil
	}
	return heap.Pop(&m.queue).(*Job)
}

// execute runs a single job, recovering from panics so a bad payload never
// kills the worker loop.
func (m *Manager) execute(job *Job) {
	start := time.Now()
	m.logger.Info("job_started", zap.String("job_id", job.ID), zap.Int("priority", job.Priority))

	err := m.runPayload(job)
	if err != nil {
		m.logger.Error("job_failed",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		metrics.JobsFailed.Inc()
	} else {
		m.logger.Info("job_finished",
			zap.String("job_id", job.ID),
			zap.Duration("elapsed", time.Since(start)))
		metrics.JobsCompleted.Inc()
	}

	if m.journal != nil {
		if jerr := m.journal.Complete(job.ID); jerr != nil {
			m.logger.Warn("job_journal_complete_failed", zap.String("job_id", job.ID), zap.Error(jerr))
		}
	}
}

func (m *Manager) runPayload(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	if m.cfg.UseIsolatedExecution && m.cfg.IsolatedCommand != "" {
		return m.runIsolated(job)
	}
	return job.Run(context.Background())
}

// runIsolated executes the configured external command instead of the
// in-process payload. The command receives the job identity via environment.
func (m *Manager) runIsolated(job *Job) error {
	parts := strings.Fields(m.cfg.IsolatedCommand)
	if len(parts) == 0 {
		return fmt.Errorf("isolated execution enabled with empty command")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = append(cmd.Environ(),
		"RETRAINCTL_JOB_ID="+job.ID,
		"RETRAINCTL_TRIGGER_ID="+job.TriggerID)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("isolated job command: %w (output: %s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Shutdown stops the workers after their current job and waits up to the
// context deadline for them to exit. In-flight training is not interrupted.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = false
	m.mu.Unlock()

	close(m.quit)
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.logger.Info("resource_manager_stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("resource manager shutdown: %w", ctx.Err())
	}
}
