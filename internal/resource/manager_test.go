package resource_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apexflow/retrainctl/internal/config"
	"github.com/apexflow/retrainctl/internal/resource"
	"github.com/apexflow/retrainctl/pkg/models"
)

type fakeProbe struct {
	head resource.Headroom
	err  error
}

func (p *fakeProbe) Headroom(context.Context) (resource.Headroom, error) {
	return p.head, p.err
}

func roomyProbe() *fakeProbe {
	return &fakeProbe{head: resource.Headroom{FreeCores: 16, FreeMemoryMB: 32768}}
}

func testResourceConfig(maxQueue int) config.ResourceConfig {
	return config.ResourceConfig{
		CPULimit:      2,
		MemoryLimitMB: 2048,
		MaxQueueSize:  maxQueue,
		WorkerCount:   1,
		PollInterval:  10 * time.Millisecond,
	}
}

func noopJob(id string, priority int) *resource.Job {
	return &resource.Job{
		ID:       id,
		Priority: priority,
		Run:      func(context.Context) error { return nil },
	}
}

func TestSubmitJobQueueCapacity(t *testing.T) {
	m := resource.NewManager(testResourceConfig(3), roomyProbe(), nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		assert.True(t, m.SubmitJob(noopJob(string(rune('a'+i)), 5)))
	}
	// Resources are plentiful; capacity alone rejects the fourth job.
	assert.False(t, m.SubmitJob(noopJob("d", 5)))
	assert.Equal(t, 3, m.QueueLen())
	assert.True(t, m.Full())
}

func TestSubmitJobInsufficientResources(t *testing.T) {
	probe := &fakeProbe{head: resource.Headroom{FreeCores: 1, FreeMemoryMB: 512}}
	m := resource.NewManager(testResourceConfig(5), probe, nil, zap.NewNop())

	job := noopJob("a", 5)
	job.Requirement = models.ResourceRequirement{CPUCores: 2, MemoryMB: 2048}
	assert.False(t, m.SubmitJob(job))
	assert.Equal(t, 0, m.QueueLen())
}

func TestSubmitJobProbeFailureRejects(t *testing.T) {
	probe := &fakeProbe{err: context.DeadlineExceeded}
	m := resource.NewManager(testResourceConfig(5), probe, nil, zap.NewNop())

	assert.False(t, m.SubmitJob(noopJob("a", 5)))
}

func TestWorkerExecutesInPriorityOrder(t *testing.T) {
	m := resource.NewManager(testResourceConfig(10), roomyProbe(), nil, zap.NewNop())

	ran := make(chan string, 3)
	submit := func(id string, priority int) {
		require.True(t, m.SubmitJob(&resource.Job{
			ID:       id,
			Priority: priority,
			Run: func(context.Context) error {
				ran <- id
				return nil
			},
		}))
	}

	// Submitted while the worker is idle: strict priority order holds.
	submit("regular", 5)
	submit("critical", 0)
	submit("urgent", 1)

	m.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	}()

	var order []string
	for i := 0; i < 3; i++ {
		select {
		case id := <-ran:
			order = append(order, id)
		case <-time.After(2 * time.Second):
			t.Fatal("worker did not drain the queue")
		}
	}
	assert.Equal(t, []string{"critical", "urgent", "regular"}, order)
}

func TestWorkerSurvivesPanickingJob(t *testing.T) {
	m := resource.NewManager(testResourceConfig(10), roomyProbe(), nil, zap.NewNop())

	ran := make(chan string, 1)
	require.True(t, m.SubmitJob(&resource.Job{
		ID:       "bad",
		Priority: 0,
		Run:      func(context.Context) error { panic("boom") },
	}))
	require.True(t, m.SubmitJob(&resource.Job{
		ID:       "good",
		Priority: 1,
		Run: func(context.Context) error {
			ran <- "good"
			return nil
		},
	}))

	m.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	}()

	select {
	case id := <-ran:
		assert.Equal(t, "good", id)
	case <-time.After(2 * time.Second):
		t.Fatal("worker loop died after a panicking job")
	}
}

func TestShutdownIdempotentWhenNotStarted(t *testing.T) {
	m := resource.NewManager(testResourceConfig(5), roomyProbe(), nil, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, m.Shutdown(ctx))
}

type blockingProbe struct {
	release chan struct{}
}

func (p *blockingProbe) Headroom(ctx context.Context) (resource.Headroom, error) {
	select {
	case <-p.release:
		return resource.Headroom{FreeCores: 16, FreeMemoryMB: 32768}, nil
	case <-ctx.Done():
		return resource.Headroom{}, ctx.Err()
	}
}

func TestSubmitJobProbeDoesNotBlockQueueReads(t *testing.T) {
	probe := &blockingProbe{release: make(chan struct{})}
	m := resource.NewManager(testResourceConfig(5), probe, nil, zap.NewNop())

	submitted := make(chan bool, 1)
	go func() { submitted <- m.SubmitJob(noopJob("a", 5)) }()

	// While the probe is in flight, queue reads must return promptly.
	read := make(chan struct{})
	go func() {
		m.Full()
		m.QueueLen()
		close(read)
	}()
	select {
	case <-read:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("queue reads blocked behind the resource probe")
	}

	close(probe.release)
	select {
	case ok := <-submitted:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("submission never completed")
	}
	assert.Equal(t, 1, m.QueueLen())
}

func TestTieBreakBySubmissionOrder(t *testing.T) {
	m := resource.NewManager(testResourceConfig(10), roomyProbe(), nil, zap.NewNop())

	ran := make(chan string, 2)
	for _, id := range []string{"first", "second"} {
		id := id
		require.True(t, m.SubmitJob(&resource.Job{
			ID:       id,
			Priority: 5,
			Run: func(context.Context) error {
				ran <- id
				return nil
			},
		}))
	}

	m.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, m.Shutdown(ctx))
	}()

	assert.Equal(t, "first", <-ran)
	assert.Equal(t, "second", <-ran)
}
