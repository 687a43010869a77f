package resource_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexflow/retrainctl/internal/resource"
	"github.com/apexflow/retrainctl/pkg/models"
)

func openTestJournal(t *testing.T) *resource.Journal {
	t.Helper()
	j, err := resource.OpenJournal(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalAppendPendingComplete(t *testing.T) {
	j := openTestJournal(t)

	base := time.Now()
	records := []resource.JobRecord{
		{ID: "job-low", Priority: 5, SubmittedAt: base,
			Requirement: models.ResourceRequirement{CPUCores: 2, MemoryMB: 2048}},
		{ID: "job-high", Priority: 0, SubmittedAt: base.Add(time.Second)},
		{ID: "job-mid", Priority: 3, SubmittedAt: base.Add(2 * time.Second)},
	}
	for _, rec := range records {
		require.NoError(t, j.Append(rec))
	}

	pending, err := j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	// Pending records come back in execution order: priority, then time.
	assert.Equal(t, "job-high", pending[0].ID)
	assert.Equal(t, "job-mid", pending[1].ID)
	assert.Equal(t, "job-low", pending[2].ID)

	require.NoError(t, j.Complete("job-high"))

	pending, err = j.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "job-mid", pending[0].ID)
}

func TestJournalCompleteUnknownJob(t *testing.T) {
	j := openTestJournal(t)
	assert.Error(t, j.Complete("missing"))
}
