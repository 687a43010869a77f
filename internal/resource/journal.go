package resource

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/apexflow/retrainctl/pkg/models"
)

// JobRecord is the durable journal entry for a submitted training job. The
// runnable payload itself stays in memory; the journal keeps the metadata so
// job history survives a crash and pending work is visible after restart.
type JobRecord struct {
	ID          string                     `json:"id"`
	TriggerID   string                     `json:"trigger_id"`
	Priority    int                        `json:"priority"`
	Requirement models.ResourceRequirement `json:"requirement"`
	SubmittedAt time.Time                  `json:"submitted_at"`
}

// Journal is a disk-backed job journal on BadgerDB. Keys sort by priority
// then submission time, so iteration yields records in execution order.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens (creating if necessary) the journal at the given path.
func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logging is too chatty here
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening job journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// key format: priority:submitted-at:jobID
func journalKey(rec JobRecord) []byte {
	return []byte(fmt.Sprintf("%04d:%020d:%s", rec.Priority, rec.SubmittedAt.UnixNano(), rec.ID))
}

// Append records a newly admitted job.
func (j *Journal) Append(rec JobRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling job record: %w", err)
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(rec), val)
	})
	if err != nil {
		return fmt.Errorf("appending job %s: %w", rec.ID, err)
	}
	return nil
}

// Complete removes the record once the job has finished (in either outcome).
func (j *Journal) Complete(jobID string) error {
	err := j.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().Key()
			if strings.HasSuffix(string(k), ":"+jobID) {
				return txn.Delete(append([]byte{}, k...))
			}
		}
		return badger.ErrKeyNotFound
	})
	if err == badger.ErrKeyNotFound {
		return fmt.Errorf("job %s not in journal", jobID)
	}
	if err != nil {
		return fmt.Errorf("completing job %s: %w", jobID, err)
	}
	return nil
}

// Pending returns the records of jobs that were admitted but never completed,
// in priority order. Called at startup for operator visibility after a crash.
func (j *Journal) Pending() ([]JobRecord, error) {
	records := make([]JobRecord, 0)
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec JobRecord
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning job journal: %w", err)
	}
	sort.Slice(records, func(a, b int) bool {
		return string(journalKey(records[a])) < string(journalKey(records[b]))
	})
	return records, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
