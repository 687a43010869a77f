// Package ledger persists the control plane's durable state: the per-trigger
// debounce ledger, the retrain-timestamp log used for cooldown and rolling
// window accounting, the single stable-model record and the retrain attempt
// history. All stores share one sqlite-backed gorm handle and survive process
// restart.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/apexflow/retrainctl/pkg/models"
)

// TriggerRow records the last time an alert with a given correlation key was
// forwarded. Upserted, one row per trigger.
type TriggerRow struct {
	TriggerID  string    `gorm:"primaryKey;column:trigger_id"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
}

func (TriggerRow) TableName() string { return "triggers" }

// MetaRow is a generic keyed timestamp, used for the global last-job time.
type MetaRow struct {
	Key   string    `gorm:"primaryKey;column:key"`
	Value time.Time `gorm:"column:value"`
}

func (MetaRow) TableName() string { return "meta" }

// RetrainRow is one entry in the append-only retrain log.
type RetrainRow struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
}

func (RetrainRow) TableName() string { return "retrain_log" }

// StableRow holds the single live stable-model record (id is always 1).
type StableRow struct {
	ID         uint      `gorm:"primaryKey;column:id"`
	RunID      string    `gorm:"column:run_id"`
	Version    string    `gorm:"column:version"`
	RecordedAt time.Time `gorm:"column:recorded_at"`
}

func (StableRow) TableName() string { return "stable_model" }

// Open opens (creating if necessary) the sqlite ledger at the given DSN and
// migrates all tables.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	if err := db.AutoMigrate(
		&TriggerRow{}, &MetaRow{}, &RetrainRow{}, &StableRow{},
		&models.RetrainAttempt{},
	); err != nil {
		return nil, fmt.Errorf("migrating ledger schema: %w", err)
	}
	return db, nil
}

const lastJobKey = "last_job_timestamp"

// TriggerLedger persists debounce state for the drift listener.
type TriggerLedger struct {
	db *gorm.DB
}

// NewTriggerLedger wraps the shared ledger handle.
func NewTriggerLedger(db *gorm.DB) *TriggerLedger {
	return &TriggerLedger{db: db}
}

// LastSeen returns when the trigger was last forwarded, if ever.
func (l *TriggerLedger) LastSeen(triggerID string) (time.Time, bool, error) {
	var row TriggerRow
	err := l.db.First(&row, "trigger_id = ?", triggerID).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading trigger %s: %w", triggerID, err)
	}
	return row.LastSeenAt, true, nil
}

// Touch upserts the last-seen timestamp for the trigger.
func (l *TriggerLedger) Touch(triggerID string, at time.Time) error {
	row := TriggerRow{TriggerID: triggerID, LastSeenAt: at}
	if err := l.db.Save(&row).Error; err != nil {
		return fmt.Errorf("recording trigger %s: %w", triggerID, err)
	}
	return nil
}

// LastJobTime returns the timestamp of the most recent accepted job across
// all triggers (the storm-protection cooldown anchor).
func (l *TriggerLedger) LastJobTime() (time.Time, bool, error) {
	var row MetaRow
	err := l.db.First(&row, "key = ?", lastJobKey).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading last job time: %w", err)
	}
	return row.Value, true, nil
}

// SetLastJobTime upserts the global last-job timestamp.
func (l *TriggerLedger) SetLastJobTime(at time.Time) error {
	row := MetaRow{Key: lastJobKey, Value: at}
	if err := l.db.Save(&row).Error; err != nil {
		return fmt.Errorf("recording last job time: %w", err)
	}
	return nil
}

// RetrainLog is the append-only record of approved retrains, consulted by the
// schedule optimizer for cooldown and rolling-window caps.
type RetrainLog struct {
	db *gorm.DB
}

// NewRetrainLog wraps the shared ledger handle.
func NewRetrainLog(db *gorm.DB) *RetrainLog {
	return &RetrainLog{db: db}
}

// Record appends a retrain timestamp.
func (l *RetrainLog) Record(at time.Time) error {
	if err := l.db.Create(&RetrainRow{Timestamp: at}).Error; err != nil {
		return fmt.Errorf("appending retrain log: %w", err)
	}
	return nil
}

// CountSince returns how many retrains were recorded after the cutoff.
func (l *RetrainLog) CountSince(cutoff time.Time) (int64, error) {
	var count int64
	err := l.db.Model(&RetrainRow{}).Where("timestamp > ?", cutoff).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting retrains: %w", err)
	}
	return count, nil
}

// Last returns the most recent retrain timestamp, if any.
func (l *RetrainLog) Last() (time.Time, bool, error) {
	var row RetrainRow
	err := l.db.Order("id DESC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading last retrain: %w", err)
	}
	return row.Timestamp, true, nil
}

// StableStore keeps the single stable-model record. Saving overwrites; the
// table never grows past one row.
type StableStore struct {
	db *gorm.DB
}

// NewStableStore wraps the shared ledger handle.
func NewStableStore(db *gorm.DB) *StableStore {
	return &StableStore{db: db}
}

// Save overwrites the stable-model record.
func (s *StableStore) Save(rec models.StableModelRecord) error {
	row := StableRow{ID: 1, RunID: rec.RunID, Version: rec.Version, RecordedAt: rec.RecordedAt}
	if err := s.db.Save(&row).Error; err != nil {
		return fmt.Errorf("saving stable model: %w", err)
	}
	return nil
}

// Get returns the stable-model record if one has been registered.
func (s *StableStore) Get() (models.StableModelRecord, bool, error) {
	var row StableRow
	err := s.db.First(&row, "id = ?", 1).Error
	if err == gorm.ErrRecordNotFound {
		return models.StableModelRecord{}, false, nil
	}
	if err != nil {
		return models.StableModelRecord{}, false, fmt.Errorf("reading stable model: %w", err)
	}
	return models.StableModelRecord{
		RunID:      row.RunID,
		Version:    row.Version,
		RecordedAt: row.RecordedAt,
	}, true, nil
}

// AttemptStore persists retrain attempt state transitions for audit.
type AttemptStore struct {
	db *gorm.DB
}

// NewAttemptStore wraps the shared ledger handle.
func NewAttemptStore(db *gorm.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Create inserts a new attempt in the given initial status.
func (s *AttemptStore) Create(triggerID string, status models.AttemptStatus) (*models.RetrainAttempt, error) {
	attempt := &models.RetrainAttempt{
		ID:         uuid.New(),
		TriggerID:  triggerID,
		Status:     status,
		EnqueuedAt: time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := s.db.Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("creating attempt for %s: %w", triggerID, err)
	}
	return attempt, nil
}

// Transition updates the attempt's status and reason.
func (s *AttemptStore) Transition(id uuid.UUID, status models.AttemptStatus, reason string) error {
	err := s.db.Model(&models.RetrainAttempt{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"reason":     reason,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("transitioning attempt %s to %s: %w", id, status, err)
	}
	return nil
}

// ByTrigger returns all attempts recorded for a trigger, newest first.
func (s *AttemptStore) ByTrigger(triggerID string) ([]models.RetrainAttempt, error) {
	var attempts []models.RetrainAttempt
	err := s.db.Where("trigger_id = ?", triggerID).
		Order("enqueued_at DESC").Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("listing attempts for %s: %w", triggerID, err)
	}
	return attempts, nil
}
