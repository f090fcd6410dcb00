package publish

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecorder keeps a history of publish runs.
type RunRecorder interface {
	Start(ctx context.Context, id uuid.UUID, inventory string, startedAt time.Time) error
	Finish(ctx context.Context, id uuid.UUID, sum Summary, runErr error, details map[string]any) error
}

// Run is one recorded publish run.
type Run struct {
	ID         uuid.UUID      `json:"id"`
	Inventory  string         `json:"inventory"`
	Status     string         `json:"status"`
	Summary    Summary        `json:"summary"`
	Error      string         `json:"error,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

type runModel struct {
	ID         uuid.UUID         `gorm:"type:uuid;primaryKey"`
	Inventory  string            `gorm:"type:text"`
	Status     string            `gorm:"type:text"`
	Files      int               `gorm:"type:integer"`
	Uploaded   int               `gorm:"type:integer"`
	Skipped    int               `gorm:"type:integer"`
	Error      *string           `gorm:"type:text"`
	Details    datatypes.JSONMap `gorm:"type:jsonb"`
	StartedAt  time.Time         `gorm:"type:timestamptz"`
	FinishedAt *time.Time        `gorm:"type:timestamptz"`
}

func (runModel) TableName() string { return "publish_runs" }

func (r runModel) toRun() Run {
	run := Run{
		ID:         r.ID,
		Inventory:  r.Inventory,
		Status:     r.Status,
		Summary:    Summary{Files: r.Files, Uploaded: r.Uploaded, Skipped: r.Skipped},
		Details:    map[string]any(r.Details),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Error != nil {
		run.Error = *r.Error
	}
	return run
}

// Ledger stores publish runs in the publish_runs table through gorm.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger returns a ledger over db.
func NewLedger(db *gorm.DB) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("gorm db is required")
	}
	return &Ledger{db: db, now: time.Now}, nil
}

func (l *Ledger) Start(ctx context.Context, id uuid.UUID, inventory string, startedAt time.Time) error {
	model := runModel{
		ID:        id,
		Inventory: inventory,
		Status:    RunStatusRunning,
		StartedAt: startedAt.UTC(),
	}
	return l.db.WithContext(ctx).Create(&model).Error
}

func (l *Ledger) Finish(ctx context.Context, id uuid.UUID, sum Summary, runErr error, details map[string]any) error {
	finished := l.now().UTC()
	updates := map[string]any{
		"status":      RunStatusSucceeded,
		"files":       sum.Files,
		"uploaded":    sum.Uploaded,
		"skipped":     sum.Skipped,
		"finished_at": finished,
	}
	if runErr != nil {
		updates["status"] = RunStatusFailed
		updates["error"] = runErr.Error()
	}
	if details != nil {
		updates["details"] = datatypes.JSONMap(details)
	}
	res := l.db.WithContext(ctx).Model(&runModel{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Recent returns the latest runs of inventory, newest first.
func (l *Ledger) Recent(ctx context.Context, inventory string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var models []runModel
	q := l.db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if inventory != "" {
		q = q.Where("inventory = ?", inventory)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	runs := make([]Run, 0, len(models))
	for _, m := range models {
		runs = append(runs, m.toRun())
	}
	return runs, nil
}
