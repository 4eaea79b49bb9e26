package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// UnitRecord is the outcome of one narrative unit.
type UnitRecord struct {
	Index       int       `json:"index"`
	UnitID      string    `json:"unit_id"`
	Fallback    bool      `json:"fallback"`
	Error       string    `json:"error,omitempty"`
	Placeholder int       `json:"placeholders"`
	CompletedAt time.Time `json:"completed_at"`
}

type unitProgress struct {
	ProjectID  string                `json:"project_id"`
	TotalUnits int                   `json:"total_units"`
	Units      map[string]UnitRecord `json:"units"`
	StartTime  time.Time             `json:"start_time"`
	LastUpdate time.Time             `json:"last_update"`
}

// UnitTracker persists per-unit progress so a running job can be inspected.
type UnitTracker struct {
	storage   Storage
	projectID string
	mu        sync.RWMutex
	progress  *unitProgress
}

func NewUnitTracker(storage Storage, projectID string, totalUnits int) *UnitTracker {
	now := time.Now()
	return &UnitTracker{
		storage:   storage,
		projectID: projectID,
		progress: &unitProgress{
			ProjectID:  projectID,
			TotalUnits: totalUnits,
			Units:      make(map[string]UnitRecord),
			StartTime:  now,
			LastUpdate: now,
		},
	}
}

const progressFile = "progress/units.json"

// LoadProgress replaces the in-memory state with the persisted one, if any.
func (t *UnitTracker) LoadProgress(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := t.storage.Load(ctx, progressFile)
	if err != nil {
		return nil
	}

	var progress unitProgress
	if err := json.Unmarshal(data, &progress); err != nil {
		return fmt.Errorf("parsing progress: %w", err)
	}
	if progress.Units == nil {
		progress.Units = make(map[string]UnitRecord)
	}
	t.progress = &progress
	return nil
}

func (t *UnitTracker) saveProgress(ctx context.Context) error {
	t.progress.LastUpdate = time.Now()

	data, err := json.MarshalIndent(t.progress, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling progress: %w", err)
	}
	return t.storage.Save(ctx, progressFile, data)
}

// Record stores the outcome of a unit. cause is nil for accepted units.
func (t *UnitTracker) Record(ctx context.Context, index int, unitID string, placeholders int, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := UnitRecord{
		Index:       index,
		UnitID:      unitID,
		Fallback:    cause != nil,
		Placeholder: placeholders,
		CompletedAt: time.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	t.progress.Units[unitID] = rec
	return t.saveProgress(ctx)
}

func (t *UnitTracker) IsCompleted(unitID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.progress.Units[unitID]
	return ok
}

func (t *UnitTracker) Stats() UnitProgressStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	stats := UnitProgressStats{
		Total:      t.progress.TotalUnits,
		StartTime:  t.progress.StartTime,
		LastUpdate: t.progress.LastUpdate,
	}
	for _, u := range t.progress.Units {
		stats.Completed++
		if u.Fallback {
			stats.Fallback++
		}
	}
	stats.Pending = stats.Total - stats.Completed
	if stats.Total > 0 {
		stats.PercentComplete = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats
}

type UnitProgressStats struct {
	Total           int       `json:"total"`
	Completed       int       `json:"completed"`
	Fallback        int       `json:"fallback"`
	Pending         int       `json:"pending"`
	PercentComplete float64   `json:"percent_complete"`
	StartTime       time.Time `json:"start_time"`
	LastUpdate      time.Time `json:"last_update"`
}
