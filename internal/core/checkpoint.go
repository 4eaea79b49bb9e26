package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Checkpoint struct {
	ID         string    `json:"id"`
	StageIndex int       `json:"stage_index"`
	StageName  string    `json:"stage_name"`
	Timestamp  time.Time `json:"timestamp"`
	Completed  []string  `json:"completed"`
	PlanSource string    `json:"plan_source,omitempty"`
	Units      int       `json:"units"`
	Fallbacks  int       `json:"fallback_units"`
	Images     int       `json:"images"`
	Pages      int       `json:"pages"`
	Document   string    `json:"document,omitempty"`

	Progress    *UnitProgressStats `json:"unit_progress,omitempty"`
	ResumeCount int                `json:"resume_count"`
}

type CheckpointManager struct {
	storage Storage
}

func NewCheckpointManager(storage Storage) *CheckpointManager {
	return &CheckpointManager{
		storage: storage,
	}
}

// Save records that the stage at stageIndex finished for p.
func (cm *CheckpointManager) Save(ctx context.Context, p *Project, stageIndex int, stageName string, progress *UnitProgressStats) error {
	checkpoint := &Checkpoint{
		ID:         p.ID,
		StageIndex: stageIndex,
		StageName:  stageName,
		Timestamp:  time.Now(),
		Completed:  append([]string(nil), p.CompletedStages...),
		PlanSource: p.PlanSource,
		Units:      len(p.Contents),
		Fallbacks:  p.FallbackUnits(),
		Images:     len(p.Images),
		Pages:      len(p.Pages),
		Document:   p.DocumentPath,
		Progress:   progress,
	}
	if prev, err := cm.Load(ctx, p.ID); err == nil {
		checkpoint.ResumeCount = prev.ResumeCount
	}
	return cm.SaveCheckpoint(ctx, checkpoint)
}

// SaveCheckpoint saves a checkpoint struct directly.
func (cm *CheckpointManager) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	return cm.storage.Save(ctx, checkpointFile(checkpoint.ID), data)
}

// MarkAsResumed bumps the resume counter of an existing checkpoint.
func (cm *CheckpointManager) MarkAsResumed(ctx context.Context, id string) error {
	checkpoint, err := cm.Load(ctx, id)
	if err != nil {
		return err
	}
	checkpoint.ResumeCount++
	return cm.SaveCheckpoint(ctx, checkpoint)
}

func (cm *CheckpointManager) Load(ctx context.Context, id string) (*Checkpoint, error) {
	data, err := cm.storage.Load(ctx, checkpointFile(id))
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func checkpointFile(id string) string {
	return fmt.Sprintf("checkpoints/%s.json", id)
}
