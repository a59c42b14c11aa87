package prefetch

import (
	"time"
)

type TaskType string

const (
	TaskTypeImage TaskType = "image"
	TaskTypeItem  TaskType = "item"
)

type State string

const (
	StateQueued State = "queued"
	StateActive State = "active"
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Task tracks one speculative load. Tasks are never retried.
type Task struct {
	Key       string
	Type      TaskType
	State     State
	StartedAt *time.Time
	Duration  time.Duration
	Err       error
}

func NewTask(taskType TaskType, key string) *Task {
	return &Task{
		Key:   key,
		Type:  taskType,
		State: StateQueued,
	}
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
	t.State = StateActive
}

func (t *Task) Finish(err error) {
	t.Duration = t.GetDuration()
	t.Err = err
	if err != nil {
		t.State = StateFailed
		return
	}
	t.State = StateDone
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func (t *Task) Settled() bool {
	return t.State == StateDone || t.State == StateFailed
}

type Stats struct {
	Queued     int `json:"queued"`
	Active     int `json:"active"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	PeakActive int `json:"peak_active"`
}

func collectStats(tasks map[string]*Task, peak int) Stats {
	stats := Stats{PeakActive: peak}
	for _, task := range tasks {
		switch task.State {
		case StateQueued:
			stats.Queued++
		case StateActive:
			stats.Active++
		case StateDone:
			stats.Done++
		case StateFailed:
			stats.Failed++
		}
	}
	return stats
}
