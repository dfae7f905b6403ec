package models

import "time"

// TaskHistory is one row per execution attempt of a task. A row is created
// when the run begins and receives its end time and terminal status when the
// run terminates. Terminal rows are never mutated afterwards.
type TaskHistory struct {
	ID            string     `json:"id" badgerhold:"key"`
	TaskID        string     `json:"task_id" badgerhold:"index"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Success       *bool      `json:"success,omitempty"`
	ArticlesCount *int       `json:"articles_count,omitempty"`
	Message       string     `json:"message,omitempty"`
	TaskStatus    TaskStatus `json:"task_status"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NormalizeTimestamps coerces all timestamps to UTC
func (h *TaskHistory) NormalizeTimestamps() {
	h.StartTime = h.StartTime.UTC()
	h.CreatedAt = h.CreatedAt.UTC()
	if h.EndTime != nil {
		t := h.EndTime.UTC()
		h.EndTime = &t
	}
}
