package aggregate

import (
	"strconv"
	"strings"
	"time"
)

// Task is one completed-task queue entry.
type Task struct {
	TaskID       string    `json:"task_id"`
	TaskTitle    string    `json:"task_title"`
	SpecName     string    `json:"spec_name"`
	CompletedAt  time.Time `json:"completed_at"`
	FilesChanged []string  `json:"files_changed,omitempty"`
	PhaseNumber  int       `json:"phase_number"`
	TaskNumber   int       `json:"task_number"`
}

// NewTask builds a Task, deriving phase and task numbers from the id.
func NewTask(taskID, title, specName string, files []string) Task {
	phase, num := ParseTaskID(taskID)
	return Task{
		TaskID:       taskID,
		TaskTitle:    title,
		SpecName:     specName,
		CompletedAt:  time.Now(),
		FilesChanged: files,
		PhaseNumber:  phase,
		TaskNumber:   num,
	}
}

// ParseTaskID splits an id like "3.7" into phase 3, task 7. A bare integer
// is task N of phase 1. Unparseable ids default to phase 1, task 1; this
// never fails.
func ParseTaskID(taskID string) (phase, task int) {
	parts := strings.Split(taskID, ".")
	if len(parts) >= 2 {
		p, errP := strconv.Atoi(strings.TrimSpace(parts[0]))
		n, errN := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errP == nil && errN == nil {
			return p, n
		}
		return 1, 1
	}
	if n, err := strconv.Atoi(strings.TrimSpace(taskID)); err == nil {
		return 1, n
	}
	return 1, 1
}
