// Package taskqueue tracks action dispatches and their lifecycle.
package taskqueue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/kiki/internal/chat"
	kerrors "github.com/harunnryd/kiki/internal/errors"
)

// Outcome settles a running task. A non-nil Err marks the task failed.
type Outcome struct {
	Result any
	Err    error
}

// Queue keeps tasks in dispatch order. A task moves from running to exactly one terminal
// status and never leaves it.
type Queue struct {
	mu    sync.RWMutex
	tasks []chat.Task
	index map[string]int
}

func New() *Queue {
	return &Queue{index: make(map[string]int)}
}

// Enqueue appends a task in running status.
func (q *Queue) Enqueue(task chat.Task) (chat.Task, error) {
	if task.ID == "" {
		return chat.Task{}, kerrors.InvalidInput("task id is empty")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.index[task.ID]; exists {
		return chat.Task{}, kerrors.Conflict(fmt.Sprintf("task %s already enqueued", task.ID))
	}

	task = task.Clone()
	task.Status = chat.TaskRunning
	task.Result = nil
	task.Error = ""
	q.index[task.ID] = len(q.tasks)
	q.tasks = append(q.tasks, task)
	return task.Clone(), nil
}

// Settle moves a running task to completed or error. A terminal task always carries a
// result: the action output, or the failure reason for error. Settling an unknown or
// already settled task changes nothing and is reported.
func (q *Queue) Settle(id string, outcome Outcome) (chat.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i, ok := q.index[id]
	if !ok {
		slog.Warn("Settle called for unknown task", "task_id", id)
		return chat.Task{}, kerrors.NotFound(fmt.Sprintf("task %s", id))
	}

	task := &q.tasks[i]
	if task.Status.Terminal() {
		slog.Warn("Settle called for task already settled", "task_id", id, "status", task.Status)
		return task.Clone(), kerrors.Conflict(fmt.Sprintf("task %s already %s", id, task.Status))
	}

	if outcome.Err != nil {
		task.Status = chat.TaskError
		task.Error = outcome.Err.Error()
		task.Result = task.Error
	} else {
		task.Status = chat.TaskCompleted
		task.Result = outcome.Result
		if task.Result == nil {
			task.Result = ""
		}
	}
	return task.Clone(), nil
}

func (q *Queue) Get(id string) (chat.Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	i, ok := q.index[id]
	if !ok {
		return chat.Task{}, false
	}
	return q.tasks[i].Clone(), true
}

// Tasks returns copies of all tasks in dispatch order.
func (q *Queue) Tasks() []chat.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]chat.Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Clone()
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tasks = nil
	q.index = make(map[string]int)
}
