package tasks

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State ist der Lebenszyklus-Zustand einer Hintergrund-Aufgabe.
type State string

const (
	StatePending  State = "PENDING"
	StateProgress State = "PROGRESS"
	StateSuccess  State = "SUCCESS"
	StateFailure  State = "FAILURE"
)

// Status ist der abfragbare Zustand einer Aufgabe. Result ist nur im
// Erfolgsfall belegt, Status trägt im Fehlerfall die Fehlermeldung.
type Status struct {
	State   State  `json:"state"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Status  string `json:"status"`
	Result  any    `json:"result,omitempty"`
}

// Task ist eine laufende oder abgeschlossene Hintergrund-Aufgabe. Update
// implementiert die Fortschritts-Senke der Pipeline.
type Task struct {
	ID   string
	Name string

	mu     sync.Mutex
	status Status
}

// Update setzt den Fortschritt der Aufgabe.
func (t *Task) Update(current, total int, status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = StateProgress
	t.status.Current = current
	t.status.Total = total
	t.status.Status = status
}

func (t *Task) succeed(result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = StateSuccess
	t.status.Current = t.status.Total
	t.status.Status = "completed"
	t.status.Result = result
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.State = StateFailure
	t.status.Status = err.Error()
}

// Status liefert eine Kopie des aktuellen Zustands.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Runner führt Aufgaben asynchron aus und hält ihren Zustand für pollende
// Aufrufer vor. Es gibt keine Warteschlange; jede Aufgabe startet sofort in
// einer eigenen Goroutine.
type Runner struct {
	Logger *zap.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewRunner erstellt einen neuen Runner.
func NewRunner(logger *zap.Logger) *Runner {
	return &Runner{Logger: logger, tasks: make(map[string]*Task)}
}

// Launch startet eine Aufgabe und gibt sie sofort zurück. Das Ergebnis der
// Funktion wird als Result des Erfolgszustands hinterlegt.
func (r *Runner) Launch(name string, fn func(t *Task) (any, error)) *Task {
	task := &Task{
		ID:     uuid.NewString(),
		Name:   name,
		status: Status{State: StatePending, Status: "pending"},
	}
	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	log := r.Logger.With(zap.String("task_id", task.ID), zap.String("task", name))
	log.Info("Launching background task")

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Background task panicked", zap.Any("panic", rec))
				task.fail(fmt.Errorf("task panicked: %v", rec))
			}
		}()
		result, err := fn(task)
		if err != nil {
			log.Error("Background task failed", zap.Error(err))
			task.fail(err)
			return
		}
		log.Info("Background task finished")
		task.succeed(result)
	}()
	return task
}

// Get liefert eine Aufgabe anhand ihrer ID.
func (r *Runner) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[id]
	return task, ok
}
