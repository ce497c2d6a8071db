package views

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is a transient notification shown after an action.
type Toast struct {
	ID        string    `json:"id"`
	Kind      ToastKind `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Toasts is a bounded FIFO of pending notifications, safe for concurrent
// use. When full, the oldest toast is dropped.
type Toasts struct {
	mu    sync.Mutex
	items []Toast
	max   int
	now   func() time.Time
}

// NewToasts creates a queue holding at most max toasts.
func NewToasts(max int) *Toasts {
	if max < 1 {
		max = 1
	}
	return &Toasts{max: max, now: time.Now}
}

// Push queues a toast and returns its id.
func (t *Toasts) Push(kind ToastKind, msg string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	toast := Toast{ID: uuid.NewString(), Kind: kind, Message: msg, CreatedAt: t.now()}
	t.items = append(t.items, toast)
	if len(t.items) > t.max {
		t.items = t.items[len(t.items)-t.max:]
	}
	return toast.ID
}

// Success queues a success toast.
func (t *Toasts) Success(msg string) string { return t.Push(ToastSuccess, msg) }

// Error queues an error toast.
func (t *Toasts) Error(msg string) string { return t.Push(ToastError, msg) }

// Drain returns and removes every queued toast, oldest first.
func (t *Toasts) Drain() []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.items
	t.items = nil
	return out
}

// Dismiss removes a toast by id and reports whether it was queued.
func (t *Toasts) Dismiss(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, toast := range t.items {
		if toast.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued toasts.
func (t *Toasts) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
