package tasks

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/htbwatch/htb-relay/app/feed"
)

// Task carries the bookkeeping shared by scheduled work: a unique ID for
// log correlation and the execution timer.
type Task struct {
	ID        string
	Kind      feed.Kind
	StartedAt *time.Time
}

func NewTask(kind feed.Kind) Task {
	return Task{
		ID:   fmt.Sprintf("%d-%d", time.Now().UnixNano(), rand.Intn(10000)),
		Kind: kind,
	}
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}
