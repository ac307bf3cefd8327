package confirmation

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

type task struct {
	id    int
	due   time.Time
	seq   uint64
	index int

	// owned by the worker running the task while it is out of the queue
	attempt int
	backoff *backoff.ExponentialBackOff
}

// taskQueue is a min-heap of tasks ordered by due time, then by scheduling order.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].seq < q[j].seq
	}
	return q[i].due.Before(q[j].due)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
