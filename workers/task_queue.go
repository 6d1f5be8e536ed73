package workers

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// TaskQueue is a single-worker FIFO executor. Everything submitted runs on
// one goroutine in submission order, which makes the queue the owner of any
// state its tasks touch. The queue is non-reentrant: calling Do from inside
// a task deadlocks.
type TaskQueue struct {
	name  string
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewTaskQueue(name string) *TaskQueue {
	q := &TaskQueue{
		name:  name,
		tasks: make(chan func(), 128),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *TaskQueue) run() {
	defer close(q.done)
	for {
		select {
		case task := <-q.tasks:
			task()
		case <-q.quit:
			// queued but unexecuted tasks are discarded
			return
		}
	}
}

// Async submits a task without waiting for it. Returns false if the queue
// has been stopped; the task is dropped in that case.
func (q *TaskQueue) Async(task func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		logrus.Debugf("Task queue %s is stopped, dropping task", q.name)
		return false
	}
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		return true
	case <-q.quit:
		return false
	}
}

// Do submits a task and blocks until it has run. Returns false if the queue
// stopped before the task could run.
func (q *TaskQueue) Do(task func()) bool {
	ran := make(chan struct{})
	if !q.Async(func() {
		defer close(ran)
		task()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-q.done:
		return false
	}
}

// Stop shuts the queue down and waits for the worker to exit. Tasks still
// waiting in the queue never run.
func (q *TaskQueue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.quit)
	q.mu.Unlock()
	<-q.done
}
