package queue

import (
	"sync"
)

type Error uint8

var (
	ErrQueueIsStoped Error = 1
)

func (e Error) Error() string {
	switch e {
	case ErrQueueIsStoped:
		return "queue is stopped"
	default:
		return "unknown error"
	}
}

// Queue runs tasks one at a time on a single goroutine, in push order.
// Push never blocks, so a task may push further tasks.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

func New() *Queue {
	mq := &Queue{done: make(chan struct{})}
	mq.cond = sync.NewCond(&mq.mu)
	go mq.run()
	return mq
}

func (mq *Queue) run() {
	defer close(mq.done)
	for {
		mq.mu.Lock()
		for len(mq.tasks) == 0 && !mq.closed {
			mq.cond.Wait()
		}
		if len(mq.tasks) == 0 {
			mq.mu.Unlock()
			return
		}
		task := mq.tasks[0]
		mq.tasks[0] = nil
		mq.tasks = mq.tasks[1:]
		mq.mu.Unlock()
		task()
	}
}

// Close stops accepting tasks. Tasks already pushed still run, then the worker exits.
// Close does not wait, so it is safe to call from inside a task.
func (mq *Queue) Close() {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		return
	}
	mq.closed = true
	mq.cond.Signal()
}

// Done is closed once the worker goroutine has exited.
func (mq *Queue) Done() <-chan struct{} {
	return mq.done
}

// Push appends a task. It returns ErrQueueIsStoped after Close.
func (mq *Queue) Push(task func()) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	if mq.closed {
		return ErrQueueIsStoped
	}
	mq.tasks = append(mq.tasks, task)
	mq.cond.Signal()
	return nil
}
