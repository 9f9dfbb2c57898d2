package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestQueueRunsEnqueuedJobs(t *testing.T) {
	q := NewQueue(QueueOptions{QueueSize: 4, Workers: 2, JobTimeout: time.Second})
	defer q.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ran := 0

	for i := 0; i < 4; i++ {
		wg.Add(1)
		err := q.Enqueue(context.Background(), func(context.Context) {
			mu.Lock()
			ran++
			mu.Unlock()
			wg.Done()
		})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	if ran != 4 {
		t.Fatalf("ran = %d, want 4", ran)
	}
}

func TestQueueEnqueueAfterClose(t *testing.T) {
	q := NewQueue(QueueOptions{QueueSize: 1, Workers: 1, JobTimeout: time.Second})
	q.Close()

	err := q.Enqueue(context.Background(), func(context.Context) {})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestQueueFullReportsError(t *testing.T) {
	q := NewQueue(QueueOptions{QueueSize: 1, Workers: 1, JobTimeout: time.Second})
	defer q.Close()

	release := make(chan struct{})
	blocker := func(context.Context) { <-release }

	// first job occupies the worker, second fills the buffer
	if err := q.Enqueue(context.Background(), blocker); err != nil {
		t.Fatalf("enqueue blocker: %v", err)
	}

	// saturate: the buffered slot may briefly be drained by the worker, so
	// push until the queue reports it is full
	deadline := time.After(2 * time.Second)
	for {
		err := q.Enqueue(context.Background(), blocker)
		if errors.Is(err, ErrQueueFull) {
			break
		}
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		select {
		case <-deadline:
			t.Fatal("queue never reported full")
		default:
		}
	}
	close(release)
}
