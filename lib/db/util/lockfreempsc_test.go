package util

import (
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests basic push and consume functionality
func TestBasicOperations(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		if !q.Push(&i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %v", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", *val)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestPushNil verifies that nil items are rejected
func TestPushNil(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got len %d", q.Len())
	}
}

// TestConcurrentProducers verifies that every item of every producer is delivered exactly once
// and that the items of one producer keep their order
func TestConcurrentProducers(t *testing.T) {
	q := NewLockFreeMPSC[[2]int]()
	defer q.Close()

	const numProducers = 8
	const itemsPerProducer = 1000
	totalItems := numProducers * itemsPerProducer

	done := make(chan struct{})
	lastSeen := make([]int, numProducers)
	for i := range lastSeen {
		lastSeen[i] = -1
	}
	receivedCount := 0

	go func() {
		defer close(done)
		for receivedCount < totalItems {
			select {
			case val := <-q.Recv():
				producer, seq := val[0], val[1]
				if seq != lastSeen[producer]+1 {
					t.Errorf("Producer %d: expected item %d, got %d", producer, lastSeen[producer]+1, seq)
				}
				lastSeen[producer] = seq
				receivedCount++
			case <-time.After(5 * time.Second):
				t.Errorf("Timeout waiting for items, received %d of %d", receivedCount, totalItems)
				return
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(numProducers)
	for p := 0; p < numProducers; p++ {
		go func(producerID int) {
			defer wg.Done()
			for i := 0; i < itemsPerProducer; i++ {
				item := [2]int{producerID, i}
				if !q.Push(&item) {
					t.Errorf("Producer %d failed to push item %d", producerID, i)
				}
				if i%100 == 0 {
					runtime.Gosched()
				}
			}
		}(p)
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatalf("Timeout waiting for consumer to finish")
	}
	if receivedCount != totalItems {
		t.Errorf("Expected %d items, got %d", totalItems, receivedCount)
	}
}

// TestCloseQueue verifies that items pushed before Close are still delivered
func TestCloseQueue(t *testing.T) {
	q := NewLockFreeMPSC[int]()

	for i := 0; i < 5; i++ {
		q.Push(&i)
	}
	q.Close()

	val := 100
	if q.Push(&val) {
		t.Error("Should not be able to push after queue is closed")
	}
	if !q.IsClosed() {
		t.Error("IsClosed should be true after Close")
	}

	for i := 0; i < 5; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %v", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d after close", i)
		}
	}

	if _, ok := <-q.Recv(); ok {
		t.Error("Channel should be closed but is still open")
	}
}

// TestNoLostWakeup pushes single items with pauses so the consumer goes to sleep between them
func TestNoLostWakeup(t *testing.T) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	for i := 0; i < 200; i++ {
		q.Push(&i)
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Fatalf("Expected %d, got %d", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Item %d was not delivered", i)
		}
		if i%20 == 0 {
			time.Sleep(time.Millisecond)
		}
	}
}

// BenchmarkSingleProducer benchmarks the queue with a single producer
func BenchmarkSingleProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(&i)
	}
}

// BenchmarkMultiProducer benchmarks the queue with multiple producers
func BenchmarkMultiProducer(b *testing.B) {
	q := NewLockFreeMPSC[int]()
	defer q.Close()

	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			v := i
			q.Push(&v)
			i++
		}
	})
}
