package insteon

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketFIFO(t *testing.T) {
	b := NewTokenBucket(1000, 1000, 1, false)
	defer b.Close()

	ctx := context.Background()
	if err := b.Put(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	first, err := b.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first != "a" || second != "b" {
		t.Fatalf("got %v, %v; want a, b", first, second)
	}
}

func TestTokenBucketGetBlocksUntilPut(t *testing.T) {
	b := NewTokenBucket(1000, 1000, 1, false)
	defer b.Close()

	ctx := context.Background()
	type result struct {
		item interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		item, err := b.Get(ctx)
		done <- result{item, err}
	}()

	select {
	case <-done:
		t.Fatal("Get returned before a matching Put")
	case <-time.After(50 * time.Millisecond):
	}

	if err := b.Put(ctx, "late"); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-done:
		if r.err != nil || r.item != "late" {
			t.Fatalf("got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("Get never resolved after Put")
	}
}

func TestTokenBucketPauseResume(t *testing.T) {
	b := NewTokenBucket(1000, 1000, 1, false)
	defer b.Close()

	b.Pause()
	if err := b.Put(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Get(ctx); err == nil {
		t.Fatal("Get succeeded while paused")
	}

	b.Resume()
	item, err := b.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if item != "x" {
		t.Fatalf("got %v, want x", item)
	}
}

func TestTokenBucketCancelOnContext(t *testing.T) {
	b := NewTokenBucket(1000, 1000, 1, true) // startPaused: nothing will ever be available
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Get(ctx); err == nil {
		t.Fatal("expected Get to fail once ctx is canceled")
	}
}

func TestTokenBucketRateBound(t *testing.T) {
	// Window of ~200ms at a 20 token/s refill rate, size 1: the bucket
	// starts empty (matching tbq.py's self.tokens = 0.0) and only ramps
	// up by one token per tick, so the number of items a continuous
	// stream of Gets can drain is bounded by floor(window*rate), with no
	// initial-burst term, matching the §8 pacer invariant.
	const rate = 20.0
	const size = 1.0
	b := NewTokenBucket(rate, size, 1, false)
	defer b.Close()

	window := 200 * time.Millisecond
	deadline := time.Now().Add(window)
	count := 0
	for time.Now().Before(deadline) {
		if err := b.Put(context.Background(), count); err != nil {
			t.Fatal(err)
		}
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		_, err := b.Get(ctx)
		cancel()
		if err != nil {
			break
		}
		count++
	}
	bound := int(window.Seconds()*rate) + 1 // +1 slack for timing jitter
	if count > bound {
		t.Fatalf("drained %d items in %v, bound is %d", count, window, bound)
	}
}

func TestTokenBucketClose(t *testing.T) {
	b := NewTokenBucket(1, 1, 1, true)
	done := make(chan struct{})
	go func() {
		_, err := b.Get(context.Background())
		if err == nil {
			t.Error("expected Get to fail after Close")
		}
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Close")
	}
}
