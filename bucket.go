package insteon

import (
	"container/list"
	"context"
	"time"
)

// TokenBucket paces delivery of items at a configurable token rate,
// serializing submissions independent of caller burstiness. Grounded on
// original_source/src/txHA/tbq.py's TokenBucketQueue — the sole reference
// in the corpus for this exact refill/debit/FIFO contract.
type TokenBucket struct {
	rate   float64 // tokens per second
	size   float64 // bucket capacity
	cost   float64 // tokens per item

	cmds chan bucketCmd
	done chan struct{}
}

type bucketCmd struct {
	kind  bucketCmdKind
	item  interface{}
	reply chan bucketReply
}

type bucketCmdKind int

const (
	cmdPut bucketCmdKind = iota
	cmdGet
	cmdPause
	cmdResume
	cmdCancel
)

type bucketReply struct {
	item interface{}
	err  error
}

// waiter is a single-assignment future: exactly one of (item, err) is
// ever delivered on ch.
type waiter struct {
	ch chan bucketReply
}

// NewTokenBucket starts the pacer's owning goroutine. rate is tokens per
// second, size is the maximum burst, cost is tokens debited per item.
// Defaults mirror tbq.py's call sites: rate=1.0, size=1.0, cost=1.0.
func NewTokenBucket(rate, size, cost float64, startPaused bool) *TokenBucket {
	if rate <= 0 {
		rate = 1.0
	}
	if size <= 0 {
		size = 1.0
	}
	if cost <= 0 {
		cost = 1.0
	}
	b := &TokenBucket{
		rate: rate,
		size: size,
		cost: cost,
		cmds: make(chan bucketCmd),
		done: make(chan struct{}),
	}
	go b.run(startPaused)
	return b
}

func (b *TokenBucket) run(startPaused bool) {
	// tbq.py:31 starts empty (self.tokens = 0.0) and only ramps up by
	// 1.0 per refill tick thereafter (tbq.py:53-62); starting full would
	// let a bucket_size>1 admit a full burst the instant it is
	// constructed/resumed, which the original never does.
	tokens := 0.0
	paused := startPaused
	pending := list.New()
	waiters := list.New()

	interval := time.Duration(float64(time.Second) / b.rate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if paused {
		ticker.Stop()
	}

	deliver := func() {
		for tokens >= b.cost && pending.Len() > 0 && waiters.Len() > 0 {
			tokens -= b.cost
			item := pending.Remove(pending.Front())
			w := waiters.Remove(waiters.Front()).(*waiter)
			select {
			case w.ch <- bucketReply{item: item}:
			default:
			}
		}
	}

	for {
		select {
		case <-b.done:
			for e := waiters.Front(); e != nil; e = e.Next() {
				w := e.Value.(*waiter)
				select {
				case w.ch <- bucketReply{err: context.Canceled}:
				default:
				}
			}
			return

		case <-ticker.C:
			if paused {
				continue
			}
			tokens += 1.0
			if tokens > b.size {
				tokens = b.size
			}
			deliver()

		case cmd := <-b.cmds:
			switch cmd.kind {
			case cmdPut:
				if !paused && tokens >= b.cost && waiters.Len() > 0 {
					tokens -= b.cost
					w := waiters.Remove(waiters.Front()).(*waiter)
					select {
					case w.ch <- bucketReply{item: cmd.item}:
					default:
					}
				} else {
					pending.PushBack(cmd.item)
				}
				close(cmd.reply)

			case cmdGet:
				if !paused && tokens >= b.cost && pending.Len() > 0 {
					tokens -= b.cost
					item := pending.Remove(pending.Front())
					cmd.reply <- bucketReply{item: item}
					close(cmd.reply)
				} else {
					w := &waiter{ch: make(chan bucketReply, 1)}
					waiters.PushBack(w)
					// hand the caller the waiter itself via reply
					cmd.reply <- bucketReply{item: w}
					close(cmd.reply)
				}

			case cmdPause:
				paused = true
				ticker.Stop()
				close(cmd.reply)

			case cmdResume:
				if paused {
					paused = false
					ticker.Reset(interval)
				}
				deliver()
				close(cmd.reply)

			case cmdCancel:
				target := cmd.item.(*waiter)
				for e := waiters.Front(); e != nil; e = e.Next() {
					if e.Value.(*waiter) == target {
						waiters.Remove(e)
						break
					}
				}
				close(cmd.reply)
			}
		}
	}
}

// Put hands item to the head waiter if tokens and a waiter are
// immediately available; otherwise it is queued in strict FIFO order.
func (b *TokenBucket) Put(ctx context.Context, item interface{}) error {
	reply := make(chan bucketReply)
	select {
	case b.cmds <- bucketCmd{kind: cmdPut, item: item, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-reply
	return nil
}

// Get blocks until an item is available at the current token rate,
// honoring strict FIFO order among concurrent Get callers.
func (b *TokenBucket) Get(ctx context.Context) (interface{}, error) {
	reply := make(chan bucketReply)
	select {
	case b.cmds <- bucketCmd{kind: cmdGet, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r := <-reply
	if r.err != nil {
		return nil, r.err
	}
	if w, ok := r.item.(*waiter); ok {
		select {
		case wr := <-w.ch:
			return wr.item, wr.err
		case <-ctx.Done():
			b.cancel(w)
			return nil, ctx.Err()
		}
	}
	return r.item, nil
}

func (b *TokenBucket) cancel(w *waiter) {
	reply := make(chan bucketReply)
	select {
	case b.cmds <- bucketCmd{kind: cmdCancel, item: w, reply: reply}:
		<-reply
	case <-b.done:
	}
}

// Pause suspends refill; items already pending remain pending and no new
// debits occur.
func (b *TokenBucket) Pause() {
	reply := make(chan bucketReply)
	select {
	case b.cmds <- bucketCmd{kind: cmdPause, reply: reply}:
		<-reply
	case <-b.done:
	}
}

// Resume re-enables refill and attempts an immediate delivery pass.
func (b *TokenBucket) Resume() {
	reply := make(chan bucketReply)
	select {
	case b.cmds <- bucketCmd{kind: cmdResume, reply: reply}:
		<-reply
	case <-b.done:
	}
}

// Close stops the pacer's goroutine and fails every outstanding waiter.
func (b *TokenBucket) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}
