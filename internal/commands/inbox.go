package commands

import (
	"context"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"
)

const inboxBuffer = 64

type EventHandler interface {
	HandleEvent(ctx context.Context, ev Event) (Response, bool)
}

// ReplyFunc delivers a non-empty event response back to the thread the
// event came from.
type ReplyFunc func(ctx context.Context, ev Event, resp Response)

// Inbox queues thread replies and hands them to the handler. Events for the
// same thread always land on the same shard and are handled in arrival
// order; different threads proceed in parallel.
type Inbox struct {
	handler EventHandler
	reply   ReplyFunc
	shards  []chan Event
}

func NewInbox(handler EventHandler, reply ReplyFunc, shards int) *Inbox {
	if shards < 1 {
		shards = 1
	}
	in := &Inbox{
		handler: handler,
		reply:   reply,
		shards:  make([]chan Event, shards),
	}
	for i := range in.shards {
		in.shards[i] = make(chan Event, inboxBuffer)
	}
	return in
}

// Submit enqueues ev, blocking while its shard is full. Events outside a
// thread and messages from bots are dropped here.
func (in *Inbox) Submit(ctx context.Context, ev Event) error {
	if ev.ThreadToken == "" || ev.IsFromBot {
		return nil
	}
	select {
	case in.shards[in.shardFor(ev)] <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (in *Inbox) shardFor(ev Event) int {
	return int(xxhash.Sum64String(string(ev.ThreadToken)) % uint64(len(in.shards)))
}

// Run starts one worker per shard and blocks until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range in.shards {
		g.Go(func() error {
			in.work(ctx, ch)
			return nil
		})
	}
	return g.Wait()
}

func (in *Inbox) work(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			resp, handled := in.handler.HandleEvent(ctx, ev)
			if handled && resp.Text != "" && in.reply != nil {
				in.reply(ctx, ev, resp)
			}
		}
	}
}
