package commands_test

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/susu3304/piebot/internal/commands"
	"github.com/susu3304/piebot/internal/pie"
)

type recordingHandler struct {
	mu   sync.Mutex
	seen map[pie.Token][]int
	n    int
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev commands.Event) (commands.Response, bool) {
	i, _ := strconv.Atoi(ev.Text)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen == nil {
		h.seen = make(map[pie.Token][]int)
	}
	h.seen[ev.ThreadToken] = append(h.seen[ev.ThreadToken], i)
	h.n++
	if i%10 == 0 {
		return commands.Response{Text: "tenth"}, true
	}
	return commands.Response{}, true
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func TestInboxKeepsPerThreadOrder(t *testing.T) {
	h := &recordingHandler{}
	var (
		mu      sync.Mutex
		replies int
	)
	inbox := commands.NewInbox(h, func(_ context.Context, ev commands.Event, resp commands.Response) {
		mu.Lock()
		replies++
		mu.Unlock()
	}, 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()

	const perThread = 50
	threads := []pie.Token{"t-a", "t-b", "t-c", "t-d", "t-e"}
	for i := 0; i < perThread; i++ {
		for _, tok := range threads {
			ev := commands.Event{Type: commands.EventMessage, Text: fmt.Sprint(i), ThreadToken: tok}
			require.NoError(t, inbox.Submit(ctx, ev))
		}
	}

	require.Eventually(t, func() bool { return h.count() == perThread*len(threads) }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, tok := range threads {
		got := h.seen[tok]
		require.Len(t, got, perThread)
		for i, v := range got {
			assert.Equal(t, i, v, "thread %s out of order", tok)
		}
	}
	mu.Lock()
	assert.Equal(t, 5*len(threads), replies)
	mu.Unlock()
}

func TestInboxDropsUnthreadedAndBotEvents(t *testing.T) {
	h := &recordingHandler{}
	inbox := commands.NewInbox(h, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, inbox.Submit(ctx, commands.Event{Type: commands.EventMessage, Text: "1"}))
	require.NoError(t, inbox.Submit(ctx, commands.Event{Type: commands.EventMessage, Text: "1", ThreadToken: "t", IsFromBot: true}))

	go func() { _ = inbox.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.count())
}

func TestInboxSubmitHonoursContext(t *testing.T) {
	inbox := commands.NewInbox(&recordingHandler{}, nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var err error
	for i := 0; i < 200 && err == nil; i++ {
		err = inbox.Submit(ctx, commands.Event{Type: commands.EventMessage, Text: "1", ThreadToken: "t"})
	}
	assert.ErrorIs(t, err, context.Canceled)
}
