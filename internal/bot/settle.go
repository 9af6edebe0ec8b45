package bot

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/susu3304/piebot/internal/pie"
)

type settler interface {
	Settle(ctx context.Context) (*pie.Report, error)
}

type reportSender interface {
	Send(ctx context.Context, channel, text string) error
}

// settleWorker runs a settlement pass on an interval and posts the report
// whenever the pass closed or failed a pie.
type settleWorker struct {
	engine   settler
	sender   reportSender
	channel  string
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
}

func newSettleWorker(engine settler, sender reportSender, channel string, interval time.Duration) *settleWorker {
	return &settleWorker{
		engine:   engine,
		sender:   sender,
		channel:  channel,
		stopChan: make(chan struct{}),
		interval: interval,
	}
}

func (w *settleWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *settleWorker) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *settleWorker) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *settleWorker) tick(ctx context.Context) {
	report, err := w.engine.Settle(ctx)
	if err != nil {
		log.Printf("settle: scheduled pass failed: %v", err)
		return
	}
	if len(report.Settled) == 0 && len(report.Failures) == 0 {
		return
	}
	msg := report.Render() + "\n(scheduled settlement)"
	if err := w.sendWithRetry(ctx, msg); err != nil {
		log.Printf("settle: failed to post report to channel %s: %v", w.channel, err)
	}
}

func (w *settleWorker) sendWithRetry(ctx context.Context, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		err := w.sender.Send(sendCtx, w.channel, content)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTemporaryOrTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTemporaryOrTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
