// Package bot turns transport updates into flow events, commands and gated deliveries.
package bot

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
	log "github.com/sirupsen/logrus"
)

// Handler processes one update.
type Handler interface {
	Handle(ctx context.Context, upd messenger.Update)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, upd messenger.Update)

func (f HandlerFunc) Handle(ctx context.Context, upd messenger.Update) { f(ctx, upd) }

type userQueue struct {
	pending []messenger.Update
}

// Dispatcher runs updates of the same user one at a time in arrival order. Updates of
// different users run concurrently. Each user's worker exits once its queue is drained.
// Handlers are not cancelled with the submitting context; only Shutdown cancels them.
type Dispatcher struct {
	handler Handler
	base    context.Context
	stop    context.CancelFunc

	mu     sync.Mutex
	queues map[int64]*userQueue
	wg     sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(handler Handler) *Dispatcher {
	base, stop := context.WithCancel(context.Background())
	return &Dispatcher{handler: handler, base: base, stop: stop, queues: make(map[int64]*userQueue)}
}

// UpdateUserID returns the user an update belongs to, or 0 when it has no sender.
func UpdateUserID(upd messenger.Update) int64 {
	switch {
	case upd.CallbackQuery != nil:
		return upd.CallbackQuery.From.ID
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.Message != nil:
		return upd.Message.Chat.ID
	default:
		return 0
	}
}

// Submit enqueues upd. The handler gets ctx's values, detached from its cancellation.
func (d *Dispatcher) Submit(ctx context.Context, upd messenger.Update) {
	userID := UpdateUserID(upd)
	if userID == 0 {
		log.WithField("update_id", upd.UpdateID).Debug("update without sender ignored")
		return
	}

	d.mu.Lock()
	q, running := d.queues[userID]
	if !running {
		q = &userQueue{}
		d.queues[userID] = q
	}
	q.pending = append(q.pending, upd)
	d.mu.Unlock()

	if !running {
		d.wg.Add(1)
		go d.drain(context.WithoutCancel(ctx), userID)
	}
}

func (d *Dispatcher) drain(parent context.Context, userID int64) {
	defer d.wg.Done()
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	unlink := context.AfterFunc(d.base, cancel)
	defer unlink()
	for {
		d.mu.Lock()
		q := d.queues[userID]
		if q == nil || len(q.pending) == 0 {
			delete(d.queues, userID)
			d.mu.Unlock()
			return
		}
		upd := q.pending[0]
		q.pending[0] = messenger.Update{}
		q.pending = q.pending[1:]
		d.mu.Unlock()

		d.handle(ctx, upd)
	}
}

func (d *Dispatcher) handle(ctx context.Context, upd messenger.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"update_id": upd.UpdateID, "panic": r}).Errorf("update handler panicked\n%s", debug.Stack())
		}
	}()
	d.handler.Handle(ctx, upd)
}

// Active returns the number of users with queued or running updates.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits up to timeout for queued updates, then cancels the handlers still
// running and waits for them to return. It reports whether the drain finished in time.
func (d *Dispatcher) Shutdown(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		d.stop()
		return true
	case <-timer.C:
		d.stop()
		<-done
		return false
	}
}
