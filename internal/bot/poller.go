package bot

import (
	"context"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPollTimeout = 30 * time.Second
	minPollBackoff     = time.Second
	maxPollBackoff     = 30 * time.Second
)

// UpdateSource long-polls the transport for updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]messenger.Update, error)
}

// Submitter accepts updates for processing.
type Submitter interface {
	Submit(ctx context.Context, upd messenger.Update)
}

// Poller feeds long-polled updates to a Submitter.
type Poller struct {
	source  UpdateSource
	sink    Submitter
	timeout time.Duration
	sleep   func(ctx context.Context, d time.Duration)
}

// NewPoller constructs a Poller. A non-positive timeout uses 30s.
func NewPoller(source UpdateSource, sink Submitter, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &Poller{source: source, sink: sink, timeout: timeout, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Run polls until ctx is cancelled. Transport failures back off exponentially.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	backoff := minPollBackoff
	log.Infof("long polling started (timeout=%s)", p.timeout)
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.source.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warnf("get updates failed, retrying in %s", backoff)
			p.sleep(ctx, backoff)
			backoff = min(backoff*2, maxPollBackoff)
			continue
		}
		backoff = minPollBackoff
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			p.sink.Submit(ctx, upd)
		}
	}
}
