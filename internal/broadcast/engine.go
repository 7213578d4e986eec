package broadcast

import (
	"context"
	"sync/atomic"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
	"github.com/ibrohim2505/prokinobot/internal/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the fan-out width used when none is configured.
const DefaultConcurrency = 4

// Job is a composed broadcast.
type Job struct {
	Kind    messenger.ContentKind
	FileID  string
	Caption string
	Buttons []session.ButtonSpec
}

// JobFromFields converts the flow fields into a Job.
func JobFromFields(f session.BroadcastFields) Job {
	kind := messenger.ContentKind(f.ContentKind)
	if kind == "" {
		kind = messenger.KindText
	}
	return Job{Kind: kind, FileID: f.FileID, Caption: f.Caption, Buttons: f.Buttons}
}

// Payload renders the job for the messenger.
func (j Job) Payload() messenger.Payload {
	return messenger.Payload{
		Kind:      j.Kind,
		FileID:    j.FileID,
		Text:      j.Caption,
		Keyboard:  Keyboard(j.Buttons),
		ParseMode: "HTML",
	}
}

// Report counts the outcome of one run. Total is the number of recipients.
type Report struct {
	Success int
	Failed  int
	Total   int
}

// Sender sends one payload.
type Sender interface {
	SendContent(ctx context.Context, chatID int64, p messenger.Payload) (messenger.MessageRef, error)
}

// Engine fans a job out with bounded concurrency.
type Engine struct {
	sender      Sender
	concurrency int
}

// NewEngine constructs an Engine. concurrency < 1 uses DefaultConcurrency; 1 is sequential.
func NewEngine(sender Sender, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Engine{sender: sender, concurrency: concurrency}
}

// Send delivers job to every recipient. A failed recipient is counted and never stops
// the run.
func (e *Engine) Send(ctx context.Context, job Job, recipients []int64) Report {
	payload := job.Payload()
	var success, failed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for _, chatID := range recipients {
		chatID := chatID
		g.Go(func() error {
			if _, err := e.sender.SendContent(ctx, chatID, payload); err != nil {
				failed.Add(1)
				log.WithError(err).WithField("chat_id", chatID).Debug("broadcast recipient failed")
				return nil
			}
			success.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Success: int(success.Load()), Failed: int(failed.Load()), Total: len(recipients)}
	log.WithFields(log.Fields{"success": report.Success, "failed": report.Failed, "total": report.Total}).Info("broadcast finished")
	return report
}
