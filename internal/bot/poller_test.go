package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ibrohim2505/prokinobot/internal/messenger"
)

type scriptedSource struct {
	mu      sync.Mutex
	calls   int
	offsets []int64
	batches [][]messenger.Update
	fail    map[int]bool
	cancel  context.CancelFunc
}

func (s *scriptedSource) GetUpdates(_ context.Context, offset int64, _ time.Duration) ([]messenger.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.calls
	s.calls++
	s.offsets = append(s.offsets, offset)
	if s.fail[call] {
		return nil, errors.New("network down")
	}
	if len(s.batches) == 0 {
		s.cancel()
		return nil, nil
	}
	batch := s.batches[0]
	s.batches = s.batches[1:]
	return batch, nil
}

type recordingSink struct {
	got []int64
}

func (r *recordingSink) Submit(_ context.Context, upd messenger.Update) {
	r.got = append(r.got, upd.UpdateID)
}

func TestPollerAdvancesOffsetAndRetries(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &scriptedSource{
		batches: [][]messenger.Update{
			{{UpdateID: 10}, {UpdateID: 11}},
			{{UpdateID: 12}},
		},
		fail:   map[int]bool{1: true},
		cancel: cancel,
	}
	sink := &recordingSink{}
	p := NewPoller(source, sink, time.Second)
	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.got) != 3 || sink.got[0] != 10 || sink.got[2] != 12 {
		t.Fatalf("expected updates 10..12, got %v", sink.got)
	}
	want := []int64{0, 12, 12, 13}
	if len(source.offsets) != len(want) {
		t.Fatalf("expected offsets %v, got %v", want, source.offsets)
	}
	for i := range want {
		if source.offsets[i] != want[i] {
			t.Fatalf("expected offsets %v, got %v", want, source.offsets)
		}
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected one backoff of 1s, got %v", slept)
	}
}
