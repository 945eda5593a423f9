//go:build !integration

package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/usecase"
)

const adminID int64 = 1

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

type fakeLifecycle struct {
	usecase.LifecycleUseCase // unused methods panic

	mu      sync.Mutex
	records map[string]*model.ClientRecord
	listErr error
}

func (f *fakeLifecycle) List(ctx context.Context) ([]*model.ClientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*model.ClientRecord, 0, len(f.records))
	for _, r := range f.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeLifecycle) Stats(ctx context.Context) (usecase.ClientStats, error) {
	return usecase.ClientStats{}, nil
}

func (f *fakeLifecycle) set(rec *model.ClientRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

type countingNotifier struct {
	mu    sync.Mutex
	texts map[int64][]string
	err   error
}

func (n *countingNotifier) Send(ctx context.Context, recipient int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.texts[recipient] = append(n.texts[recipient], text)
	return nil
}
func (n *countingNotifier) SendDocument(context.Context, int64, adapter.FileRef, string) error {
	return nil
}
func (n *countingNotifier) SendPhoto(context.Context, int64, adapter.FileRef, string) error {
	return nil
}
func (n *countingNotifier) PresentChoice(context.Context, int64, string, []adapter.Choice) error {
	return nil
}

func (n *countingNotifier) count(recipient int64) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.texts[recipient])
}

type plainTranslator struct{}

func (plainTranslator) T(key string, args ...interface{}) string { return key + fmt.Sprint(args...) }

func newWatcherFixture(now time.Time) (*ExpiryWatcher, *fakeLifecycle, *countingNotifier) {
	life := &fakeLifecycle{records: map[string]*model.ClientRecord{}}
	notifier := &countingNotifier{texts: map[int64][]string{}}
	w := NewExpiryWatcher(time.Hour, time.Hour, adminID, life, notifier, plainTranslator{}, newTestLogger())
	w.now = func() time.Time { return now }
	return w, life, notifier
}

func TestExpiryWatcher_Scan(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC)

	t.Run("should alert once per expiry and re-arm after renewal", func(t *testing.T) {
		// --- Arrange ---
		w, life, notifier := newWatcherFixture(now)
		life.set(&model.ClientRecord{ID: "alice", Plan: "30 días", ExpiresAt: now.Add(30 * time.Minute)})

		// --- Act ---
		for i := 0; i < 5; i++ {
			if _, err := w.Scan(ctx); err != nil {
				t.Fatalf("Scan: %v", err)
			}
		}

		// --- Assert ---
		if got := notifier.count(adminID); got != 1 {
			t.Fatalf("expected exactly one alert over 5 cycles, got %d", got)
		}

		// --- Act: renewal moves the expiry, still inside the threshold ---
		life.set(&model.ClientRecord{ID: "alice", Plan: "30 días", ExpiresAt: now.Add(50 * time.Minute)})
		sent, _ := w.Scan(ctx)

		// --- Assert ---
		if sent != 1 || notifier.count(adminID) != 2 {
			t.Errorf("expected a new alert after renewal, got sent=%d total=%d", sent, notifier.count(adminID))
		}
	})

	t.Run("should ignore clients outside the threshold", func(t *testing.T) {
		w, life, notifier := newWatcherFixture(now)
		life.set(&model.ClientRecord{ID: "later", Plan: "30 días", ExpiresAt: now.Add(2 * time.Hour)})
		life.set(&model.ClientRecord{ID: "gone", Plan: "30 días", ExpiresAt: now.Add(-time.Minute)})

		sent, err := w.Scan(ctx)

		if err != nil || sent != 0 || notifier.count(adminID) != 0 {
			t.Errorf("expected no alerts, got sent=%d err=%v", sent, err)
		}
	})

	t.Run("should also alert the owner", func(t *testing.T) {
		w, life, notifier := newWatcherFixture(now)
		life.set(&model.ClientRecord{ID: "Ana_42", Plan: "Free (5 horas)", ExpiresAt: now.Add(10 * time.Minute), Owner: 42})

		_, _ = w.Scan(ctx)

		if notifier.count(42) != 1 || notifier.count(adminID) != 1 {
			t.Errorf("expected approver and owner alerts, got %v", notifier.texts)
		}
	})

	t.Run("should retry when delivery fails", func(t *testing.T) {
		w, life, notifier := newWatcherFixture(now)
		life.set(&model.ClientRecord{ID: "alice", Plan: "30 días", ExpiresAt: now.Add(30 * time.Minute)})
		notifier.err = errors.New("telegram down")

		_, _ = w.Scan(ctx)
		notifier.err = nil
		sent, _ := w.Scan(ctx)

		if sent != 1 {
			t.Errorf("expected the alert on the next cycle, got %d", sent)
		}
	})

	t.Run("should keep running after a failed cycle", func(t *testing.T) {
		w, life, notifier := newWatcherFixture(now)
		life.listErr = errors.New("registry unreadable")
		life.records["alice"] = &model.ClientRecord{ID: "alice", Plan: "30 días", ExpiresAt: now.Add(30 * time.Minute)}

		w.runCheck(ctx)
		life.mu.Lock()
		life.listErr = nil
		life.mu.Unlock()
		w.runCheck(ctx)

		if notifier.count(adminID) != 1 {
			t.Errorf("expected recovery on the next cycle, got %d alerts", notifier.count(adminID))
		}
	})
}

func TestExpiryWatcher_Run(t *testing.T) {
	t.Run("should stop when the context is cancelled", func(t *testing.T) {
		w, _, _ := newWatcherFixture(time.Now())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- w.Run(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("watcher did not stop")
		}
	})
}
