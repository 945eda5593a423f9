// File: internal/infra/sched/expiry_watcher.go
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/infra/metrics"
	"telegram-vpn-provisioning/internal/usecase"
)

// ExpiryWatcher periodically alerts about clients whose expiry falls within the
// alert threshold. Each (client, expiry) pair is announced once per process;
// a renewal changes the expiry and re-arms the alert.
type ExpiryWatcher struct {
	interval   time.Duration
	threshold  time.Duration
	approverID int64
	lifecycle  usecase.LifecycleUseCase
	notifier   adapter.Notifier
	tr         usecase.Translator
	now        func() time.Time
	log        *zerolog.Logger

	mu       sync.Mutex
	notified map[string]time.Time
}

func NewExpiryWatcher(interval, threshold time.Duration, approverID int64, lifecycle usecase.LifecycleUseCase, notifier adapter.Notifier, tr usecase.Translator, logger *zerolog.Logger) *ExpiryWatcher {
	compLog := logger.With().Str("component", "ExpiryWatcher").Logger()
	return &ExpiryWatcher{
		interval:   interval,
		threshold:  threshold,
		approverID: approverID,
		lifecycle:  lifecycle,
		notifier:   notifier,
		tr:         tr,
		now:        time.Now,
		log:        &compLog,
		notified:   make(map[string]time.Time),
	}
}

func (w *ExpiryWatcher) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Dur("threshold", w.threshold).Msg("Starting expiry watcher")
	// Run once on startup, then on every tick
	w.runCheck(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry watcher")
			return ctx.Err()
		case <-ticker.C:
			w.runCheck(ctx)
		}
	}
}

func (w *ExpiryWatcher) runCheck(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWatcherScan("panic")
			w.log.Error().Interface("panic", r).Msg("expiry scan panicked")
		}
	}()
	sent, err := w.Scan(ctx)
	if err != nil {
		metrics.IncWatcherScan("error")
		w.log.Error().Err(err).Msg("expiry scan failed")
		return
	}
	metrics.IncWatcherScan("ok")
	if sent > 0 {
		w.log.Info().Int("count", sent).Msg("expiry alerts sent")
	}
}

// Scan runs one cycle and returns how many clients were announced.
func (w *ExpiryWatcher) Scan(ctx context.Context) (int, error) {
	clients, err := w.lifecycle.List(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := w.lifecycle.Stats(ctx); err != nil {
		w.log.Warn().Err(err).Msg("registry gauge refresh failed")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	present := make(map[string]struct{}, len(clients))
	sent := 0
	for _, c := range clients {
		present[c.ID] = struct{}{}
		hours := model.HoursRemaining(c.ExpiresAt, now)
		if hours < 0 || hours > w.threshold.Hours() {
			continue
		}
		if last, ok := w.notified[c.ID]; ok && last.Equal(c.ExpiresAt) {
			continue
		}
		if err := w.alert(ctx, c, hours); err != nil {
			w.log.Error().Err(err).Str("client_id", c.ID).Msg("expiry alert failed; will retry next cycle")
			continue
		}
		w.notified[c.ID] = c.ExpiresAt
		sent++
	}
	for id := range w.notified {
		if _, ok := present[id]; !ok {
			delete(w.notified, id)
		}
	}
	return sent, nil
}

func (w *ExpiryWatcher) alert(ctx context.Context, c *model.ClientRecord, hours float64) error {
	expiry := c.ExpiresAt.Format(usecase.DisplayLayout)
	if err := w.notifier.Send(ctx, w.approverID, w.tr.T("watch_admin_alert", c.ID, hours, expiry)); err != nil {
		return err
	}
	metrics.IncExpiryNotification("approver")
	if c.Owner != 0 && c.Owner != w.approverID {
		if err := w.notifier.Send(ctx, c.Owner, w.tr.T("watch_owner_alert", c.ID, expiry)); err != nil {
			w.log.Warn().Err(err).Str("client_id", c.ID).Msg("owner alert failed")
		} else {
			metrics.IncExpiryNotification("owner")
		}
	}
	return nil
}
