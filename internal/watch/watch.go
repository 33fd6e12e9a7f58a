// Package watch periodically checks stock levels and trends and raises alerts.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inventuri/internal/alerting"
	"inventuri/internal/config"
	"inventuri/internal/report"
	"inventuri/internal/scheduler"
	"inventuri/internal/storage"
	"inventuri/internal/trend"
)

// SupplySource yields supplies labelled with their trend.
type SupplySource interface {
	Supplies(ctx context.Context) ([]report.SupplyRow, error)
}

type alertKey struct {
	itemID int64
	reason alerting.Reason
}

// Service runs the stock watch on every scheduler slot.
type Service struct {
	scheduler *scheduler.Scheduler
	supplies  SupplySource
	notifier  alerting.Notifier
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger

	alertsOn     bool
	threshold    int
	onDecreasing bool
	cooldown     time.Duration

	mu   sync.Mutex
	sent map[alertKey]time.Time
	now  func() time.Time
}

// New constructs the stock watch. locker may be nil to run without the
// cross-process lock.
func New(cfg *config.Config, sched *scheduler.Scheduler, supplies SupplySource, notifier alerting.Notifier, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:    sched,
		supplies:     supplies,
		notifier:     notifier,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		logger:       logger.With().Str("component", "watch").Logger(),
		alertsOn:     cfg.Alerting.Enabled,
		threshold:    cfg.Alerting.LowStockThreshold,
		onDecreasing: cfg.Alerting.AlertOnDecreasing,
		cooldown:     cfg.Alerting.Cooldown,
		sent:         make(map[alertKey]time.Time),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run begins the scheduled check loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Check)
}

// Check runs one stock check unless another instance holds the lock.
func (s *Service) Check(ctx context.Context, slot time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("slot", slot).Msg("skip slot because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeCheck(ctx, slot)
}

func (s *Service) executeCheck(ctx context.Context, slot time.Time) error {
	rows, err := s.supplies.Supplies(ctx)
	if errors.Is(err, report.ErrNoData) {
		s.logger.Debug().Time("slot", slot).Msg("no items to check")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load supplies: %w", err)
	}

	notes := s.Evaluate(rows, slot)
	s.logger.Info().Time("slot", slot).Int("items", len(rows)).Int("alerts", len(notes)).Msg("stock check complete")

	if !s.alertsOn || s.notifier == nil {
		return nil
	}
	for _, note := range notes {
		if err := s.notifier.Notify(ctx, note); err != nil {
			s.logger.Error().Err(err).Int64("item_id", note.ItemID).Msg("failed to dispatch alert")
			continue
		}
		s.markSent(note)
	}
	return nil
}

// Evaluate returns the notifications due for rows, leaving out reasons
// already reported within the cooldown. Conditions that cleared reset their
// cooldown so a later recurrence alerts at once.
func (s *Service) Evaluate(rows []report.SupplyRow, slot time.Time) []alerting.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var notes []alerting.Notification
	for _, row := range rows {
		var due []alerting.Reason
		for _, reason := range s.reasons(row) {
			key := alertKey{itemID: row.ID, reason: reason}
			if last, ok := s.sent[key]; ok && now.Sub(last) < s.cooldown {
				continue
			}
			due = append(due, reason)
		}
		s.clearResolved(row)
		if len(due) == 0 {
			continue
		}
		notes = append(notes, alerting.Notification{
			ItemID:     row.ID,
			ItemName:   row.Name,
			Unit:       row.Unit,
			Quantity:   row.Quantity,
			Threshold:  s.threshold,
			Trend:      row.Trend,
			ChangePct:  row.ChangePct,
			Reasons:    due,
			ObservedAt: slot,
		})
	}
	return notes
}

func (s *Service) reasons(row report.SupplyRow) []alerting.Reason {
	var out []alerting.Reason
	if row.Quantity <= s.threshold {
		out = append(out, alerting.ReasonLowStock)
	}
	if s.onDecreasing && row.Trend == trend.Decreasing {
		out = append(out, alerting.ReasonDecreasing)
	}
	return out
}

func (s *Service) clearResolved(row report.SupplyRow) {
	active := map[alerting.Reason]bool{}
	for _, r := range s.reasons(row) {
		active[r] = true
	}
	for _, r := range []alerting.Reason{alerting.ReasonLowStock, alerting.ReasonDecreasing} {
		if !active[r] {
			delete(s.sent, alertKey{itemID: row.ID, reason: r})
		}
	}
}

func (s *Service) markSent(note alerting.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, reason := range note.Reasons {
		s.sent[alertKey{itemID: note.ItemID, reason: reason}] = now
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
