// Package budget tracks spend across rolling calendar periods and latches
// emergency mode when critical thresholds are crossed.
package budget

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/costbook"
)

type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Threshold actions.
const (
	ActionLog           = "log"
	ActionNotify        = "notify"
	ActionEmergencyMode = "emergency_mode"
)

// Threshold fires once per period when daily percent-used reaches Percentage.
type Threshold struct {
	Percentage float64
	Action     string
}

type Config struct {
	DailyLimit   float64
	WeeklyLimit  float64
	MonthlyLimit float64

	Thresholds       []Threshold
	EmergencyEnabled bool
	DisableProviders []string
}

// DefaultThresholds warn at 50% and 80% and latch emergency mode at the
// configured critical percentage.
func DefaultThresholds(emergencyAt float64) []Threshold {
	return []Threshold{
		{Percentage: 50, Action: ActionLog},
		{Percentage: 80, Action: ActionNotify},
		{Percentage: emergencyAt, Action: ActionEmergencyMode},
	}
}

// Status is a derived snapshot of one period.
type Status struct {
	Period      Period    `json:"period"`
	Limit       float64   `json:"limit"`
	Spent       float64   `json:"spent"`
	Remaining   float64   `json:"remaining"`
	PercentUsed float64   `json:"percent_used"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Alert is delivered to the notify callback when a threshold fires.
type Alert struct {
	Period      Period  `json:"period"`
	Percentage  float64 `json:"percentage"`
	Action      string  `json:"action"`
	PercentUsed float64 `json:"percent_used"`
	Spent       float64 `json:"spent"`
	Limit       float64 `json:"limit"`
}

// Tracker serializes all mutation behind a single lock; snapshots take the
// same lock and return copies.
type Tracker struct {
	mu        sync.Mutex
	records   []costbook.Actual
	cfg       Config
	emergency bool
	fired     map[string]bool
	alertDay  time.Time

	logger *zap.Logger
	notify func(Alert)
	now    func() time.Time
}

type Option func(*Tracker)

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithNotify installs the alert fan-out callback (the event hub bridge).
func WithNotify(fn func(Alert)) Option {
	return func(t *Tracker) { t.notify = fn }
}

func NewTracker(cfg Config, logger *zap.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:    cfg,
		fired:  make(map[string]bool),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.alertDay, _ = periodBounds(Daily, t.now())
	return t
}

// rolloverLocked releases fired alert keys and the emergency latch when the
// daily period has advanced, so day 2 starts with a clean slate.
func (t *Tracker) rolloverLocked() {
	start, _ := periodBounds(Daily, t.now())
	if start.Equal(t.alertDay) {
		return
	}
	t.alertDay = start
	t.fired = make(map[string]bool)
	if t.emergency {
		t.logger.Info("emergency mode released on daily rollover")
	}
	t.emergency = false
}

// RecordCost appends one actual cost and evaluates alert thresholds.
func (t *Tracker) RecordCost(cost costbook.Actual) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	if cost.Timestamp.IsZero() {
		cost.Timestamp = t.now()
	}
	t.records = append(t.records, cost)
	t.checkAlertsLocked()
}

// Status computes the spend snapshot for a period.
func (t *Tracker) Status(period Period) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.statusLocked(period)
}

func (t *Tracker) statusLocked(period Period) Status {
	now := t.now()
	start, end := periodBounds(period, now)
	limit := t.limitFor(period)

	var spent float64
	for _, r := range t.records {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			spent += r.TotalCost
		}
	}

	spent = roundMicro(spent)
	remaining := roundMicro(limit - spent)
	if remaining < 0 {
		remaining = 0
	}

	var pct float64
	if limit > 0 {
		pct = roundPct(spent / limit * 100)
	}

	return Status{
		Period:      period,
		Limit:       limit,
		Spent:       spent,
		Remaining:   remaining,
		PercentUsed: pct,
		PeriodStart: start,
		PeriodEnd:   end,
	}
}

// SpendByProvider aggregates current-month spend per provider.
func (t *Tracker) SpendByProvider() map[string]float64 {
	return t.aggregate(func(r costbook.Actual) string { return r.Provider })
}

// SpendByModel aggregates current-month spend per provider/model.
func (t *Tracker) SpendByModel() map[string]float64 {
	return t.aggregate(func(r costbook.Actual) string { return r.Provider + "/" + r.Model })
}

func (t *Tracker) aggregate(key func(costbook.Actual) string) map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	start, end := periodBounds(Monthly, t.now())
	out := make(map[string]float64)
	for _, r := range t.records {
		if !r.Timestamp.Before(start) && r.Timestamp.Before(end) {
			out[key(r)] = roundMicro(out[key(r)] + r.TotalCost)
		}
	}
	return out
}

func (t *Tracker) checkAlertsLocked() {
	daily := t.statusLocked(Daily)

	thresholds := append([]Threshold(nil), t.cfg.Thresholds...)
	sort.Slice(thresholds, func(i, j int) bool { return thresholds[i].Percentage < thresholds[j].Percentage })

	for _, th := range thresholds {
		if daily.PercentUsed < th.Percentage {
			continue
		}
		key := alertKey(Daily, th)
		if t.fired[key] {
			continue
		}
		t.fired[key] = true

		alert := Alert{
			Period:      Daily,
			Percentage:  th.Percentage,
			Action:      th.Action,
			PercentUsed: daily.PercentUsed,
			Spent:       daily.Spent,
			Limit:       daily.Limit,
		}

		switch th.Action {
		case ActionLog:
			t.logger.Info("budget threshold reached",
				zap.Float64("threshold_pct", th.Percentage),
				zap.Float64("percent_used", daily.PercentUsed))
		case ActionNotify:
			t.logger.Warn("budget threshold reached",
				zap.Float64("threshold_pct", th.Percentage),
				zap.Float64("percent_used", daily.PercentUsed),
				zap.Float64("spent", daily.Spent),
				zap.Float64("limit", daily.Limit))
			if t.notify != nil {
				t.notify(alert)
			}
		case ActionEmergencyMode:
			if t.cfg.EmergencyEnabled && !t.emergency {
				t.emergency = true
				t.logger.Warn("emergency mode latched",
					zap.Float64("threshold_pct", th.Percentage),
					zap.Float64("percent_used", daily.PercentUsed))
				if t.notify != nil {
					t.notify(alert)
				}
			}
		}
	}
}

// EmergencyMode reports the current latch state.
func (t *Tracker) EmergencyMode() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked()
	return t.emergency
}

// SetEmergencyMode forces the latch (admin override).
func (t *Tracker) SetEmergencyMode(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emergency = on
}

// IsProviderDisabled is true only while emergency mode is latched and the
// provider is listed for disablement.
func (t *Tracker) IsProviderDisabled(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	if !t.emergency {
		return false
	}
	for _, p := range t.cfg.DisableProviders {
		if p == provider {
			return true
		}
	}
	return false
}

// Prune drops cost records older than 90 days.
func (t *Tracker) Prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().AddDate(0, 0, -90)
	kept := t.records[:0]
	dropped := 0
	for _, r := range t.records {
		if r.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	t.records = kept
	return dropped
}

// ResetAlerts clears fired alert keys and the emergency latch ahead of the
// automatic daily rollover (admin override).
func (t *Tracker) ResetAlerts() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.fired = make(map[string]bool)
	t.emergency = false
}

// UpdateConfig swaps limits and thresholds atomically.
func (t *Tracker) UpdateConfig(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

func (t *Tracker) limitFor(period Period) float64 {
	switch period {
	case Daily:
		return t.cfg.DailyLimit
	case Weekly:
		return t.cfg.WeeklyLimit
	case Monthly:
		return t.cfg.MonthlyLimit
	default:
		return 0
	}
}

func periodBounds(period Period, now time.Time) (time.Time, time.Time) {
	switch period {
	case Daily:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 0, 1)
	case Weekly:
		// ISO week: Monday 00:00 inclusive through next Monday exclusive.
		offset := (int(now.Weekday()) + 6) % 7
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}

func alertKey(period Period, th Threshold) string {
	return fmt.Sprintf("%s:%s:%g", period, th.Action, th.Percentage)
}

// roundMicro rounds to micro-USD.
func roundMicro(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// roundPct rounds to 0.01%.
func roundPct(v float64) float64 {
	return math.Round(v*100) / 100
}
