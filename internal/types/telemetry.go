package types

import (
	"time"
)

// TelemetryCategory groups upstream telemetry endpoints. Accounts sharing an
// ExternalUID share one fetched snapshot per (uid, category) within a run.
type TelemetryCategory string

const (
	// TelemetryDailyNotes covers resin, realm currency, expeditions,
	// transformer, and daily commission progress.
	TelemetryDailyNotes TelemetryCategory = "daily_notes"
)

// Resin regeneration: one unit per 8 minutes.
const ResinRegenMinutes = 8

// Realm currency accrual varies with rank; the evaluator uses a conservative
// fixed rate of one unit per 2 minutes for forecasting.
const RealmCurrencyRegenMinutes = 2

// ExpeditionState is the lifecycle of one dispatched expedition.
type ExpeditionState string

const (
	ExpeditionOngoing  ExpeditionState = "Ongoing"
	ExpeditionFinished ExpeditionState = "Finished"
)

// Expedition is one dispatched expedition slot in a telemetry snapshot.
type Expedition struct {
	Status        ExpeditionState
	RemainingTime time.Duration
}

// Snapshot is the per-account telemetry fetched fresh each tick from the
// upstream service. It is never persisted; evaluators consume it immediately.
type Snapshot struct {
	ExternalUID string
	FetchedAt   time.Time

	// Resin.
	CurrentResin int
	MaxResin     int

	// Realm currency.
	CurrentRealmCurrency int
	MaxRealmCurrency     int

	// Expeditions.
	Expeditions []Expedition

	// Parametric transformer.
	TransformerObtained  bool
	TransformerRecovery  time.Duration // zero when ready

	// Daily commissions.
	CompletedCommissions int
	TotalCommissions     int
	CommissionRewardDone bool

	// Weekly boss discounts.
	RemainingWeeklyDiscounts int
}

// AnyExpeditionFinished reports whether at least one expedition slot has
// completed and is waiting to be collected.
func (s *Snapshot) AnyExpeditionFinished() bool {
	for _, e := range s.Expeditions {
		if e.Status == ExpeditionFinished {
			return true
		}
	}
	return false
}

// TransformerReady reports whether the parametric transformer is obtained and
// off cooldown.
func (s *Snapshot) TransformerReady() bool {
	return s.TransformerObtained && s.TransformerRecovery <= 0
}

// DailiesDone reports whether all commissions are complete and the extra
// reward has been claimed.
func (s *Snapshot) DailiesDone() bool {
	return s.TotalCommissions > 0 &&
		s.CompletedCommissions >= s.TotalCommissions &&
		s.CommissionRewardDone
}
