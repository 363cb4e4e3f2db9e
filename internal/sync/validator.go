package sync

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/metergrid/edgesync/internal/store"
)

// Severity grades a validation issue. Errors reject the reading; warnings
// are logged and the reading proceeds.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

// LogLevel maps severity onto slog levels.
func (s Severity) LogLevel() slog.Level {
	if s == SeverityError {
		return slog.LevelError
	}

	return slog.LevelWarn
}

// Issue is one validation finding on a reading.
type Issue struct {
	Field    string
	Message  string
	Severity Severity
}

// Electrical plausibility bounds.
const (
	minVoltage = 200.0
	maxVoltage = 480.0

	minCurrent = 0.1
	maxCurrent = 1000.0

	minFrequency = 45.0
	maxFrequency = 65.0

	maxReadingAge  = 365 * 24 * time.Hour
	clockSkewGrace = 5 * time.Minute

	// mockPatternThreshold readings that are all-round or all-zero across
	// this many core measurements look synthetic.
	mockPatternThreshold = 3
)

// Validator screens readings before upload: timestamp plausibility,
// electrical range sanity, and heuristics for synthetic (mock) data.
type Validator struct {
	nowFunc func() time.Time
}

// NewValidator returns a validator using the wall clock.
func NewValidator() *Validator {
	return &Validator{nowFunc: time.Now}
}

// Validate returns every issue found on the reading. An empty slice means
// the reading passes.
func (v *Validator) Validate(r *store.Reading) []Issue {
	var issues []Issue

	issues = append(issues, v.checkTimestamp(r)...)
	issues = append(issues, checkRanges(r)...)
	issues = append(issues, checkMockPatterns(r)...)

	return issues
}

// HasErrors reports whether any issue is rejection-grade.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}

	return false
}

func (v *Validator) checkTimestamp(r *store.Reading) []Issue {
	now := v.nowFunc()

	if r.CreatedAt.After(now.Add(clockSkewGrace)) {
		return []Issue{{
			Field:    "created_at",
			Message:  fmt.Sprintf("timestamp %s is in the future", r.CreatedAt.Format(time.RFC3339)),
			Severity: SeverityError,
		}}
	}

	if r.CreatedAt.Before(now.Add(-maxReadingAge)) {
		return []Issue{{
			Field:    "created_at",
			Message:  fmt.Sprintf("timestamp %s is older than a year", r.CreatedAt.Format(time.RFC3339)),
			Severity: SeverityError,
		}}
	}

	return nil
}

func checkRanges(r *store.Reading) []Issue {
	var issues []Issue

	voltages := map[string]*float64{
		"voltage_l1": r.VoltageL1, "voltage_l2": r.VoltageL2, "voltage_l3": r.VoltageL3,
	}
	for field, val := range voltages {
		if val != nil && (*val < minVoltage || *val > maxVoltage) {
			issues = append(issues, Issue{
				Field:    field,
				Message:  fmt.Sprintf("voltage %.2f V outside %g-%g V", *val, minVoltage, maxVoltage),
				Severity: SeverityError,
			})
		}
	}

	currents := map[string]*float64{
		"current_l1": r.CurrentL1, "current_l2": r.CurrentL2, "current_l3": r.CurrentL3,
	}
	for field, val := range currents {
		if val != nil && (*val < minCurrent || *val > maxCurrent) {
			issues = append(issues, Issue{
				Field:    field,
				Message:  fmt.Sprintf("current %.3f A outside %g-%g A", *val, minCurrent, maxCurrent),
				Severity: SeverityError,
			})
		}
	}

	if r.Frequency != nil && (*r.Frequency < minFrequency || *r.Frequency > maxFrequency) {
		issues = append(issues, Issue{
			Field:    "frequency",
			Message:  fmt.Sprintf("frequency %.2f Hz outside %g-%g Hz", *r.Frequency, minFrequency, maxFrequency),
			Severity: SeverityError,
		})
	}

	factors := map[string]*float64{
		"power_factor_l1": r.PowerFactorL1, "power_factor_l2": r.PowerFactorL2,
		"power_factor_l3": r.PowerFactorL3, "power_factor_total": r.PowerFactorTotal,
	}
	for field, val := range factors {
		if val != nil && (*val < 0 || *val > 1) {
			issues = append(issues, Issue{
				Field:    field,
				Message:  fmt.Sprintf("power factor %.3f outside 0-1", *val),
				Severity: SeverityError,
			})
		}
	}

	return issues
}

// coreMeasurements are the fields the mock heuristics scan.
func coreMeasurements(r *store.Reading) []*float64 {
	return []*float64{
		r.VoltageL1, r.VoltageL2, r.VoltageL3,
		r.CurrentL1, r.CurrentL2, r.CurrentL3,
		r.ActivePowerTotal, r.Frequency, r.PowerFactorTotal,
	}
}

func checkMockPatterns(r *store.Reading) []Issue {
	var issues []Issue

	round := 0
	zero := 0

	for _, val := range coreMeasurements(r) {
		if val == nil {
			continue
		}

		if *val == 0 {
			zero++

			continue
		}

		if *val == math.Trunc(*val) {
			round++
		}
	}

	if round >= mockPatternThreshold {
		issues = append(issues, Issue{
			Field:    "measurements",
			Message:  fmt.Sprintf("%d perfectly round values suggest synthetic data", round),
			Severity: SeverityWarning,
		})
	}

	if zero >= mockPatternThreshold {
		issues = append(issues, Issue{
			Field:    "measurements",
			Message:  fmt.Sprintf("%d zero values across core measurements", zero),
			Severity: SeverityWarning,
		})
	}

	status := strings.ToLower(r.SyncStatus)
	if strings.Contains(status, "test") || strings.Contains(status, "mock") {
		issues = append(issues, Issue{
			Field:    "sync_status",
			Message:  fmt.Sprintf("sync status %q looks like test data", r.SyncStatus),
			Severity: SeverityError,
		})
	}

	return issues
}
