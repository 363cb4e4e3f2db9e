package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergrid/edgesync/internal/store"
)

func fixedValidator(now time.Time) *Validator {
	v := NewValidator()
	v.nowFunc = func() time.Time { return now }

	return v
}

// issueFields collects the Field of every issue at the given severity.
func issueFields(issues []Issue, sev Severity) []string {
	var out []string

	for _, i := range issues {
		if i.Severity == sev {
			out = append(out, i.Field)
		}
	}

	return out
}

func TestValidate_PlausibleReadingPasses(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := pendingReading(now.Add(-time.Minute))

	issues := fixedValidator(now).Validate(&r)

	assert.Empty(t, issues)
	assert.False(t, HasErrors(issues))
}

func TestValidate_Timestamps(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name      string
		createdAt time.Time
		wantError bool
	}{
		{"now", now, false},
		{"within skew grace", now.Add(4 * time.Minute), false},
		{"too far in the future", now.Add(10 * time.Minute), true},
		{"eleven months old", now.Add(-330 * 24 * time.Hour), false},
		{"older than a year", now.Add(-366 * 24 * time.Hour), true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := pendingReading(tc.createdAt)
			issues := fixedValidator(now).Validate(&r)

			if tc.wantError {
				require.True(t, HasErrors(issues))
				assert.Contains(t, issueFields(issues, SeverityError), "created_at")
			} else {
				assert.False(t, HasErrors(issues))
			}
		})
	}
}

func TestValidate_ElectricalRanges(t *testing.T) {
	t.Parallel()

	now := time.Now()

	cases := []struct {
		name      string
		mutate    func(r *store.Reading)
		wantField string
	}{
		{"voltage below range", func(r *store.Reading) { r.VoltageL2 = floatPtr(110) }, "voltage_l2"},
		{"voltage above range", func(r *store.Reading) { r.VoltageL1 = floatPtr(9000) }, "voltage_l1"},
		{"current below range", func(r *store.Reading) { r.CurrentL1 = floatPtr(0.05) }, "current_l1"},
		{"current above range", func(r *store.Reading) { r.CurrentL3 = floatPtr(1500) }, "current_l3"},
		{"frequency below range", func(r *store.Reading) { r.Frequency = floatPtr(44.9) }, "frequency"},
		{"frequency above range", func(r *store.Reading) { r.Frequency = floatPtr(65.1) }, "frequency"},
		{"negative power factor", func(r *store.Reading) { r.PowerFactorTotal = floatPtr(-0.1) }, "power_factor_total"},
		{"power factor above one", func(r *store.Reading) { r.PowerFactorL1 = floatPtr(1.2) }, "power_factor_l1"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			r := pendingReading(now.Add(-time.Minute))
			tc.mutate(&r)

			issues := fixedValidator(now).Validate(&r)

			require.True(t, HasErrors(issues))
			assert.Contains(t, issueFields(issues, SeverityError), tc.wantField)
		})
	}
}

func TestValidate_BoundaryValuesAreAccepted(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := pendingReading(now.Add(-time.Minute))
	r.VoltageL1 = floatPtr(minVoltage)
	r.VoltageL2 = floatPtr(maxVoltage)
	r.CurrentL1 = floatPtr(minCurrent)
	r.Frequency = floatPtr(maxFrequency)
	r.PowerFactorTotal = floatPtr(1.0)

	issues := fixedValidator(now).Validate(&r)

	assert.False(t, HasErrors(issues))
}

func TestValidate_NilMeasurementsAreSkipped(t *testing.T) {
	t.Parallel()

	now := time.Now()
	r := store.Reading{
		CreatedAt:  now.Add(-time.Minute),
		SyncStatus: store.StatusPending,
	}

	issues := fixedValidator(now).Validate(&r)

	assert.False(t, HasErrors(issues), "absent measurements are not range violations")
}

func TestValidate_MockPatterns(t *testing.T) {
	t.Parallel()

	now := time.Now()

	t.Run("round values warn", func(t *testing.T) {
		t.Parallel()

		r := pendingReading(now.Add(-time.Minute))
		r.VoltageL1 = floatPtr(230)
		r.VoltageL2 = floatPtr(230)
		r.VoltageL3 = floatPtr(230)

		issues := fixedValidator(now).Validate(&r)

		assert.False(t, HasErrors(issues), "synthetic-looking data warns, never rejects")
		assert.Contains(t, issueFields(issues, SeverityWarning), "measurements")
	})

	t.Run("zero values warn", func(t *testing.T) {
		t.Parallel()

		r := pendingReading(now.Add(-time.Minute))
		r.CurrentL1 = floatPtr(0)
		r.Frequency = floatPtr(0)
		r.PowerFactorTotal = floatPtr(0)

		issues := fixedValidator(now).Validate(&r)

		assert.Contains(t, issueFields(issues, SeverityWarning), "measurements")
	})

	t.Run("test status rejects", func(t *testing.T) {
		t.Parallel()

		r := pendingReading(now.Add(-time.Minute))
		r.SyncStatus = "TEST_run"

		issues := fixedValidator(now).Validate(&r)

		require.True(t, HasErrors(issues))
		assert.Contains(t, issueFields(issues, SeverityError), "sync_status")
	})
}

func TestSeverityLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "WARN", SeverityWarning.LogLevel().String())
	assert.Equal(t, "ERROR", SeverityError.LogLevel().String())
}
