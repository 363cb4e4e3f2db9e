package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sync status tags for the meter_reading.sync_status column.
const (
	StatusPending          = "pending"
	StatusSynchronized     = "synchronized"
	StatusFailedValidation = "failed_validation"
)

// Reading is one meter reading row. Measurement fields are pointers because
// every measurement column is nullable: a meter reports only the quantities
// its element supports.
type Reading struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	TenantID       int64
	MeterID        int64
	MeterElementID int64

	// Phase voltages (V).
	VoltageL1 *float64
	VoltageL2 *float64
	VoltageL3 *float64

	// Line-to-line voltages (V).
	VoltageL12 *float64
	VoltageL23 *float64
	VoltageL31 *float64

	// Currents (A).
	CurrentL1 *float64
	CurrentL2 *float64
	CurrentL3 *float64
	CurrentN  *float64

	// Active power (W).
	ActivePowerL1    *float64
	ActivePowerL2    *float64
	ActivePowerL3    *float64
	ActivePowerTotal *float64

	// Reactive power (var).
	ReactivePowerL1    *float64
	ReactivePowerL2    *float64
	ReactivePowerL3    *float64
	ReactivePowerTotal *float64

	// Apparent power (VA).
	ApparentPowerL1    *float64
	ApparentPowerL2    *float64
	ApparentPowerL3    *float64
	ApparentPowerTotal *float64

	// Power factor (dimensionless, 0..1).
	PowerFactorL1    *float64
	PowerFactorL2    *float64
	PowerFactorL3    *float64
	PowerFactorTotal *float64

	// Grid frequency (Hz).
	Frequency *float64

	// Energy counters (Wh / varh).
	EnergyActiveImport   *float64
	EnergyActiveExport   *float64
	EnergyReactiveImport *float64
	EnergyReactiveExport *float64

	// Total harmonic distortion (%).
	THDVoltageL1 *float64
	THDVoltageL2 *float64
	THDVoltageL3 *float64
	THDCurrentL1 *float64
	THDCurrentL2 *float64
	THDCurrentL3 *float64

	// LOCAL-only bookkeeping; never replicated to REMOTE.
	SyncStatus     string
	IsSynchronized bool
	RetryCount     int64
}

// replicatedColumns enumerates the columns copied to REMOTE, in the exact
// order replicatedArgs and scanDest produce values. Additions to the reading
// table require editing all three together; the columns are pinned here
// deliberately instead of being derived at runtime.
var replicatedColumns = []string{
	"meter_reading_id", "created_at", "tenant_id", "meter_id", "meter_element_id",
	"voltage_l1", "voltage_l2", "voltage_l3",
	"voltage_l12", "voltage_l23", "voltage_l31",
	"current_l1", "current_l2", "current_l3", "current_n",
	"active_power_l1", "active_power_l2", "active_power_l3", "active_power_total",
	"reactive_power_l1", "reactive_power_l2", "reactive_power_l3", "reactive_power_total",
	"apparent_power_l1", "apparent_power_l2", "apparent_power_l3", "apparent_power_total",
	"power_factor_l1", "power_factor_l2", "power_factor_l3", "power_factor_total",
	"frequency",
	"energy_active_import", "energy_active_export",
	"energy_reactive_import", "energy_reactive_export",
	"thd_voltage_l1", "thd_voltage_l2", "thd_voltage_l3",
	"thd_current_l1", "thd_current_l2", "thd_current_l3",
}

// localOnlyColumns exist only in the LOCAL schema.
var localOnlyColumns = []string{"sync_status", "is_synchronized", "retry_count"}

// localColumns is the full LOCAL select list.
var localColumns = append(append([]string{}, replicatedColumns...), localOnlyColumns...)

// replicatedArgs returns the values for the replicated columns, in
// replicatedColumns order.
func (r *Reading) replicatedArgs() []any {
	return []any{
		r.ID, r.CreatedAt, r.TenantID, r.MeterID, r.MeterElementID,
		r.VoltageL1, r.VoltageL2, r.VoltageL3,
		r.VoltageL12, r.VoltageL23, r.VoltageL31,
		r.CurrentL1, r.CurrentL2, r.CurrentL3, r.CurrentN,
		r.ActivePowerL1, r.ActivePowerL2, r.ActivePowerL3, r.ActivePowerTotal,
		r.ReactivePowerL1, r.ReactivePowerL2, r.ReactivePowerL3, r.ReactivePowerTotal,
		r.ApparentPowerL1, r.ApparentPowerL2, r.ApparentPowerL3, r.ApparentPowerTotal,
		r.PowerFactorL1, r.PowerFactorL2, r.PowerFactorL3, r.PowerFactorTotal,
		r.Frequency,
		r.EnergyActiveImport, r.EnergyActiveExport,
		r.EnergyReactiveImport, r.EnergyReactiveExport,
		r.THDVoltageL1, r.THDVoltageL2, r.THDVoltageL3,
		r.THDCurrentL1, r.THDCurrentL2, r.THDCurrentL3,
	}
}

// scanDest returns scan destinations for the full LOCAL select list, in
// localColumns order.
func (r *Reading) scanDest() []any {
	return []any{
		&r.ID, &r.CreatedAt, &r.TenantID, &r.MeterID, &r.MeterElementID,
		&r.VoltageL1, &r.VoltageL2, &r.VoltageL3,
		&r.VoltageL12, &r.VoltageL23, &r.VoltageL31,
		&r.CurrentL1, &r.CurrentL2, &r.CurrentL3, &r.CurrentN,
		&r.ActivePowerL1, &r.ActivePowerL2, &r.ActivePowerL3, &r.ActivePowerTotal,
		&r.ReactivePowerL1, &r.ReactivePowerL2, &r.ReactivePowerL3, &r.ReactivePowerTotal,
		&r.ApparentPowerL1, &r.ApparentPowerL2, &r.ApparentPowerL3, &r.ApparentPowerTotal,
		&r.PowerFactorL1, &r.PowerFactorL2, &r.PowerFactorL3, &r.PowerFactorTotal,
		&r.Frequency,
		&r.EnergyActiveImport, &r.EnergyActiveExport,
		&r.EnergyReactiveImport, &r.EnergyReactiveExport,
		&r.THDVoltageL1, &r.THDVoltageL2, &r.THDVoltageL3,
		&r.THDCurrentL1, &r.THDCurrentL2, &r.THDCurrentL3,
		&r.SyncStatus, &r.IsSynchronized, &r.RetryCount,
	}
}

// insertReadingsSQL builds the single multi-row REMOTE insert for n rows.
// The conflict clause makes re-uploads after a crashed delete harmless: a
// reading id already accepted on REMOTE is silently skipped.
func insertReadingsSQL(n int) string {
	var b strings.Builder

	b.WriteString("INSERT INTO meter_reading (")
	b.WriteString(strings.Join(replicatedColumns, ", "))
	b.WriteString(") VALUES ")

	width := len(replicatedColumns)

	for row := 0; row < n; row++ {
		if row > 0 {
			b.WriteString(", ")
		}

		b.WriteByte('(')

		for col := 0; col < width; col++ {
			if col > 0 {
				b.WriteString(", ")
			}

			fmt.Fprintf(&b, "$%d", row*width+col+1)
		}

		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (meter_reading_id) DO NOTHING")

	return b.String()
}
