// Package store implements the LOCAL and REMOTE persistence layers over
// pgx connection pools. Column lists are pinned by schema here; nothing is
// derived from runtime reflection.
package store

import (
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNoTenant means LOCAL holds no tenant row yet (fresh install before
	// the first tenant download).
	ErrNoTenant = errors.New("store: no local tenant")

	// ErrBatchConfigUnavailable means the tenant batch-size columns do not
	// exist on LOCAL (schema not yet migrated). Callers fall back to
	// defaults.
	ErrBatchConfigUnavailable = errors.New("store: batch config columns unavailable")
)

// Meter is the replicated meter-configuration row. REMOTE is authoritative;
// the LOCAL image is maintained by the download manager.
type Meter struct {
	MeterID        int64  `json:"meter_id"`
	TenantID       int64  `json:"tenant_id"`
	Name           string `json:"name"`
	DeviceID       int64  `json:"device_id"`
	IP             string `json:"ip"`
	Port           string `json:"port"`
	Active         bool   `json:"active"`
	Element        string `json:"element"`
	MeterElementID int64  `json:"meter_element_id"`
}

// Tenant is the replicated tenant row. DownloadBatchSize, UploadBatchSize
// and APIKey are LOCAL-only metadata and are never overwritten by REMOTE
// data; REMOTE listings leave them nil.
type Tenant struct {
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Street   string `json:"street"`
	Street2  string `json:"street2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Active   bool   `json:"active"`

	DownloadBatchSize *int    `json:"download_batch_size,omitempty"`
	UploadBatchSize   *int    `json:"upload_batch_size,omitempty"`
	APIKey            *string `json:"-"`
}

// Sync log operation kinds.
const (
	OpUpload         = "upload"
	OpMeterDownload  = "meter_download"
	OpTenantDownload = "tenant_download"
)

// SyncLogEntry is one append-only diagnostics row. SyncedAt is assigned by
// the database default.
type SyncLogEntry struct {
	OperationType string
	BatchSize     int
	Success       bool
	ErrorMessage  string
	SyncedAt      time.Time
}
