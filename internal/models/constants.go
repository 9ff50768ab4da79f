package models

import "time"

const (
	RoleCustomer = "customer"
	RoleCleaner  = "cleaner"
	RoleAdmin    = "admin"
)

const (
	// MaxBookingHours caps a single visit.
	MaxBookingHours = 24

	// DefaultCheckRecordTTL how long simulated check records live in Redis.
	DefaultCheckRecordTTL = 30 * 24 * time.Hour

	// WorkerQueueSize in-memory sync queue capacity.
	WorkerQueueSize = 1000

	// DefaultListLimit applies when a filter carries no limit.
	DefaultListLimit = 100

	// DefaultPaginationSize rows per page in operator bot lists.
	DefaultPaginationSize = 5

	// MaxUploadBytes default per-document size limit.
	MaxUploadBytes = 10 << 20

	// UploadRateLimit uploads per user per UploadRateWindow.
	UploadRateLimit  = 20
	UploadRateWindow = time.Hour
)
