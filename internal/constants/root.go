package constants

import "time"

// HabitStatus represents the lifecycle state of a habit
type HabitStatus string

// PeriodType represents the unit of a habit frequency window
type PeriodType string

// OrderBy represents how a habit list is ordered when rendered
type OrderBy string

// StorageType represents the storage backend holding habit lists
type StorageType string

const (
	AppName            = "beaver"
	DefaultKeyringUser = "database-connection"
	TokenKeyringUser   = "token-secret"
	Version            = "v0.3.0"

	// Limits
	MaxHabitNameLength = 130
	MaxNoteLength      = 300
	MaxWeeklyGoal      = 7
	MaxPeriodCount     = 100
	MaxTargetCount     = 1000
	HabitIDLength      = 8

	// Backup constants
	DefaultMaxBackups = 14
	BackupDirName     = "backups"
	BackupFileSuffix  = ".json.zst"

	// ExternalTimeout bounds every outbound HTTP call (backup transport)
	ExternalTimeout = 5 * time.Second

	// DefaultCompletionCacheSize is the number of completion results kept in memory
	DefaultCompletionCacheSize = 1024

	// Habit statuses, in render order
	HabitStatusActive      HabitStatus = "active"
	HabitStatusArchived    HabitStatus = "archive"
	HabitStatusSoftDeleted HabitStatus = "soft_delete"

	// Period types
	PeriodDay   PeriodType = "D"
	PeriodWeek  PeriodType = "W"
	PeriodMonth PeriodType = "M"
	PeriodYear  PeriodType = "Y"

	// Order modes
	OrderByName     OrderBy = "NAME"
	OrderByCategory OrderBy = "CATEGORY"
	OrderByManually OrderBy = "MANUALLY"

	// Storage backends
	StorageFile     StorageType = "file"
	StorageSQLite   StorageType = "sqlite"
	StoragePostgres StorageType = "postgres"
)
