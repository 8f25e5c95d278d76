package constants

import "time"

const (
	// Config keys, shared by the YAML file and the BEAVER_* environment
	SettingStorage        = "storage"
	SettingDataDir        = "data_dir"
	SettingDatabase       = "database"
	SettingListen         = "listen"
	SettingTokenSecret    = "token_secret"
	SettingFirstDayOfWeek = "first_day_of_week"
	SettingLogDir         = "log_dir"
	SettingLogFormat      = "log_format"
	SettingDebug          = "debug"
	SettingBackupDir      = "backup_dir"
	SettingMaxBackups     = "max_backups"
	SettingTimezone       = "timezone"
	SettingCacheSize      = "cache_size"

	EnvPrefix     = "BEAVER_"
	EnvConfigFile = "BEAVER_CONFIG"

	// Default config values
	DefaultStorage        = StorageFile
	DefaultDataDir        = "~/.local/share/beaver"
	DefaultDatabase       = "~/.local/share/beaver/beaver.db"
	DefaultLogDir         = "~/.local/share/beaver/logs"
	DefaultBackupDir      = "~/.local/share/beaver/" + BackupDirName
	DefaultConfigFile     = "~/.config/beaver/config.yaml"
	DefaultListen         = ":8080"
	DefaultFirstDayOfWeek = time.Monday
	DefaultTokenTTL       = 365 * 24 * time.Hour

	// Log formats
	LogFormatText = "text"
	LogFormatJSON = "json"
)
