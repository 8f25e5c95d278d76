// Package backup keeps compressed local snapshots of users' habit lists.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/julianstephens/beaver/internal/constants"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/models"
	"github.com/julianstephens/beaver/internal/storage"
)

const (
	// BackupFilePrefix is the prefix for backup files
	BackupFilePrefix = constants.AppName + "-"

	timestampFormat = "20060102-150405"
)

// zstd.Encoder and zstd.Decoder are safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("backup: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("backup: zstd decoder initialization failed: " + err.Error())
	}
}

// BackupInfo contains information about a backup file
type BackupInfo struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager handles backup operations. Snapshots of each user live in their
// own directory under the backup root.
type Manager struct {
	backupDir  string
	maxBackups int
	now        func() time.Time
}

// NewManager creates a new backup manager. maxBackups <= 0 uses the default.
func NewManager(backupDir string, maxBackups int) *Manager {
	if maxBackups <= 0 {
		maxBackups = constants.DefaultMaxBackups
	}
	return &Manager{
		backupDir:  backupDir,
		maxBackups: maxBackups,
		now:        time.Now,
	}
}

// GetBackupDir returns the backup directory path
func (m *Manager) GetBackupDir() string {
	return m.backupDir
}

func (m *Manager) MaxBackups() int {
	return m.maxBackups
}

// UserDir returns the directory holding email's snapshots.
func (m *Manager) UserDir(email string) (string, error) {
	email, err := storage.NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	return filepath.Join(m.backupDir, email), nil
}

// Encode returns the compressed JSON document of list.
func Encode(list *models.HabitList) ([]byte, error) {
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode habit list: %w", err)
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// Decode reverses Encode.
func Decode(compressed []byte) (*models.HabitList, error) {
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	list, err := models.ParseHabitList(data)
	if err != nil {
		return nil, fmt.Errorf("backup does not hold a habit list: %w", err)
	}
	return list, nil
}

// CreateBackup writes a snapshot of list for email and rotates old ones.
func (m *Manager) CreateBackup(email string, list *models.HabitList) (string, error) {
	return m.createBackup(email, list, false)
}

// skipRotation keeps the safety snapshot taken by a restore from pushing
// out the snapshot being restored.
func (m *Manager) createBackup(email string, list *models.HabitList, skipRotation bool) (string, error) {
	dir, err := m.UserDir(email)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	data, err := Encode(list)
	if err != nil {
		return "", err
	}

	timestamp := m.now().Format(timestampFormat)
	backupPath := filepath.Join(dir, BackupFilePrefix+timestamp+constants.BackupFileSuffix)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(backupPath); os.IsNotExist(err) {
			break
		}
		if counter > 100 {
			return "", fmt.Errorf("failed to generate unique backup filename")
		}
		backupPath = filepath.Join(dir, fmt.Sprintf("%s%s-%d%s", BackupFilePrefix, timestamp, counter, constants.BackupFileSuffix))
	}

	tmp, err := os.CreateTemp(dir, ".backup-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.Rename(tmpPath, backupPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if !skipRotation {
		if err := m.rotateBackups(email); err != nil {
			// Log error but don't fail the backup operation
			logger.Warn("Failed to rotate old backups", "user", email, "error", err)
		}
	}
	return backupPath, nil
}

// ListBackups returns email's backups, sorted by timestamp (newest first)
func (m *Manager) ListBackups(email string) ([]BackupInfo, error) {
	dir, err := m.UserDir(email)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []BackupInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		timestamp, ok := parseBackupName(name)
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:      filepath.Join(dir, name),
			Timestamp: timestamp,
			Size:      info.Size(),
		})
	}

	// Same-second snapshots fall back to the name, whose counter grows
	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].Timestamp.Equal(backups[j].Timestamp) {
			return backups[i].Timestamp.After(backups[j].Timestamp)
		}
		return backupOrder(backups[i].Path) > backupOrder(backups[j].Path)
	})
	return backups, nil
}

// parseBackupName extracts the timestamp from beaver-YYYYMMDD-HHMMSS[-N].json.zst.
func parseBackupName(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, BackupFilePrefix) || !strings.HasSuffix(name, constants.BackupFileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, BackupFilePrefix), constants.BackupFileSuffix)
	if len(stamp) > len(timestampFormat) {
		stamp = stamp[:len(timestampFormat)]
	}
	t, err := time.ParseInLocation(timestampFormat, stamp, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// backupOrder returns the counter suffix of a backup file, 0 when absent.
func backupOrder(path string) int {
	stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), BackupFilePrefix), constants.BackupFileSuffix)
	var n int
	if len(stamp) > len(timestampFormat)+1 {
		fmt.Sscanf(stamp[len(timestampFormat)+1:], "%d", &n)
	}
	return n
}

// rotateBackups removes old backups beyond the retention limit
func (m *Manager) rotateBackups(email string) error {
	backups, err := m.ListBackups(email)
	if err != nil {
		return err
	}
	if len(backups) <= m.maxBackups {
		return nil
	}

	// Delete oldest backups
	for i := m.maxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", backups[i].Path, err)
		}
	}
	return nil
}

// ResolveBackup finds a backup by absolute path, by path relative to the
// working directory, or by file name inside email's backup directory.
func (m *Manager) ResolveBackup(email, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("backup file not found: %s", name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	dir, err := m.UserDir(email)
	if err != nil {
		return "", err
	}
	candidate := filepath.Join(dir, filepath.Base(name))
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("backup file not found: tried current directory and %s", dir)
}

// ReadBackup loads and verifies a snapshot.
func (m *Manager) ReadBackup(path string) (*models.HabitList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup: %w", err)
	}
	list, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}
	return list, nil
}

// PrepareRestore verifies the snapshot at path and saves a snapshot of the
// current list first. The caller installs the returned list.
func (m *Manager) PrepareRestore(email, path string, current *models.HabitList) (*models.HabitList, string, error) {
	restored, err := m.ReadBackup(path)
	if err != nil {
		return nil, "", err
	}
	var safety string
	if current != nil {
		safety, err = m.createBackup(email, current, true)
		if err != nil {
			return nil, "", fmt.Errorf("failed to backup current habit list before restore: %w", err)
		}
	}
	return restored, safety, nil
}
