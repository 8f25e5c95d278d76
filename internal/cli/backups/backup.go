package backups

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/julianstephens/beaver/internal/cli"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/importer"
	"github.com/julianstephens/beaver/internal/logger"
	"github.com/julianstephens/beaver/internal/notifier"
)

type BackupCreateCmd struct {
	cli.UserFlag
}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	_, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}

	mgr := ctx.BackupManager()
	backupPath, err := mgr.CreateBackup(c.User, list)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	ctx.Printf("✓ Backup created: %s\n", filepath.Base(backupPath))
	return nil
}

type BackupListCmd struct {
	cli.UserFlag
}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr := ctx.BackupManager()
	dir, err := mgr.UserDir(c.User)
	if err != nil {
		return err
	}
	backups, err := mgr.ListBackups(c.User)
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		ctx.Println("No backups found.")
		ctx.Printf("Backups are stored in: %s\n", dir)
		return nil
	}

	ctx.Printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), mgr.MaxBackups())
	for _, b := range backups {
		sizeKB := float64(b.Size) / 1024.0
		timestamp := b.Timestamp.Format("2006-01-02 15:04:05")
		ctx.Printf("  %s  %s  (%.1f KB)\n", timestamp, filepath.Base(b.Path), sizeKB)
	}
	ctx.Printf("\nBackup directory: %s\n", dir)
	return nil
}

type BackupRestoreCmd struct {
	cli.UserFlag
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Do not ask for confirmation."`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr := ctx.BackupManager()
	backupPath, err := mgr.ResolveBackup(c.User, c.BackupFile)
	if err != nil {
		return err
	}

	if !c.Yes {
		ctx.Println("⚠️  WARNING: This will replace the current habit list with the backup.")
		ctx.Println("A backup of the current habit list will be created before restoring.")
		ctx.Printf("\nRestore from: %s\n", backupPath)
		ctx.Printf("Continue? [y/N]: ")

		if ctx.In == nil {
			return fmt.Errorf("no input available for confirmation; pass --yes")
		}
		response, err := bufio.NewReader(ctx.In).ReadString('\n')
		if err != nil && response == "" {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			ctx.Println("Restore cancelled.")
			return nil
		}
	}

	// A user without a list can still restore one
	user, current, err := ctx.HabitList(c.User)
	if err != nil && !errors.Is(err, beavererrors.ErrNotFound) {
		return err
	}
	restored, safety, err := mgr.PrepareRestore(user.Email, backupPath, current)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if err := ctx.Provider.InitUserHabitList(ctx.Context(), user, restored); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	if safety != "" {
		ctx.Printf("✓ Current habit list saved to %s\n", filepath.Base(safety))
	}
	ctx.Printf("✓ Restored %d habits from %s\n", restored.Len(), filepath.Base(backupPath))
	return nil
}

// BackupTelegramCmd uploads the user's document to their Telegram chat. An
// upload failure is reported but does not fail the command.
type BackupTelegramCmd struct {
	cli.UserFlag
	APIURL string `hidden:"" default:"https://api.telegram.org" help:"Telegram Bot API base URL."`
}

func (c *BackupTelegramCmd) Run(ctx *cli.Context) error {
	user, list, err := ctx.HabitList(c.User)
	if err != nil {
		return err
	}
	cfg := list.Backup()
	if !cfg.Configured() {
		return fmt.Errorf("telegram backup is not configured; run 'beaver settings --telegram-token ... --telegram-chat ...'")
	}

	var buf bytes.Buffer
	if err := importer.ExportJSON(&buf, list); err != nil {
		return err
	}
	now := time.Now()
	if ctx.Now != nil {
		now = ctx.Now()
	}
	filename := fmt.Sprintf("beaver-%s.json", now.Format("20060102-150405"))
	caption := fmt.Sprintf("beaver backup of %s, %d habits", user.Email, list.Len())

	err = notifier.NewWithBaseURL(c.APIURL).SendDocument(ctx.Context(), cfg, filename, caption, buf.Bytes())
	if err != nil {
		logger.Warn("Telegram backup failed", "user", user.Email, "error", err)
		ctx.Printf("⚠ Telegram upload failed: %v\n", err)
		return nil
	}
	ctx.Printf("✓ Sent %s to Telegram\n", filename)
	return nil
}
