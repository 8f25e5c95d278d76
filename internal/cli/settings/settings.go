package settings

import (
	"github.com/julianstephens/beaver/internal/cli"
	"github.com/julianstephens/beaver/internal/config"
	beavererrors "github.com/julianstephens/beaver/internal/errors"
	"github.com/julianstephens/beaver/internal/models"
)

// SettingsCmd shows or changes the settings stored in a user's document.
type SettingsCmd struct {
	cli.UserFlag
	List bool `help:"List current settings."`

	FirstDayOfWeek *string `help:"First day of the week for this user (0-6 or a day name; 'default' uses the config)."`
	TelegramToken  *string `help:"Telegram bot token used by 'beaver backup telegram'."`
	TelegramChat   *string `help:"Telegram chat id used by 'beaver backup telegram'."`
	ClearTelegram  bool    `help:"Remove the Telegram backup settings."`
}

func (c *SettingsCmd) Run(ctx *cli.Context) error {
	_, list, err := ctx.HabitListOrInit(c.User)
	if err != nil {
		return err
	}

	if c.List {
		printSettings(ctx, list)
		return nil
	}

	updated := false
	if c.FirstDayOfWeek != nil {
		s := list.Settings()
		if *c.FirstDayOfWeek == "default" {
			s.FirstDayOfWeek = nil
		} else {
			day, err := config.ParseWeekday(*c.FirstDayOfWeek)
			if err != nil {
				return err
			}
			s.FirstDayOfWeek = &day
		}
		list.SetSettings(s)
		updated = true
	}

	if c.ClearTelegram && (c.TelegramToken != nil || c.TelegramChat != nil) {
		return beavererrors.Validation("telegram", "--clear-telegram cannot be combined with --telegram-token or --telegram-chat")
	}
	if c.ClearTelegram || c.TelegramToken != nil || c.TelegramChat != nil {
		b := list.Backup()
		if c.ClearTelegram {
			b.TelegramBotToken, b.TelegramChatID = nil, nil
		}
		if c.TelegramToken != nil {
			b.TelegramBotToken = optional(*c.TelegramToken)
		}
		if c.TelegramChat != nil {
			b.TelegramChatID = optional(*c.TelegramChat)
		}
		list.SetBackup(b)
		updated = true
	}

	if updated {
		ctx.Println("Settings updated successfully.")
	} else {
		ctx.Println("No changes specified. Use --list to view settings or flags to update them.")
	}
	return nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func printSettings(ctx *cli.Context, list *models.HabitList) {
	s := list.Settings()
	ctx.Println("Current Settings:")
	if s.FirstDayOfWeek != nil {
		ctx.Printf("  First Day of Week:  %s\n", *s.FirstDayOfWeek)
	} else {
		ctx.Printf("  First Day of Week:  %s (config)\n", ctx.Config.FirstDayOfWeek)
	}
	ctx.Printf("  Order By:           %s\n", orderBy(list))

	b := list.Backup()
	ctx.Println("\nTelegram Backup:")
	if b.Configured() {
		ctx.Printf("  Chat:               %s\n", *b.TelegramChatID)
		ctx.Printf("  Token:              %s\n", maskToken(*b.TelegramBotToken))
	} else {
		ctx.Println("  Not configured")
	}
}

func orderBy(list *models.HabitList) string {
	if by := list.OrderBy(); by != "" {
		return string(by)
	}
	return "NAME (default)"
}

// maskToken keeps the bot id before the colon and hides the secret part.
func maskToken(token string) string {
	for i, r := range token {
		if r == ':' {
			return token[:i] + ":****"
		}
	}
	return "****"
}
