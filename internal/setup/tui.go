// Package setup is the first-run terminal wizard: it collects the bot
// credentials and writes config.yaml.
package setup

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/ivmorgun/cashbot/config"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

func header(step string) {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("CASHBOT CONFIG WIZARD"))
	if step != "" {
		fmt.Println(stepStyle.Render(step))
	}
}

// RunTUI launches the terminal configuration wizard and writes the result
// to config.yaml in the working directory.
func RunTUI() error {
	var (
		token       string
		spreadsheet string
		credentials string
		userIDs     string
		rulesPath   = config.DefaultFundRulesPath
		journalDir  = config.DefaultJournalDir
		confirm     bool
	)

	header("")
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Подключим бота к таблице ДДС.\n"))

	header("ШАГ 1: TELEGRAM")
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Токен бота").
				Description("Получите у @BotFather").
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("токен не может быть пустым")
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("ШАГ 2: ТАБЛИЦА")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("ID таблицы Google Sheets").
				Description("Часть адреса между /d/ и /edit").
				Value(&spreadsheet).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("ID таблицы не может быть пустым")
					}
					return nil
				}),
			huh.NewInput().
				Title("Файл ключа сервисного аккаунта").
				Description("Путь к credentials.json").
				Value(&credentials).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("путь не может быть пустым")
					}
					if _, err := os.Stat(s); err != nil {
						return fmt.Errorf("файл не найден: %s", s)
					}
					return nil
				}),
		),
	).Run()
	if err != nil {
		return err
	}

	header("ШАГ 3: ДОСТУП")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram ID пользователей").
				Description("Через запятую; пусто — доступ для всех").
				Value(&userIDs).
				Validate(validateIDs),
		),
	).Run()
	if err != nil {
		return err
	}

	header("ШАГ 4: ХРАНЕНИЕ")
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Файл правил отчислений").
				Value(&rulesPath),
			huh.NewInput().
				Title("Каталог журнала операций").
				Value(&journalDir),
		),
	).Run()
	if err != nil {
		return err
	}

	cfg := config.Config{
		TelegramToken:   strings.TrimSpace(token),
		SpreadsheetID:   strings.TrimSpace(spreadsheet),
		CredentialsFile: strings.TrimSpace(credentials),
		AllowedUserIDs:  parseIDs(userIDs),
		FundRulesPath:   rulesPath,
		JournalDir:      journalDir,
		CacheTTL:        config.DefaultCacheTTL,
		RequestTimeout:  config.DefaultRequestTimeout,
	}

	header("ГОТОВО")
	fmt.Printf("Токен: %s\nТаблица: %s\nКлюч: %s\nПользователи: %v\n\n",
		mask(cfg.TelegramToken), cfg.SpreadsheetID, cfg.CredentialsFile, cfg.AllowedUserIDs)
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Записать config.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Println("Отменено, ничего не записано.")
		return nil
	}

	if err := cfg.Save(config.DefaultPath); err != nil {
		return err
	}
	fmt.Println(lipgloss.NewStyle().Foreground(special).Render("config.yaml записан. Запустите: cashbot"))
	return nil
}

func validateIDs(s string) error {
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err != nil {
			return fmt.Errorf("не число: %s", part)
		}
	}
	return nil
}

func parseIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
