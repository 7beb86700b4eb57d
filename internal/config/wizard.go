package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/klytics/pricekit/internal/publish"
)

// Wizard runs the interactive setup wizard. A nil reader reads from
// os.Stdin and a nil writer prints to os.Stdout.
func Wizard(in io.Reader, out io.Writer) error {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(in)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "pricekit setup")
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out)

	// Step 1: inbox
	fmt.Fprintln(out, "Step 1/4: Inbox")
	if dir := ask("  Directory to watch for incoming price lists (blank to skip): "); dir != "" {
		viper.Set("watch.directories", []string{dir})
		fmt.Fprintln(out, "  Inbox saved")
	} else {
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	// Step 2: delivery
	fmt.Fprintln(out, "Step 2/4: Delivery")
	fmt.Fprintln(out, "  Where should processed price lists go?")
	fmt.Fprintln(out, "  [1] Keep them next to the input (default)")
	fmt.Fprintln(out, "  [2] Copy them to an outbox directory")
	fmt.Fprintln(out, "  [3] Email them (SMTP)")
	fmt.Fprintln(out, "  [4] Send them to a Telegram chat")

	switch ask("  Choice: ") {
	case "2":
		viper.Set("publish.kind", publish.KindDir)
		viper.Set("publish.dir", ask("  Outbox directory: "))
		fmt.Fprintln(out, "  Outbox configured")
	case "3":
		viper.Set("publish.kind", publish.KindSMTP)
		viper.Set("publish.smtp.host", ask("  SMTP host: "))
		port := ask("  SMTP port (default: 587): ")
		if port == "" {
			port = "587"
		}
		viper.Set("publish.smtp.port", port)
		viper.Set("publish.smtp.username", ask("  SMTP username: "))
		viper.Set("publish.smtp.from", ask("  From address: "))
		viper.Set("publish.smtp.to", strings.Fields(strings.ReplaceAll(ask("  Recipients (comma separated): "), ",", " ")))
		fmt.Fprintln(out, "  SMTP configured")
		fmt.Fprintf(out, "  -> Set the password with: export %s_PUBLISH_SMTP_PASSWORD=...\n", EnvPrefix)
	case "4":
		viper.Set("publish.kind", publish.KindTelegram)
		viper.Set("publish.telegram.chat_id", ask("  Chat ID or @channel: "))
		fmt.Fprintln(out, "  Telegram configured")
		fmt.Fprintf(out, "  -> Set the bot token with: export %s_PUBLISH_TELEGRAM_TOKEN=...\n", EnvPrefix)
	default:
		viper.Set("publish.kind", publish.KindNone)
		fmt.Fprintln(out, "  Results stay local")
	}
	fmt.Fprintln(out)

	// Step 3: shared spreadsheet
	fmt.Fprintln(out, "Step 3/4: Shared spreadsheet (optional)")
	if id := ask("  Spreadsheet ID to poll (blank to skip): "); id != "" {
		viper.Set("sheets.spreadsheet_id", id)
		fmt.Fprintln(out, "  Spreadsheet saved")
	} else {
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	fmt.Fprintln(out, "Step 4/4: Done!")
	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Quick start:")
	fmt.Fprintln(out, "  pricekit process prices.xlsx --markup 50")
	fmt.Fprintln(out, "  pricekit watch start")
	fmt.Fprintln(out, "  pricekit sheets poll")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config file: %s\n", ConfigPath())
	fmt.Fprintln(out, "Type 'pricekit config show' to see all settings.")
	return nil
}

// WizardNonInteractive writes a config file holding the defaults.
func WizardNonInteractive() error {
	setDefaults()
	return SaveConfig()
}
