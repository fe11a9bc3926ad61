package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkarlin/mailpilot/internal/config"
	"github.com/mkarlin/mailpilot/internal/store"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	configPath string
	dbPath     string
	jsonOutput bool
	quietFlag  bool

	cfg *config.Config
	st  *store.Store
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mailpilot",
	Short: "mailpilot - AI inbox triage",
	Long:  "Mailpilot: fetch unread Gmail, analyze it with an LLM, and dispatch replies, Slack notifications and calendar events.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that need neither config nor the store.
		switch cmd.Name() {
		case "help", "version", "init":
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		level := slog.LevelInfo
		if quietFlag {
			level = slog.LevelWarn
		}
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		st, err = store.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if st != nil {
			st.Close()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mailpilot version %s\n", Version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			path = "config.yaml"
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(starterConfig), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		if !quietFlag {
			fmt.Printf("Wrote %s. Fill in your credentials before running mailpilot.\n", path)
		}
		return nil
	},
}

const starterConfig = `# mailpilot configuration
fetch_interval: 300
batch_limit: 10
db_path: mailpilot.db

auto_reply_enabled: false
auto_forward_enabled: false

working_hours: 9-17
default_timezone: UTC

credentials_path: credentials.json
token_path: token.json
calendar_id: primary

openai_api_key: ${OPENAI_API_KEY}
openai_model: gpt-4o-mini

slack_bot_token: ${SLACK_BOT_TOKEN}
slack_channel: ${SLACK_CHANNEL_ID}

search_api_key: ${GOOGLE_SEARCH_API_KEY}
search_cx: ${GOOGLE_SEARCH_CX}
`

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
