package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/logger"
	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/engine"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// newRemote, when set, replaces the HTTP client every command builds.
var newRemote func(cfg *config.Config) engine.Remote

// errNotConfigured carries a hint on how to set the credential.
var errNotConfigured = fmt.Errorf("%w; set ARCADE_API_KEY or api_key in the config file", arcade.ErrNotConfigured)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "arcade",
	Short: "Arcade - authorized tool execution engine",
	Long: `Arcade discovers tools from the Arcade.dev catalog, authorizes them
for a user just in time and executes them. It can run one-off commands or
serve the tools to a gateway over JSON-RPC.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.arcade/arcade.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads and validates the configuration. An explicit
// --log-level wins over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger logs to the command's stderr and the configured file.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		Output:    cmd.ErrOrStderr(),
	})
}

func remoteFor(cfg *config.Config) engine.Remote {
	if newRemote == nil {
		return nil
	}
	return newRemote(cfg)
}

// openEngine builds an engine for one command. The returned func releases
// it and the logger.
func openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(engine.Options{
		Config: cfg,
		Remote: remoteFor(cfg),
		Logger: log.GetZerolog(),
	})
	return eng, func() {
		_ = eng.Close()
		_ = log.Close()
	}, nil
}

// openConfiguredEngine is openEngine for commands that need a credential.
func openConfiguredEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	eng, cleanup, err := openEngine(cmd)
	if err != nil {
		return nil, nil, err
	}
	if !eng.IsConfigured() {
		cleanup()
		return nil, nil, errNotConfigured
	}
	return eng, cleanup, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
