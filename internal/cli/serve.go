package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/daemon"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Arcade daemon",
	Long: `Run the daemon in the foreground. It serves JSON-RPC on /rpc, the
provider webhook, /health and /metrics, refreshes the catalog on the
configured schedule and reloads when the config file changes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.Run(ctx, daemon.Options{
		Config:     cfg,
		ConfigPath: config.NewLoader(cfgFile).GetConfigPath(),
		Remote:     remoteFor(cfg),
		Logger:     log.GetZerolog(),
	})
}
