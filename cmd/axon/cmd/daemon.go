package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/axon-dev/axon/internal/config"
	"github.com/axon-dev/axon/internal/daemon"
	"github.com/axon-dev/axon/internal/logging"
)

// newDaemonCmd creates the daemon command group.
func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background embedder daemon",
	}

	cmd.AddCommand(newDaemonRunCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonStopCmd())

	return cmd
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(daemon.DefaultPIDPath(config.UserConfigDir()))
}

func newDaemonRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the embedder daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			pf := pidFile()
			if pf.IsRunning() {
				pid, _ := pf.Read()
				return fmt.Errorf("daemon already running (pid %d)", pid)
			}

			logCfg := logging.DefaultConfig()
			logCfg.Level = cfg.Logging.Level
			if cfg.Logging.FilePath != "" {
				logCfg.FilePath = cfg.Logging.FilePath
			}
			logger, cleanup, err := logging.Setup(logCfg)
			if err != nil {
				return err
			}
			defer cleanup()

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return err
			}

			if err := pf.Write(); err != nil {
				return err
			}
			defer func() { _ = pf.Remove() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return d.Run(ctx)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Query the running daemon's status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			secret, err := daemon.LoadOrGenerateSecret(cfg.Webhook.Secret, config.SecretPath(), nil)
			if err != nil {
				return err
			}

			url := fmt.Sprintf("http://127.0.0.1:%d/status", cfg.Webhook.Port)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			req.Header.Set(daemon.SecretHeader, secret)

			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("daemon not reachable on port %d: %w", cfg.Webhook.Port, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("daemon returned status %d", resp.StatusCode)
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			pf := pidFile()
			if !pf.IsRunning() {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running.")
				return nil
			}

			if err := pf.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop signal sent.")
			return nil
		},
	}
}
