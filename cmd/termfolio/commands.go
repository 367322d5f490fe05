package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"termfolio/internal/config"
	"termfolio/internal/credential"
	"termfolio/internal/kv"
	"termfolio/internal/logging"
	"termfolio/internal/server"
	"termfolio/internal/theme"
)

const localNamespace = "local"

type globalFlags struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "termfolio",
		Short:         "Portfolio terminal over SSH, websockets or the local TTY",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "YAML config file (overrides TERMFOLIO_CONFIG)")

	root.AddCommand(newServeCmd(flags), newLocalCmd(flags), newVersionCmd())
	return root
}

// loadConfig applies --config before reading the environment.
func loadConfig(flags *globalFlags) (config.Config, error) {
	if flags.configFile != "" {
		if err := os.Setenv("TERMFOLIO_CONFIG", flags.configFile); err != nil {
			return config.Config{}, err
		}
	}
	return config.LoadFromEnv()
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve SSH sessions, the account API and the websocket terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			runtime, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}
			return runtime.Run(cmd.Context())
		},
	}
}

func newLocalCmd(flags *globalFlags) *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run one terminal on this TTY against the account API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closeLog, err := localLogger(logFile, cfg)
			if err != nil {
				return err
			}
			defer closeLog()
			return runLocal(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file (logs are dropped otherwise)")
	return cmd
}

// localLogger never writes to the TTY the terminal is drawing on.
func localLogger(path string, cfg config.Config) (*log.Logger, func(), error) {
	if path == "" {
		return logging.Discard(), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger, err := logging.New(f, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger, func() { _ = f.Close() }, nil
}

func runLocal(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	variant, _, err := theme.Lookup(cfg.Theme)
	if err != nil {
		return fmt.Errorf("theme %q: %w", cfg.Theme, err)
	}
	table, err := server.LoadTable(cfg.ContentPath)
	if err != nil {
		return err
	}
	terminals := server.NewTerminals(server.TerminalsConfig{
		State:       kv.NewDir(cfg.StateDir),
		Credentials: credential.NewHTTPClient(cfg.APIURL, nil, logger),
		Table:       table,
		Host:        cfg.PromptHost,
		Theme:       variant,
		Logger:      logger,
	})

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New("local mode needs stdin to be a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer func() { _ = term.Restore(fd, state) }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()
	return terminals.Run(ctx, localNamespace, os.Getenv("TERM"), os.Stdin, os.Stdout)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "termfolio %s\n", server.Version)
}
