// Command lookbook 运行商品推荐与搭配服务。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rushteam/lookbook/config"
	"github.com/rushteam/lookbook/pkg/logging"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lookbook",
		Short:         "Product recommendation and outfit composition service",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var (
		path  string
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, path, watch)
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file (default: $"+config.PathEnvVar+" or lookbook.yaml)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload ranking config when the config file changes")
	return cmd
}

func newCheckCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: store=%s features=%s ledger=%s addr=%s\n",
				cfg.Store.Backend, cfg.Features.Backend, cfg.Ledger.Backend, cfg.Server.Addr)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "config file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, path string, watch bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Logging).With().Str("version", version).Logger()
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("close resources")
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				a.reload(path)
			}
		}
	}()
	if watch && path != "" {
		if err := config.Watch(path, func() { a.reload(path) }); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("config watch not started")
		}
	}

	logger.Info().Str("addr", cfg.Server.Addr).Msg("lookbook starting")
	err = a.supervise().Serve(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("lookbook stopped")
		return nil
	}
	return err
}

// reload 重新读取配置，只替换排序配置；其余配置需要重启生效。
func (a *app) reload(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		a.logger.Error().Err(err).Msg("config reload failed, keeping current config")
		return
	}
	if err := a.ranker.Reload(cfg.Rank); err != nil {
		a.logger.Error().Err(err).Msg("ranking config rejected")
		return
	}
	a.logger.Info().Strs("filter_exprs", cfg.Rank.FilterExprs).Msg("ranking config reloaded")
}
