package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blospray-dev/blospray/internal/config"
	"github.com/blospray-dev/blospray/pkg/archive"
	"github.com/blospray-dev/blospray/pkg/device/cpu"
	"github.com/blospray-dev/blospray/pkg/plugin"
	"github.com/blospray-dev/blospray/pkg/plugin/builtin"
	"github.com/blospray-dev/blospray/pkg/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath  string
		listen      string
		adminListen string
		pluginDir   string
		scratchDir  string
		threads     int
		logLevel    string
		logFormat   string
		poll        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the render server",
		Long: `Run the render server until interrupted or until a client sends QUIT.

Settings are read from the config file, then from the BLOSPRAY_*
environment toggles, then from flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("admin-listen") {
				cfg.AdminListen = adminListen
			}
			if flags.Changed("plugin-dir") {
				cfg.PluginDir = pluginDir
			}
			if flags.Changed("scratch-dir") {
				cfg.ScratchDir = scratchDir
			}
			if flags.Changed("threads") {
				cfg.Threads = threads
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				cfg.LogFormat = logFormat
			}
			if flags.Changed("poll-interval") {
				cfg.PollInterval = poll
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	f.StringVarP(&listen, "listen", "l", config.DefaultListen, "Render server listen address")
	f.StringVar(&adminListen, "admin-listen", config.DefaultAdminListen, "Admin HTTP listen address (empty disables)")
	f.StringVar(&pluginDir, "plugin-dir", config.DefaultPluginDir, "Directory holding <kind>_<name>.so modules")
	f.StringVar(&scratchDir, "scratch-dir", "", "Directory for final-mode EXR files")
	f.IntVarP(&threads, "threads", "t", 0, "Render worker count (0 = all CPUs)")
	f.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	f.DurationVar(&poll, "poll-interval", config.DefaultPollInterval, "Poll interval while a frame renders")

	return cmd
}

func runServer(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	logger := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return fmt.Errorf("scratch directory: %w", err)
	}

	store, err := archive.New(cfg.Archive)
	if err != nil {
		return err
	}

	reg := plugin.NewRegistry()
	builtin.Register(reg)
	host := plugin.NewHost(logger.With("component", "plugins"), reg, plugin.SharedObjectLoader{Dir: cfg.PluginDir})
	defer host.Close()

	dev := cpu.New(cpu.Options{Threads: cfg.Threads, Logger: logger.With("component", "device")})
	defer dev.Close()

	srv, err := server.New(server.Options{
		Config:  cfg,
		Device:  dev,
		Plugins: host,
		Archive: store,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer srv.Close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	var adminLn net.Listener
	if cfg.AdminListen != "" {
		if adminLn, err = net.Listen("tcp", cfg.AdminListen); err != nil {
			ln.Close()
			return fmt.Errorf("admin listen %s: %w", cfg.AdminListen, err)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting render server", "version", version,
		"threads", cfg.Threads, "scratch_dir", cfg.ScratchDir, "archive", cfg.Archive.Kind)

	g.Go(func() error {
		// Serve returns after QUIT too; stop the admin server with it.
		defer cancel()
		return srv.Serve(ctx, ln)
	})
	if adminLn != nil {
		g.Go(func() error { return srv.ServeAdmin(ctx, adminLn) })
	}

	err = g.Wait()
	logger.Info("render server stopped")
	return err
}
