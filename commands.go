package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"siem-console/devbackend"
	"siem-console/handlers"
	"siem-console/services"
	"siem-console/system"
	"siem-console/views"
)

type cli struct {
	configPath string
	cfg        *system.Config
}

func newRootCmd() *cobra.Command {
	a := &cli{}
	cmd := &cobra.Command{
		Use:           "siem-console",
		Short:         "Session and live-data console for the honeypot SIEM backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := system.LoadConfig(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if err := system.InitLogger(system.LogOptions{Dir: cfg.Log.Dir, Level: cfg.Log.Level, Format: cfg.Log.Format}); err != nil {
				log.Printf("Warning: Could not initialize file logger: %v", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			system.Close()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newStatusCmd(a),
		newDashboardCmd(a),
		newDemoBackendCmd(a),
	)
	return cmd
}

// core is the wired session/gateway/poller stack
type core struct {
	slot     *services.SQLiteSlot
	gateway  *services.Gateway
	session  *services.Session
	poller   *services.Poller
	registry *prometheus.Registry
}

func buildCore(cfg *system.Config) (*core, error) {
	slot, err := services.OpenSQLiteSlot(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := services.NewGateway(services.GatewayConfig{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout})
	session := services.NewSession(services.NewCredentialStore(slot), gw)
	poller := services.NewPoller(gw, session, cfg.Poll.Interval, services.NewPollMetrics(registry))

	return &core{slot: slot, gateway: gw, session: session, poller: poller, registry: registry}, nil
}

func (c *core) close() {
	c.poller.Stop()
	if err := c.slot.Close(); err != nil {
		system.Warn("Failed to close credential store: %v", err)
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(a *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the console API and the snapshot poller",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return serve(ctx, a.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *system.Config) error {
	system.Info("SIEM console starting (backend %s)", cfg.API.BaseURL)

	c, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer c.close()

	geo, err := services.NewGeoIPService(cfg.GeoIP.DBPath)
	if err != nil {
		system.Warn("GeoIP disabled: %v", err)
		geo, _ = services.NewGeoIPService("")
	}
	defer geo.Close()

	webhook := services.NewWebhookService(cfg.Alerts.DiscordWebhookURL)
	watcher := services.NewThreatWatcher(c.poller, webhook, geo, cfg.Alerts.Cooldown)
	watcher.Start()
	defer watcher.Stop()

	h := handlers.NewHandler(c.session, c.poller, c.gateway, geo, webhook)
	c.session.OnTransition(h.Events.RecordTransition)
	// The poller runs exactly while the session is authenticated; leaving
	// authenticated also drops the previous session's snapshot.
	c.session.OnTransition(func(from, to services.Status) {
		if to == services.StatusAuthenticated {
			if err := c.poller.Start(ctx, cfg.Poll.Interval); err != nil {
				system.Warn("Poller not started: %s", services.Display(err))
			}
			return
		}
		c.poller.Stop()
		c.poller.Reset()
		watcher.Reset()
	})

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.Console.AllowOrigins}))
	h.SetupRoutes(app, c.registry)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := services.WaitForBackend(gctx, c.gateway, cfg.Probe.MaxElapsed); err != nil {
			system.Warn("Backend health probe gave up: %s", services.Display(err))
		}
		if c.session.Initialize(gctx) {
			system.Info("Restored persisted session")
		}
		return nil
	})
	g.Go(func() error {
		system.Info("Console API listening on %s", cfg.Console.Listen)
		return app.Listen(cfg.Console.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		system.Info("Gracefully shutting down...")
		c.poller.Stop()
		return app.Shutdown()
	})
	return g.Wait()
}

func newLoginCmd(a *cli) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.session.Login(cmd.Context(), email, password); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), services.Display(err))
				return err
			}
			return printJSON(cmd.OutOrStdout(), c.session.State())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	return cmd
}

func newLogoutCmd(a *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			c.session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newStatusCmd(a *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Verify the persisted token and print the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			c.session.Initialize(cmd.Context())
			return printJSON(cmd.OutOrStdout(), c.session.State())
		},
	}
}

func newDashboardCmd(a *cli) *cobra.Command {
	var sortKey, dir, filter string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Fetch one snapshot with the persisted session and print the panels",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildCore(a.cfg)
			if err != nil {
				return err
			}
			defer c.close()

			if !c.session.Initialize(cmd.Context()) {
				return errors.New("not logged in, run `siem-console login` first")
			}
			if err := c.poller.FetchOnce(cmd.Context()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), services.Display(err))
				return err
			}
			snap, _ := c.poller.Latest()
			return printJSON(cmd.OutOrStdout(), views.Dashboard(snap, views.ParseConfig(sortKey, dir, filter)))
		},
	}
	cmd.Flags().StringVar(&sortKey, "sort", "observedAt", "sort column")
	cmd.Flags().StringVar(&dir, "dir", "desc", "sort direction (asc, desc)")
	cmd.Flags().StringVar(&filter, "filter", "all", "classification filter (all, malicious, benign)")
	return cmd
}

func newDemoBackendCmd(a *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "demo-backend",
		Short: "Run a local backend serving the demo admin and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := devbackend.New(devbackend.Config{
				DBPath:    a.cfg.Demo.DBPath,
				JWTSecret: a.cfg.Demo.JWTSecret,
				AccessLog: true,
			})
			if err != nil {
				return err
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			go func() {
				<-ctx.Done()
				_ = srv.Shutdown()
			}()
			return srv.Listen(a.cfg.Demo.Listen)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
