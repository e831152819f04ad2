package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/zf-portal/leadflow/internal/profile"
	"github.com/zf-portal/leadflow/plugin/waha"
	"github.com/zf-portal/leadflow/server/ai"
	"github.com/zf-portal/leadflow/server/classifier"
	"github.com/zf-portal/leadflow/server/gateway"
	"github.com/zf-portal/leadflow/server/runner/dispatch"
	"github.com/zf-portal/leadflow/server/session"
	"github.com/zf-portal/leadflow/server/templates"
	"github.com/zf-portal/leadflow/server/timezone"
	"github.com/zf-portal/leadflow/store"
	"github.com/zf-portal/leadflow/store/db"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "leadflow",
	Short: "Lead prospecting automation: channel session, classification and dispatch",
	RunE: func(_ *cobra.Command, _ []string) error {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version,
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			return err
		}

		level := slog.LevelInfo
		if instanceProfile.IsDev() {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return run(ctx, instanceProfile)
	},
}

func run(ctx context.Context, instanceProfile *profile.Profile) error {
	dbDriver, err := db.NewDBDriver(instanceProfile)
	if err != nil {
		return err
	}

	storeInstance := store.New(dbDriver, instanceProfile)
	defer storeInstance.Close()
	if err := storeInstance.Migrate(ctx); err != nil {
		return err
	}

	loc, err := timezone.ParseTimezone(instanceProfile.Timezone)
	if err != nil {
		slog.Warn("invalid timezone, using UTC", "timezone", instanceProfile.Timezone)
	}

	var gw gateway.Gateway = waha.NewClient(waha.Config{
		BaseURL: instanceProfile.WahaBaseURL,
		APIKey:  instanceProfile.WahaAPIKey,
		Session: instanceProfile.WahaSession,
	})
	sessionManager := session.NewManager(gw, session.Config{
		SessionID:     instanceProfile.WahaSession,
		AutoReconnect: instanceProfile.AutoReconnect,
	})

	var chat ai.ChatCompleter
	if instanceProfile.IsAIEnabled() {
		provider, err := ai.NewProvider(&ai.Config{
			BaseURL:   instanceProfile.AIBaseURL,
			APIKey:    instanceProfile.AIAPIKey,
			ChatModel: instanceProfile.AIModel,
		})
		if err != nil {
			return err
		}
		chat = provider
		slog.Info("semantic classification enabled", "model", instanceProfile.AIModel)
	}

	dispatchRunner := dispatch.NewRunner(
		storeInstance,
		templates.NewRenderer(storeInstance),
		classifier.New(chat),
		gw,
		func() session.Status { return sessionManager.Status() },
		dispatch.Config{Timezone: loc},
	)

	slog.Info("starting leadflow",
		"version", version,
		"mode", instanceProfile.Mode,
		"driver", instanceProfile.Driver,
		"timezone", instanceProfile.Timezone,
	)

	if err := sessionManager.Start(ctx); err != nil {
		// The session can recover later via the poller; dispatch leaves
		// messages pending while it is down.
		slog.Error("failed to start channel session", "error", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		dispatchRunner.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return sessionManager.Stop(stopCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("shutdown finished with error", "error", err)
		return err
	}
	slog.Info("leadflow stopped")
	return nil
}

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the process, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("leadflow")
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
