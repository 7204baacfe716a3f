package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sipeed/gamemanager/cmd/gamemanager/internal"
	"github.com/sipeed/gamemanager/pkg/channels"
	"github.com/sipeed/gamemanager/pkg/config"
	"github.com/sipeed/gamemanager/pkg/digest"
	"github.com/sipeed/gamemanager/pkg/gamemanager"
	"github.com/sipeed/gamemanager/pkg/logger"
	"github.com/sipeed/gamemanager/pkg/ratelimit"
	"github.com/sipeed/gamemanager/pkg/supervisor"
)

const shutdownTimeout = 15 * time.Second

func NewBotCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:     "bot",
		Aliases: []string{"b"},
		Short:   "Run the Discord bot",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return botCmd(ctx, debug)
		},
	}

	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func botCmd(ctx context.Context, debug bool) error {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := internal.NewLogger(cfg, os.Stdout, true, debug)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Close()

	monitor, err := internal.NewMonitor(cfg, log)
	if err != nil {
		return err
	}

	discord, err := channels.NewDiscordChannel(discordOptions(cfg),
		newRouter(cfg, monitor, log), newLimiter(cfg), log)
	if err != nil {
		return fmt.Errorf("failed to create discord channel: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := discord.Start(ctx); err != nil {
		return err
	}

	var reports *digest.Service
	if cfg.Digest.Enabled {
		reports, err = digest.NewService(digest.Config{
			Schedule:  cfg.Digest.Schedule,
			ChannelID: cfg.Digest.ChannelID,
		}, monitor, discord, log)
		if err == nil {
			err = reports.Start(ctx)
		}
		if err != nil {
			shutdown(discord, nil, log)
			return fmt.Errorf("failed to start status digest: %w", err)
		}
	}

	fmt.Printf("%s Game manager bot running against %s (Ctrl+C to stop)\n",
		internal.Logo, monitor.RedactedEndpoint())
	log.InfoF("Bot started", map[string]any{
		"supervisor": monitor.RedactedEndpoint(),
		"digest":     cfg.Digest.Enabled,
		"log_level":  log.GetLevel().String(),
	})

	<-ctx.Done()
	fmt.Println("\nShutting down...")
	shutdown(discord, reports, log)
	fmt.Println("✓ Bot stopped")
	return nil
}

func shutdown(discord *channels.DiscordChannel, reports *digest.Service, log *logger.Logger) {
	if reports != nil {
		reports.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := discord.Stop(ctx); err != nil {
		log.ErrorF("Discord shutdown failed", map[string]any{"error": err.Error()})
	}
}

func discordOptions(cfg *config.Config) channels.DiscordOptions {
	return channels.DiscordOptions{
		Token:          cfg.Discord.Token,
		Proxy:          cfg.Discord.Proxy,
		GuildIDs:       cfg.Discord.GuildIDs,
		CommandTimeout: cfg.CommandTimeout(),
	}
}

func newRouter(cfg *config.Config, monitor *supervisor.Monitor, log *logger.Logger) *gamemanager.Router {
	return gamemanager.NewRouter(monitor, gamemanager.Options{
		Prefix:      cfg.Commands.Prefix,
		Group:       cfg.Commands.Group,
		StatusRole:  cfg.Commands.StatusRole,
		RestartRole: cfg.Commands.RestartRole,
	}, log)
}

func newLimiter(cfg *config.Config) *ratelimit.Limiter {
	rl := ratelimit.DefaultConfig()
	rl.CommandsPerMinute = cfg.RateLimits.CommandsPerMinute
	return ratelimit.NewLimiter(rl)
}
