package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"github.com/susu3304/piebot/internal/api"
	"github.com/susu3304/piebot/internal/bot"
	"github.com/susu3304/piebot/internal/commands"
	"github.com/susu3304/piebot/internal/pie"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var noDiscord bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot and the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts, noDiscord)
		},
	}
	cmd.Flags().BoolVar(&noDiscord, "no-discord", false, "serve the HTTP API only; announcements go to the log")
	return cmd
}

func serve(ctx context.Context, opts *rootOptions, noDiscord bool) error {
	cfg, err := opts.loadConfig(!noDiscord)
	if err != nil {
		return err
	}

	// Connect to database
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return err
	}

	var (
		gateway pie.Gateway
		discord *bot.Gateway
	)
	announce := cfg.ChannelID
	var discordSession *discordgo.Session
	if !noDiscord {
		if discordSession, err = bot.NewSession(cfg.DiscordToken); err != nil {
			return err
		}
	}
	if discordSession != nil {
		discord = bot.NewGateway(discordSession)
		gateway = discord
	} else {
		gateway = newLocalGateway()
		if announce == "" {
			announce = "local"
		}
	}

	svc := pie.NewService(store, gateway, pie.Options{
		AnnounceChannel:   announce,
		SettleConcurrency: cfg.SettleConcurrency,
	})
	dispatcher := commands.NewDispatcher(svc)

	if discordSession != nil {
		discordBot := bot.New(discordSession, discord, dispatcher, svc.Engine, bot.Options{
			InboxShards:    cfg.InboxShards,
			SettleInterval: cfg.SettleInterval,
			ReportChannel:  cfg.ChannelID,
		})
		if err := discordBot.Start(); err != nil {
			return err
		}
		defer discordBot.Stop()
	}

	apiServer := api.New(cfg.WebBind, cfg.JWTSecret, dispatcher, svc)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown error: %v", err)
	}
	return nil
}
