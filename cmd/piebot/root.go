package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/susu3304/piebot/internal/config"
	"github.com/susu3304/piebot/internal/pie"
)

var Version = "dev"

type rootOptions struct {
	databaseURL string
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "piebot",
		Short:         "Shared-cost pie ledger bot",
		Long:          "piebot tracks pies declared in chat, the slices members claim against them, and settles each pie into averages and shares of the grand total.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "store URL, overrides DATABASE_URL")

	root.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newSettleCmd(opts),
		newReportCmd(opts),
		newClearCmd(opts),
		newTokenCmd(),
	)

	root.Version = Version
	root.SetVersionTemplate(fmt.Sprintf("piebot %s\n", Version))

	return root
}

func (o *rootOptions) loadConfig(requireDiscord bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if err := cfg.Validate(requireDiscord); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withService opens the configured store and runs fn against a service with
// a local gateway. Used by the one-shot admin commands.
func (o *rootOptions) withService(ctx context.Context, fn func(*pie.Service) error) error {
	cfg, err := o.loadConfig(false)
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := pie.NewService(store, newLocalGateway(), pie.Options{
		AnnounceChannel:   cfg.ChannelID,
		SettleConcurrency: cfg.SettleConcurrency,
	})
	return fn(svc)
}
