package cli

import (
	"fmt"

	"autogramhandoff/config"
	"autogramhandoff/config/database"
	"autogramhandoff/internal/agp/relay"
	"autogramhandoff/internal/agp/repository"
	"autogramhandoff/internal/agp/service"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/router"

	"github.com/spf13/cobra"
)

// NewAGPCommand creates the agp command.
func NewAGPCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agp",
		Short: "Start the Autogram Gateway Proxy server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigFile)
			if err != nil {
				return err
			}
			logger.Init(cfg.App.LogLevel)
			defer logger.Log.Sync()

			if err := cfg.AGP.Validate(); err != nil {
				return fmt.Errorf("invalid agp config: %w", err)
			}

			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.AGP.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewSessionRepository(db)
			if err := repo.Migrate(ctx); err != nil {
				return err
			}

			svc := service.NewSessionService(repo, relay.New(cfg.AGP.APIKey), cfg.AGP.APIKey)
			logger.Sugar.Infof("AGP signer mode: %s", cfg.AGP.SignerMode)
			return serve(ctx, "AGP", newServer(cfg.AGP.Addr(), router.SetupAGP(svc, cfg.AGP)))
		},
	}
}
