package cli

import (
	"fmt"

	"autogramhandoff/config"
	"autogramhandoff/config/database"
	"autogramhandoff/internal/da/agpclient"
	"autogramhandoff/internal/da/repository"
	"autogramhandoff/internal/da/service"
	"autogramhandoff/pkg/logger"
	"autogramhandoff/router"
	"autogramhandoff/socket"

	"github.com/spf13/cobra"
)

// NewDACommand creates the da command.
func NewDACommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "da",
		Short: "Start the Document Access server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigFile)
			if err != nil {
				return err
			}
			logger.Init(cfg.App.LogLevel)
			defer logger.Log.Sync()

			if err := cfg.DA.Validate(); err != nil {
				return fmt.Errorf("invalid da config: %w", err)
			}

			ctx := cmd.Context()
			db, err := database.Connect(ctx, cfg.DA.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := repository.NewDocumentRepository(db)
			if err := repo.Migrate(ctx); err != nil {
				return err
			}

			hub := socket.NewHub(db)
			go hub.Run()
			defer hub.Close()

			svc := service.NewDocumentService(repo, hub, agpclient.New(cfg.DA.AGPURL), service.Options{
				APIKey:        cfg.DA.APIKey,
				BaseURL:       cfg.DA.BaseURL,
				InlineContent: cfg.DA.InlineContent,
			})
			if cfg.DA.SeedDocuments {
				if err := svc.SeedDefaults(ctx); err != nil {
					return err
				}
			}

			return serve(ctx, "DA", newServer(cfg.DA.Addr(), router.SetupDA(svc, hub, cfg.DA)))
		},
	}
}
