package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/saturnino-fabrica-de-software/facematch/internal/app"
	"github.com/saturnino-fabrica-de-software/facematch/internal/config"
	"github.com/saturnino-fabrica-de-software/facematch/internal/database"
	"github.com/saturnino-fabrica-de-software/facematch/internal/domain"
	"github.com/saturnino-fabrica-de-software/facematch/internal/queue"
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Recompute stored identifiers with the active provider",
	Long: `Regenerate face embeddings in batches. Run it after switching providers
so stored identifiers match the new one. Item failures are listed in the
report; interrupting stops between batches.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parseIDs(mustGetStringSlice(cmd, "ids"))
		if err != nil {
			return err
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var report *domain.RegenerationReport
			if len(ids) > 0 {
				report, err = a.Service.RegenerateFaceEmbeddings(ctx, ids)
			} else {
				report, err = a.Service.RegenerateAllFaceEmbeddings(ctx)
			}
			if report != nil {
				printReport(cmd, report)
			}
			return err
		})
	},
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Show the active face provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cfg, err := a.Service.ActiveProvider(ctx)
			if err != nil {
				return err
			}
			if mustGetBool(cmd, "json") {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "name:       %s\ntype:       %s\nthreshold:  %.2f\nmax:        %d\nupdated:    %s\n",
				cfg.Name, cfg.Type, cfg.Threshold(), cfg.ResultLimit(), cfg.UpdatedAt.Format(time.RFC3339))
			return nil
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return database.MigrateUp(cmd.Context(), cfg.DatabaseURL, config.NewLoggerTo(os.Stderr, cfg.Environment))
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish events for the API's event consumer",
}

var publishPhotoCmd = &cobra.Command{
	Use:   "photo-updated <reference-id>",
	Short: "Ask the consumer to refresh one reference embedding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		referenceID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid reference id %q: %w", args[0], err)
		}
		return withProducer(cmd, func(ctx context.Context, p *queue.Producer) error {
			return p.PublishPhotoUpdated(ctx, queue.PhotoUpdated{
				ReferenceID: referenceID,
				PhotoURL:    mustGetString(cmd, "photo"),
			})
		})
	},
}

var publishProviderCmd = &cobra.Command{
	Use:   "provider-changed",
	Short: "Ask the consumer to reload the provider and regenerate embeddings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProducer(cmd, func(ctx context.Context, p *queue.Producer) error {
			return p.PublishProviderChanged(ctx, queue.ProviderChanged{})
		})
	},
}

func init() {
	rootCmd.AddCommand(regenerateCmd, providerCmd, migrateCmd, publishCmd)
	publishCmd.AddCommand(publishPhotoCmd, publishProviderCmd)

	regenerateCmd.Flags().StringSlice("ids", nil, "Only regenerate these reference ids")
	regenerateCmd.Flags().Bool("json", false, "Output the report as JSON")
	providerCmd.Flags().Bool("json", false, "Output as JSON")
	publishPhotoCmd.Flags().String("photo", "", "New photo reference")
}

func withProducer(cmd *cobra.Command, fn func(ctx context.Context, p *queue.Producer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.EventsEnabled() {
		return fmt.Errorf("NATS_URL is not set")
	}

	nc, js, err := queue.Connect(cfg.NatsURL)
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	if err := queue.EnsureStream(ctx, js, config.NewLoggerTo(os.Stderr, cfg.Environment)); err != nil {
		return err
	}
	if err := fn(ctx, queue.NewProducer(js)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "published")
	return nil
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid reference id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printReport(cmd *cobra.Command, report *domain.RegenerationReport) {
	if mustGetBool(cmd, "json") {
		_ = writeJSON(cmd.OutOrStdout(), report)
		return
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "total: %d  success: %d  failed: %d  duration: %s\n",
		report.Total, report.Success, report.Failed, report.Duration.Round(time.Millisecond))
	for _, e := range report.Errors {
		fmt.Fprintf(out, "  - %s\n", e)
	}
}
