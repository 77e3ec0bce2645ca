package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-queue/internal/config"
	"github.com/edumarques81/stellar-queue/internal/infra/cache"
	"github.com/edumarques81/stellar-queue/internal/infra/mpd"
)

func newImportCmd(cfg *config.Config) *cobra.Command {
	var root string
	var keep bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy MPD's song listing into the catalog",
		Long: `Reads MPD's database listing (MPD has already scanned the music directory)
and upserts every song into the catalog. Favorites and play history survive.
Tracks MPD no longer knows are removed unless --keep is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db := cache.NewDB(cfg.DBPath)
			if err := db.Open(); err != nil {
				return fmt.Errorf("open catalog: %w", err)
			}
			defer db.Close()

			client := mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
			if err := client.Connect(); err != nil {
				return fmt.Errorf("connect to MPD at %s: %w", cfg.MPDAddr(), err)
			}
			defer client.Close()

			importer := cache.NewImporter(db, client)
			importer.SetRoot(root)
			importer.SetPrune(!keep)

			res, err := importer.Run(ctx)
			if err != nil {
				return err
			}

			log.Info().
				Int("seen", res.Seen).
				Int("upserted", res.Upserted).
				Int("removed", res.Removed).
				Dur("took", res.Duration).
				Msg("Import complete")
			fmt.Fprintf(cmd.OutOrStdout(), "%d songs, %d upserted, %d removed in %s\n",
				res.Seen, res.Upserted, res.Removed, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Only import below this MPD directory")
	cmd.Flags().BoolVar(&keep, "keep", false, "Keep catalog tracks MPD no longer lists")
	return cmd
}
