package arg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	archiverepo "koursa/client/internal/archive/repository"
	archiveservice "koursa/client/internal/archive/service"
	"koursa/client/internal/db"
)

func (c *cli) archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Keep a local Postgres archive of your fiches",
		Long: `Copy the fiches visible to you into the Postgres database named by DATABASE_URL and
report validated hours from it. Run "migrate up" first to create the schema.`,
	}

	sync := &cobra.Command{
		Use:   "sync",
		Short: "Archive every fiche visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeDB, err := c.archive(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			run, err := svc.Sync(cmd.Context())
			if err != nil {
				return err
			}
			return c.emit(cmd, run, func(w io.Writer) {
				printf(w, "Run %s archived %d fiches in %s\n", run.ID, run.FicheCount,
					run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond))
			})
		},
	}

	var month string
	hours := &cobra.Command{
		Use:   "hours",
		Short: "Validated hours per teaching unit for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := time.Parse("2006-01", month)
			if err != nil {
				return fmt.Errorf("invalid --month %q (want YYYY-MM)", month)
			}
			svc, closeDB, err := c.archive(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			rows, err := svc.HoursByUnit(cmd.Context(), t.Year(), t.Month())
			if err != nil {
				return err
			}
			return c.emit(cmd, rows, func(w io.Writer) {
				if len(rows) == 0 {
					printf(w, "No validated fiches archived for %s\n", month)
					return
				}
				var total float64
				printf(w, "UNIT\tSESSIONS\tHOURS\n")
				for _, r := range rows {
					printf(w, "%s\t%d\t%.2f\n", r.UnitLabel, r.Sessions, r.Hours)
					total += r.Hours
				}
				printf(w, "Total\t\t%.2f\n", total)
			})
		},
	}
	hours.Flags().StringVar(&month, "month", time.Now().Format("2006-01"), "month to report (YYYY-MM)")

	cmd.AddCommand(sync, hours)
	return cmd
}

// archive opens the archive database and requires a signed-in session.
func (c *cli) archive(ctx context.Context) (*archiveservice.ArchiveService, func(), error) {
	if c.app.cfg.DatabaseURL == "" {
		return nil, nil, errors.New("DATABASE_URL is not set")
	}
	if err := c.app.authenticated(ctx); err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, c.app.cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	svc := archiveservice.NewArchiveService(c.app.fiches, archiverepo.NewPostgresRepository(conn))
	return svc, func() { _ = conn.Close() }, nil
}
