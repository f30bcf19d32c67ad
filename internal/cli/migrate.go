package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-go/meetai/pkg/store"
)

func NewMigrateCmd(deps *Dependencies) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = os.Getenv("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("DATABASE_URL or --database-url is required")
			}

			pg, err := store.OpenPostgres(cmd.Context(), databaseURL)
			if err != nil {
				return err
			}
			defer pg.Close()

			applied, err := store.Migrate(cmd.Context(), pg.Pool())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(out, "applied migration %d\n", v)
			}
			deps.logger().Info("migrations applied", "count", len(applied))
			return nil
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres connection string (defaults to $DATABASE_URL)")

	return cmd
}
