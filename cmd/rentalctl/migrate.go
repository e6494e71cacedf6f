package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the pending migrations, or revert the last ones with --down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// connecting applies the pending migrations
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			if steps := viper.GetInt("down"); steps > 0 {
				if err := database.RunMigrationsDown(steps); err != nil {
					return err
				}
				cmd.Printf("%d migrations reverted\n", steps)
				return nil
			}
			applied, err := database.AppliedMigrations()
			if err != nil {
				return err
			}
			for _, m := range applied {
				cmd.Printf("%4d  %-40s  %s\n", m.Version, m.Name, m.AppliedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().Int("down", 0, "number of migrations to revert")
	return cmd
}
