package main

import (
	"fmt"
	"time"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/importer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const dateLayout = "2006-01-02"

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run a feed import",
	}
	cmd.PersistentFlags().String("timezone", "Australia/Sydney", "time zone of the feed dates")
	cmd.PersistentFlags().Float64("feedRps", 2, "requests per second allowed to the feed")
	cmd.AddCommand(importVEVSCmd())
	cmd.AddCommand(importDreamDrivesCmd())
	return cmd
}

func importVEVSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vevs",
		Short: "Import the VEVS reservations picked up within a date range",
		Example: `  rentalctl import vevs --from 2024-07-01 --to 2024-07-31
  RENTAL_VEVSURL=https://example.vevs.com rentalctl import vevs`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := time.LoadLocation(viper.GetString("timezone"))
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
			from, to, err := dateRange(viper.GetString("from"), viper.GetString("to"), loc, time.Now())
			if err != nil {
				return err
			}
			client, err := importer.NewVEVSClient(importer.VEVSConfig{
				BaseURL:  viper.GetString("vevsUrl"),
				APIKey:   viper.GetString("vevsApiKey"),
				Location: loc,
				RPS:      viper.GetFloat64("feedRps"),
				Retry:    importer.DefaultRetryPolicy,
			})
			if err != nil {
				return fmt.Errorf("could not create the VEVS client: %w", err)
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			run, err := importer.New(database, client, nil, nil).RunVEVS(cmd.Context(), from, to)
			if run != nil {
				printRun(cmd, run)
			}
			return err
		},
	}
	cmd.Flags().String("from", "", "first pick up date (YYYY-MM-DD), defaults to today")
	cmd.Flags().String("to", "", "last pick up date (YYYY-MM-DD), defaults to 30 days after from")
	cmd.Flags().String("vevsUrl", "", "VEVS API base URL")
	cmd.Flags().String("vevsApiKey", "", "VEVS API key")
	return cmd
}

func importDreamDrivesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dreamdrives",
		Short: "Import the Dream Drives bookings updated since a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := time.LoadLocation(viper.GetString("timezone"))
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
			var since time.Time
			if s := viper.GetString("since"); s != "" {
				if since, err = time.ParseInLocation(dateLayout, s, loc); err != nil {
					return fmt.Errorf("invalid since date: %w", err)
				}
			}
			client, err := importer.NewDreamDrivesClient(importer.DreamDrivesConfig{
				BaseURL: viper.GetString("dreamDrivesUrl"),
				Token:   viper.GetString("dreamDrivesToken"),
				RPS:     viper.GetFloat64("feedRps"),
				Retry:   importer.DefaultRetryPolicy,
			})
			if err != nil {
				return fmt.Errorf("could not create the Dream Drives client: %w", err)
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			run, err := importer.New(database, nil, client, &importer.Mapper{Location: loc}).
				RunDreamDrives(cmd.Context(), since)
			if run != nil {
				printRun(cmd, run)
			}
			return err
		},
	}
	cmd.Flags().String("since", "", "only bookings updated since this date (YYYY-MM-DD), all when empty")
	cmd.Flags().String("dreamDrivesUrl", "", "Dream Drives API base URL")
	cmd.Flags().String("dreamDrivesToken", "", "Dream Drives API token")
	return cmd
}

// dateRange parses the inclusive [from, to] range in loc. An empty from is
// the day of now and an empty to is 30 days after from.
func dateRange(fromStr, toStr string, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	n := now.In(loc)
	from := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
	if fromStr != "" {
		var err error
		if from, err = time.ParseInLocation(dateLayout, fromStr, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid from date: %w", err)
		}
	}
	to := from.AddDate(0, 0, 30)
	if toStr != "" {
		var err error
		if to, err = time.ParseInLocation(dateLayout, toStr, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid to date: %w", err)
		}
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("to date is before from date")
	}
	return from, to, nil
}

func printRun(cmd *cobra.Command, run *db.ImportRun) {
	cmd.Printf("run %s (%s): %d records, %d created, %d updated, %d skipped\n",
		run.ID, run.Source, run.Total, run.Created, run.Updated, run.Skipped)
	for _, e := range run.Errors {
		cmd.Printf("  %s\n", e)
	}
}
