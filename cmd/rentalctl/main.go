// Command rentalctl runs the back office maintenance tasks: feed imports,
// admin accounts, flow seeds and database migrations.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rentalhq/backoffice/db"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.vocdoni.io/dvote/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "rentalctl",
		Short:         "Rental back office operations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
	}
	rootCmd.PersistentFlags().String("config", "", "optional configuration file")
	rootCmd.PersistentFlags().String("logLevel", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("mongo-url", "", "The URL of the MongoDB server")
	rootCmd.PersistentFlags().String("mongo-db", "rental-backoffice", "The name of the MongoDB database")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(createAdminCmd())
	rootCmd.AddCommand(seedFlowsCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig binds the flags of cmd to viper with the same RENTAL env
// prefix the service uses.
func initConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("RENTAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.AutomaticEnv()
	if file := viper.GetString("config"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("cannot read config: %w", err)
		}
	}
	log.Init(viper.GetString("logLevel"), "stderr", nil)
	return nil
}

func openDB() (*db.MongoStorage, error) {
	database, err := db.New(viper.GetString("mongo-url"), viper.GetString("mongo-db"))
	if err != nil {
		return nil, fmt.Errorf("could not create the MongoDB database: %w", err)
	}
	return database, nil
}
