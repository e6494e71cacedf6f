package main

import (
	"fmt"

	"github.com/rentalhq/backoffice/db"
	"github.com/rentalhq/backoffice/internal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func createAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a back office admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password := viper.GetString("password")
			if len(password) < 8 {
				return fmt.Errorf("the password needs at least 8 characters")
			}
			hash, err := internal.HashPassword(password)
			if err != nil {
				return err
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			user := &db.User{
				Email:    viper.GetString("email"),
				Name:     viper.GetString("name"),
				Password: hash,
			}
			if err := database.SetUser(user); err != nil {
				return fmt.Errorf("could not create the admin: %w", err)
			}
			cmd.Printf("admin %s created (%s)\n", user.Email, user.ID.Hex())
			return nil
		},
	}
	cmd.Flags().String("email", "", "admin email")
	cmd.Flags().String("name", "", "admin name")
	cmd.Flags().String("password", "", "admin password, RENTAL_PASSWORD keeps it out of the shell history")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
