package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MvRens/ha-enever/internal/enever"
)

func validateTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-token",
		Short: "Check the configured API token against the pricing API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadApp()
			if err != nil {
				return err
			}
			if cfg.Enever.Token == "" {
				return errors.New("no API token configured, set ENEVER_TOKEN")
			}

			location, err := cfg.Location()
			if err != nil {
				return err
			}

			client := enever.NewClient(enever.ClientConfig{
				BaseURL:    cfg.Enever.BaseURL,
				Token:      cfg.Enever.Token,
				Resolution: cfg.Enever.Resolution,
				Location:   location,
			})

			if err := client.ValidateToken(cmd.Context()); err != nil {
				return fmt.Errorf("token validation failed: %w", err)
			}

			fmt.Println("token is valid")
			return nil
		},
	}
}
