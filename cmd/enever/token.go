package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MvRens/ha-enever/internal/auth"
	"github.com/MvRens/ha-enever/internal/storage"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API access tokens",
	}

	withAuth := func(ctx context.Context, fn func(*auth.Service) error) error {
		cfg, _, err := loadApp()
		if err != nil {
			return err
		}
		st, err := storage.Open(ctx, storage.Config{
			Driver: cfg.Storage.Driver,
			DSN:    cfg.Storage.DSN,
		})
		if err != nil {
			return err
		}
		defer st.Close()

		svc, err := auth.NewService(st)
		if err != nil {
			return err
		}
		return fn(svc)
	}

	var role string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Issue a new API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(svc *auth.Service) error {
				t, raw, err := svc.CreateToken(cmd.Context(), args[0], role)
				if err != nil {
					return err
				}
				fmt.Printf("token %s created (role %s)\n", t.ID, t.Role)
				fmt.Printf("save this value, it is not shown again:\n%s\n", raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&role, "role", "viewer", "token role: admin or viewer")

	list := &cobra.Command{
		Use:   "list",
		Short: "List issued tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(svc *auth.Service) error {
				tokens, err := svc.ListTokens(cmd.Context())
				if err != nil {
					return err
				}
				for _, t := range tokens {
					lastUsed := "never"
					if t.LastUsedAt != nil {
						lastUsed = t.LastUsedAt.Format(time.RFC3339)
					}
					fmt.Printf("%s  %-10s  %-6s  created %s  last used %s\n",
						t.ID, t.Name, t.Role, t.CreatedAt.Format(time.RFC3339), lastUsed)
				}
				return nil
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a token by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAuth(cmd.Context(), func(svc *auth.Service) error {
				if err := svc.RevokeToken(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println("token revoked")
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, revoke)
	return cmd
}
