package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"dealflow/internal/engine/apikeys"
	"dealflow/internal/engine/webhooks"
	"dealflow/internal/pkg/logger"
	"dealflow/internal/pkg/validator"
	"dealflow/internal/platform/config"
	"dealflow/internal/platform/database"
	"dealflow/internal/platform/models"
	"dealflow/internal/platform/repositories"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "crmctl",
		Short:        "Administer a dealflow installation",
		SilenceUsage: true,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DEALFLOW_CONFIG"), "path to config file")

	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(userCmd(&configPath))
	rootCmd.AddCommand(apiKeyCmd(&configPath))
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openDB loads config, opens the database and brings the schema up to date.
func openDB(configPath string) (*config.Config, *sql.DB, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, log, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Migrate(context.Background(), db, log); err != nil {
		db.Close()
		return nil, nil, log, fmt.Errorf("migration failed: %w", err)
	}
	return cfg, db, log, nil
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, log, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func userCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user that can log in to the account API",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			name, _ := cmd.Flags().GetString("name")

			email, err := validator.NormalizeEmail(email)
			if err != nil {
				return fmt.Errorf("--email: %w", err)
			}
			if len(password) < 8 {
				return fmt.Errorf("--password must be at least 8 characters")
			}

			_, db, _, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			repo := repositories.NewUserRepository(db)
			existing, err := repo.GetByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("user %s already exists", email)
			}

			user := &models.User{Email: email, PasswordHash: string(hash), FullName: name}
			if err := repo.Create(cmd.Context(), user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
			return printJSON(cmd, user)
		},
	}
	createCmd.Flags().String("email", "", "login email")
	createCmd.Flags().String("password", "", "login password")
	createCmd.Flags().String("name", "", "full name")

	cmd.AddCommand(createCmd)
	return cmd
}

func apiKeyCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key for a user. The key is printed once.",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			name, _ := cmd.Flags().GetString("name")

			cfg, db, _, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := repositories.NewUserRepository(db).GetByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user with email %q", email)
			}

			svc := apikeys.NewService(repositories.NewAPIKeyRepository(db), cfg.APIKeys.Prefix)
			issued, err := svc.Create(cmd.Context(), user.ID, name)
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{
				"id":         issued.Key.ID,
				"name":       issued.Key.Name,
				"key":        issued.Token,
				"key_prefix": issued.Key.KeyPrefix,
			})
		},
	}
	createCmd.Flags().String("email", "", "owner's email")
	createCmd.Flags().String("name", "", "key name, unique per user")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's live API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")

			_, db, _, err := openDB(*configPath)
			if err != nil {
				return err
			}
			defer db.Close()

			user, err := repositories.NewUserRepository(db).GetByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			if user == nil {
				return fmt.Errorf("no user with email %q", email)
			}

			keys, err := repositories.NewAPIKeyRepository(db).ListActiveByUser(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No API keys found.")
				return nil
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s  %-20s  %s...\n", k.ID, k.Name, k.KeyPrefix)
			}
			return nil
		},
	}
	listCmd.Flags().String("email", "", "owner's email")

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print the webhook event catalog",
		Run: func(cmd *cobra.Command, args []string) {
			for _, e := range webhooks.KnownEvents() {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
