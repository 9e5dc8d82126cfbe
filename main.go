package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"axiscyber/admin"
	"axiscyber/common"
	"axiscyber/config"
	"axiscyber/database"
	"axiscyber/models"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "axiscyber",
	Short:         "Axis Cyber Technologies website and CMS",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if logger, err = common.NewLogger(cfg.LogLevel, cfg.IsDevelopment()); err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and the background scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			return database.RunMigrations(db)
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the default site content",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(db *gorm.DB) error {
			if err := database.RunMigrations(db); err != nil {
				return err
			}
			return database.Seed(cmd.Context(), db)
		})
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage admin accounts",
}

var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")
		if password == "" {
			password = os.Getenv("ADMIN_PASSWORD")
		}

		return withDB(func(db *gorm.DB) error {
			if err := database.RunMigrations(db); err != nil {
				return err
			}
			user, err := admin.CreateUser(cmd.Context(), db, email, name, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s account %s (id %d)\n", user.Role, user.Email, user.ID)
			return nil
		})
	},
}

func init() {
	adminCreateCmd.Flags().String("email", "", "account email (required)")
	adminCreateCmd.Flags().String("name", "", "display name")
	adminCreateCmd.Flags().String("password", "", "password, defaults to $ADMIN_PASSWORD")
	adminCreateCmd.Flags().String("role", models.RoleAdmin, "admin or editor")
	adminCreateCmd.MarkFlagRequired("email")

	adminCmd.AddCommand(adminCreateCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, adminCmd)
}

// withDB opens the main database for a one-shot command.
func withDB(fn func(db *gorm.DB) error) error {
	db, err := common.ConnectDb(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer common.CloseDb(db)
	return fn(db)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
