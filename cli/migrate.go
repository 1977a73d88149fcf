package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"backend_inventory/config"
	"backend_inventory/database"
	"backend_inventory/middleware"
	"backend_inventory/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Создать базу данных, таблицы и индексы",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := bootstrap(context.Background())
		if err != nil {
			return err
		}
		defer app.Close()

		if err := database.AutoMigrate(app.db); err != nil {
			return fmt.Errorf("ошибка миграции: %w", err)
		}
		return database.CreateLedgerIndexes(app.db)
	},
}

var (
	tokenSubject string
	tokenName    string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Выпустить JWT для автора изменений",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}

		auth := middleware.NewAuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer)
		token, err := auth.IssueToken(services.Actor{ID: tokenSubject, Name: tokenName}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "sub", "", "Идентификатор автора")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Имя автора")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Срок действия токена")
	_ = tokenCmd.MarkFlagRequired("sub")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(tokenCmd)
}
