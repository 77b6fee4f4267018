package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/auth"
	"stockledger/internal/classifier"
	"stockledger/internal/config"
	"stockledger/internal/database"
	"stockledger/internal/inventory"
	"stockledger/internal/ledger"
	"stockledger/internal/logging"
	"stockledger/internal/server"
	"stockledger/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "stockledger",
		Short:        "Append-only stock ledger service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("STOCKLEDGER_CONFIG"), "YAML config dosyası")

	root.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	return root
}

// setup loads config and builds the logger; callers must Sync the logger.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}
	return cfg, log, nil
}

func closeDB(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API'yi başlat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Open(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(db, log)
			if err := database.Migrate(db); err != nil {
				return err
			}

			cls := classifier.New(cfg.Categories)
			ldg := ledger.New(store.NewGormStore(db), ledger.Config{
				Classifier: cls,
				Logger:     log.Named("ledger"),
				MaxRetries: cfg.MaxRetries,
				PageSize:   cfg.PageSize,
			})
			auditSvc := audit.NewService(db)

			app := server.New(server.Deps{
				Inventory:   inventory.NewHandler(ldg, auditSvc, cls.Categories(), log.Named("inventory")),
				Audit:       audit.NewHandler(auditSvc, ldg, log.Named("audit")),
				JWTSecret:   cfg.JWTSecret,
				CORSOrigins: cfg.CORSOrigins,
				Logger:      log.Named("http"),
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info("server listening", zap.String("port", cfg.HTTPPort))
				errCh <- app.Listen(":" + cfg.HTTPPort)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			log.Info("shutting down")
			return app.ShutdownWithTimeout(15 * time.Second)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Veritabanı tablolarını oluştur/güncelle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Open(cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(db, log)

			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info("migration tamamlandı")
			return nil
		},
	}
}

// tokenCmd mints a bearer token for operators; there is no login endpoint.
func tokenCmd() *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "JWT_SECRET ile imzalı erişim token'ı üret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET tanımlanmamış")
			}
			r := auth.Role(role)
			if r != auth.RoleAdmin && r != auth.RoleOperator {
				return fmt.Errorf("rol admin veya operator olmalı")
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, userID, name, r, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "kullanıcı id (zorunlu)")
	cmd.Flags().StringVar(&name, "name", "", "görünen ad")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "admin veya operator")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "geçerlilik süresi")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

