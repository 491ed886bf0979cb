package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wanderlist/wanderlist-api/internal/accounts"
	"github.com/wanderlist/wanderlist-api/internal/auth"
	"github.com/wanderlist/wanderlist-api/internal/config"
	"github.com/wanderlist/wanderlist-api/internal/database"
	"github.com/wanderlist/wanderlist-api/internal/groups"
	"github.com/wanderlist/wanderlist-api/internal/identifier"
	"github.com/wanderlist/wanderlist-api/internal/lists"
	"github.com/wanderlist/wanderlist-api/internal/logging"
	"github.com/wanderlist/wanderlist-api/internal/places"
	"github.com/wanderlist/wanderlist-api/internal/server"
	"github.com/wanderlist/wanderlist-api/internal/spatial"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wanderlist-api",
		Short: "Wanderlist place discovery backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Access token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthTokenIssuer,
		Audience:      appConfig.AuthTokenAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})
	if err != nil {
		return err
	}

	ids := identifier.NewUUIDProvider()
	index := spatial.NewIndex()
	membershipStore := lists.NewStore(time.Now)

	listsService, err := lists.NewService(lists.ServiceConfig{
		Database: db,
		Store:    membershipStore,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	placesService, err := places.NewService(places.ServiceConfig{
		Database:    db,
		Index:       index,
		IDProvider:  ids,
		Memberships: listsService,
		Clock:       time.Now,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	engine, err := spatial.NewEngine(spatial.EngineConfig{
		Index:  index,
		Places: placesService,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	groupsService, err := groups.NewService(groups.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	aggregator, err := groups.NewAggregator(groups.AggregatorConfig{
		Memberships: membershipStore,
		Places:      placesService,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	accountsService, err := accounts.NewService(accounts.ServiceConfig{
		Database:   db,
		IDProvider: ids,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	if err := placesService.Replay(ctx); err != nil {
		return err
	}
	if err := listsService.Replay(ctx); err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:     engine,
		Places:     placesService,
		Lists:      listsService,
		Groups:     groupsService,
		Aggregator: aggregator,
		Accounts:   accountsService,
		Tokens:     tokenManager,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
