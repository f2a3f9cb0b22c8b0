package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/internal/authcore"
	"github.com/jarvislab/authcore/internal/web"
	"github.com/jarvislab/authcore/internal/wsgate"
	"github.com/jarvislab/authcore/pkg/tokenvalidator"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildIdentityVerifier = func(ctx context.Context) (authcore.IdentityVerifier, error) {
	return authcore.NewGoogleIdentityVerifier(ctx)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "authcore",
		Short:   "Credential lifecycle service: token refresh against stored provider grants and gated streaming connections",
		PreRunE: prepareServerConfig,
		RunE:    runServer,
	}

	rootCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	rootCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID")
	rootCmd.Flags().String("google_client_secret", "", "Google Web OAuth Client Secret")
	rootCmd.Flags().String("google_redirect_uri", "", "OAuth redirect URI registered with the provider")
	rootCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	rootCmd.Flags().String("token_issuer", "jarvis-auth", "Issuer claim for minted tokens")
	rootCmd.Flags().Duration("token_ttl", 24*time.Hour, "Access token TTL")
	rootCmd.Flags().String("provider_auth_url", "https://accounts.google.com/o/oauth2/v2/auth", "Identity provider authorization endpoint")
	rootCmd.Flags().String("provider_token_url", "https://oauth2.googleapis.com/token", "Identity provider token endpoint")
	rootCmd.Flags().Bool("dev_insecure_http", false, "Allow insecure HTTP for local dev")
	rootCmd.Flags().String("database_url", "", "Database URL for provider grants (postgres:// or sqlite://; leave empty for in-memory store)")
	rootCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	rootCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled (required if enable_cors is true)")

	_ = viper.BindPFlag("listen_addr", rootCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("google_web_client_id", rootCmd.Flags().Lookup("google_web_client_id"))
	_ = viper.BindPFlag("google_client_secret", rootCmd.Flags().Lookup("google_client_secret"))
	_ = viper.BindPFlag("google_redirect_uri", rootCmd.Flags().Lookup("google_redirect_uri"))
	_ = viper.BindPFlag("jwt_signing_key", rootCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("token_issuer", rootCmd.Flags().Lookup("token_issuer"))
	_ = viper.BindPFlag("token_ttl", rootCmd.Flags().Lookup("token_ttl"))
	_ = viper.BindPFlag("provider_auth_url", rootCmd.Flags().Lookup("provider_auth_url"))
	_ = viper.BindPFlag("provider_token_url", rootCmd.Flags().Lookup("provider_token_url"))
	_ = viper.BindPFlag("dev_insecure_http", rootCmd.Flags().Lookup("dev_insecure_http"))
	_ = viper.BindPFlag("database_url", rootCmd.Flags().Lookup("database_url"))
	_ = viper.BindPFlag("enable_cors", rootCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", rootCmd.Flags().Lookup("cors_allowed_origins"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	return rootCmd
}

const (
	configCodeMissingGoogleClientID   = "config.missing_google_web_client_id"
	configCodeMissingJWTSigningKey    = "config.missing_jwt_signing_key"
	configCodeInvalidTokenTTL         = "config.invalid_token_ttl"
	configCodeUninitializedServerConf = "config.uninitialized_server_config"
	configCodeIdentityVerifierInit    = "config.identity_verifier_init"
)

type contextKey string

const serverConfigContextKey contextKey = "serverConfig"

func prepareServerConfig(command *cobra.Command, arguments []string) error {
	serverConfig, loadErr := LoadServerConfig()
	if loadErr != nil {
		return loadErr
	}
	existingContext := command.Context()
	if existingContext == nil {
		existingContext = context.Background()
	}
	command.SetContext(context.WithValue(existingContext, serverConfigContextKey, serverConfig))
	return nil
}

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

// LoadServerConfig assembles the server configuration from viper state.
func LoadServerConfig() (authcore.ServerConfig, error) {
	googleWebClientID := viper.GetString("google_web_client_id")
	if googleWebClientID == "" {
		return authcore.ServerConfig{}, configError(configCodeMissingGoogleClientID, "google_web_client_id must be provided")
	}

	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return authcore.ServerConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	tokenTTL := viper.GetDuration("token_ttl")
	if tokenTTL <= 0 {
		return authcore.ServerConfig{}, configError(configCodeInvalidTokenTTL, "token_ttl must be greater than zero")
	}

	return authcore.ServerConfig{
		GoogleWebClientID:  googleWebClientID,
		GoogleClientSecret: viper.GetString("google_client_secret"),
		GoogleRedirectURI:  viper.GetString("google_redirect_uri"),
		TokenSigningKey:    []byte(jwtSigningKey),
		TokenIssuer:        viper.GetString("token_issuer"),
		TokenTTL:           tokenTTL,
		ProviderAuthURL:    viper.GetString("provider_auth_url"),
		ProviderTokenURL:   viper.GetString("provider_token_url"),
		AllowInsecureHTTP:  viper.GetBool("dev_insecure_http"),
	}, nil
}

func runServer(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	commandContext := command.Context()
	var contextValue any
	if commandContext != nil {
		contextValue = commandContext.Value(serverConfigContextKey)
	}
	serverConfig, ok := contextValue.(authcore.ServerConfig)
	if !ok {
		return configError(configCodeUninitializedServerConf, "server configuration not prepared; PreRunE must execute before RunE")
	}

	listenAddr := viper.GetString("listen_addr")
	databaseURL := viper.GetString("database_url")
	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(zapLoggerMiddleware(logger))

	if enableCORS {
		corsMiddleware, corsErr := web.ConfigureCORS(logger, corsAllowedOrigins)
		if corsErr != nil {
			return corsErr
		}
		router.Use(corsMiddleware)
	}

	userStore := web.NewInMemoryUsers()
	var grantStore authcore.GrantStore
	if databaseURL != "" {
		persistentStore, storeErr := authcore.NewDatabaseGrantStore(context.Background(), databaseURL)
		if storeErr != nil {
			return storeErr
		}
		grantStore = persistentStore
		logger.Info("using persistent grant store")
	} else {
		grantStore = authcore.NewMemoryGrantStore()
		logger.Info("using in-memory grant store")
	}

	identityVerifier, verifierErr := buildIdentityVerifier(command.Context())
	if verifierErr != nil {
		return fmt.Errorf("%s: %w", configCodeIdentityVerifierInit, verifierErr)
	}

	validator, validatorErr := tokenvalidator.New(tokenvalidator.Config{
		SigningKey: serverConfig.TokenSigningKey,
		Issuer:     serverConfig.TokenIssuer,
	})
	if validatorErr != nil {
		return validatorErr
	}

	clock := authcore.NewSystemClock()
	metricsRecorder := authcore.NewCounterMetrics()
	providerClient := authcore.NewOAuthProviderClient(serverConfig)
	refreshService := authcore.NewRefreshService(serverConfig, grantStore, providerClient, clock, logger, metricsRecorder)

	authcore.MountAuthRoutes(router, serverConfig, authcore.RouteDeps{
		Users:     userStore,
		Grants:    grantStore,
		Refresh:   refreshService,
		Provider:  providerClient,
		Identity:  identityVerifier,
		Validator: validator,
		Clock:     clock,
		Logger:    logger,
		Metrics:   metricsRecorder,
	})

	gate := wsgate.NewGate(validator)
	hub := wsgate.NewHub(logger)
	router.GET("/ws", wsgate.HandleConnection(gate, hub, logger))

	protected := router.Group("/api")
	protected.Use(authcore.RequireToken(validator))
	protected.GET("/me", web.HandleWhoAmI(logger, userStore))

	server := &http.Server{
		Addr:              listenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", listenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("ip", contextGin.ClientIP()),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}
