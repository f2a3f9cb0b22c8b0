package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jarvislab/authcore/internal/credstore"
	"github.com/jarvislab/authcore/internal/resolver"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "authclient",
		Short: "Client for the credential lifecycle service: resolves tokens, maintains the streaming connection, manages the local credential record",
	}

	rootCmd.PersistentFlags().String("server_url", "http://localhost:8080", "Base URL of the auth server")
	rootCmd.PersistentFlags().String("gate_url", "ws://localhost:8080/ws", "URL of the streaming connection endpoint")
	rootCmd.PersistentFlags().String("keyring_service", "jarvis", "Service name for the OS keyring entry")
	rootCmd.PersistentFlags().String("keyring_account", "credentials", "Account name for the OS keyring entry")
	rootCmd.PersistentFlags().String("credential_file", "", "Fallback credential file path (defaults to ~/.jarvis/credentials.json)")

	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server_url"))
	_ = viper.BindPFlag("gate_url", rootCmd.PersistentFlags().Lookup("gate_url"))
	_ = viper.BindPFlag("keyring_service", rootCmd.PersistentFlags().Lookup("keyring_service"))
	_ = viper.BindPFlag("keyring_account", rootCmd.PersistentFlags().Lookup("keyring_account"))
	_ = viper.BindPFlag("credential_file", rootCmd.PersistentFlags().Lookup("credential_file"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newTokenCommand())
	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newLogoutCommand())
	return rootCmd
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a token fresh enough for immediate use, refreshing or logging in as needed",
		RunE: func(command *cobra.Command, arguments []string) error {
			_, tokenResolver, cleanup, buildErr := buildResolver()
			if buildErr != nil {
				return buildErr
			}
			defer cleanup()

			token, resolveErr := tokenResolver.Resolve(commandContext(command))
			if resolveErr != nil {
				return resolveErr
			}
			fmt.Fprintln(command.OutOrStdout(), token)
			return nil
		},
	}
}

func newConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open the streaming connection and print inbound events until interrupted",
		RunE: func(command *cobra.Command, arguments []string) error {
			_, tokenResolver, cleanup, buildErr := buildResolver()
			if buildErr != nil {
				return buildErr
			}
			defer cleanup()

			dial, dialerErr := resolver.NewGateDialer(viper.GetString("gate_url"), nil)
			if dialerErr != nil {
				return dialerErr
			}
			logger, loggerErr := zap.NewProduction()
			if loggerErr != nil {
				return loggerErr
			}
			defer func() { _ = logger.Sync() }()

			reconnector, reconnectorErr := resolver.NewReconnector(tokenResolver, dial, logger)
			if reconnectorErr != nil {
				return reconnectorErr
			}

			ctx, cancel := signal.NotifyContext(commandContext(command), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			connection, connectErr := reconnector.Connect(ctx)
			if connectErr != nil {
				return connectErr
			}
			defer func() { _ = connection.Close() }()
			fmt.Fprintln(command.OutOrStdout(), "connected")

			go func() {
				<-ctx.Done()
				deadline := time.Now().Add(time.Second)
				_ = connection.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				_ = connection.Close()
			}()

			for {
				_, payload, readErr := connection.ReadMessage()
				if readErr != nil {
					if ctx.Err() != nil {
						return nil
					}
					return readErr
				}
				fmt.Fprintln(command.OutOrStdout(), string(payload))
			}
		},
	}
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the server-side grant and delete the local credential record",
		RunE: func(command *cobra.Command, arguments []string) error {
			store, _, cleanup, buildErr := buildResolver()
			if buildErr != nil {
				return buildErr
			}
			defer cleanup()
			ctx := commandContext(command)

			// Best effort server-side invalidation; the local record is
			// deleted regardless so a dead server cannot pin a session.
			if record, present := store.Load(ctx); present {
				if logoutErr := serverLogout(ctx, viper.GetString("server_url"), record.Token); logoutErr != nil {
					fmt.Fprintf(command.ErrOrStderr(), "server logout failed: %v\n", logoutErr)
				}
			}
			if deleteErr := store.Delete(ctx); deleteErr != nil {
				return deleteErr
			}
			fmt.Fprintln(command.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func buildResolver() (*credstore.CredentialStore, *resolver.Resolver, func(), error) {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return nil, nil, nil, loggerErr
	}
	cleanup := func() { _ = logger.Sync() }

	keyringMedium, keyringErr := credstore.NewKeyringMedium(
		viper.GetString("keyring_service"),
		viper.GetString("keyring_account"),
	)
	if keyringErr != nil {
		cleanup()
		return nil, nil, nil, keyringErr
	}

	filePath := viper.GetString("credential_file")
	if filePath == "" {
		homeDir, homeErr := os.UserHomeDir()
		if homeErr != nil {
			cleanup()
			return nil, nil, nil, homeErr
		}
		filePath = filepath.Join(homeDir, ".jarvis", "credentials.json")
	}
	fileMedium, fileErr := credstore.NewFileMedium(filePath)
	if fileErr != nil {
		cleanup()
		return nil, nil, nil, fileErr
	}

	store, storeErr := credstore.New(keyringMedium, fileMedium, logger)
	if storeErr != nil {
		cleanup()
		return nil, nil, nil, storeErr
	}

	serverURL := viper.GetString("server_url")
	refreshClient, refreshErr := resolver.NewHTTPRefreshClient(serverURL, nil)
	if refreshErr != nil {
		cleanup()
		return nil, nil, nil, refreshErr
	}
	loginClient, loginErr := resolver.NewCodeLoginClient(serverURL, nil, stdinCodePrompt)
	if loginErr != nil {
		cleanup()
		return nil, nil, nil, loginErr
	}

	tokenResolver, resolverErr := resolver.New(store, refreshClient, loginClient.Login, logger)
	if resolverErr != nil {
		cleanup()
		return nil, nil, nil, resolverErr
	}
	return store, tokenResolver, cleanup, nil
}

// stdinCodePrompt asks the user to complete the provider sign-in in a browser
// and paste the resulting authorization code.
func stdinCodePrompt(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr, "Sign in with your provider account and paste the authorization code:")
	reader := bufio.NewReader(os.Stdin)
	line, readErr := reader.ReadString('\n')
	if readErr != nil {
		return "", readErr
	}
	return line, nil
}

func serverLogout(ctx context.Context, serverURL string, token string) error {
	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/auth/logout", nil)
	if requestErr != nil {
		return requestErr
	}
	request.Header.Set("Authorization", "Bearer "+token)
	client := &http.Client{Timeout: 10 * time.Second}
	response, doErr := client.Do(request)
	if doErr != nil {
		return doErr
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusNoContent && response.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout returned %d", response.StatusCode)
	}
	return nil
}

func commandContext(command *cobra.Command) context.Context {
	if command.Context() != nil {
		return command.Context()
	}
	return context.Background()
}
