package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	heartbeat "github.com/heartbeatlive/go-heartbeat"
	"github.com/heartbeatlive/go-heartbeat/adapters/gologger"
	"github.com/heartbeatlive/go-heartbeat/adapters/promclient"
	"github.com/heartbeatlive/go-heartbeat/core"
	"github.com/heartbeatlive/go-heartbeat/identity"
	sqlstore "github.com/heartbeatlive/go-heartbeat/store/sql"
)

type rootOptions struct {
	envFile      string
	sessionToken string
	kratosURL    string
	cacheDSN     string
	logLevel     string
	metrics      bool

	// registerer receives the client metrics when --metrics is set.
	registerer prometheus.Registerer
	lookupEnv  func(string) (string, bool)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{lookupEnv: os.LookupEnv}

	root := &cobra.Command{
		Use:   "heartbeat",
		Short: "HeartBeatLive GraphQL client",
		Long: `heartbeat runs GraphQL operations against the HeartBeatLive backend.

The server is read from SERVER_HOST and SERVER_SCHEME, optionally loaded
from an env file.

Example usage:
  heartbeat endpoint
  heartbeat check-email user@example.com
  heartbeat fetch --name Profile --document 'query Profile { profile { id } }'
  heartbeat perform --name UpdateName --document 'mutation ...' --variables '{"name":"Ann"}'`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "env file with SERVER_HOST / SERVER_SCHEME")
	flags.StringVar(&opts.sessionToken, "session-token", "", "session token sent as the bearer credential")
	flags.StringVar(&opts.kratosURL, "kratos-url", "", "Ory Kratos public URL used to restore --session-token")
	flags.StringVar(&opts.cacheDSN, "cache-dsn", "", "persist normalized cache records (sqlite path or postgres DSN)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&opts.metrics, "metrics", false, "record client metrics in the default prometheus registry")

	root.AddCommand(
		newEndpointCommand(opts),
		newFetchCommand(opts),
		newPerformCommand(opts),
		newCheckEmailCommand(opts),
	)
	return root
}

// loadEnvFile applies path to the process environment. A missing file is
// not an error; variables already set win.
func loadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// session bundles a client with the resources opened for it.
type session struct {
	client *heartbeat.Client
	store  *sqlstore.Store
}

func (s *session) Close() error {
	err := s.client.Close()
	if s.store != nil {
		err = errors.Join(err, s.store.Close())
	}
	return err
}

func (o *rootOptions) openClient(ctx context.Context, cmd *cobra.Command) (*session, error) {
	logger := gologger.NewTextLogger(cmd.ErrOrStderr(), o.logLevel)

	loader := core.NewEnvConfigLoader()
	if o.lookupEnv != nil {
		loader.Lookup = o.lookupEnv
	}
	clientOpts := []core.Option{
		core.WithLoggerProvider(gologger.NewProvider(logger)),
		core.WithLogger(logger),
		core.WithConfigProvider(core.NewCfgxConfigProvider(loader)),
	}

	provider, err := o.identityProvider(ctx, logger)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		clientOpts = append(clientOpts, core.WithIdentityProvider(provider))
	}

	if o.metrics {
		clientOpts = append(clientOpts, core.WithMetricsRecorder(promclient.NewRecorder(o.registerer)))
	}

	var store *sqlstore.Store
	if dsn := strings.TrimSpace(o.cacheDSN); dsn != "" {
		store, err = sqlstore.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, core.WithRecordPersister(store.RecordPersister()))
	}

	client, err := heartbeat.NewClient(core.Config{}, clientOpts...)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	return &session{client: client, store: store}, nil
}

func (o *rootOptions) identityProvider(ctx context.Context, logger core.Logger) (core.IdentityProvider, error) {
	token := strings.TrimSpace(o.sessionToken)
	if kratosURL := strings.TrimSpace(o.kratosURL); kratosURL != "" {
		provider, err := identity.NewKratosProvider(identity.KratosConfig{PublicURL: kratosURL, Logger: logger})
		if err != nil {
			return nil, err
		}
		if token != "" {
			if _, err := provider.Restore(ctx, token); err != nil {
				return nil, err
			}
		}
		return provider, nil
	}
	if token == "" {
		return nil, nil
	}
	return identity.NewStaticProviderWithToken(core.Identity{ID: "cli"}, token), nil
}
