package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"ticketline/internal/obs"
	"ticketline/internal/server"
)

func devCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Development helpers",
	}
	cmd.AddCommand(devServeCmd())
	return cmd
}

func devServeCmd() *cobra.Command {
	var (
		addr, basePath, locale string
		adminEmail, adminPass  string
		ttl                    time.Duration
		seed, metrics          bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an in-memory ticketing backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("TICKETLINE_JWT_SECRET (or --jwt-secret) is required for bearer auth")
			}
			tag, err := language.Parse(locale)
			if err != nil {
				return fmt.Errorf("invalid locale %q: %w", locale, err)
			}
			store := server.NewStore(bcrypt.DefaultCost)
			if adminPass != "" {
				if err := store.SeedAdmin(adminEmail, adminPass); err != nil {
					return err
				}
			}
			if seed {
				store.SeedCatalog()
			}
			logger := obs.Logger()
			var reg *prometheus.Registry
			if metrics {
				reg = prometheus.NewRegistry()
				reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			}
			handler, err := server.New(server.Config{
				Store:    store,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, TokenTTL: ttl, Logger: logger},
				Locale:   tag,
				Logger:   logger,
				Registry: reg,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Ticketline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if adminPass != "" {
				fmt.Printf("Admin login: %s\n", adminEmail)
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api", "API base path")
	cmd.Flags().StringVar(&locale, "locale", "en", "language for country names")
	cmd.Flags().String("jwt-secret", "", "HMAC secret for issued tokens")
	cmd.Flags().StringVar(&adminEmail, "admin-email", "admin@ticketline.local", "seeded administrator email")
	cmd.Flags().StringVar(&adminPass, "admin-password", "", "seeded administrator password (no admin when empty)")
	cmd.Flags().DurationVar(&ttl, "token-ttl", 8*time.Hour, "lifetime of issued tokens")
	cmd.Flags().BoolVar(&seed, "seed", true, "seed sample categories, tags, acts and events")
	cmd.Flags().BoolVar(&metrics, "metrics", false, "serve Prometheus metrics at /metrics")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
