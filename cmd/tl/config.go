package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ticketline/internal/config"
)

const redacted = "********"

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration (ticketline.yml)",
	}
	cmd.AddCommand(configShowCmd())
	cmd.AddCommand(configInitCmd())
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default()
			}
			if u := viper.GetString("base-url"); u != "" {
				cfg.API.BaseURL = u
			}
			masked := *cfg
			if masked.Session.Redis.Password != "" {
				masked.Session.Redis.Password = redacted
			}
			if masked.Auth.DemoAdmin.Password != "" {
				masked.Auth.DemoAdmin.Password = redacted
			}
			if masked.Auth.DemoAdmin.Secret != "" {
				masked.Auth.DemoAdmin.Secret = redacted
			}
			if isJSON() {
				return printJSON(masked)
			}
			out, err := yaml.Marshal(masked)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default ticketline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			baseURL := viper.GetString("base-url")
			if baseURL == "" {
				baseURL = config.DefaultBaseURL
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(baseURL)), 0o600); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
