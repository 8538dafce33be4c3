package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ticketline/internal/app"
	"ticketline/internal/config"
	"ticketline/internal/db"
	"ticketline/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Ticketline CLI",
	Long: `Ticketline is a client for the ticketing REST API.
- Account: log in, register, and check who you are; the session is kept in the workspace.
- Admin: list, create, edit, toggle and delete users, events, acts, categories, tags,
  tickets, ticket categories, ratings, notifications and roles.
- Journal: every admin change is recorded locally, view it with 'tl log tail'.
- Dev: 'tl dev serve' runs an in-memory backend to try everything against.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TICKETLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("base-url", "", "API base URL (overrides ticketline.yml)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(countriesCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(devCmd())
}

// loginNavigator tells the user the session is gone; a CLI has no login screen to
// show.
var loginNavigator = session.NavigatorFunc(func() {
	fmt.Fprintln(os.Stderr, "Session ended. Run 'tl login' to sign in again.")
})

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if u := viper.GetString("base-url"); u != "" {
		cfg.API.BaseURL = u
	}
	c, err := app.Open(ctx, app.Options{
		Workspace: workspace,
		Config:    cfg,
		Navigator: loginNavigator,
	})
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}
