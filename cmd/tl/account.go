package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"ticketline/internal/app"
	"ticketline/internal/domain"
)

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readLine("Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				p, err := c.Account.Login(ctx, email, password)
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(p)
				}
				fmt.Printf("Logged in as %s (%s)\n", p.DisplayName(), p.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				return c.Account.Logout()
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				id, ok := c.Account.WhoAmI()
				if !ok {
					return errors.New("not logged in")
				}
				if isJSON() {
					return printJSON(id)
				}
				expires := "-"
				if id.ExpiresAt != nil {
					expires = id.ExpiresAt.In(c.Location).Format(time.RFC1123)
				}
				tw := newTable()
				tw.AppendRows([]table.Row{
					{"User", id.Profile.DisplayName()},
					{"Email", id.Profile.Email},
					{"Role", id.Profile.Role},
					{"Authenticated", id.Authenticated},
					{"Expires", expires},
				})
				tw.Render()
				return nil
			})
		},
	}
}

func registerCmd() *cobra.Command {
	var reg domain.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reg.Password == "" {
				p, err := readLine("Password: ")
				if err != nil {
					return err
				}
				reg.Password = p
			}
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				taken, err := c.Account.EmailExists(ctx, reg.Email)
				if err != nil {
					return err
				}
				if taken {
					return fmt.Errorf("%s is already registered", reg.Email)
				}
				p, loggedIn, err := c.Account.Register(ctx, reg)
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(map[string]any{"profile": p, "logged_in": loggedIn})
				}
				if loggedIn {
					fmt.Printf("Registered and logged in as %s\n", p.DisplayName())
				} else {
					fmt.Printf("Registered %s; log in with 'tl login --email %s'\n", p.DisplayName(), p.Email)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&reg.Email, "email", "", "email")
	cmd.Flags().StringVar(&reg.Password, "password", "", "password (prompted when empty)")
	cmd.Flags().StringVar(&reg.Country, "country", "", "country code, see 'tl countries'")
	cmd.Flags().StringVar(&reg.Birthdate, "birthdate", "", "birthdate as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("first-name")
	_ = cmd.MarkFlagRequired("last-name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func countriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List countries offered at registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, c *app.Context) error {
				list, err := c.Account.Countries(ctx)
				if err != nil {
					return err
				}
				if isJSON() {
					return printJSON(list)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Code", "Name"})
				for _, country := range list {
					tw.AppendRow(table.Row{country.Code, country.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func readLine(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
