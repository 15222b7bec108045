// Command clinicctl provisions, lists and removes clinic tenants and keeps
// their schemas current.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/clinic-manager/internal/app"
	"github.com/iliyamo/clinic-manager/internal/config"
	"github.com/iliyamo/clinic-manager/internal/logger"
	"github.com/iliyamo/clinic-manager/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Manage clinic organizations and their databases",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "zap log level")

	withCore := func(run func(ctx context.Context, core *app.Core, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			lg, err := logger.New(logLevel, "console", "clinicctl")
			if err != nil {
				return err
			}
			defer func() { _ = lg.Sync() }()
			core, err := app.Open(cmd.Context(), config.Load(), lg)
			if err != nil {
				lg.Error("open", zap.Error(err))
				return err
			}
			defer core.Close()
			return run(cmd.Context(), core, args)
		}
	}

	tenant := &cobra.Command{Use: "tenant", Short: "Create, drop and list organizations"}
	tenant.AddCommand(newCreateCommand(withCore), newDropCommand(withCore), newListCommand(withCore))
	root.AddCommand(tenant, newMigrateCommand(withCore))
	return root
}

type runner func(run func(ctx context.Context, core *app.Core, args []string) error) func(*cobra.Command, []string) error

func newCreateCommand(with runner) *cobra.Command {
	var req service.SignupRequest
	cmd := &cobra.Command{
		Use:   "create KEY NAME EMAIL",
		Short: "Register an organization and provision its database",
		Args:  cobra.ExactArgs(3),
		RunE: with(func(ctx context.Context, core *app.Core, args []string) error {
			req.Key, req.Name, req.Email = args[0], args[1], args[2]
			if req.AdminEmail == "" {
				req.AdminEmail = req.Email
			}
			org, err := core.OrgService.Signup(ctx, req)
			if err != nil {
				return err
			}
			fmt.Printf("created %s (id %d)\n", org.Key, org.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&req.AdminName, "admin-name", "Administrator", "name of the first admin user")
	cmd.Flags().StringVar(&req.AdminEmail, "admin-email", "", "admin login email (defaults to EMAIL)")
	cmd.Flags().StringVar(&req.AdminPassword, "admin-password", "", "admin password")
	_ = cmd.MarkFlagRequired("admin-password")
	return cmd
}

func newDropCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "drop KEY",
		Short: "Delete an organization and drop its database",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(ctx context.Context, core *app.Core, args []string) error {
			if err := core.OrgService.Delete(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("dropped %s\n", args[0])
			return nil
		}),
	}
}

func newListCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, core *app.Core, _ []string) error {
			orgs, err := core.OrgService.List(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tEMAIL\tSTATUS\tCREATED")
			for _, o := range orgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.Key, o.Name, o.Email, o.Status, o.CreatedAt.Format("2006-01-02"))
			}
			return w.Flush()
		}),
	}
}

func newMigrateCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the tenant schema to every organization database",
		Args:  cobra.NoArgs,
		RunE: with(func(ctx context.Context, core *app.Core, _ []string) error {
			return core.OrgService.Migrate(ctx)
		}),
	}
}
