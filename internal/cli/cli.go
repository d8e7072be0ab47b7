package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/Additional-Code/comanda/internal/app"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/migration"
	"github.com/Additional-Code/comanda/internal/repository"
	"github.com/Additional-Code/comanda/internal/seeder"
	ordersvc "github.com/Additional-Code/comanda/internal/service/order"
)

// NewRootCommand builds the root comanda CLI command.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "comanda",
		Short:        "Order lifecycle engine toolkit",
		SilenceUsage: true,
	}

	root.AddCommand(newStartCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newOrderCmd())
	root.AddCommand(newWorkerCmd())

	return root
}

// Execute runs the comanda CLI.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	return nil
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Aliases: []string{"run"},
		Short:   "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Module)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Up(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			})
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			all, _ := cmd.Flags().GetBool("all")
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				if err := mig.Down(ctx, steps, all); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations rolled back")
				return nil
			})
		},
	}
	downCmd.Flags().Int("steps", 1, "Number of migration steps to rollback")
	downCmd.Flags().Bool("all", false, "Rollback all applied migrations")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mig *migration.Migrator
			opts := fx.Options(app.Core, migration.Module, fx.Populate(&mig))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				rows, err := mig.Status(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, row := range rows {
					state := "pending"
					if row.Applied {
						state = "applied " + row.AppliedAt.Format(time.RFC3339)
					}
					fmt.Fprintf(out, "%05d  %-28s %s\n", row.Version, row.Name, state)
				}
				version, err := mig.Version(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
				return nil
			})
		},
	}

	cmd.AddCommand(upCmd, downCmd, statusCmd)
	return cmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Run database seeders",
		RunE: func(cmd *cobra.Command, args []string) error {
			var seed *seeder.Seeder
			opts := fx.Options(app.Core, seeder.Module, fx.Populate(&seed))
			return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
				summary, err := seed.Catalog(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seed data applied: %d customers, %d restaurants, %d products\n",
					summary.Customers, summary.Restaurants, summary.Products)
				return nil
			})
		},
	}
}

func newOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and operate on orders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Print an order with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			return withOrderService(cmd, func(ctx context.Context, svc *ordersvc.Service) (any, error) {
				return svc.Get(ctx, id)
			})
		},
	})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List orders, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter repository.ListFilter
			filter.CustomerID, _ = cmd.Flags().GetInt64("customer")
			filter.ActiveOnly, _ = cmd.Flags().GetBool("active")
			filter.Limit, _ = cmd.Flags().GetInt("limit")
			if raw, _ := cmd.Flags().GetString("status"); raw != "" {
				status, err := entity.ParseOrderStatus(raw)
				if err != nil {
					return err
				}
				filter.Status = status
			}
			return withOrderService(cmd, func(ctx context.Context, svc *ordersvc.Service) (any, error) {
				return svc.List(ctx, filter)
			})
		},
	}
	listCmd.Flags().Int64("customer", 0, "Only orders of this customer")
	listCmd.Flags().String("status", "", "Only orders in this status")
	listCmd.Flags().Bool("active", false, "Hide inactive orders")
	listCmd.Flags().Int("limit", 20, "Maximum number of orders")

	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status [id] [status]",
		Short: "Move an order to the next status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			target, err := entity.ParseOrderStatus(args[1])
			if err != nil {
				return err
			}
			return withOrderService(cmd, func(ctx context.Context, svc *ordersvc.Service) (any, error) {
				return svc.ChangeStatus(ctx, id, target)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel an order that is not yet being prepared",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOrderID(args[0])
			if err != nil {
				return err
			}
			return withOrderService(cmd, func(ctx context.Context, svc *ordersvc.Service) (any, error) {
				return svc.Cancel(ctx, id)
			})
		},
	})

	return cmd
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}

// withOrderService starts the core graph, runs fn and prints its result as JSON.
func withOrderService(cmd *cobra.Command, fn func(context.Context, *ordersvc.Service) (any, error)) error {
	var svc *ordersvc.Service
	opts := fx.Options(app.Core, fx.Populate(&svc))
	return runWithApp(cmd.Context(), opts, func(ctx context.Context) error {
		out, err := fn(ctx, svc)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Manage background workers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run worker engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			application := fx.New(app.Worker)
			if err := application.Start(cmd.Context()); err != nil {
				return err
			}
			<-cmd.Context().Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Stop(stopCtx)
		},
	})
	return cmd
}

func runWithApp(ctx context.Context, opts fx.Option, fn func(context.Context) error) error {
	application := fx.New(opts, fx.NopLogger)
	if err := application.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = application.Stop(stopCtx)
	}()
	return fn(ctx)
}
