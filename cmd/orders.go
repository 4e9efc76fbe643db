package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/ferreteria/ordersync/internal/dateparse"
	"github.com/ferreteria/ordersync/internal/input"
	"github.com/ferreteria/ordersync/internal/models"
	"github.com/ferreteria/ordersync/internal/output"
	"github.com/ferreteria/ordersync/internal/services"
	"github.com/spf13/cobra"
)

var ordersCmd = &cobra.Command{
	Use:     "orders",
	Aliases: []string{"order"},
	Short:   "Manage purchase orders",
	GroupID: "core",
}

var ordersListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List orders, newest first",
	Long: `Lists the orders of your branch (every branch for admins).

The --range flag accepts FROM..TO with any date format, e.g. -7d..today.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		providerID := flagString(cmd, "provider")
		branchID := flagString(cmd, "branch")
		rangeSpec := flagString(cmd, "range")

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			var (
				orders []models.Order
				err    error
			)
			switch {
			case rangeSpec != "":
				var r dateparse.Range
				r, err = dateparse.ParseRange(rangeSpec, time.Now())
				if err != nil {
					return fmt.Errorf("%w: %v", services.ErrInvalid, err)
				}
				orders, err = a.orders.ListByDateRange(ctx, r.Start, r.End)
			case providerID != "":
				orders, err = a.orders.ListByProvider(ctx, providerID)
			case branchID != "":
				orders, err = a.orders.ListByBranch(ctx, branchID)
			default:
				orders, err = a.orders.List(ctx)
			}
			if err != nil {
				return err
			}
			return printList(orders, output.FormatOrderShort, "No orders")
		})
	},
}

var ordersSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find orders by invoice, provider, user, branch or product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			orders, err := a.orders.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printList(orders, output.FormatOrderShort, "No matching orders")
		})
	},
}

var ordersShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an order with its items",
	Args:  exactID("order"),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")
		return withApp(cmd.Context(), func(a *app) error {
			o, err := a.orders.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.JSON(o)
			}
			md := output.OrderMarkdown(*o)
			if raw {
				fmt.Print(md)
				return nil
			}
			rendered, err := output.RenderMarkdown(md)
			if err != nil {
				fmt.Print(md)
				return nil
			}
			fmt.Println(rendered)
			return nil
		})
	},
}

var itemsFlag input.ItemsFlag

var ordersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Place an order",
	Long: `Places an order for your branch. Items are CODE:NAME:QTY and the flag may be
repeated; "@file" reads one item per line from a file and "-" from stdin.
With no items on a terminal, an interactive form is shown.`,
	Example: `  ferreteria orders create --provider 65a1f --item T-100:"Tornillo 3/8":40
  ferreteria orders create --provider 65a1f --date -1d --item @items.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := services.CreateOrder{
			Provider: models.Reference(flagString(cmd, "provider")),
			Status:   models.OrderStatus(flagString(cmd, "status")),
		}
		if d := flagString(cmd, "date"); d != "" {
			date, err := dateparse.ParseDate(d)
			if err != nil {
				return fmt.Errorf("%w: %v", services.ErrInvalid, err)
			}
			req.Date = date
		}
		items, err := itemsFlag.Items()
		if err != nil {
			return fmt.Errorf("%w: %v", services.ErrInvalid, err)
		}
		req.Items = items

		return withApp(cmd.Context(), func(a *app) error {
			ctx := cmd.Context()
			if len(req.Items) == 0 {
				if err := orderForm(ctx, a, &req); err != nil {
					return err
				}
			}
			o, err := a.orders.Create(ctx, req)
			if err != nil {
				return err
			}
			return printJSONOr(o, func() {
				reportSaved(a, "Created order "+o.InvoiceCode, o.ID)
			})
		})
	},
}

var ordersDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete an order",
	Args:    exactID("order"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := a.orders.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSONOr(map[string]string{"deleted": args[0]}, func() { reportSaved(a, "Deleted order", args[0]) })
		})
	},
}

var errNoItems = fmt.Errorf("%w: at least one --item is required", services.ErrInvalid)

// orderForm fills in the provider, date and items interactively.
func orderForm(ctx context.Context, a *app, req *services.CreateOrder) error {
	if jsonOutput || !output.IsTerminal() {
		return errNoItems
	}

	providers, err := a.providers.List(ctx)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		return errors.New("no providers available; create one first")
	}
	opts := make([]huh.Option[string], 0, len(providers))
	for _, p := range providers {
		opts = append(opts, huh.NewOption(p.Name, p.ID))
	}

	providerID := req.Provider.ID()
	date := req.Date
	if date == "" {
		date = "today"
	}
	var itemsText string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(opts...).
				Value(&providerID),
			huh.NewInput().
				Title("Date").
				Description("today, -1d, 2025-01-31 ...").
				Value(&date).
				Validate(func(s string) error {
					_, err := dateparse.ParseDate(s)
					return err
				}),
			huh.NewText().
				Title("Items").
				Description("One CODE:NAME:QTY per line").
				Lines(6).
				Value(&itemsText).
				Validate(func(s string) error {
					_, err := parseItemLines(s)
					return err
				}),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return err
	}

	for _, p := range providers {
		if p.ID == providerID {
			req.Provider = models.Embedded(p.ID, p.Name)
		}
	}
	req.Date, _ = dateparse.ParseDate(date)
	req.Items, err = parseItemLines(itemsText)
	return err
}

func parseItemLines(text string) ([]models.OrderItem, error) {
	lines := input.ReadLinesFromReader(strings.NewReader(text))
	if len(lines) == 0 {
		return nil, errNoItems
	}
	return input.ParseItems(lines)
}

func init() {
	ordersListCmd.Flags().String("provider", "", "only orders placed with this provider id")
	ordersListCmd.Flags().String("branch", "", "only orders of this branch id")
	ordersListCmd.Flags().String("range", "", "only orders dated within FROM..TO")

	ordersShowCmd.Flags().Bool("raw", false, "print markdown without rendering")

	ordersCreateCmd.Flags().String("provider", "", "provider id")
	ordersCreateCmd.Flags().String("date", "", "order date (default today)")
	ordersCreateCmd.Flags().String("status", "", "pending, completed or cancelled (default pending)")
	ordersCreateCmd.Flags().VarP(&itemsFlag, "item", "i", "order item CODE:NAME:QTY (repeatable, @file, -)")

	ordersCmd.AddCommand(ordersListCmd, ordersSearchCmd, ordersShowCmd, ordersCreateCmd, ordersDeleteCmd)
	rootCmd.AddCommand(ordersCmd)
}
