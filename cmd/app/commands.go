package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/credbook/internal/application"
	"github.com/atvirokodosprendimai/credbook/internal/domain"
	"github.com/urfave/cli/v3"
)

func ticketsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tickets",
		Usage: "Gate tickets",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List tickets",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "open|completed|cancelled"},
					&cli.StringFlag{Name: "cost-center"},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out []domain.Ticket
					if err := doTicketsList(ctx, cfg, c.String("status"), c.String("cost-center"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTickets(out)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Show a ticket and its log",
				ArgsUsage: "<ticket-id>",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ticketAction(ctx, c, func(cfg cliConfig, id string, out *domain.Ticket) error {
						return doTicketGet(ctx, cfg, id, out)
					})
				},
			},
			{
				Name:  "checkin",
				Usage: "Register a vehicle at the gate",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "plate", Required: true},
					&cli.StringFlag{Name: "company", Required: true},
					&cli.StringFlag{Name: "driver", Required: true},
					&cli.StringFlag{Name: "cargo"},
					&cli.StringFlag{Name: "cost-center", Usage: "defaults to the active cost center"},
					&cli.StringFlag{Name: "invoice"},
					&cli.StringFlag{Name: "weight"},
					&cli.StringFlag{Name: "volume"},
					&cli.StringFlag{Name: "pallets"},
					&cli.StringFlag{Name: "phone"},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					in := map[string]any{
						"plate":         c.String("plate"),
						"companyName":   c.String("company"),
						"driverName":    c.String("driver"),
						"cargoType":     c.String("cargo"),
						"costCenterId":  c.String("cost-center"),
						"invoiceNumber": c.String("invoice"),
						"weight":        c.String("weight"),
						"volume":        c.String("volume"),
						"palletCount":   c.String("pallets"),
						"driverPhone":   c.String("phone"),
					}
					var out domain.Ticket
					if err := doCheckIn(ctx, cfg, in, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					fmt.Printf("ticket %s registered (%s)\n", out.Number, out.ID)
					return nil
				},
			},
			{
				Name:      "return",
				Usage:     "Send a truck back to the yard",
				ArgsUsage: "<ticket-id>",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ticketAction(ctx, c, func(cfg cliConfig, id string, out *domain.Ticket) error {
						return doReturnToYard(ctx, cfg, id, out)
					})
				},
			},
			{
				Name:      "cancel",
				Usage:     "Cancel an open ticket",
				ArgsUsage: "<ticket-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Required: true},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return ticketAction(ctx, c, func(cfg cliConfig, id string, out *domain.Ticket) error {
						return doCancelTicket(ctx, cfg, id, c.String("reason"), out)
					})
				},
			},
		},
	}
}

func ticketAction(ctx context.Context, c *cli.Command, do func(cliConfig, string, *domain.Ticket) error) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("ticket id is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var out domain.Ticket
	if err := do(cfg, id, &out); err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(out)
	}
	printTicket(out)
	return nil
}

func billingCommand() *cli.Command {
	return &cli.Command{
		Name:  "billing",
		Usage: "Point-of-sale draft and settlement",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Open a draft for a ticket or a registered truck",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ticket"},
					&cli.StringFlag{Name: "truck"},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ticketID, truckID := c.String("ticket"), c.String("truck")
					if (ticketID == "") == (truckID == "") {
						return errors.New("pass exactly one of --ticket or --truck")
					}
					return draftAction(ctx, c, func(cfg cliConfig, out *draftView) error {
						return doBillingStart(ctx, cfg, ticketID, truckID, out)
					})
				},
			},
			{
				Name:  "draft",
				Usage: "Show the pending draft",
				Flags: []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					return draftAction(ctx, c, func(cfg cliConfig, out *draftView) error {
						return doBillingDraft(ctx, cfg, out)
					})
				},
			},
			{
				Name:  "add",
				Usage: "Add a service to the draft",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Required: true},
					&cli.IntFlag{Name: "qty", Value: 1},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return draftAction(ctx, c, func(cfg cliConfig, out *draftView) error {
						return doBillingAdd(ctx, cfg, c.String("service"), c.Int("qty"), out)
					})
				},
			},
			{
				Name:  "set",
				Usage: "Set the quantity of a draft line",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Required: true},
					&cli.IntFlag{Name: "qty", Required: true},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return draftAction(ctx, c, func(cfg cliConfig, out *draftView) error {
						return doBillingSet(ctx, cfg, c.String("service"), c.Int("qty"), out)
					})
				},
			},
			{
				Name:  "remove",
				Usage: "Remove a line from the draft",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "service", Required: true},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return draftAction(ctx, c, func(cfg cliConfig, out *draftView) error {
						return doBillingRemove(ctx, cfg, c.String("service"), out)
					})
				},
			},
			{
				Name:  "settle",
				Usage: "Settle the draft into movements",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "method", Required: true, Usage: "cash|card|pix|account"},
					jsonFlag(),
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.Settlement
					if err := doBillingSettle(ctx, cfg, c.String("method"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printSettlement(out)
					return nil
				},
			},
			{
				Name:  "cancel",
				Usage: "Discard the pending draft",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doBillingCancel(ctx, cfg); err != nil {
						return err
					}
					fmt.Println("draft discarded")
					return nil
				},
			},
		},
	}
}

func draftAction(ctx context.Context, c *cli.Command, do func(cliConfig, *draftView) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var out draftView
	if err := do(cfg, &out); err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(out)
	}
	printDraft(out)
	return nil
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Settled movements grouped by batch",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out []domain.Batch
			if err := doHistory(ctx, cfg, &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printHistory(out)
			return nil
		},
	}
}

func totalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "totals",
		Usage: "Revenue and open ticket counters",
		Flags: []cli.Flag{jsonFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var out application.Totals
			if err := doTotals(ctx, cfg, &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printTotals(out)
			return nil
		},
	}
}

func registryCommand() *cli.Command {
	return &cli.Command{
		Name:  "registry",
		Usage: "Companies, trucks, services, cost centers and pricing",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List one registry table",
				ArgsUsage: "companies|trucks|services|cost-centers",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var st domain.AppState
					if err := doState(ctx, cfg, &st); err != nil {
						return err
					}
					return printRegistry(c.Args().First(), st, c.Bool("json"))
				},
			},
			registryUpsertCommand("companies", "Create or update a company", []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "cnpj"},
				&cli.StringFlag{Name: "contact"},
			}, func(c *cli.Command) map[string]any {
				return map[string]any{"name": c.String("name"), "cnpj": c.String("cnpj"), "contact": c.String("contact")}
			}),
			registryUpsertCommand("trucks", "Create or update a truck", []cli.Flag{
				&cli.StringFlag{Name: "plate", Required: true},
				&cli.StringFlag{Name: "driver"},
				&cli.StringFlag{Name: "company-id"},
				&cli.StringFlag{Name: "type"},
			}, func(c *cli.Command) map[string]any {
				return map[string]any{"plate": c.String("plate"), "driverName": c.String("driver"), "companyId": c.String("company-id"), "type": c.String("type")}
			}),
			registryUpsertCommand("services", "Create or update a billable service", []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "price", Required: true},
				&cli.StringFlag{Name: "icon"},
			}, func(c *cli.Command) map[string]any {
				return map[string]any{"name": c.String("name"), "price": c.String("price"), "icon": c.String("icon")}
			}),
			registryUpsertCommand("cost-centers", "Create or update a cost center", []cli.Flag{
				&cli.StringFlag{Name: "name", Required: true},
				&cli.StringFlag{Name: "address"},
			}, func(c *cli.Command) map[string]any {
				return map[string]any{"name": c.String("name"), "address": c.String("address")}
			}),
			{
				Name:      "activate",
				Usage:     "Make a cost center the active one for new tickets",
				ArgsUsage: "<cost-center-id>",
				Action: func(ctx context.Context, c *cli.Command) error {
					id := c.Args().First()
					if id == "" {
						return errors.New("cost center id is required")
					}
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doActivateCostCenter(ctx, cfg, id); err != nil {
						return err
					}
					fmt.Printf("active cost center is now %s\n", id)
					return nil
				},
			},
			{
				Name:  "pricing",
				Usage: "Update per-pallet and per-box prices",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "per-pallet", Required: true},
					&cli.StringFlag{Name: "per-box", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					var out domain.Pricing
					if err := doUpdatePricing(ctx, cfg, c.String("per-pallet"), c.String("per-box"), &out); err != nil {
						return err
					}
					printKV([][2]string{{"per_pallet", formatMoney(out.PricePerPallet)}, {"per_box", formatMoney(out.PricePerBox)}})
					return nil
				},
			},
		},
	}
}

// registryUpsertCommand builds "registry <resource>". Passing --id updates
// the existing record instead of creating a new one.
func registryUpsertCommand(resource, usage string, flags []cli.Flag, build func(*cli.Command) map[string]any) *cli.Command {
	flags = append([]cli.Flag{&cli.StringFlag{Name: "id", Usage: "existing id to update"}}, flags...)
	return &cli.Command{
		Name:  resource,
		Usage: usage,
		Flags: append(flags, jsonFlag()),
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			in := build(c)
			if id := c.String("id"); id != "" {
				in["id"] = id
			}
			var out map[string]any
			if err := doRegistryUpsert(ctx, cfg, resource, in, &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			fmt.Printf("saved %s %v\n", resource, out["id"])
			return nil
		},
	}
}

func printRegistry(table string, st domain.AppState, asJSON bool) error {
	var v any
	switch table {
	case "companies":
		v = st.Companies
	case "trucks":
		v = st.Trucks
	case "services":
		v = st.Services
	case "cost-centers":
		v = st.CostCenters
	default:
		return fmt.Errorf("unknown registry table %q", table)
	}
	if asJSON {
		return printJSON(v)
	}
	switch table {
	case "companies":
		printCompanies(st.Companies)
	case "trucks":
		printTrucks(st.Trucks)
	case "services":
		printServices(st.Services)
	case "cost-centers":
		printCostCenters(st.CostCenters, st.ActiveCostCenterID)
	}
	return nil
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Shared store reconciliation",
		Commands: []*cli.Command{
			{
				Name:  "pull",
				Usage: "Fetch the shared store and merge it into the gate state",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadConfig()
					if err != nil {
						return err
					}
					if err := doSyncPull(ctx, cfg); err != nil {
						return err
					}
					fmt.Println("pulled")
					return nil
				},
			},
		},
	}
}

func stateCommand() *cli.Command {
	return &cli.Command{
		Name:  "state",
		Usage: "Dump the full gate state as JSON",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var st domain.AppState
			if err := doState(ctx, cfg, &st); err != nil {
				return err
			}
			return printJSON(st)
		},
	}
}
