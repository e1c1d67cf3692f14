// podprice CLI - Dynamic Pricing Intelligence Engine
//
// Usage:
//   podprice serve [--cost-feed costs.json]
//   podprice cost record --product p1 --variant 100 --base 800
//   podprice market import --file competitors.csv
//   podprice adjust list
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"pod-pricing/api"
	"pod-pricing/config"
	"pod-pricing/engine/adjust"
	"pod-pricing/engine/ledger"
	"pod-pricing/engine/market"
	"pod-pricing/engine/strategy"
	"pod-pricing/internal/monitor"
	"pod-pricing/pkg/clock"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:    "podprice",
		Usage:   "Dynamic pricing intelligence for print-on-demand products",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to YAML config file",
				EnvVars: []string{"PODPRICE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for state snapshots",
				EnvVars: []string{"PODPRICE_DATA_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PODPRICE_LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			serveCommand(),
			costCommand(),
			marketCommand(),
			strategyCommand(),
			adjustCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ENGINE WIRING
// =============================================================================

// engines bundles the loaded engine set and its snapshot paths.
type engines struct {
	cfg        config.Config
	log        zerolog.Logger
	ledger     *ledger.Ledger
	observer   *market.Observer
	strategist *strategy.Strategist
	adjuster   *adjust.Engine
}

func newEngines(c *cli.Context) (*engines, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	clk := clock.Wall{}
	e := &engines{
		cfg:        cfg,
		log:        log,
		ledger:     ledger.New(cfg.Ledger, clk, log.With().Str("component", "ledger").Logger()),
		observer:   market.New(cfg.Market, clk, log.With().Str("component", "market").Logger()),
		strategist: strategy.New(cfg.Strategy, clk, log.With().Str("component", "strategy").Logger()),
	}
	e.adjuster = adjust.New(cfg.Adjust, e.ledger, clk, log.With().Str("component", "adjust").Logger())

	e.ledger.Load(e.path("ledger.json"))
	e.observer.Load(e.path("market.json"))
	e.adjuster.Load(e.path("adjustments.json"))

	// Executed adjustments land back in the ledger as new price points.
	e.adjuster.SetApplyPrice(func(productID string, variantID int, newPrice decimal.Decimal) error {
		reason := ledger.ReasonManual
		if current, ok := e.ledger.CurrentPrice(productID, variantID); ok {
			if newPrice.GreaterThan(current) {
				reason = ledger.ReasonCostIncrease
			} else {
				reason = ledger.ReasonCostDecrease
			}
		}
		cost, ok := e.ledger.CurrentCost(productID, variantID)
		if !ok {
			return fmt.Errorf("no cost on record for %s:%d", productID, variantID)
		}
		_, err := e.ledger.RecordPrice(productID, variantID, newPrice,
			ledger.CostSnapshot{BaseCost: cost}, reason)
		return err
	})
	return e, nil
}

func (e *engines) path(name string) string {
	return filepath.Join(e.cfg.DataDir, name)
}

func (e *engines) save() error {
	if err := e.ledger.Save(e.path("ledger.json")); err != nil {
		return err
	}
	if err := e.observer.Save(e.path("market.json")); err != nil {
		return err
	}
	return e.adjuster.Save(e.path("adjustments.json"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func centsFlag(c *cli.Context, name string) decimal.Decimal {
	return decimal.NewFromInt(c.Int64(name))
}

// =============================================================================
// SERVE COMMAND
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the pricing API server with the background cost monitor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "cost-feed",
				Usage: "JSON drop file polled for cost updates",
			},
			&cli.DurationFlag{
				Name:  "monitor-interval",
				Value: time.Hour,
				Usage: "Cost monitor poll interval",
			},
		},
		Action: func(c *cli.Context) error {
			e, err := newEngines(c)
			if err != nil {
				return err
			}

			if feed := c.String("cost-feed"); feed != "" {
				mon := monitor.New(c.Duration("monitor-interval"),
					&monitor.FileSource{Path: feed},
					e.ledger, e.adjuster, clock.Wall{},
					e.log.With().Str("component", "monitor").Logger())
				mon.Start(context.Background())
				defer mon.Stop()
			}

			server := api.NewServer(e.ledger, e.observer, e.strategist, e.adjuster,
				e.cfg.Server, e.log.With().Str("component", "api").Logger())
			return server.StartWithGracefulShutdown(func() {
				if err := e.save(); err != nil {
					e.log.Error().Err(err).Msg("failed to save state")
				}
			})
		},
	}
}

// =============================================================================
// COST COMMANDS
// =============================================================================

func costCommand() *cli.Command {
	productFlags := []cli.Flag{
		&cli.StringFlag{Name: "product", Required: true, Usage: "Product id"},
		&cli.IntFlag{Name: "variant", Required: true, Usage: "Variant id"},
	}

	return &cli.Command{
		Name:  "cost",
		Usage: "Track production costs, prices, and margins",
		Subcommands: []*cli.Command{
			{
				Name:  "record",
				Usage: "Record the current production cost for a variant",
				Flags: append(productFlags,
					&cli.Int64Flag{Name: "base", Required: true, Usage: "Base cost in cents"},
					&cli.Int64Flag{Name: "shipping", Usage: "Shipping cost in cents"},
					&cli.Int64Flag{Name: "processing", Usage: "Processing fee in cents"},
				),
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					alert, err := e.ledger.RecordCost(c.String("product"), c.Int("variant"),
						ledger.CostSnapshot{
							BaseCost:      centsFlag(c, "base"),
							ShippingCost:  centsFlag(c, "shipping"),
							ProcessingFee: centsFlag(c, "processing"),
						})
					if err != nil {
						return err
					}
					out := map[string]any{"alert": alert}
					if alert != nil {
						adj, err := e.adjuster.OnAlert(*alert)
						if err != nil {
							e.log.Warn().Err(err).Msg("alert produced no adjustment")
						}
						out["adjustment"] = adj
					}
					if err := e.save(); err != nil {
						return err
					}
					return printJSON(out)
				},
			},
			{
				Name:  "price",
				Usage: "Record a selling price for a variant",
				Flags: append(productFlags,
					&cli.Int64Flag{Name: "price", Required: true, Usage: "Selling price in cents"},
					&cli.Int64Flag{Name: "base", Required: true, Usage: "Base cost in cents"},
					&cli.Int64Flag{Name: "shipping", Usage: "Shipping cost in cents"},
					&cli.Int64Flag{Name: "processing", Usage: "Processing fee in cents"},
					&cli.StringFlag{Name: "reason", Value: "manual_adjustment", Usage: "Change reason"},
				),
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					point, err := e.ledger.RecordPrice(c.String("product"), c.Int("variant"),
						centsFlag(c, "price"),
						ledger.CostSnapshot{
							BaseCost:      centsFlag(c, "base"),
							ShippingCost:  centsFlag(c, "shipping"),
							ProcessingFee: centsFlag(c, "processing"),
						},
						ledger.ChangeReason(c.String("reason")))
					if err != nil {
						return err
					}
					adj, err := e.adjuster.OnMarginBreach(c.String("product"), c.Int("variant"),
						point.ProfitMargin)
					if err != nil {
						e.log.Warn().Err(err).Msg("margin check produced no adjustment")
					}
					if err := e.save(); err != nil {
						return err
					}
					return printJSON(map[string]any{"price_point": point, "adjustment": adj})
				},
			},
			{
				Name:  "margins",
				Usage: "Show the current margin per tracked variant",
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					return printJSON(e.ledger.CurrentMargins())
				},
			},
			{
				Name:  "trends",
				Usage: "Analyze price movement for a variant",
				Flags: append(productFlags,
					&cli.IntFlag{Name: "days", Value: 30, Usage: "Analysis window in days"},
				),
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					trend, err := e.ledger.Trends(c.String("product"), c.Int("variant"), c.Int("days"))
					if err != nil {
						return err
					}
					return printJSON(trend)
				},
			},
		},
	}
}

// =============================================================================
// MARKET COMMANDS
// =============================================================================

func marketCommand() *cli.Command {
	return &cli.Command{
		Name:  "market",
		Usage: "Track competitor prices and market opportunities",
		Subcommands: []*cli.Command{
			{
				Name:  "observe",
				Usage: "Record one competitor price observation",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "competitor", Required: true, Usage: "Competitor id"},
					&cli.StringFlag{Name: "product", Required: true, Usage: "Product name"},
					&cli.StringFlag{Name: "category", Required: true, Usage: "Product category"},
					&cli.Int64Flag{Name: "price", Required: true, Usage: "Observed price in cents"},
					&cli.Float64Flag{Name: "confidence", Value: 1.0, Usage: "Observation confidence (0-1)"},
					&cli.StringFlag{Name: "availability", Value: "in_stock", Usage: "Stock state"},
					&cli.StringFlag{Name: "url", Usage: "Source URL"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					err = e.observer.Observe(c.String("competitor"), c.String("product"),
						c.String("category"), centsFlag(c, "price"),
						market.ObserveOpts{
							URL:          c.String("url"),
							Availability: market.Availability(c.String("availability")),
							Confidence:   c.Float64("confidence"),
						})
					if err != nil {
						return err
					}
					return e.save()
				},
			},
			{
				Name:  "import",
				Usage: "Bulk import competitor prices from a CSV file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true,
						Usage: "CSV: competitor_id,product_name,category,price_dollars[,confidence[,availability]]"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					f, err := os.Open(c.String("file"))
					if err != nil {
						return fmt.Errorf("open import file: %w", err)
					}
					defer f.Close()

					reader := csv.NewReader(f)
					reader.FieldsPerRecord = -1
					records, err := reader.ReadAll()
					if err != nil {
						return fmt.Errorf("read import file: %w", err)
					}

					imported := e.observer.ImportRows(records)
					if err := e.save(); err != nil {
						return err
					}
					fmt.Printf("Imported %d price observations\n", imported)
					return nil
				},
			},
			{
				Name:  "position",
				Usage: "Locate our price inside a category's market",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Required: true, Usage: "Product category"},
					&cli.Int64Flag{Name: "price", Required: true, Usage: "Our price in cents"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					pos, err := e.observer.Position(centsFlag(c, "price"), c.String("category"))
					if err != nil {
						return err
					}
					return printJSON(pos)
				},
			},
			{
				Name:  "opportunities",
				Usage: "Scan a category for pricing opportunities",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Required: true, Usage: "Product category"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					return printJSON(e.observer.Opportunities(c.String("category")))
				},
			},
			{
				Name:  "summary",
				Usage: "Show the market summary",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category", Usage: "Limit to one category"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					return printJSON(e.observer.Summary(c.String("category")))
				},
			},
		},
	}
}

// =============================================================================
// STRATEGY COMMANDS
// =============================================================================

func strategyCommand() *cli.Command {
	costFlags := []cli.Flag{
		&cli.Int64Flag{Name: "base", Required: true, Usage: "Base cost in cents"},
		&cli.Int64Flag{Name: "price", Required: true, Usage: "Selling price in cents"},
		&cli.Int64Flag{Name: "shipping", Usage: "Shipping cost in cents"},
		&cli.Int64Flag{Name: "processing", Usage: "Processing fee in cents"},
		&cli.Int64Flag{Name: "packaging", Usage: "Packaging cost in cents"},
		&cli.StringFlag{Name: "position", Value: "mid_range",
			Usage: "Market position (budget, mid_range, premium, luxury)"},
		&cli.StringFlag{Name: "category", Usage: "Pull competitor prices from this category"},
	}

	buildInputs := func(c *cli.Context, e *engines) (strategy.Breakdown, market.Tier, []decimal.Decimal) {
		breakdown := e.strategist.Breakdown(centsFlag(c, "base"), centsFlag(c, "price"),
			strategy.Extras{
				ShippingCost:  centsFlag(c, "shipping"),
				ProcessingFee: centsFlag(c, "processing"),
				PackagingCost: centsFlag(c, "packaging"),
			})
		var prices []decimal.Decimal
		if category := c.String("category"); category != "" {
			prices = e.observer.Prices(category)
		}
		return breakdown, market.Tier(c.String("position")), prices
	}

	return &cli.Command{
		Name:  "strategy",
		Usage: "Evaluate cost structure and pricing strategies",
		Subcommands: []*cli.Command{
			{
				Name:   "recommend",
				Usage:  "Recommend a pricing strategy",
				Flags:  costFlags,
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					breakdown, position, prices := buildInputs(c, e)
					return printJSON(e.strategist.Recommend(breakdown, position, prices))
				},
			},
			{
				Name:  "report",
				Usage: "Generate the full pricing report for a product",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "product", Required: true, Usage: "Product id"},
				}, costFlags...),
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					breakdown, position, prices := buildInputs(c, e)
					report := e.strategist.Report(c.String("product"), breakdown,
						centsFlag(c, "price"), position, prices)
					return printJSON(report)
				},
			},
		},
	}
}

// =============================================================================
// ADJUST COMMANDS
// =============================================================================

func adjustCommand() *cli.Command {
	return &cli.Command{
		Name:  "adjust",
		Usage: "Review and execute proposed price adjustments",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List pending adjustments",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product", Usage: "Filter by product id"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					return printJSON(e.adjuster.Pending(c.String("product")))
				},
			},
			{
				Name:  "approve",
				Usage: "Approve a pending adjustment by index",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "index", Required: true, Usage: "Queue index"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					if !e.adjuster.Approve(c.Int("index")) {
						return fmt.Errorf("adjustment %d is not pending", c.Int("index"))
					}
					return e.save()
				},
			},
			{
				Name:  "reject",
				Usage: "Reject a pending adjustment by index",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "index", Required: true, Usage: "Queue index"},
					&cli.StringFlag{Name: "reason", Usage: "Rejection reason"},
				},
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					if !e.adjuster.Reject(c.Int("index"), c.String("reason")) {
						return fmt.Errorf("adjustment %d is not pending", c.Int("index"))
					}
					return e.save()
				},
			},
			{
				Name:  "execute",
				Usage: "Execute all approved adjustments",
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					executed := e.adjuster.ExecuteApproved()
					if err := e.save(); err != nil {
						return err
					}
					return printJSON(map[string]any{
						"executed":    len(executed),
						"adjustments": executed,
					})
				},
			},
			{
				Name:  "cleanup",
				Usage: "Expire stale adjustments",
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					expired := e.adjuster.CleanupExpired()
					if err := e.save(); err != nil {
						return err
					}
					fmt.Printf("Expired %d adjustments\n", expired)
					return nil
				},
			},
			{
				Name:  "summary",
				Usage: "Show adjustment activity",
				Action: func(c *cli.Context) error {
					e, err := newEngines(c)
					if err != nil {
						return err
					}
					return printJSON(e.adjuster.Summary())
				},
			},
		},
	}
}
