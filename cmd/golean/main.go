package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/urfave/cli/v2"

	"github.com/aricooperman/golean/download"
	"github.com/aricooperman/golean/exchange"
	"github.com/aricooperman/golean/model"
	"github.com/aricooperman/golean/storage"
	"github.com/aricooperman/golean/tools/log"
)

func main() {
	app := &cli.App{
		Name:     "golean",
		HelpName: "golean",
		Usage:    "Utilities for algorithm development",
		Commands: []*cli.Command{
			downloadCommand(),
			ordersCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:     "download",
		HelpName: "download",
		Usage:    "Download historical data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "symbol",
				Aliases:  []string{"s"},
				Usage:    "eg. BTCUSDT",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "days",
				Aliases: []string{"d"},
				Usage:   "eg. 100 (default 30 days)",
			},
			&cli.TimestampFlag{
				Name:    "start",
				Usage:   "eg. 2021-12-01",
				Layout:  "2006-01-02",
			},
			&cli.TimestampFlag{
				Name:    "end",
				Usage:   "eg. 2021-12-31",
				Layout:  "2006-01-02",
			},
			&cli.StringFlag{
				Name:     "timeframe",
				Aliases:  []string{"t"},
				Usage:    "eg. 1h",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "data root directory, eg. ./data",
				Value:   "data",
			},
		},
		Action: func(c *cli.Context) error {
			exc, err := exchange.NewBinance(c.Context)
			if err != nil {
				return err
			}

			resolution, err := download.ParseTimeframe(c.String("timeframe"))
			if err != nil {
				return err
			}

			symbol := model.NewSymbol(c.String("symbol"), model.SecurityTypeCrypto, "binance")
			config := model.NewSubscriptionConfig(symbol, resolution, time.UTC, time.UTC)
			config.Normalization = model.NormalizationRaw

			var options []download.Option
			if days := c.Int("days"); days > 0 {
				options = append(options, download.WithDays(days))
			}

			start := c.Timestamp("start")
			end := c.Timestamp("end")
			if start != nil && end != nil && !start.IsZero() && !end.IsZero() {
				options = append(options, download.WithInterval(*start, *end))
			} else if start != nil || end != nil {
				log.Fatal("START and END must be informed together")
			}

			return download.NewDownloader(exc).Download(c.Context, config,
				c.String("output"), options...)
		},
	}
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:     "orders",
		HelpName: "orders",
		Usage:    "List orders stored by a live run",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"db"},
				Usage:   "eg. golean.db",
				Value:   "golean.db",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "filter by symbol, eg. BTCUSDT",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "only orders still open",
			},
		},
		Action: func(c *cli.Context) error {
			store, err := storage.FromSQL(sqlite.Open(c.String("database")))
			if err != nil {
				return err
			}

			var filters []storage.OrderFilter
			if symbol := c.String("symbol"); symbol != "" {
				filters = append(filters, storage.WithSymbol(strings.ToUpper(symbol)))
			}
			if c.Bool("open") {
				filters = append(filters, storage.WithOpenStatus())
			}

			orders, err := store.Orders(filters...)
			if err != nil {
				return err
			}
			for _, order := range orders {
				fmt.Println(order)
			}
			return nil
		},
	}
}
