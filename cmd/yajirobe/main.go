// Command yajirobe rebalances a crypto/fiat pair on one exchange and keeps
// an execution ledger in an append-only point store.
//
// Usage:
//
//	yajirobe rebalance --exchange bitbank --symbol BTC/JPY
//	yajirobe ingest --exchange liquid --symbol BTC/JPY
//	yajirobe snapshot --exchange gmo --symbol BTC/JPY
//	yajirobe deposits --exchange liquid --symbol BTC/JPY
//
// Credentials come from <EXCHANGE>_API_KEY / <EXCHANGE>_API_SECRET
// environment variables; SLACK_WEBHOOK_URL is optional.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/config"
	"github.com/mitsutoshi/yajirobe/internal/deposits"
	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
	"github.com/mitsutoshi/yajirobe/internal/exchange/binance"
	"github.com/mitsutoshi/yajirobe/internal/exchange/bitbank"
	"github.com/mitsutoshi/yajirobe/internal/exchange/bybit"
	"github.com/mitsutoshi/yajirobe/internal/exchange/gmo"
	"github.com/mitsutoshi/yajirobe/internal/exchange/liquid"
	"github.com/mitsutoshi/yajirobe/internal/executor"
	"github.com/mitsutoshi/yajirobe/internal/ledger"
	"github.com/mitsutoshi/yajirobe/internal/notify"
	"github.com/mitsutoshi/yajirobe/internal/snapshot"
	"github.com/mitsutoshi/yajirobe/internal/storage/pointstore"
)

var (
	flagConfig   string
	flagExchange string
	flagSymbol   string
)

func main() {
	root := &cobra.Command{
		Use:           "yajirobe",
		Short:         "asset rebalancing bot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to yaml config")
	root.PersistentFlags().StringVarP(&flagExchange, "exchange", "e", "", "exchange name, such as 'bitbank'")
	root.PersistentFlags().StringVarP(&flagSymbol, "symbol", "s", "", "symbol to rebalance, such as 'BTC/JPY'")

	root.AddCommand(rebalanceCmd(), ingestCmd(), snapshotCmd(), depositsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime bundles the collaborators every subcommand needs.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	exchange exchange.Exchange
	notifier notify.Notifier
}

func setup() (*runtime, error) {
	// optional .env for local runs; the scheduler environment sets real vars
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig, flagExchange, flagSymbol)
	if err != nil {
		return nil, err
	}
	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	var ex exchange.Exchange
	switch cfg.Exchange {
	case "liquid":
		ex, err = liquid.New(cfg.Pair, creds)
	case "bitbank":
		ex, err = bitbank.New(cfg.Pair, creds)
	case "gmo":
		ex, err = gmo.New(cfg.Pair, creds)
	case "binance":
		ex, err = binance.New(cfg.Pair, creds)
	case "bybit":
		ex, err = bybit.New(cfg.Pair, creds)
	}
	if err != nil {
		return nil, err
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.SlackWebhook != "" {
		notifier = notify.NewSlack(cfg.SlackWebhook)
	}

	return &runtime{cfg: cfg, logger: logger, exchange: ex, notifier: notifier}, nil
}

func (r *runtime) openStore() (*pointstore.Store, error) {
	return pointstore.Open(r.cfg.StoreDir)
}

func rebalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebalance",
		Short: "cancel open orders and submit one order restoring the target allocation",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				return err
			}
			defer r.logger.Sync()

			r.logger.Info("start rebalancing",
				zap.String("exchange", r.cfg.Exchange),
				zap.String("pair", r.cfg.Pair.String()))

			exec := executor.New(r.cfg.Pair, r.exchange, r.notifier, r.logger, r.cfg.TargetBaseRate, r.cfg.Deadband)
			if _, err := exec.Run(cmd.Context()); err != nil {
				return err
			}
			return nil
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "fetch new fills and append ledger records to the point store",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				return err
			}
			defer r.logger.Sync()

			store, err := r.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			l := ledger.New(r.exchange, store, r.logger, r.cfg.CostMethod)
			entries, err := l.Ingest(cmd.Context())
			if err != nil {
				r.notifyFailure(cmd.Context(), "Ledger ingestion failed.", err)
				return err
			}
			if len(entries) > 0 {
				last := entries[len(entries)-1]
				r.logger.Info("position updated",
					zap.String("pos_size", last.PositionSize.String()),
					zap.String("avg_buy_price", last.AvgBuyPrice.Round(0).String()),
					zap.String("realized_profit", sumProfit(entries).String()))
			}
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "record the current balance to the point store",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				return err
			}
			defer r.logger.Sync()

			store, err := r.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return snapshot.New(r.cfg.Pair, r.exchange, store, r.logger).Run(cmd.Context())
		},
	}
}

func depositsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deposits",
		Short: "sync the fiat deposit history into the point store",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := setup()
			if err != nil {
				return err
			}
			defer r.logger.Sync()

			store, err := r.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			return deposits.New(r.exchange, store, r.logger).Run(cmd.Context())
		},
	}
}

func (r *runtime) notifyFailure(ctx context.Context, message string, err error) {
	text := fmt.Sprintf("%s [%v]", message, err)
	if nerr := r.notifier.Notify(ctx, notify.SeverityDanger, text); nerr != nil {
		r.logger.Warn("failed to send notification", zap.Error(nerr))
	}
}

func sumProfit(entries []domain.LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.RealizedProfit)
	}
	return total
}
