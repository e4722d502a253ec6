// Package executor orchestrates one rebalancing run: fetch quote and
// balance, cancel open orders, decide, adjust to the venue constraints and
// submit. Transitions are strictly sequential with no retries; every
// terminal state produces exactly one notification.
package executor

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
	"github.com/mitsutoshi/yajirobe/internal/notify"
	"github.com/mitsutoshi/yajirobe/internal/rebalance"
)

// State names one step of the run.
type State string

const (
	StateIdle            State = "Idle"
	StateQuoteFetched    State = "QuoteFetched"
	StateBalanceFetched  State = "BalanceFetched"
	StateOrdersCancelled State = "OrdersCancelled"
	StateDecided         State = "Decided"
	StateSubmitted       State = "Submitted"
	StateNoOpReported    State = "NoOpReported"
	StateFailed          State = "Failed"
)

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateNoOpReported || s == StateFailed
}

// Result is the outcome of one run.
type Result struct {
	State   State
	Intent  *domain.OrderIntent
	OrderID string
	Balance domain.Balance
	Quote   domain.Quote
	Err     error
}

// Executor drives one rebalancing run against an exchange. Both
// collaborators are injected; the executor holds no ambient state.
type Executor struct {
	pair           domain.Pair
	exchange       exchange.Exchange
	notifier       notify.Notifier
	logger         *zap.Logger
	targetBaseRate decimal.Decimal
	deadband       decimal.Decimal
}

// New builds an executor. Zero target rate or deadband fall back to the
// defaults (0.5 and 0.01).
func New(pair domain.Pair, ex exchange.Exchange, notifier notify.Notifier, logger *zap.Logger, targetBaseRate, deadband decimal.Decimal) *Executor {
	if targetBaseRate.IsZero() {
		targetBaseRate = rebalance.DefaultTargetBaseRate
	}
	if deadband.IsZero() {
		deadband = rebalance.DefaultDeadband
	}
	return &Executor{
		pair:           pair,
		exchange:       ex,
		notifier:       notifier,
		logger:         logger,
		targetBaseRate: targetBaseRate,
		deadband:       deadband,
	}
}

// Run performs one rebalancing pass and returns its terminal result. The
// returned error mirrors Result.Err for Failed terminals.
func (e *Executor) Run(ctx context.Context) (Result, error) {
	res := Result{State: StateIdle}

	// constraints are a static lookup; an unsupported symbol fails before
	// any further network call
	constraints, err := e.exchange.Constraints()
	if err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "get exchange constraints"))
	}

	last, err := e.exchange.LastPrice(ctx)
	if err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "get last price"))
	}
	quote, err := e.quoteAround(ctx, last)
	if err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "get best bid/ask"))
	}
	res.State = StateQuoteFetched
	res.Quote = quote
	e.logger.Info("quote fetched",
		zap.String("pair", e.pair.String()),
		zap.String("last", quote.Last.String()),
		zap.String("bid", quote.Bid.String()),
		zap.String("ask", quote.Ask.String()))

	bal, err := e.exchange.Balance(ctx)
	if err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "get balance"))
	}
	res.State = StateBalanceFetched
	res.Balance = bal
	e.logger.Info("balance fetched",
		zap.String("pair", e.pair.String()),
		zap.String("coin", bal.Coin.String()),
		zap.String("base", bal.Base.String()),
		zap.String("total", bal.Total(last).String()))

	// abort before placing a new order if cancellation failed, otherwise
	// exposure could double
	if err := e.exchange.CancelAllOrders(ctx); err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "cancel open orders"))
	}
	res.State = StateOrdersCancelled

	intent, err := rebalance.Decide(bal, last, e.targetBaseRate, e.deadband)
	if err != nil {
		return e.fail(ctx, res, err)
	}
	res.State = StateDecided

	if intent != nil {
		intent = rebalance.Adjust(*intent, constraints, quote)
	}
	if intent == nil {
		res.State = StateNoOpReported
		e.logger.Info("no need to change balance", zap.String("pair", e.pair.String()))
		e.notify(ctx, notify.SeverityGood, e.summary("No need to change balance.", bal, last))
		return res, nil
	}
	res.Intent = intent

	orderID, err := e.exchange.CreateOrder(ctx, *intent)
	if err != nil {
		return e.fail(ctx, res, errors.Wrap(err, "create order"))
	}
	res.State = StateSubmitted
	res.OrderID = orderID

	msg := fmt.Sprintf("Order has been created. [%s, %s, %s %s, %s %s]",
		e.pair.String(), intent.Side, intent.Price, e.pair.Base, intent.Quantity, e.pair.Coin)
	e.logger.Info("order created",
		zap.String("pair", e.pair.String()),
		zap.String("order_id", orderID),
		zap.String("side", intent.Side.String()),
		zap.String("price", intent.Price.String()),
		zap.String("quantity", intent.Quantity.String()))
	e.notify(ctx, notify.SeverityGood, e.summary(msg, bal, last))
	return res, nil
}

// quoteAround fetches the top of book, falling back to the last traded
// price for venues that cannot serve it.
func (e *Executor) quoteAround(ctx context.Context, last decimal.Decimal) (domain.Quote, error) {
	bid, ask, err := e.exchange.BookTop(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedOperation) {
			return domain.FlatQuote(last), nil
		}
		return domain.Quote{}, err
	}
	return domain.Quote{Last: last, Bid: bid, Ask: ask}, nil
}

func (e *Executor) fail(ctx context.Context, res Result, err error) (Result, error) {
	res.State = StateFailed
	res.Err = err
	e.logger.Error("rebalance run failed", zap.String("pair", e.pair.String()), zap.Error(err))

	text := fmt.Sprintf("Rebalancing of %s failed. [%v]", e.pair.String(), err)
	if res.Balance != (domain.Balance{}) && res.Quote.Last.IsPositive() {
		text = e.summary(text, res.Balance, res.Quote.Last)
	}
	e.notify(ctx, notify.SeverityDanger, text)
	return res, err
}

// summary renders the balance snapshot block appended to every terminal
// notification, mirroring the allocation split.
func (e *Executor) summary(message string, bal domain.Balance, price decimal.Decimal) string {
	total := bal.Total(price)
	coinValue := bal.Coin.Mul(price)
	baseRate := decimal.Zero
	if total.IsPositive() {
		baseRate = bal.Base.Div(total)
	}
	hundred := decimal.NewFromInt(100)
	return fmt.Sprintf("%s\n```\nBalance %s %s\n%s: %s%%/%s\n%s: %s%%/%s (%s)\n```",
		message,
		total.Round(0), e.pair.Base,
		e.pair.Base, baseRate.Mul(hundred).Round(1), bal.Base.Round(0),
		e.pair.Coin, decimal.NewFromInt(1).Sub(baseRate).Mul(hundred).Round(1), coinValue.Round(0), bal.Coin)
}

func (e *Executor) notify(ctx context.Context, severity notify.Severity, text string) {
	if err := e.notifier.Notify(ctx, severity, text); err != nil {
		e.logger.Warn("failed to send notification", zap.Error(err))
	}
}
