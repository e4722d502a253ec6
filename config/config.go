// Package config loads the bot configuration from an optional YAML file,
// command-line flags and environment variables. Exchange credentials live in
// the environment only; a missing credential is a startup failure.
package config

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mitsutoshi/yajirobe/internal/domain"
	"github.com/mitsutoshi/yajirobe/internal/exchange"
	"github.com/mitsutoshi/yajirobe/internal/ledger"
)

// Exchanges lists the supported venue names.
var Exchanges = []string{"liquid", "bitbank", "gmo", "binance", "bybit"}

// Config is the runtime configuration of one bot invocation.
type Config struct {
	Exchange       string
	Pair           domain.Pair
	TargetBaseRate decimal.Decimal
	Deadband       decimal.Decimal
	StoreDir       string
	SlackWebhook   string
	CostMethod     ledger.CostMethod
}

type yamlConfig struct {
	Exchange       string `yaml:"exchange"`
	Symbol         string `yaml:"symbol"`
	TargetBaseRate string `yaml:"target_base_rate,omitempty"`
	Deadband       string `yaml:"deadband,omitempty"`
	StoreDir       string `yaml:"store_dir,omitempty"`
	CostMethod     string `yaml:"cost_method,omitempty"`
}

// Load merges the YAML file at path (when not empty) with the flag values.
// Flags win over the file; the Slack webhook always comes from the
// SLACK_WEBHOOK_URL environment variable and stays optional.
func Load(path, exchangeFlag, symbolFlag string) (Config, error) {
	cfg := Config{
		TargetBaseRate: decimal.RequireFromString("0.5"),
		Deadband:       decimal.RequireFromString("0.01"),
		StoreDir:       "./wal/points",
		SlackWebhook:   os.Getenv("SLACK_WEBHOOK_URL"),
	}

	var fileCfg yamlConfig
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
	}

	name := fileCfg.Exchange
	if exchangeFlag != "" {
		name = exchangeFlag
	}
	name = strings.ToLower(name)
	if !supported(name) {
		return Config{}, errors.Errorf("unsupported exchange %q, expected one of %s", name, strings.Join(Exchanges, ", "))
	}
	cfg.Exchange = name

	symbol := fileCfg.Symbol
	if symbolFlag != "" {
		symbol = symbolFlag
	}
	pair, err := domain.ParsePair(symbol)
	if err != nil {
		return Config{}, err
	}
	cfg.Pair = pair

	if fileCfg.TargetBaseRate != "" {
		cfg.TargetBaseRate, err = decimal.NewFromString(fileCfg.TargetBaseRate)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse target_base_rate")
		}
		if !cfg.TargetBaseRate.IsPositive() || cfg.TargetBaseRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return Config{}, errors.Errorf("target_base_rate must be in (0, 1), got %s", cfg.TargetBaseRate)
		}
	}
	if fileCfg.Deadband != "" {
		cfg.Deadband, err = decimal.NewFromString(fileCfg.Deadband)
		if err != nil {
			return Config{}, errors.Wrap(err, "parse deadband")
		}
		if cfg.Deadband.IsNegative() {
			return Config{}, errors.Errorf("deadband must not be negative, got %s", cfg.Deadband)
		}
	}
	if fileCfg.StoreDir != "" {
		cfg.StoreDir = fileCfg.StoreDir
	}

	switch fileCfg.CostMethod {
	case "", "average-on-buy":
		cfg.CostMethod = ledger.CostAverageOnBuy
	case "recompute-on-sell":
		cfg.CostMethod = ledger.CostRecomputeOnSell
	default:
		return Config{}, errors.Errorf("unknown cost_method %q", fileCfg.CostMethod)
	}

	return cfg, nil
}

// Credentials reads the API key pair for the venue from the environment,
// e.g. BITBANK_API_KEY and BITBANK_API_SECRET.
func (c Config) Credentials() (exchange.Credentials, error) {
	prefix := strings.ToUpper(c.Exchange)
	key := os.Getenv(prefix + "_API_KEY")
	secret := os.Getenv(prefix + "_API_SECRET")
	if key == "" || secret == "" {
		return exchange.Credentials{}, errors.Errorf("%s_API_KEY and %s_API_SECRET environment variables must be set", prefix, prefix)
	}
	return exchange.Credentials{Key: key, Secret: secret}, nil
}

func supported(name string) bool {
	for _, e := range Exchanges {
		if e == name {
			return true
		}
	}
	return false
}
