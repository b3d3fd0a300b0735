package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/config"
	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/ledger"
	"github.com/rustyeddy/fintrack/portfolio"
	"github.com/rustyeddy/fintrack/savings"
	"github.com/rustyeddy/fintrack/store"
)

var rootCmd = &cobra.Command{
	Use:   "fintrack",
	Short: "Personal finance ledger with savings goals and investment tracking",
	Long: `Fintrack keeps account balances, a savings sub-ledger and investment
holdings consistent with their transaction and trade logs.

It provides tools for:
  - Recording income and expenses, with a share routed to savings
  - Moving savings into goals and back
  - Recording buy/sell trades and deriving holdings by replay
  - Auditing balances against the transaction log
  - Exporting to CSV and XLSX
  - Serving everything over HTTP`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	dbPath    string
	ownerFlag string
	logLevel  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	err := rootCmd.Execute()
	if errs.Retryable(err) {
		fmt.Fprintln(os.Stderr, "! the ledger was busy; the command can be retried")
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&ownerFlag, "owner", "", "owner to act for (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
}

// app is the wiring shared by every command that touches the ledger.
type app struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *store.Store
	ledger    *ledger.Ledger
	savings   *savings.Service
	portfolio *portfolio.Engine
	owner     string
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if ownerFlag != "" {
		cfg.Owner = ownerFlag
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.StoreOptions(log)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sav := savings.New(st, log)
	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		ledger:    ledger.New(st, sav, log, ledger.WithDefaultCurrency(cfg.Engine.DefaultCurrency)),
		savings:   sav,
		portfolio: portfolio.New(st, log),
		owner:     cfg.Owner,
	}, nil
}

// withApp opens the store for the duration of one command.
func withApp(run func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.store.Close()
		return run(cmd.Context(), a, args)
	}
}

// account resolves a name or id to one of the owner's accounts.
func (a *app) account(ctx context.Context, ref string) (store.Account, error) {
	acct, err := a.ledger.AccountByName(ctx, a.owner, ref)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return store.Account{}, err
	}
	return a.ledger.Account(ctx, a.owner, ref)
}
