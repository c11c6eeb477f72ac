// Command ledgerctl inspects and administers a botledger store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ineyio/botledger"
	"github.com/ineyio/botledger/generator/gemini"
	"github.com/ineyio/botledger/generator/openaicompat"
	"github.com/ineyio/botledger/meter"
	"github.com/ineyio/botledger/store/jsonfile"
)

const usage = `Usage: ledgerctl [-config path] <command> [args]

Commands:
  tiers                      list tiers and their quotas
  tier <name>                show one tier
  account <user>             show a user's account
  grant <user> <tier>        move a user to a tier with fresh quotas
  promo create <code> <tier> register a promo code
  promo gen <tier> <n>       generate n promo codes
  promo show <code>          show a promo code
  redeem <code> <user>       redeem a promo code for a user
  clear-history <user> [model]
  ask <user> <model> <prompt...>
  export                     write the full state as JSON to stdout
  import <file>              merge a JSON state file into the store
`

func main() {
	// .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ledgerctl:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("LOG_LEVEL") == "debug" {
		opts.Level = slog.LevelDebug
	}
	if os.Getenv("LOG_FORMAT") == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ledgerctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "path to YAML config (default: built-in)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg := botledger.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = botledger.LoadConfig(*configPath); err != nil {
			return err
		}
	}

	logger := newLogger()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := append(cfg.LedgerOptions(), botledger.WithMeter(meter.NewLogMeter(logger)))
	l, err := botledger.NewLedger(store, opts...)
	if err != nil {
		return err
	}

	c := &cli{ledger: l, cfg: cfg, out: stdout}
	return c.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

type cli struct {
	ledger *botledger.Ledger
	cfg    botledger.Config
	out    io.Writer
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "tiers":
		return c.tiers()
	case "tier":
		if len(args) != 1 {
			return errors.New("usage: tier <name>")
		}
		return c.tier(args[0])
	case "account":
		if len(args) != 1 {
			return errors.New("usage: account <user>")
		}
		return c.account(ctx, args[0])
	case "grant":
		if len(args) != 2 {
			return errors.New("usage: grant <user> <tier>")
		}
		if err := c.ledger.ApplyTier(ctx, args[0], args[1]); err != nil {
			return err
		}
		return c.account(ctx, args[0])
	case "promo":
		return c.promo(ctx, args)
	case "redeem":
		if len(args) != 2 {
			return errors.New("usage: redeem <code> <user>")
		}
		info, err := c.ledger.Redeem(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "user %s is now on %s (%s)\n", args[1], info.Name, info.Price)
		return nil
	case "clear-history":
		if len(args) < 1 || len(args) > 2 {
			return errors.New("usage: clear-history <user> [model]")
		}
		model := ""
		if len(args) == 2 {
			model = args[1]
		}
		return c.ledger.ClearHistory(ctx, args[0], model)
	case "ask":
		if len(args) < 3 {
			return errors.New("usage: ask <user> <model> <prompt...>")
		}
		return c.ask(ctx, args[0], args[1], strings.Join(args[2:], " "))
	case "export":
		return c.export(ctx)
	case "import":
		if len(args) != 1 {
			return errors.New("usage: import <file>")
		}
		return c.importFile(ctx, args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (c *cli) tiers() error {
	names := c.ledger.TierNames()
	infos := make([]botledger.TierInfo, 0, len(names))
	for _, name := range names {
		info, err := c.ledger.DescribeTier(name)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}
	renderTiers(c.out, infos, c.ledger.Catalog())
	return nil
}

func (c *cli) tier(name string) error {
	info, err := c.ledger.DescribeTier(name)
	if err != nil {
		return err
	}
	renderTiers(c.out, []botledger.TierInfo{info}, c.ledger.Catalog())
	return nil
}

func (c *cli) account(ctx context.Context, userID string) error {
	acc, err := c.ledger.Account(ctx, userID)
	if err != nil {
		return err
	}
	renderAccount(c.out, userID, acc)
	return nil
}

func (c *cli) promo(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: promo create|gen|show ...")
	}
	switch args[0] {
	case "create":
		if len(args) != 3 {
			return errors.New("usage: promo create <code> <tier>")
		}
		if err := c.ledger.CreatePromo(ctx, args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintln(c.out, botledger.NormalizeCode(args[1]))
		return nil
	case "gen":
		if len(args) != 3 {
			return errors.New("usage: promo gen <tier> <n>")
		}
		n, err := strconv.Atoi(args[2])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count %q", args[2])
		}
		codes, err := c.ledger.GeneratePromos(ctx, args[1], n)
		for _, code := range codes {
			fmt.Fprintln(c.out, code)
		}
		return err
	case "show":
		if len(args) != 2 {
			return errors.New("usage: promo show <code>")
		}
		p, err := c.ledger.Promo(ctx, args[1])
		if err != nil {
			return err
		}
		status := "unused"
		if p.Used {
			status = "used by " + string(p.UsedBy)
		}
		fmt.Fprintf(c.out, "%s tier=%s %s\n", botledger.NormalizeCode(args[1]), p.Tier, status)
		return nil
	default:
		return fmt.Errorf("unknown promo command %q", args[0])
	}
}

func (c *cli) ask(ctx context.Context, userID, model, prompt string) error {
	res, err := c.ledger.Generate(ctx, userID, model, prompt, newGenerator(c.cfg.Generator))
	if res.Response.Content != "" {
		fmt.Fprintln(c.out, res.Response.Content)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "\n%s\n", dimStyle.Render(fmt.Sprintf("%s requests left for %s", formatQuota(res.Remaining), model)))
	return nil
}

func newGenerator(gc botledger.GeneratorConfig) botledger.Generator {
	if gc.Name == "gemini" {
		opts := []gemini.Option{gemini.WithModels(gc.Models)}
		if gc.BaseURL != "" && gc.BaseURL != botledger.DefaultConfig().Generator.BaseURL {
			opts = append(opts, gemini.WithBaseURL(gc.BaseURL))
		}
		if gc.RateLimit > 0 {
			opts = append(opts, gemini.WithRateLimit(gc.RateLimit, max(gc.Burst, 1)))
		}
		return gemini.New(gc.APIKey, opts...)
	}

	opts := []openaicompat.Option{
		openaicompat.WithAPIKey(gc.APIKey),
		openaicompat.WithModels(gc.Models),
	}
	if gc.RateLimit > 0 {
		opts = append(opts, openaicompat.WithRateLimit(gc.RateLimit, max(gc.Burst, 1)))
	}
	return openaicompat.New(gc.Name, gc.BaseURL, opts...)
}

func (c *cli) export(ctx context.Context) error {
	exp, ok := c.ledger.Store().(botledger.Exporter)
	if !ok {
		return errors.New("store does not support export")
	}
	snap, err := exp.Export(ctx)
	if err != nil {
		return err
	}
	data, err := jsonfile.Encode(snap)
	if err != nil {
		return err
	}
	_, err = c.out.Write(data)
	return err
}

func (c *cli) importFile(ctx context.Context, path string) error {
	imp, ok := c.ledger.Store().(botledger.Importer)
	if !ok {
		return errors.New("store does not support import")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	snap, err := jsonfile.Decode(data)
	if err != nil {
		return err
	}
	if err := imp.Import(ctx, snap); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "imported %d users, %d promocodes\n", len(snap.Users), len(snap.Promocodes))
	return nil
}
