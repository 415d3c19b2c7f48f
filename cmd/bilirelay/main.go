package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bilirelay/internal/biliclient"
	"bilirelay/internal/botclient"
	"bilirelay/internal/cmdlog"
	"bilirelay/internal/config"
	"bilirelay/internal/logging"
	"bilirelay/internal/metrics"
	"bilirelay/internal/poller"
	"bilirelay/internal/relay"
	"bilirelay/internal/store"
	"bilirelay/internal/theme"
)

func main() {
	_ = godotenv.Load()

	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "check":
		cmdCheck()
	case "run":
		cmdRun()
	case "history":
		cmdHistory()
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: bilirelay <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./bilirelay.yaml")
	fmt.Println("  check       Verify key material, cookies, account and token access")
	fmt.Println("  run         Start the inbox polling relay")
	fmt.Println("  history     Show recently relayed messages")
}

// loadConfig reads the yaml file when present; otherwise the configuration
// comes entirely from the environment.
func loadConfig(path string) (config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		cfg.ResolveEnv()
		return cfg, nil
	}
	return config.Load(path)
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./bilirelay.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("init", func() error {
		return config.Save(*path, config.Default())
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
}

func cmdCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	cfgPath := fs.String("config", "./bilirelay.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("check", func() error {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := botclient.NewCodec(cfg.Bot.EncodingAESKey); err != nil {
			return err
		}
		if _, err := biliclient.CSRFFromCookies(cfg.Bilibili.Cookies); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		bili := biliclient.New(cfg.Bilibili.BaseURL, cfg.Bilibili.Cookies)
		me, err := bili.GetMyInfo(ctx)
		if err != nil {
			return fmt.Errorf("fetch my info: %w", err)
		}
		fmt.Printf("Account: %s (mid=%d)\n", me.Uname, me.Mid)
		limiter := botclient.NewWindowLimiter(30, time.Minute, time.Minute)
		tokens := botclient.NewTokenManager(cfg.Bot.AppID, cfg.Bot.AppSecret, cfg.Bot.BaseURL,
			time.Duration(cfg.Bot.TokenTTLMS)*time.Millisecond, limiter)
		if _, err := tokens.Token(ctx); err != nil {
			return err
		}
		fmt.Println("Bot token: ok")
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./bilirelay.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	if err := cmdlog.Run("run", func() error { return runRelay(*cfgPath) }); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func runRelay(cfgPath string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	codec, err := botclient.NewCodec(cfg.Bot.EncodingAESKey)
	if err != nil {
		return err
	}

	limiter := botclient.NewWindowLimiter(30, time.Minute, time.Minute)
	tokens := botclient.NewTokenManager(cfg.Bot.AppID, cfg.Bot.AppSecret, cfg.Bot.BaseURL,
		time.Duration(cfg.Bot.TokenTTLMS)*time.Millisecond, limiter)
	bot := botclient.NewClient(cfg.Bot.AppID, cfg.Bot.AppSecret, cfg.Bot.BaseURL, codec, tokens)
	bili := biliclient.New(cfg.Bilibili.BaseURL, cfg.Bilibili.Cookies)

	var journal *store.DB
	if cfg.Storage.DBPath != "" {
		journal, err = store.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The poller never starts when the account lookup fails.
	me, err := bili.GetMyInfo(ctx)
	if err != nil {
		return fmt.Errorf("fetch my info: %w", err)
	}
	bili.SetSender(me.Mid)
	logging.Info("relay_identity", map[string]any{"mid": me.Mid, "uname": me.Uname})

	r := relay.New(bili, bot, journal)
	p := poller.New(time.Duration(cfg.Poll.IntervalMS)*time.Millisecond, r.RunOnce)
	r.BindStop(p.Stop)

	metrics.StartServer(cfg.Metrics.Addr)
	p.Start(ctx)

	// Exit on signal or when a tick failure halts the poller.
	for {
		select {
		case <-ctx.Done():
			p.Stop()
			if !r.Drain(10 * time.Second) {
				logging.Warn("shutdown_drain_timeout", nil)
			}
			return nil
		case <-time.After(time.Second):
			if p.State() == poller.Stopped {
				if !r.Drain(10 * time.Second) {
					logging.Warn("shutdown_drain_timeout", nil)
				}
				return fmt.Errorf("poller stopped after tick failure")
			}
		}
	}
}

func cmdHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "./bilirelay.yaml", "config path")
	limit := fs.Int("limit", 20, "entries to show")
	_ = fs.Parse(os.Args[2:])
	err := cmdlog.Run("history", func() error {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			return err
		}
		if cfg.Storage.DBPath == "" {
			return fmt.Errorf("no storage dbPath configured")
		}
		db, err := store.Open(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		ctx := context.Background()
		if tick, err := db.LoadCursor(ctx, store.CursorLastTick); err == nil && tick != "" {
			fmt.Println("Last poll tick:", tick)
		}
		records, err := db.RecentRelays(ctx, *limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%s talker=%d user=%s intent=%s\n  Q: %s\n  A: %s\n",
				rec.Time.Format(time.RFC3339), rec.TalkerID, rec.UserName, rec.Intent, rec.Query, rec.Reply)
		}
		return nil
	})
	if err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
