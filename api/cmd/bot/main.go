package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"medmap/api/internal/app"
	"medmap/api/internal/config"
	"medmap/api/internal/handle"
	"medmap/api/internal/logger"
	"medmap/api/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if cfg.TelegramBotToken == "" {
		slog.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		slog.Error("telegram", "err", err)
		os.Exit(1)
	}
	r := telegram.NewRouter(bot, a.Pipeline)

	// Health and metrics share the mux with the webhook listener.
	h := handle.New(a.Pipeline, a.Metrics)
	h.Ping = a.Ping
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.Handle("/metrics", a.Metrics.Handler())
	addr := "0.0.0.0:" + cfg.Port

	if webhookURL := strings.TrimSpace(cfg.WebhookURL); webhookURL != "" {
		startWebhookMode(ctx, addr, mux, bot, r, webhookURL)
		return
	}
	startPollingMode(ctx, addr, mux, bot, r)
}

func serve(ctx context.Context, addr string, mux *http.ServeMux) {
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	slog.Info("http listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server", "err", err)
		os.Exit(1)
	}
}

func startWebhookMode(ctx context.Context, addr string, mux *http.ServeMux, bot *tgbotapi.BotAPI, r *telegram.Router, baseURL string) {
	path := "/webhook/" + shortHash(bot.Token)
	wh, err := tgbotapi.NewWebhook(strings.TrimRight(baseURL, "/") + path)
	if err != nil {
		slog.Error("webhook", "err", err)
		os.Exit(1)
	}
	wh.DropPendingUpdates = true
	if _, err := bot.Request(wh); err != nil {
		slog.Error("set webhook", "err", err)
		os.Exit(1)
	}

	updates := make(chan tgbotapi.Update, bot.Buffer)
	mux.HandleFunc(path, func(w http.ResponseWriter, req *http.Request) {
		upd, err := bot.HandleUpdate(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		updates <- *upd
	})
	go func() {
		for upd := range updates {
			go r.HandleUpdate(ctx, upd)
		}
	}()

	slog.Info("webhook mode", "path", path)
	serve(ctx, addr, mux)
}

func startPollingMode(ctx context.Context, addr string, mux *http.ServeMux, bot *tgbotapi.BotAPI, r *telegram.Router) {
	go serve(ctx, addr, mux)
	runPolling(ctx, bot, func(upd tgbotapi.Update) {
		go r.HandleUpdate(ctx, upd)
	})
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return time.Second
}

// runPolling long-polls with backoff until ctx is done.
func runPolling(ctx context.Context, bot *tgbotapi.BotAPI, fn func(tgbotapi.Update)) {
	offset := 0
	const (
		baseDelay = time.Second
		maxDelay  = 15 * time.Second
	)
	for ctx.Err() == nil {
		u := tgbotapi.NewUpdate(offset)
		u.Timeout = 30

		updates, err := bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseDelay), maxDelay)
			slog.Warn("polling error", "err", err, "retry_in", d)
			sleep(ctx, d)
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			fn(upd)
		}
		if len(updates) == 0 {
			sleep(ctx, 200*time.Millisecond)
		}
	}
	slog.Info("polling stopped")
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// shortHash is FNV-1a of the token, used only to obscure the webhook path.
func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return strconv.FormatUint(h, 16)
}
