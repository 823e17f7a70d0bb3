package bot

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harold-bot/metrics"

	"go.uber.org/zap"
)

// Run opens the gateway connection and blocks until SIGINT or SIGTERM.
func (b *Bot) Run() error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("open connection: %w", err)
	}

	if addr := b.Config.Metrics.Addr; addr != "" {
		b.startMetricsServer(addr)
	}

	b.Log.Info("bot is now running, press CTRL-C to exit")
	b.Reporter.Info("", "System", "Startup", "Bot has started successfully.")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc
	return nil
}

func (b *Bot) startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(b.Registry))
	b.metricsServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := b.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.Log.Error("metrics server failed", zap.Error(err))
		}
	}()
	b.Log.Info("serving metrics", zap.String("addr", addr))
}
