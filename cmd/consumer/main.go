package main // Audit-log consumer for reservation lifecycle events

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/logging"
	"github.com/iliyamo/table-reservation/internal/queue"
)

// The consumer only needs the broker and the log directory, so it does not
// call config.Load and its required database settings.
func main() {
	config.LoadDotEnv()
	log := logging.New(logging.Options{Level: os.Getenv("LOG_LEVEL"), Format: os.Getenv("LOG_FORMAT")})

	dir := os.Getenv("RESERVATION_LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	c := &queue.Consumer{URL: config.AMQPURL(), Dir: dir, Log: log}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("dir", dir).Info("reservation consumer started")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("consumer stopped")
	}
	log.Info("reservation consumer stopped")
}
