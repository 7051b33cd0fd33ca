// The ingestor connects to one or more SBS sources and publishes every raw
// line to JetStream, so downstream consumers survive their own restarts.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/client"
	"github.com/sbslab/sbs-session/internal/config"
	"github.com/sbslab/sbs-session/internal/nats"
	"github.com/sbslab/sbs-session/internal/types"
)

// reconnectDelay is the pause between connection attempts to a source.
const reconnectDelay = 5 * time.Second

// Publisher is the bus surface the ingestor needs.
type Publisher interface {
	PublishRaw(msg *types.RawMessage) error
	Close()
}

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	natsURL := cfg.NATSURL
	if natsURL == "" {
		natsURL = "nats://nats:4222" // Default to Docker service name
	}

	bus, err := nats.New(natsURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create NATS client")
	}
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, source := range cfg.Sources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			ingestSource(ctx, source, bus, log)
		}(source)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	cancel()
	wg.Wait()
}

// ingestSource keeps one source connected until ctx is cancelled. The
// protocol client does not retry on its own; the reconnect policy lives
// here.
func ingestSource(ctx context.Context, source string, bus Publisher, log *logrus.Logger) {
	for {
		if err := connectAndIngest(ctx, source, bus, log); err != nil {
			log.WithError(err).Errorf("Source %s failed", source)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectAndIngest runs one connection lifetime: dial, publish every line,
// return when the feed drops or ctx is cancelled.
func connectAndIngest(ctx context.Context, source string, bus Publisher, log *logrus.Logger) error {
	host, port, err := splitSource(source)
	if err != nil {
		return err
	}

	c, err := client.New(client.Config{
		Host: host,
		Port: port,
		OnRaw: func(line string) {
			raw := &types.RawMessage{
				Raw:       line,
				Timestamp: time.Now().UTC(),
				Source:    source,
			}
			if err := bus.PublishRaw(raw); err != nil {
				log.WithError(err).Error("Failed to publish raw message")
			}
		},
		Logger: log,
	})
	if err != nil {
		return err
	}

	if err := c.Connect(); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", source, err)
	}
	log.Infof("Connected to source: %s", source)

	select {
	case <-ctx.Done():
		return c.Close()
	case <-c.Done():
		log.Warnf("Lost connection to source: %s", source)
		return c.Close()
	}
}

// splitSource parses a host:port source address.
func splitSource(source string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(source)
	if err != nil {
		return "", 0, fmt.Errorf("invalid source %q: %w", source, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in source %q: %w", source, err)
	}
	return host, port, nil
}
