// The logger subscribes to raw SBS traffic on the bus and writes each
// envelope to a rotating archive, stamped with its receipt timestamp.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/archive"
	"github.com/sbslab/sbs-session/internal/config"
	"github.com/sbslab/sbs-session/internal/nats"
	"github.com/sbslab/sbs-session/internal/types"
)

// archiveName is the archive file created under the output directory.
const archiveName = "sbs.log"

func main() {
	log := logrus.New()
	if err := runLogger(log); err != nil {
		log.WithError(err).Fatal("Logger failed")
	}
}

// runLogger contains the main application logic and can be tested
func runLogger(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	natsURL := cfg.NATSURL
	if natsURL == "" {
		natsURL = "nats://nats:4222" // Default to Docker service name
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	maxBytes := cfg.RecordMaxBytes
	if maxBytes == 0 {
		maxBytes = archive.DefaultMaxBytes
	}
	backups := cfg.RecordBackups
	if backups == 0 {
		backups = archive.DefaultBackups
	}
	writer, err := archive.New(filepath.Join(cfg.OutputDir, archiveName), maxBytes, backups, log)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			log.WithError(err).Error("Failed to close archive")
		}
	}()

	bus, err := nats.New(natsURL, log)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer bus.Close()

	if err := bus.SubscribeRaw(func(msg *types.RawMessage) {
		writeRaw(writer, msg)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to raw messages: %w", err)
	}

	log.Infof("Archiving %s to %s", nats.SubjectRaw, cfg.OutputDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	return nil
}

// writeRaw archives one envelope under its receipt timestamp, not the
// write time, so replayed bus backlogs keep their original stamps.
func writeRaw(writer *archive.Writer, msg *types.RawMessage) {
	writer.EmitAt(msg.Timestamp, msg.Raw)
}
