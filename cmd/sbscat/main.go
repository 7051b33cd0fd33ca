// sbscat follows an SBS feed and dumps it to stdout, raw lines and/or
// parsed messages as JSON, with optional archiving to disk.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/sbslab/sbs-session/internal/client"
	"github.com/sbslab/sbs-session/internal/sbs"
)

type options struct {
	host       string
	port       int
	raw        bool
	parsed     bool
	record     bool
	recordFile string
	maxBytes   int64
	backups    int
	logLevel   string
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("sbscat", pflag.ContinueOnError)
	fs.StringVar(&opts.host, "host", "localhost", "SBS source host")
	fs.IntVar(&opts.port, "port", 30003, "SBS source port")
	fs.BoolVar(&opts.raw, "raw", false, "print raw wire lines")
	fs.BoolVar(&opts.parsed, "parsed", true, "print parsed messages as JSON")
	fs.BoolVar(&opts.record, "record", false, "archive raw lines to --record-file")
	fs.StringVar(&opts.recordFile, "record-file", "", "archive file path")
	fs.Int64Var(&opts.maxBytes, "max-bytes", 0, "archive rotation size in bytes")
	fs.IntVar(&opts.backups, "backups", 0, "rotated archive files to keep")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !opts.raw && !opts.parsed {
		return nil, fmt.Errorf("nothing to print: enable --raw and/or --parsed")
	}
	return opts, nil
}

func main() {
	log := logrus.New()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		log.WithError(err).Fatal("Invalid arguments")
	}
	if level, err := logrus.ParseLevel(opts.logLevel); err == nil {
		log.SetLevel(level)
	}

	cfg := client.Config{
		Host:           opts.host,
		Port:           opts.port,
		Record:         opts.record,
		RecordFile:     opts.recordFile,
		RecordMaxBytes: opts.maxBytes,
		RecordBackups:  opts.backups,
		Logger:         log,
	}
	if opts.raw {
		cfg.OnRaw = func(line string) {
			fmt.Println(line)
		}
	}
	if opts.parsed {
		cfg.OnMessage = func(msg *sbs.Message) {
			printParsed(os.Stdout, msg, log)
		}
	}

	c, err := client.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("Invalid client configuration")
	}
	if err := c.Connect(); err != nil {
		log.WithError(err).Fatalf("Failed to connect to %s:%d", opts.host, opts.port)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Error("Failed to close client")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Interrupted")
	case <-c.Done():
		log.Warn("Connection closed by the feed")
	}
}

// printParsed writes one message as a JSON line.
func printParsed(w *os.File, msg *sbs.Message, log *logrus.Logger) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).Error("Failed to encode message")
		return
	}
	fmt.Fprintln(w, string(data))
}
