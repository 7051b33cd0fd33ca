// Package client implements the SBS protocol client: one TCP connection to
// a BaseStation-format source, framed into lines and dispatched to
// registered callbacks as raw text and as parsed messages.
package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sbslab/sbs-session/internal/archive"
	"github.com/sbslab/sbs-session/internal/sbs"
	"github.com/sbslab/sbs-session/internal/stats"
)

var (
	// ErrAlreadyRunning is returned by Connect on a client that is
	// connecting or connected.
	ErrAlreadyRunning = errors.New("client is already running")
	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("invalid client configuration")
)

// State is the client connection state.
type State int

const (
	Idle State = iota
	Connecting
	Connected
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// RawHandler receives each framed line, without its delimiter.
type RawHandler func(line string)

// MessageHandler receives each successfully parsed message.
type MessageHandler func(msg *sbs.Message)

// Config configures a Client. At least one of OnRaw and OnMessage would
// normally be set; a client with neither still archives when recording.
type Config struct {
	Host string // default "localhost"
	Port int    // default 30003

	OnRaw     RawHandler
	OnMessage MessageHandler

	// Record enables archiving every received line verbatim with a
	// receipt timestamp. RecordFile must be set when Record is true.
	Record         bool
	RecordFile     string
	RecordMaxBytes int64 // default archive.DefaultMaxBytes
	RecordBackups  int   // default archive.DefaultBackups

	Stats  *stats.Stats // optional ingest counters
	Logger *logrus.Logger
}

// Client owns one connection to an SBS source. Connect starts a single
// reader goroutine; callbacks fire on that goroutine in arrival order.
type Client struct {
	cfg Config
	log *logrus.Logger

	mu      sync.Mutex
	state   State
	conn    net.Conn
	archive *archive.Writer
	done    chan struct{}

	wg sync.WaitGroup
}

// New validates cfg and returns an idle client. Recording without a record
// file fails with ErrInvalidConfig.
func New(cfg Config) (*Client, error) {
	if cfg.Record && cfg.RecordFile == "" {
		return nil, fmt.Errorf("%w: recording enabled but no record file specified", ErrInvalidConfig)
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 30003
	}
	if cfg.RecordMaxBytes == 0 {
		cfg.RecordMaxBytes = archive.DefaultMaxBytes
	}
	if cfg.RecordBackups == 0 {
		cfg.RecordBackups = archive.DefaultBackups
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, log: log, state: Idle}, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	return c.State() == Connected
}

// Done returns a channel closed when the reader goroutine of the current
// connection exits, whether from Close or a remote disconnect. Before the
// first Connect it returns an already-closed channel.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return c.done
}

// Connect dials the configured source and starts the reader. There is no
// automatic retry: a dial failure is returned to the caller and the client
// returns to its previous idle/closed state. Connecting an already-running
// client returns ErrAlreadyRunning.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected || c.state == Closing {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	prev := c.state
	c.state = Connecting
	c.mu.Unlock()

	addr := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))

	var rec *archive.Writer
	if c.cfg.Record {
		var err error
		rec, err = archive.New(c.cfg.RecordFile, c.cfg.RecordMaxBytes, c.cfg.RecordBackups, c.log)
		if err != nil {
			c.setState(prev)
			return fmt.Errorf("failed to open record file: %w", err)
		}
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		if rec != nil {
			rec.Close()
		}
		c.setState(prev)
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.archive = rec
	c.done = make(chan struct{})
	c.state = Connected
	done := c.done
	c.mu.Unlock()

	c.log.WithField("addr", addr).Info("Connected to SBS source")

	c.wg.Add(1)
	go c.readLoop(conn, done)
	return nil
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) readLoop(conn net.Conn, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	dec := &sbs.Decoder{}
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range dec.Feed(buf[:n]) {
				c.handleLine(line)
			}
		}
		if err != nil {
			// Release the connection and archive here unless Close
			// already took ownership of them; a remote disconnect must
			// not leak either handle across reconnect cycles.
			c.mu.Lock()
			closing := c.state == Closing || c.state == Closed
			rec := c.archive
			c.conn = nil
			c.archive = nil
			c.state = Closed
			c.mu.Unlock()

			if !closing {
				if errors.Is(err, io.EOF) {
					c.log.Info("SBS source closed the connection")
				} else {
					c.log.WithError(err).Warn("SBS connection read failed")
				}
				conn.Close()
				if rec != nil {
					if cerr := rec.Close(); cerr != nil {
						c.log.WithError(cerr).Warn("Failed to close record file")
					}
				}
			}
			if dec.Pending() > 0 {
				// Trailing undelimited bytes are dropped, never
				// surfaced as a final message.
				c.log.WithField("bytes", dec.Pending()).
					Debug("Discarding undelimited trailing bytes")
			}
			return
		}
	}
}

// handleLine dispatches one framed line: archive first, then the raw
// callback, then parse and dispatch the message callback. Parse failures
// and the zero-ICAO sentinel are contained here and never end the stream.
func (c *Client) handleLine(line string) {
	if c.cfg.Stats != nil {
		c.cfg.Stats.IncTotal()
	}

	c.mu.Lock()
	rec := c.archive
	c.mu.Unlock()
	if rec != nil {
		rec.Emit(line)
	}

	if c.cfg.OnRaw != nil {
		c.cfg.OnRaw(line)
	}

	if c.cfg.OnMessage == nil {
		return
	}
	msg, err := sbs.ParseLine(line)
	if err != nil {
		if c.cfg.Stats != nil {
			c.cfg.Stats.IncParseError()
		}
		c.log.WithError(err).Warnf("Skipping unparseable line: %q", line)
		return
	}
	if c.cfg.Stats != nil {
		c.cfg.Stats.IncParsed()
	}
	if msg.HexIdent == sbs.ZeroICAO {
		if c.cfg.Stats != nil {
			c.cfg.Stats.IncSentinelDrop()
		}
		c.log.Warnf("Invalid ICAO code detected: %s", msg.HexIdent)
		return
	}
	c.cfg.OnMessage(msg)
}

// Close aborts the connection without waiting for unsent data, waits for
// the reader goroutine and closes the archive. Closing a client that never
// connected, or closing twice, is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state != Connecting && c.state != Connected && c.conn == nil && c.archive == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	conn := c.conn
	rec := c.archive
	c.conn = nil
	c.archive = nil
	c.mu.Unlock()

	if conn != nil {
		if tcp, ok := conn.(*net.TCPConn); ok {
			// Abort rather than linger on unsent data.
			if err := tcp.SetLinger(0); err != nil {
				c.log.WithError(err).Debug("Failed to set linger on close")
			}
		}
		conn.Close()
	}
	c.wg.Wait()

	if rec != nil {
		if err := rec.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close record file")
		}
	}

	c.setState(Closed)
	c.log.Debug("SBS client closed")
	return nil
}
