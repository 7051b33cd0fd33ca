package client

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sbslab/sbs-session/internal/archive"
	"github.com/sbslab/sbs-session/internal/sbs"
	"github.com/sbslab/sbs-session/internal/server"
	"github.com/sbslab/sbs-session/internal/testutils"
)

const testLine = "MSG,3,1,1,7C79B7,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,2850,,,-34.84658,138.67962,,,,,,"

func startTestServer(t *testing.T) *server.Server {
	t.Helper()
	srv := server.New("127.0.0.1", 0, nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}
	t.Cleanup(func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Failed to close test server: %v", err)
		}
	})
	return srv
}

func connect(t *testing.T, cfg Config, srv *server.Server) *Client {
	t.Helper()
	cfg.Host = "127.0.0.1"
	cfg.Port = srv.Port()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	t.Cleanup(func() {
		if err := c.Close(); err != nil {
			t.Errorf("Close() failed: %v", err)
		}
	})
	if err := testutils.WaitForCondition(func() bool {
		return len(srv.Peers()) == 1
	}, 5*time.Second); err != nil {
		t.Fatalf("Client never registered with server: %v", err)
	}
	return c
}

func TestNew_RecordWithoutFile(t *testing.T) {
	_, err := New(Config{Record: true})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New() = %v, want ErrInvalidConfig", err)
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	// Grab a port that nothing is listening on.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	c, err := New(Config{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Connect(); err == nil {
		t.Error("Expected dial error for refused connection")
	}
	if got := c.State(); got != Idle {
		t.Errorf("State after failed connect = %v, want idle", got)
	}
}

func TestClient_ConnectWhileRunning(t *testing.T) {
	srv := startTestServer(t)
	c := connect(t, Config{}, srv)

	if err := c.Connect(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Second Connect() = %v, want ErrAlreadyRunning", err)
	}
}

func TestClient_ParsedCallbackEndToEnd(t *testing.T) {
	srv := startTestServer(t)

	var mu sync.Mutex
	var msgs []*sbs.Message
	connect(t, Config{
		OnMessage: func(m *sbs.Message) {
			mu.Lock()
			msgs = append(msgs, m)
			mu.Unlock()
		},
	}, srv)

	if err := srv.Broadcast(testLine); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}

	if err := testutils.WaitForCondition(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) == 1
	}, 5*time.Second); err != nil {
		t.Fatalf("Parsed callback never fired: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	msg := msgs[0]
	if msg.HexIdent != "7C79B7" {
		t.Errorf("HexIdent = %q, want %q", msg.HexIdent, "7C79B7")
	}
	if msg.TransmissionType != sbs.ESAirbornePosition {
		t.Errorf("TransmissionType = %d, want 3", msg.TransmissionType)
	}
	if msg.Altitude == nil || *msg.Altitude != 2850 {
		t.Errorf("Altitude = %v, want 2850", msg.Altitude)
	}
	if msg.Latitude == nil || *msg.Latitude != -34.84658 {
		t.Errorf("Latitude = %v, want -34.84658", msg.Latitude)
	}
	if msg.Longitude == nil || *msg.Longitude != 138.67962 {
		t.Errorf("Longitude = %v, want 138.67962", msg.Longitude)
	}
	if msg.Callsign != nil {
		t.Errorf("Callsign = %q, want nil", *msg.Callsign)
	}
}

func TestClient_HeartbeatsNeverDispatch(t *testing.T) {
	srv := startTestServer(t)

	var mu sync.Mutex
	var raw []string
	connect(t, Config{
		OnRaw: func(line string) {
			mu.Lock()
			raw = append(raw, line)
			mu.Unlock()
		},
	}, srv)

	// Heartbeats are bare delimiters; Broadcast("") sends exactly that.
	for i := 0; i < 3; i++ {
		if err := srv.Broadcast(""); err != nil {
			t.Fatalf("Broadcast() failed: %v", err)
		}
	}
	if err := srv.Broadcast(testLine); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}

	if err := testutils.WaitForCondition(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(raw) >= 1
	}, 5*time.Second); err != nil {
		t.Fatalf("Raw callback never fired: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(raw) != 1 || raw[0] != testLine {
		t.Errorf("Raw lines = %v, want exactly the one real message", raw)
	}
}

func TestClient_SentinelICAODropped(t *testing.T) {
	srv := startTestServer(t)

	var mu sync.Mutex
	var msgs []*sbs.Message
	connect(t, Config{
		OnMessage: func(m *sbs.Message) {
			mu.Lock()
			msgs = append(msgs, m)
			mu.Unlock()
		},
	}, srv)

	sentinel := "MSG,3,1,1,000000,1,2017/03/25,10:41:45.365,2017/03/25,10:41:45.384,,2850,,,-34.84658,138.67962,,,,,,"
	if err := srv.Broadcast(sentinel); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}
	if err := srv.Broadcast(testLine); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}

	if err := testutils.WaitForCondition(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) >= 1
	}, 5*time.Second); err != nil {
		t.Fatalf("Parsed callback never fired: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(msgs) != 1 || msgs[0].HexIdent != "7C79B7" {
		t.Errorf("Expected only the 7C79B7 message through, got %d messages", len(msgs))
	}
}

func TestClient_ParseErrorDoesNotKillStream(t *testing.T) {
	srv := startTestServer(t)

	var mu sync.Mutex
	var msgs []*sbs.Message
	connect(t, Config{
		OnMessage: func(m *sbs.Message) {
			mu.Lock()
			msgs = append(msgs, m)
			mu.Unlock()
		},
	}, srv)

	if err := srv.Broadcast("GARBAGE,not,an,sbs,line"); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}
	if err := srv.Broadcast(testLine); err != nil {
		t.Fatalf("Broadcast() failed: %v", err)
	}

	if err := testutils.WaitForCondition(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) == 1
	}, 5*time.Second); err != nil {
		t.Fatalf("Stream did not survive the malformed line: %v", err)
	}
}

func TestClient_RecordingArchivesEveryLine(t *testing.T) {
	srv := startTestServer(t)
	recordFile := filepath.Join(t.TempDir(), "session.log")

	var mu sync.Mutex
	var raw []string
	c := connect(t, Config{
		Record:     true,
		RecordFile: recordFile,
		OnRaw: func(line string) {
			mu.Lock()
			raw = append(raw, line)
			mu.Unlock()
		},
	}, srv)

	const n = 5
	for i := 0; i < n; i++ {
		lat := -34.8 - float64(i)*0.01
		if err := srv.Broadcast(testutils.PositionLine("7C79B7", time.Now(), lat, 138.7, 2850+i)); err != nil {
			t.Fatalf("Broadcast() failed: %v", err)
		}
	}

	if err := testutils.WaitForCondition(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(raw) == n
	}, 5*time.Second); err != nil {
		t.Fatalf("Did not receive all lines: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	records, err := archive.ReadArchive(recordFile)
	if err != nil {
		t.Fatalf("ReadArchive() failed: %v", err)
	}
	if len(records) != n {
		t.Fatalf("Archive has %d records, want %d", len(records), n)
	}
	for _, rec := range records {
		if _, err := time.Parse(time.RFC3339Nano, rec.Timestamp); err != nil {
			t.Errorf("Record timestamp %q not RFC3339Nano: %v", rec.Timestamp, err)
		}
		if _, err := sbs.ParseLine(rec.Line); err != nil {
			t.Errorf("Archived line %q does not re-parse: %v", rec.Line, err)
		}
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := startTestServer(t)
	c := connect(t, Config{}, srv)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if got := c.State(); got != Closed {
		t.Errorf("State after close = %v, want closed", got)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second Close() should be a no-op, got %v", err)
	}
}

func TestClient_CloseNeverConnected(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on idle client = %v, want nil", err)
	}

	select {
	case <-c.Done():
	default:
		t.Error("Done() before first connect should be closed")
	}
}

func TestClient_RemoteCloseReleasesResources(t *testing.T) {
	srv := startTestServer(t)
	recordFile := filepath.Join(t.TempDir(), "session.log")
	c := connect(t, Config{Record: true, RecordFile: recordFile}, srv)

	done := c.Done()
	if err := srv.Close(); err != nil {
		t.Fatalf("Server Close() failed: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Reader did not exit after remote close")
	}

	c.mu.Lock()
	conn, rec := c.conn, c.archive
	c.mu.Unlock()
	if conn != nil {
		t.Error("Connection handle still held after remote close")
	}
	if rec != nil {
		t.Error("Record file handle still held after remote close")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() after remote close = %v, want nil", err)
	}
}

func TestClient_RemoteDisconnectCyclesDoNotLeakDescriptors(t *testing.T) {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skipf("Cannot inspect open descriptors: %v", err)
	}
	before := len(entries)

	const cycles = 20
	for i := 0; i < cycles; i++ {
		srv := server.New("127.0.0.1", 0, nil)
		if err := srv.Start(); err != nil {
			t.Fatalf("Failed to start test server: %v", err)
		}
		c, err := New(Config{Host: "127.0.0.1", Port: srv.Port()})
		if err != nil {
			t.Fatalf("New() failed: %v", err)
		}
		if err := c.Connect(); err != nil {
			t.Fatalf("Connect() failed: %v", err)
		}
		done := c.Done()
		if err := srv.Close(); err != nil {
			t.Fatalf("Server Close() failed: %v", err)
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Reader did not exit after remote close")
		}
		if err := c.Close(); err != nil {
			t.Fatalf("Close() failed: %v", err)
		}
	}

	entries, err = os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatalf("Failed to re-read /proc/self/fd: %v", err)
	}
	if after := len(entries); after > before+3 {
		t.Errorf("Open descriptors grew from %d to %d over %d disconnect cycles", before, after, cycles)
	}
}

func TestClient_RemoteCloseMovesToClosed(t *testing.T) {
	srv := startTestServer(t)
	c := connect(t, Config{}, srv)

	done := c.Done()
	if err := srv.Close(); err != nil {
		t.Fatalf("Server Close() failed: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Reader did not exit after remote close")
	}
	if got := c.State(); got != Closed {
		t.Errorf("State after remote close = %v, want closed", got)
	}

	// Reconnect after close is allowed once a listener is back.
	if err := c.Connect(); err == nil {
		t.Error("Expected reconnect to fail with the server gone")
	}
}
