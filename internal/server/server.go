// Package server implements a minimal SBS feed server. It tracks connected
// peers and pushes CRLF-terminated message lines to them, one-way. Its main
// use is simulating a BaseStation source in tests.
package server

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoPeers is returned by Broadcast when no clients are connected.
	ErrNoPeers = errors.New("no peers connected")
	// ErrUnknownPeer is returned by SendTo for an unregistered peer address.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Server accepts SBS client connections and sends them message lines.
// Inbound data from peers is unexpected and only logged.
type Server struct {
	host string
	port int
	log  *logrus.Logger

	mu       sync.Mutex
	listener net.Listener
	peers    map[string]net.Conn
	closed   bool

	wg sync.WaitGroup
}

// New returns an unstarted Server. Port 0 selects an ephemeral port,
// exposed via Port after Start.
func New(host string, port int, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		host:  host,
		port:  port,
		log:   log,
		peers: make(map[string]net.Conn),
	}
}

// Start begins listening and accepting peers in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("failed to listen on %s:%d: %w", s.host, s.port, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()

	s.log.WithField("addr", listener.Addr().String()).Debug("SBS server listening")

	s.wg.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Addr returns the bound listen address, e.g. "127.0.0.1:30003".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Port returns the bound listen port.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}

		peer := conn.RemoteAddr().String()
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.peers[peer] = conn
		s.mu.Unlock()

		s.log.WithField("peer", peer).Debug("Peer connected")

		s.wg.Add(1)
		go s.drainPeer(peer, conn)
	}
}

// drainPeer consumes any unexpected inbound bytes and deregisters the peer
// when its connection drops.
func (s *Server) drainPeer(peer string, conn net.Conn) {
	defer s.wg.Done()

	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			s.log.WithField("peer", peer).Warnf(
				"Received unexpected data from peer: %q", string(buf[:n]))
		}
		if err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.peers, peer)
	s.mu.Unlock()
	conn.Close()
	s.log.WithField("peer", peer).Debug("Peer disconnected")
}

// Broadcast sends the CRLF-terminated line to every connected peer.
func (s *Server) Broadcast(line string) error {
	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.peers))
	for _, conn := range s.peers {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		return ErrNoPeers
	}

	data := []byte(line + "\r\n")
	for _, conn := range conns {
		if _, err := conn.Write(data); err != nil {
			s.log.WithError(err).WithField("peer", conn.RemoteAddr().String()).
				Warn("Failed to send to peer")
		}
	}
	return nil
}

// SendTo unicasts the CRLF-terminated line to one peer, identified by the
// remote address reported in Peers.
func (s *Server) SendTo(peer, line string) error {
	s.mu.Lock()
	conn, ok := s.peers[peer]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	if _, err := conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("failed to send to peer %s: %w", peer, err)
	}
	return nil
}

// Peers returns the remote addresses of the connected peers.
func (s *Server) Peers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]string, 0, len(s.peers))
	for peer := range s.peers {
		peers = append(peers, peer)
	}
	return peers
}

// Close stops the listener, disconnects all peers and waits for the accept
// and drain goroutines. Closing a closed server is a no-op.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	conns := make([]net.Conn, 0, len(s.peers))
	for _, conn := range s.peers {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	if listener != nil {
		listener.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
	return nil
}
