// Package adapter runs the file service on a TCP listener: accept loop,
// connection tracking, and graceful shutdown around the per-connection
// request loop in connection.go.
package adapter

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/filed/internal/logger"
	"github.com/marmos91/filed/pkg/fileservice"
	"github.com/marmos91/filed/pkg/metrics"
)

// DefaultPort is the port the file service listens on when none is
// configured.
const DefaultPort = 61512

// Config holds server configuration.
type Config struct {
	// BindAddress is the IP address to bind to. Empty or "0.0.0.0" binds
	// all interfaces.
	BindAddress string

	// Port is the TCP port to listen on. Port 0 picks an ephemeral port,
	// which the tests use.
	Port int

	// MaxConnections limits concurrent client connections. 0 means
	// unlimited.
	MaxConnections int

	// ShutdownTimeout is how long to wait for active connections during
	// graceful shutdown before force-closing them.
	ShutdownTimeout time.Duration
}

// Server accepts client connections and serves the file protocol on each.
//
// All exported methods are safe for concurrent use; shutdown is idempotent
// via sync.Once.
type Server struct {
	config Config
	svc    *fileservice.Service

	listener      net.Listener
	listenerMu    sync.RWMutex
	ListenerReady chan struct{}

	shutdown     chan struct{}
	shutdownOnce sync.Once

	// shutdownCtx is cancelled during shutdown to abort in-flight requests.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc

	activeConns sync.WaitGroup
	connCount   atomic.Int32
	// activeConnections maps remote address to net.Conn for forced closure.
	activeConnections sync.Map
	connSemaphore     chan struct{}
}

// NewServer creates a server in a stopped state. Call Serve to start.
func NewServer(config Config, svc *fileservice.Service) *Server {
	var sem chan struct{}
	if config.MaxConnections > 0 {
		sem = make(chan struct{}, config.MaxConnections)
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:         config,
		svc:            svc,
		ListenerReady:  make(chan struct{}),
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancel,
		connSemaphore:  sem,
	}
}

// Serve runs the accept loop until ctx is cancelled or Stop is called.
// Returns nil on graceful shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listenAddr := fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()
	close(s.ListenerReady)

	logger.Info("file service listening", "address", listener.Addr().String())

	go func() {
		select {
		case <-ctx.Done():
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	for {
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
				logger.Debug("accept error", "error", err)
				continue
			}
		}

		if tcp, ok := tcpConn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("could not set TCP_NODELAY", "error", err)
			}
		}

		s.activeConns.Add(1)
		active := s.connCount.Add(1)
		addr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(addr, tcpConn)
		metrics.ConnectionsTotal.Inc()
		metrics.ActiveConnections.Set(float64(active))

		conn := newConnection(tcpConn, s.svc, uuid.New().String())
		logger.Debug("connection accepted", "address", addr, "conn_id", conn.id, "active", active)

		go func(addr string) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				remaining := s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				metrics.ActiveConnections.Set(float64(remaining))
				logger.Debug("connection closed", "address", addr, "active", remaining)
			}()
			conn.Serve(s.shutdownCtx)
		}(addr)
	}
}

// initiateShutdown closes the listener, interrupts blocking reads, and
// cancels in-flight request contexts. Safe to call multiple times.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("shutdown initiated")
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("error closing listener", "error", err)
			}
		}
		s.listenerMu.Unlock()

		deadline := time.Now().Add(100 * time.Millisecond)
		s.activeConnections.Range(func(key, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			return true
		})

		s.cancelRequests()
	})
}

// gracefulShutdown waits for active connections up to the configured
// timeout and force-closes whatever remains.
func (s *Server) gracefulShutdown() error {
	active := s.connCount.Load()
	logger.Info("graceful shutdown: waiting for active connections",
		"active", active, "timeout", s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
		return nil
	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("shutdown timeout exceeded, forcing closure", "active", remaining)
		s.activeConnections.Range(func(key, value any) bool {
			if conn, ok := value.(net.Conn); ok {
				_ = conn.Close()
			}
			return true
		})
		return fmt.Errorf("shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates graceful shutdown. Safe to call concurrently with Serve.
func (s *Server) Stop() {
	s.initiateShutdown()
}

// Addr returns the listener address. It blocks until the listener is
// ready, which makes it safe for tests starting the server on port 0.
func (s *Server) Addr() string {
	<-s.ListenerReady
	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ActiveConnectionCount returns the number of currently open connections.
func (s *Server) ActiveConnectionCount() int32 {
	return s.connCount.Load()
}
