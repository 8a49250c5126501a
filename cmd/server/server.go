package main

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/MiniDB"
	"github.com/nickyhof/MiniDB/core"
	"github.com/nickyhof/MiniDB/db"
)

var errAuthRequired = errors.New("authentication required: send AUTH JWT <token>")

// Server is a TCP SQL server that exposes the MiniDB engine. Statements
// from every connection run one at a time, and each change is saved to
// the instance's store under the identity of the connection that made it.
type Server struct {
	listener   net.Listener
	instance   *MiniDB.Instance
	identity   core.Identity
	authConfig *AuthConfig
	logger     *slog.Logger
	tlsEnabled bool
	mu         sync.Mutex
	engine     *db.Engine
	done       chan struct{}
	wg         sync.WaitGroup
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithAuth requires every connection to authenticate before running
// statements.
func WithAuth(config *AuthConfig) ServerOption {
	return func(s *Server) { s.authConfig = config }
}

// NewServer creates a new SQL server with the given instance. identity is
// recorded on saves made by unauthenticated connections.
func NewServer(instance *MiniDB.Instance, identity core.Identity, opts ...ServerOption) *Server {
	s := &Server{
		instance: instance,
		identity: identity,
		engine:   instance.Engine(),
		logger:   slog.New(slog.DiscardHandler),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServerWithAuth creates a server that only accepts authenticated
// connections.
func NewServerWithAuth(instance *MiniDB.Instance, authConfig *AuthConfig, opts ...ServerOption) *Server {
	return NewServer(instance, core.Identity{Name: "MiniDB Server", Email: "server@minidb.local"}, append(opts, WithAuth(authConfig))...)
}

// Start begins listening for connections on the specified address.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	s.serve(listener)
	return nil
}

// StartTLS is Start over TLS with the given certificate and key files.
func (s *Server) StartTLS(addr, certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("failed to load certificate: %w", err)
	}
	listener, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return fmt.Errorf("failed to start TLS server: %w", err)
	}
	s.tlsEnabled = true
	s.serve(listener)
	return nil
}

func (s *Server) serve(listener net.Listener) {
	s.listener = listener
	s.logger.Info("SQL server listening", "addr", listener.Addr().String(), "tls", s.tlsEnabled, "auth", s.authRequired())
	go s.acceptLoop()
}

// Stop closes the listener and waits for open connections to finish.
func (s *Server) Stop() error {
	close(s.done)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	return nil
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) TLSEnabled() bool {
	return s.tlsEnabled
}

func (s *Server) authRequired() bool {
	return s.authConfig != nil && s.authConfig.Enabled
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.logger.Warn("accept failed", "error", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	s.logger.Debug("client connected", "remote", remote)

	// Unblock the read below when the server stops
	closed := make(chan struct{})
	defer close(closed)
	go func() {
		select {
		case <-s.done:
			conn.SetReadDeadline(time.Now())
		case <-closed:
		}
	}()

	state := &ConnectionState{}
	reader := bufio.NewReader(conn)

	for {
		// One statement per line
		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				select {
				case <-s.done:
				default:
					s.logger.Warn("read failed", "remote", remote, "error", err)
				}
			}
			return
		}

		query := strings.TrimSpace(line)
		if query == "" {
			continue
		}

		if strings.EqualFold(query, "quit") || strings.EqualFold(query, "exit") {
			s.logger.Debug("client disconnected", "remote", remote)
			return
		}

		var response Response
		if strings.HasPrefix(strings.ToUpper(query), "AUTH ") {
			response = s.handleAuth(query, state)
		} else if identity, err := s.connectionIdentity(state); err != nil {
			response = errorResponse("", err)
		} else {
			response = s.executeQuery(query, identity)
		}

		data, err := EncodeResponse(response)
		if err != nil {
			s.logger.Error("failed to encode response", "error", err)
			continue
		}

		if _, err := conn.Write(data); err != nil {
			s.logger.Warn("write failed", "remote", remote, "error", err)
			return
		}
	}
}

// connectionIdentity returns the identity statements on this connection
// run as.
func (s *Server) connectionIdentity(state *ConnectionState) (core.Identity, error) {
	if !s.authRequired() {
		if state.IsAuthenticated() {
			return *state.Identity(), nil
		}
		return s.identity, nil
	}
	if !state.IsAuthenticated() {
		return core.Identity{}, errAuthRequired
	}
	if !state.tokenExpiry.IsZero() && time.Now().After(state.tokenExpiry) {
		state.authenticated = false
		state.identity = nil
		return core.Identity{}, fmt.Errorf("token expired: %w", errAuthRequired)
	}
	return *state.Identity(), nil
}

func (s *Server) executeQuery(query string, identity core.Identity) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine.ExecuteSQL(query)
	if err != nil {
		return errorResponse("", err)
	}

	switch r := result.(type) {
	case db.QueryResult:
		return resultResponse("query", QueryResponse{
			Columns:     r.Columns,
			Data:        r.Cells(),
			RecordsRead: r.RecordsRead,
			Plan:        r.Plan,
			TimeMs:      r.ExecutionTimeSec * 1000,
		})

	case db.CommitResult:
		cr := CommitResponse{
			TablesCreated:  r.TablesCreated,
			TablesDeleted:  r.TablesDeleted,
			IndexesCreated: r.IndexesCreated,
			IndexesDeleted: r.IndexesDeleted,
			RecordsWritten: r.RecordsWritten,
			RecordsUpdated: r.RecordsUpdated,
			RecordsDeleted: r.RecordsDeleted,
			TimeMs:         r.ExecutionTimeSec * 1000,
		}
		txn, err := s.instance.Save(context.Background(), identity)
		if err != nil {
			s.logger.Error("save failed", "error", err)
			return errorResponse("commit", fmt.Errorf("statement applied but not saved: %w", err))
		}
		cr.Transaction = txn.Id
		s.logger.Debug("saved", "transaction", txn.Short(), "author", identity.Name)
		return resultResponse("commit", cr)
	}

	return Response{Success: true, Type: "unknown"}
}
