// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package monitorserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/safeoff/safeoff/lib/codec"
	"github.com/safeoff/safeoff/lib/netutil"
	"github.com/safeoff/safeoff/lib/verdict"
)

// ReplyFunc produces the reply for one verdict request. Returning an
// error sends an ok=false response; the connection stays open.
type ReplyFunc func(ctx context.Context, request verdict.Request) (verdict.Reply, error)

// Fixed returns a ReplyFunc that always answers v.
func Fixed(v verdict.Verdict) ReplyFunc {
	reply := verdict.ReplyFor(v)
	return func(context.Context, verdict.Request) (verdict.Reply, error) {
		return reply, nil
	}
}

// NotifyFunc handles a notify_poweroff request.
type NotifyFunc func(ctx context.Context, request verdict.Request) error

// idleTimeout is how long a connection may sit between requests. An
// agent waits at most its backoff cap between queries.
const idleTimeout = 60 * time.Second

// writeTimeout bounds writing one response.
const writeTimeout = 10 * time.Second

// Server serves the verdict protocol on one endpoint.
type Server struct {
	endpoint netutil.Endpoint
	replies  ReplyFunc
	notify   NotifyFunc
	logger   *slog.Logger

	ready    chan struct{}
	mu       sync.Mutex
	address  net.Addr
	requests int

	activeConnections sync.WaitGroup
}

// New creates a server for endpoint that answers verdict requests with
// replies.
func New(endpoint netutil.Endpoint, replies ReplyFunc, logger *slog.Logger) *Server {
	return &Server{
		endpoint: endpoint,
		replies:  replies,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// OnNotify installs the notify_poweroff handler. Without one the
// request is acknowledged and logged. Call before Serve.
func (s *Server) OnNotify(handler NotifyFunc) {
	s.notify = handler
}

// Ready is closed once the listener is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address. Valid after Ready is closed; useful
// when the endpoint asked for tcp port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Requests returns how many requests have been answered.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// Serve accepts connections until ctx is cancelled, then waits for
// in-flight connections to finish. A unix socket file is removed on
// return.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := s.endpoint.Listen()
	if err != nil {
		return err
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	s.mu.Lock()
	s.address = listener.Addr()
	s.mu.Unlock()

	// Connections are tracked so cancellation can close them and
	// unblock their reads.
	var connectionsMu sync.Mutex
	connections := make(map[net.Conn]struct{})

	go func() {
		<-ctx.Done()
		listener.Close()
		connectionsMu.Lock()
		for conn := range connections {
			conn.Close()
		}
		connectionsMu.Unlock()
	}()

	s.logger.Info("monitor listening", "endpoint", s.endpoint.String())
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		connectionsMu.Lock()
		if ctx.Err() != nil {
			// Accepted after the shutdown sweep; nothing else will
			// close it.
			connectionsMu.Unlock()
			conn.Close()
			break
		}
		connections[conn] = struct{}{}
		connectionsMu.Unlock()

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
			connectionsMu.Lock()
			delete(connections, conn)
			connectionsMu.Unlock()
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection answers requests on one stream until it closes.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := codec.NewDecoder(conn)
	encoder := codec.NewEncoder(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		var request verdict.Request
		if err := decoder.Decode(&request); err != nil {
			if !netutil.IsExpectedCloseError(err) && !netutil.IsTimeout(err) && ctx.Err() == nil {
				// The stream is no longer aligned on a message
				// boundary; answer once and drop it.
				s.write(conn, encoder, verdict.Response{Error: fmt.Sprintf("invalid request: %v", err)})
			}
			return
		}

		response := s.dispatch(ctx, request)
		if !s.write(conn, encoder, response) {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, request verdict.Request) verdict.Response {
	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	switch request.Action {
	case verdict.ActionVerdict:
		reply, err := s.replies(ctx, request)
		if err != nil {
			return verdict.Response{Error: err.Error()}
		}
		data, err := codec.Marshal(reply)
		if err != nil {
			return verdict.Response{Error: fmt.Sprintf("encoding reply: %v", err)}
		}
		s.logger.Debug("verdict served",
			"session", request.Session,
			"trigger", request.Trigger,
			"verdict", reply.Tag,
			"reason", reply.Reason,
		)
		return verdict.Response{OK: true, Data: data}

	case verdict.ActionNotifyPoweroff:
		s.logger.Info("agent announced poweroff",
			"session", request.Session,
			"trigger", request.Trigger,
		)
		if s.notify != nil {
			if err := s.notify(ctx, request); err != nil {
				return verdict.Response{Error: err.Error()}
			}
		}
		return verdict.Response{OK: true}

	case "":
		return verdict.Response{Error: "missing required field: action"}

	default:
		return verdict.Response{Error: fmt.Sprintf("unknown action %q", request.Action)}
	}
}

// write sends one response. Returns false if the connection is gone.
func (s *Server) write(conn net.Conn, encoder *codec.Encoder, response verdict.Response) bool {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := encoder.Encode(response); err != nil {
		if !netutil.IsExpectedCloseError(err) {
			s.logger.Debug("writing response failed", "error", err)
		}
		return false
	}
	return true
}
