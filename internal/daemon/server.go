package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// connIdleTimeout closes connections that send nothing.
const connIdleTimeout = 30 * time.Second

// Handler executes decoded requests.
type Handler interface {
	Ingest(ctx context.Context, params IngestParams) (IngestResult, error)
	Search(ctx context.Context, params SearchParams) ([]SearchResult, error)
	Status(ctx context.Context) StatusResult
	Reset(ctx context.Context) ResetResult
}

// Server listens on a Unix socket and serves newline-delimited JSON-RPC
// requests. A connection may carry several requests in sequence.
type Server struct {
	socketPath string
	handler    Handler
	timeout    time.Duration

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for socketPath. timeout bounds each request.
func NewServer(socketPath string, handler Handler, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Server{socketPath: socketPath, handler: handler, timeout: timeout}
}

// ListenAndServe blocks until ctx is cancelled or Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Stale sockets are safe to remove: the caller holds the instance lock.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon_listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("accept_error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(connIdleTimeout)); err != nil {
			return
		}

		var req Request
		if err := decoder.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !isTimeout(err) {
				_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
			}
			return
		}

		resp := s.dispatch(ctx, req)
		if err := encoder.Encode(resp); err != nil {
			slog.Debug("write_response_failed", slog.String("error", err.Error()))
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// dispatch routes a request to the handler.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "invalid JSON-RPC 2.0 request")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		slog.Debug("rpc_handled",
			slog.String("method", req.Method),
			slog.String("id", req.ID),
			slog.Duration("duration", time.Since(start)))
	}()

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.handler.Status(ctx))

	case MethodReset:
		return NewSuccessResponse(req.ID, s.handler.Reset(ctx))

	case MethodIngest:
		var params IngestParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		result, err := s.handler.Ingest(ctx, params)
		if err != nil {
			return newPipelineErrorResponse(req.ID, ErrCodeIngestFailed, err)
		}
		return NewSuccessResponse(req.ID, result)

	case MethodSearch:
		var params SearchParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if err := params.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		results, err := s.handler.Search(ctx, params)
		if err != nil {
			return newPipelineErrorResponse(req.ID, ErrCodeSearchFailed, err)
		}
		return NewSuccessResponse(req.ID, results)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func decodeParams(req Request, v any) (Response, bool) {
	if len(req.Params) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "params are required"), false
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

// Close stops accepting connections. In-flight requests finish.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
