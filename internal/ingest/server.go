// Package ingest accepts trace records over WebSocket and replies with
// their analysis.
//
// Each text frame carries one record in the same JSON form the file loader
// reads. Each reply frame carries the analysis result, or an object with an
// "error" field when the frame is not a valid record.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/signalnine/tracesift/internal/pipeline"
	"github.com/signalnine/tracesift/internal/source"
	"nhooyr.io/websocket"
)

const (
	defaultIdleTimeout = 10 * time.Minute
	maxFrameBytes      = 32 << 20
	shutdownTimeout    = 5 * time.Second
)

// DefaultOriginPatterns admit browser clients served from the local host.
// Requests without an Origin header and same-host origins are always
// accepted.
var DefaultOriginPatterns = []string{"localhost", "localhost:*", "127.0.0.1", "127.0.0.1:*"}

// ErrorReply is sent for frames that cannot be analyzed.
type ErrorReply struct {
	Error string `json:"error"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithIdleTimeout closes connections that stay silent this long.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.idleTimeout = d
	}
}

// WithOriginPatterns replaces the host patterns cross-origin clients must
// match. Patterns use path.Match syntax against the Origin host.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) {
		s.originPatterns = patterns
	}
}

// WithInsecureOrigins disables the origin check entirely.
func WithInsecureOrigins(insecure bool) Option {
	return func(s *Server) {
		s.insecureOrigins = insecure
	}
}

// WithSink registers a callback that receives every result. It may be
// called from several connections at once.
func WithSink(fn func(pipeline.Result)) Option {
	return func(s *Server) {
		s.sink = fn
	}
}

// Server analyzes records streamed over WebSocket connections.
type Server struct {
	pipeline        *pipeline.Pipeline
	loader          *source.Loader
	logger          *slog.Logger
	idleTimeout     time.Duration
	originPatterns  []string
	insecureOrigins bool
	sink            func(pipeline.Result)
	conns           atomic.Int64
}

// NewServer creates a Server.
func NewServer(p *pipeline.Pipeline, loader *source.Loader, opts ...Option) *Server {
	s := &Server{
		pipeline:       p,
		loader:         loader,
		logger:         slog.New(slog.DiscardHandler),
		idleTimeout:    defaultIdleTimeout,
		originPatterns: DefaultOriginPatterns,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request and serves the connection until the
// client closes it.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     s.originPatterns,
		InsecureSkipVerify: s.insecureOrigins,
	})
	if err != nil {
		s.logger.Warn("accept failed", "origin", r.Header.Get("Origin"), "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	id := s.conns.Add(1)
	if err := s.HandleConnection(r.Context(), conn, fmt.Sprintf("ws%d", id)); err != nil {
		s.logger.Warn("connection error", "conn", id, "error", err)
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "done")
}

// HandleConnection answers frames on conn until it is closed. Records
// without a trace_id are named <prefix>#<frame index>.
func (s *Server) HandleConnection(ctx context.Context, conn *websocket.Conn, prefix string) error {
	for frame := 0; ; frame++ {
		readCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		typ, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("reading frame %d: %w", frame, err)
		}

		var reply any
		if typ != websocket.MessageText {
			reply = ErrorReply{Error: "expected a text frame"}
		} else {
			reply = s.analyze(ctx, data, fmt.Sprintf("%s#%d", prefix, frame))
		}

		out, err := json.Marshal(reply)
		if err != nil {
			return fmt.Errorf("marshaling reply: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return fmt.Errorf("writing reply: %w", err)
		}
	}
}

func (s *Server) analyze(ctx context.Context, data []byte, defaultID string) any {
	rec, err := s.loader.Decode(data, defaultID)
	if err != nil {
		s.logger.Debug("rejected frame", "id", defaultID, "error", err)
		return ErrorReply{Error: err.Error()}
	}
	results, err := s.pipeline.Run(ctx, []source.Record{rec}, 1)
	if err != nil || len(results) == 0 {
		return ErrorReply{Error: fmt.Sprintf("analyzing %s: %v", rec.ID, err)}
	}
	if s.sink != nil {
		s.sink(results[0])
	}
	return results[0]
}

// ListenAndServe serves on addr until ctx is cancelled. ready, if not nil,
// receives the bound address once the listener is up.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if ready != nil {
		ready(ln.Addr())
	}

	httpServer := &http.Server{
		Handler:     s,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		httpServer.Close()
	}
	return nil
}
