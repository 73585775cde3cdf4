package pipe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/testexplorer/bridge/metrics"
)

// Handler receives every complete frame belonging to one run uuid.
type Handler func(Frame)

// Server owns the read loop over a pipe connection and routes frames to
// the handler subscribed for their Request-uuid. Frames for uuids
// nobody subscribed are dropped with a warning; a runner sending them
// is confused, not fatal.
type Server struct {
	log log.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// NewServer creates a frame router.
func NewServer(logger log.Logger) *Server {
	return &Server{
		log:      logger,
		handlers: make(map[string]Handler),
	}
}

// Subscribe routes frames carrying the uuid to the handler.
func (s *Server) Subscribe(uuid string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[uuid] = handler
}

// Unsubscribe stops routing for the uuid.
func (s *Server) Unsubscribe(uuid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, uuid)
}

// Serve reads the connection until EOF or cancellation, dispatching
// frames synchronously in arrival order. Within one connection there is
// no reordering: framing and dispatch happen inside this single loop.
// Returns nil on EOF, ErrCanceled on cancellation.
func (s *Server) Serve(ctx context.Context, conn io.Reader) error {
	var decoder Decoder
	buf := make([]byte, 32*1024)

	for {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}

		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range decoder.Feed(buf[:n]) {
				s.dispatch(frame)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if decoder.Pending() > 0 {
					s.log.Warn("Pipe closed with unframed bytes pending", "pending", decoder.Pending())
				}
				return nil
			}
			if ctx.Err() != nil {
				return ErrCanceled
			}
			return fmt.Errorf("pipe read failed: %w", err)
		}
	}
}

func (s *Server) dispatch(frame Frame) {
	metrics.RecordFrame("inbound")

	s.mu.Lock()
	handler, ok := s.handlers[frame.UUID]
	s.mu.Unlock()

	if !ok {
		s.log.Warn("Dropping frame for unknown run", "uuid", frame.UUID, "bytes", len(frame.Body))
		metrics.RecordError("unknown_run_uuid")
		return
	}
	handler(frame)
}

// WriteFrame frames and writes a body on the host-to-runner direction.
func WriteFrame(w io.Writer, uuid string, body []byte) error {
	if _, err := w.Write(EncodeFrame(uuid, body)); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	metrics.RecordFrame("outbound")
	return nil
}

// SendTestIDs delivers the host's selected run-id list to the runner.
func SendTestIDs(w io.Writer, uuid string, runIDs []string) error {
	body, err := json.Marshal(runIDs)
	if err != nil {
		return fmt.Errorf("failed to encode test id list: %w", err)
	}
	return WriteFrame(w, uuid, body)
}
