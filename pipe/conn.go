package pipe

import (
	"context"
	"errors"
	"io"
)

// ErrCanceled reports that a pipe operation was abandoned because its
// cancellation signal fired. It is a distinct outcome, not a transport
// failure; callers must check with errors.Is.
var ErrCanceled = errors.New("pipe: operation canceled")

// Conn is the uniform duplex stream both platform implementations
// present upward.
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// Connector establishes the platform pipe for one logical run and
// hands back the duplex connection once the runner attaches. If ctx is
// canceled before that happens, Connect fails with ErrCanceled and all
// resources opened for the attempt are torn down.
type Connector interface {
	// Name returns the pipe name/path the runner must be told about.
	Name() string
	// Connect blocks until the runner attaches or ctx is canceled.
	Connect(ctx context.Context) (Conn, error)
	// Close tears down anything created for the pipe.
	Close() error
}

// NewConnector creates the platform connector for the given pipe id.
// On Windows the id names a bidirectional named pipe; elsewhere it is
// the base path of a FIFO pair under dir.
func NewConnector(dir, id string) (Connector, error) {
	return newPlatformConnector(dir, id)
}
