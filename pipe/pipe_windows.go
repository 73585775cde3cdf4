//go:build windows

package pipe

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// windowsConnector serves one bidirectional named pipe. It accepts
// exactly one client and closes the listener immediately after, so a
// second connect attempt against the same pipe name cannot succeed.
type windowsConnector struct {
	name     string
	listener net.Listener
}

func newPlatformConnector(_ string, id string) (Connector, error) {
	name := fmt.Sprintf(`\\.\pipe\bridge-%s`, id)
	listener, err := winio.ListenPipe(name, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on named pipe %s: %w", name, err)
	}
	return &windowsConnector{name: name, listener: listener}, nil
}

func (c *windowsConnector) Name() string {
	return c.name
}

func (c *windowsConnector) Connect(ctx context.Context) (Conn, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	accepted := make(chan acceptResult, 1)
	go func() {
		conn, err := c.listener.Accept()
		accepted <- acceptResult{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		// Closing the listener unblocks the pending Accept.
		_ = c.listener.Close()
		return nil, ErrCanceled
	case result := <-accepted:
		// One client per logical pipe name; stop listening either way.
		_ = c.listener.Close()
		if result.err != nil {
			return nil, fmt.Errorf("failed to accept pipe connection: %w", result.err)
		}
		return result.conn, nil
	}
}

func (c *windowsConnector) Close() error {
	return c.listener.Close()
}
