//go:build !windows

package pipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// fifoConnector presents a duplex stream over a pair of named FIFOs:
// "<base>.out" is written by the runner and read by the host,
// "<base>.in" is written by the host and read by the runner. The runner
// derives both paths from the base name it is handed.
type fifoConnector struct {
	base      string
	readPath  string // runner -> host
	writePath string // host -> runner
}

func newPlatformConnector(dir, id string) (Connector, error) {
	base := filepath.Join(dir, fmt.Sprintf("bridge-%s", id))
	c := &fifoConnector{
		base:      base,
		readPath:  base + ".out",
		writePath: base + ".in",
	}
	for _, path := range []string{c.readPath, c.writePath} {
		if err := unix.Mkfifo(path, 0o600); err != nil && !errors.Is(err, unix.EEXIST) {
			c.removeFifos()
			return nil, fmt.Errorf("failed to create fifo %s: %w", path, err)
		}
	}
	return c, nil
}

func (c *fifoConnector) Name() string {
	return c.base
}

type openResult struct {
	file *os.File
	err  error
}

// Connect opens both FIFO ends. The read side blocks until the runner
// opens its write end; the write side is polled because opening a FIFO
// for writing fails with ENXIO until a reader exists. Cancellation
// unblocks the pending read open and removes the FIFOs.
func (c *fifoConnector) Connect(ctx context.Context) (Conn, error) {
	readCh := make(chan openResult, 1)
	go func() {
		file, err := os.OpenFile(c.readPath, os.O_RDONLY, 0)
		readCh <- openResult{file: file, err: err}
	}()

	writeCh := make(chan openResult, 1)
	go func() {
		for {
			fd, err := unix.Open(c.writePath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
			if err == nil {
				// Clear O_NONBLOCK now that the runner's reader exists.
				if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFL, 0); err != nil {
					_ = unix.Close(fd)
					writeCh <- openResult{err: fmt.Errorf("failed to reset fifo flags: %w", err)}
					return
				}
				writeCh <- openResult{file: os.NewFile(uintptr(fd), c.writePath)}
				return
			}
			if !errors.Is(err, unix.ENXIO) {
				writeCh <- openResult{err: fmt.Errorf("failed to open fifo %s: %w", c.writePath, err)}
				return
			}
			select {
			case <-ctx.Done():
				writeCh <- openResult{err: ErrCanceled}
				return
			case <-time.After(20 * time.Millisecond):
			}
		}
	}()

	var reader, writer *os.File
	cleanup := func() {
		if reader != nil {
			_ = reader.Close()
		}
		if writer != nil {
			_ = writer.Close()
		}
		c.removeFifos()
	}

	for reader == nil || writer == nil {
		select {
		case <-ctx.Done():
			// Unblock the pending read open by briefly attaching a
			// writer to our own read FIFO, then tear everything down.
			if reader == nil {
				c.releaseReadOpen(readCh)
			}
			cleanup()
			return nil, ErrCanceled
		case result := <-readCh:
			if result.err != nil {
				cleanup()
				return nil, fmt.Errorf("failed to open fifo %s: %w", c.readPath, result.err)
			}
			reader = result.file
		case result := <-writeCh:
			if result.err != nil {
				if reader == nil {
					c.releaseReadOpen(readCh)
				}
				cleanup()
				if errors.Is(result.err, ErrCanceled) {
					return nil, ErrCanceled
				}
				return nil, result.err
			}
			writer = result.file
		}
	}

	return &fifoConn{reader: reader, writer: writer, connector: c}, nil
}

// releaseReadOpen unblocks a pending blocking open of the read FIFO and
// drains its result.
func (c *fifoConnector) releaseReadOpen(readCh chan openResult) {
	fd, err := unix.Open(c.readPath, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err == nil {
		_ = unix.Close(fd)
	}
	if result := <-readCh; result.file != nil {
		_ = result.file.Close()
	}
}

func (c *fifoConnector) Close() error {
	c.removeFifos()
	return nil
}

func (c *fifoConnector) removeFifos() {
	_ = os.Remove(c.readPath)
	_ = os.Remove(c.writePath)
}

// fifoConn glues the two FIFO ends into one duplex stream.
type fifoConn struct {
	reader    *os.File
	writer    *os.File
	connector *fifoConnector
}

func (c *fifoConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

func (c *fifoConn) Write(p []byte) (int, error) {
	return c.writer.Write(p)
}

func (c *fifoConn) Close() error {
	readErr := c.reader.Close()
	writeErr := c.writer.Close()
	c.connector.removeFifos()
	if readErr != nil {
		return readErr
	}
	return writeErr
}
