//go:build !windows

package pipe

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoConnectorExchangesBytes(t *testing.T) {
	connector, err := NewConnector(t.TempDir(), "run-1")
	require.NoError(t, err)
	defer connector.Close()

	base := connector.Name()

	// Simulate the runner side: open its write end first, then its read
	// end, mirroring the host's open order.
	runnerDone := make(chan error, 1)
	go func() {
		out, err := os.OpenFile(base+".out", os.O_WRONLY, 0)
		if err != nil {
			runnerDone <- err
			return
		}
		defer out.Close()
		in, err := os.OpenFile(base+".in", os.O_RDONLY, 0)
		if err != nil {
			runnerDone <- err
			return
		}
		defer in.Close()

		if _, err := out.Write([]byte("from-runner")); err != nil {
			runnerDone <- err
			return
		}
		buf := make([]byte, 16)
		n, err := in.Read(buf)
		if err != nil {
			runnerDone <- err
			return
		}
		if string(buf[:n]) != "from-host" {
			runnerDone <- io.ErrUnexpectedEOF
			return
		}
		runnerDone <- nil
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := connector.Connect(ctx)
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "from-runner", string(buf[:n]))

	_, err = conn.Write([]byte("from-host"))
	require.NoError(t, err)

	require.NoError(t, <-runnerDone)
}

func TestFifoConnectorCancelBeforeAttach(t *testing.T) {
	dir := t.TempDir()
	connector, err := NewConnector(dir, "run-2")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err = connector.Connect(ctx)
	require.ErrorIs(t, err, ErrCanceled)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must not hang")

	// FIFO files are torn down on cancellation.
	_, statErr := os.Stat(connector.Name() + ".out")
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(connector.Name() + ".in")
	assert.True(t, os.IsNotExist(statErr))
}

func TestFifoConnectorCreatesFifos(t *testing.T) {
	dir := t.TempDir()
	connector, err := NewConnector(dir, "run-3")
	require.NoError(t, err)
	defer connector.Close()

	for _, suffix := range []string{".out", ".in"} {
		info, err := os.Stat(connector.Name() + suffix)
		require.NoError(t, err)
		assert.Equal(t, os.ModeNamedPipe, info.Mode()&os.ModeNamedPipe)
	}
}
