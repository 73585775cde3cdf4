package runner

import (
	"encoding/json"
	"errors"
	"os/exec"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testexplorer/bridge/pipe"
	"github.com/testexplorer/bridge/types"
)

func TestNewLauncherRejectsEmptyCommand(t *testing.T) {
	_, err := NewLauncher(Config{})
	require.Error(t, err)
}

func TestSynthesizeCrashPayload(t *testing.T) {
	var frames []pipe.Frame
	run := &Run{
		UUID:       "crash-uuid",
		log:        log.NewLogger(log.DiscardHandler()),
		cmd:        exec.Command("true"),
		testRunIDs: []string{"mod::test_one", "mod::test_two"},
		handler:    func(f pipe.Frame) { frames = append(frames, f) },
	}
	run.cmd.Dir = "/ws"

	run.synthesizeCrashPayload(errors.New("signal: killed"))

	require.Len(t, frames, 1)
	assert.Equal(t, "crash-uuid", frames[0].UUID)

	var payload types.ExecutionPayload
	require.NoError(t, json.Unmarshal(frames[0].Body, &payload))
	assert.Equal(t, types.StatusError, payload.Status)
	assert.Equal(t, "/ws", payload.Cwd)
	require.Len(t, payload.Result, 2)
	for _, id := range run.testRunIDs {
		result, ok := payload.Result[id]
		require.True(t, ok)
		assert.Equal(t, types.OutcomeError, result.Outcome)
		assert.Contains(t, result.Message, "signal: killed")
	}
}
