package pipe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "3f2a9c4e-0000-4000-8000-c0ffee000001"

func TestEncodeFrameLayout(t *testing.T) {
	body := []byte(`{"cwd":"/ws"}`)
	encoded := EncodeFrame(testUUID, body)

	expected := fmt.Sprintf(
		"Content-Length: %d\nContent-Type: application/json\nRequest-uuid: %s\n\n%s",
		len(body), testUUID, body)
	assert.Equal(t, expected, string(encoded))
}

func TestRoundTripSingleChunk(t *testing.T) {
	var decoder Decoder
	body := []byte(`{"status":"success"}`)

	frames := decoder.Feed(EncodeFrame(testUUID, body))

	require.Len(t, frames, 1)
	assert.Equal(t, testUUID, frames[0].UUID)
	assert.Equal(t, "application/json", frames[0].ContentType)
	assert.Equal(t, body, frames[0].Body)
	assert.Equal(t, 0, decoder.Pending())
}

func TestRoundTripByteAtATime(t *testing.T) {
	var decoder Decoder
	body := []byte(`{"cwd":"/ws","status":"success","tests":{"name":"tests"}}`)
	encoded := EncodeFrame(testUUID, body)

	var frames []Frame
	for i := range encoded {
		frames = append(frames, decoder.Feed(encoded[i:i+1])...)
	}

	require.Len(t, frames, 1)
	assert.Equal(t, testUUID, frames[0].UUID)
	assert.Equal(t, body, frames[0].Body)
}

func TestManyMessagesInOneChunk(t *testing.T) {
	var decoder Decoder
	var stream []byte
	for i := 0; i < 5; i++ {
		stream = append(stream, EncodeFrame(testUUID, []byte(fmt.Sprintf(`{"n":%d}`, i)))...)
	}

	frames := decoder.Feed(stream)

	require.Len(t, frames, 5)
	for i, frame := range frames {
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), string(frame.Body))
	}
}

func TestChunkBoundaryInsideSeparator(t *testing.T) {
	var decoder Decoder
	body := []byte(`{"k":"v"}`)
	encoded := EncodeFrame(testUUID, body)

	// Split exactly between the two newlines of the separator.
	sep := len(encoded) - len(body) - 1

	frames := decoder.Feed(encoded[:sep])
	assert.Empty(t, frames)
	frames = decoder.Feed(encoded[sep:])

	require.Len(t, frames, 1)
	assert.Equal(t, body, frames[0].Body)
}

func TestBodySpansChunks(t *testing.T) {
	var decoder Decoder
	body := []byte(`{"long":"0123456789abcdef"}`)
	encoded := EncodeFrame(testUUID, body)

	mid := len(encoded) - 10
	require.Empty(t, decoder.Feed(encoded[:mid]))
	frames := decoder.Feed(encoded[mid:])

	require.Len(t, frames, 1)
	assert.Equal(t, body, frames[0].Body)
}

func TestSurplusBytesStartNextMessage(t *testing.T) {
	var decoder Decoder
	first := EncodeFrame(testUUID, []byte(`{"a":1}`))
	second := EncodeFrame(testUUID, []byte(`{"b":2}`))

	// First chunk: all of message one plus the front half of message two.
	stream := append(append([]byte{}, first...), second...)
	cut := len(first) + 7

	frames := decoder.Feed(stream[:cut])
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":1}`, string(frames[0].Body))

	frames = decoder.Feed(stream[cut:])
	require.Len(t, frames, 1)
	assert.Equal(t, `{"b":2}`, string(frames[0].Body))
	assert.Equal(t, 0, decoder.Pending())
}

func TestEmptyBody(t *testing.T) {
	var decoder Decoder
	frames := decoder.Feed(EncodeFrame(testUUID, nil))

	require.Len(t, frames, 1)
	assert.Empty(t, frames[0].Body)
}

func TestUnknownHeadersIgnored(t *testing.T) {
	var decoder Decoder
	raw := "Content-Length: 2\nX-Custom: yes\nRequest-uuid: abc\n\nok"

	frames := decoder.Feed([]byte(raw))

	require.Len(t, frames, 1)
	assert.Equal(t, "abc", frames[0].UUID)
	assert.Equal(t, "ok", string(frames[0].Body))
}

func TestMalformedLengthIsHeldNotSurfaced(t *testing.T) {
	var decoder Decoder
	raw := "Content-Length: zzz\n\nbody"

	frames := decoder.Feed([]byte(raw))

	assert.Empty(t, frames)
	assert.Equal(t, len(raw), decoder.Pending())
}
