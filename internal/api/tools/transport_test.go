package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioTransportRoundTrip(t *testing.T) {
	s := newTestServer(t)

	in := strings.NewReader(
		`{"jsonrpc":"2.0","method":"initialize","id":1}` + "\n" +
			"\n" + // blank lines are skipped
			`{"jsonrpc":"2.0","method":"tools/list","id":2}` + "\n")
	var out bytes.Buffer

	transport := NewStdioTransport(s, in, &out, zerolog.Nop())
	require.NoError(t, transport.Serve(context.Background()), "clean EOF exits without error")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "one response line per request")

	for _, line := range lines {
		var resp JSONRPCResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp))
		assert.Equal(t, "2.0", resp.JSONRPC)
		assert.Nil(t, resp.Error)
	}
}

func TestStdioTransportMalformedLine(t *testing.T) {
	s := newTestServer(t)

	in := strings.NewReader("{broken\n")
	var out bytes.Buffer

	transport := NewStdioTransport(s, in, &out, zerolog.Nop())
	require.NoError(t, transport.Serve(context.Background()))

	var resp JSONRPCResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeParseError, resp.Error.Code)
}

func TestStdioTransportContextCancel(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	transport := NewStdioTransport(s, strings.NewReader(""), &bytes.Buffer{}, zerolog.Nop())
	assert.ErrorIs(t, transport.Serve(ctx), context.Canceled)
}
