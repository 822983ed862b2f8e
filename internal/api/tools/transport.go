package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// StdioTransport bridges line-delimited JSON-RPC 2.0 over stdin/stdout to the
// tool server. Each request is one newline-terminated line in, one line out.
// All diagnostics go through the zerolog logger, which callers must point at
// stderr: stray bytes on stdout corrupt the protocol framing.
type StdioTransport struct {
	server *Server
	in     io.Reader
	out    io.Writer
	log    zerolog.Logger
}

// NewStdioTransport constructs a transport reading from in and writing to out.
func NewStdioTransport(srv *Server, in io.Reader, out io.Writer, logger zerolog.Logger) *StdioTransport {
	return &StdioTransport{server: srv, in: in, out: out, log: logger}
}

// Serve processes requests until the input closes or ctx is cancelled.
// Requests are handled synchronously in arrival order; the protocol does not
// require concurrency at the transport level.
func (t *StdioTransport) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(t.in)

	// Large transcripts can make for big request lines.
	const maxBuf = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, maxBuf), maxBuf)

	for {
		select {
		case <-ctx.Done():
			t.log.Info().Msg("transport context cancelled, shutting down")
			return ctx.Err()
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("stdin scanner: %w", err)
			}
			t.log.Info().Msg("stdin closed, shutting down")
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := t.server.HandleRequest(ctx, line)
		if err != nil {
			// HandleRequest encodes protocol errors itself; reaching here means
			// even the response could not be built. Synthesize a frame so the
			// client never stalls waiting.
			t.log.Error().Err(err).Msg("handler failure")
			resp = t.internalErrorResponse(line, err)
		}

		if _, err := fmt.Fprintf(t.out, "%s\n", resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

// internalErrorResponse builds a best-effort JSON-RPC error frame, recovering
// the request ID from the raw bytes when possible.
func (t *StdioTransport) internalErrorResponse(rawRequest []byte, handlerErr error) []byte {
	var partial struct {
		ID interface{} `json:"id"`
	}
	_ = json.Unmarshal(rawRequest, &partial)

	data, err := json.Marshal(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      partial.ID,
		Error:   &JSONRPCError{Code: ErrCodeInternalError, Message: handlerErr.Error()},
	})
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`)
	}
	return data
}
