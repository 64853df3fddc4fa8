package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// fakeHandler returns canned answers.
type fakeHandler struct {
	searchErr error
}

func (f *fakeHandler) Ingest(_ context.Context, p IngestParams) (IngestResult, error) {
	return IngestResult{Documents: len(p.Documents), Chunks: len(p.Documents)}, nil
}

func (f *fakeHandler) Search(_ context.Context, p SearchParams) ([]SearchResult, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []SearchResult{{Rank: 1, Text: p.Query}}, nil
}

func (f *fakeHandler) Status(context.Context) StatusResult {
	return StatusResult{Running: true}
}

func (f *fakeHandler) Reset(context.Context) ResetResult {
	return ResetResult{Chunks: 7}
}

func startServer(t *testing.T, h Handler) string {
	t.Helper()
	socket := testConfig(t).SocketPath
	srv := NewServer(socket, h, 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = srv.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 3*time.Second, 10*time.Millisecond)
	return socket
}

// roundTrip writes raw lines and decodes one response per line.
func roundTrip(t *testing.T, socket string, lines ...string) []Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	reader := bufio.NewReader(conn)
	var out []Response
	for _, line := range lines {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)

		raw, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var resp Response
		require.NoError(t, json.Unmarshal(raw, &resp))
		out = append(out, resp)
	}
	return out
}

func TestServer_SeveralRequestsOnOneConnection(t *testing.T) {
	// Given: a server with a canned handler
	socket := startServer(t, &fakeHandler{})

	// When: ping, search and reset are sent back to back
	resps := roundTrip(t, socket,
		`{"jsonrpc":"2.0","method":"ping","id":"1"}`,
		`{"jsonrpc":"2.0","method":"search","params":{"query":"hello"},"id":"2"}`,
		`{"jsonrpc":"2.0","method":"reset","id":"3"}`,
	)

	// Then: each gets its own answer in order
	require.Len(t, resps, 3)
	assert.Equal(t, "1", resps[0].ID)
	assert.JSONEq(t, `{"pong":true}`, string(resps[0].Result))

	var results []SearchResult
	require.NoError(t, json.Unmarshal(resps[1].Result, &results))
	require.Len(t, results, 1)
	assert.Equal(t, "hello", results[0].Text)

	assert.JSONEq(t, `{"chunks":7}`, string(resps[2].Result))
}

func TestServer_ProtocolErrors(t *testing.T) {
	socket := startServer(t, &fakeHandler{})

	tests := []struct {
		name string
		line string
		code int
	}{
		{"unknown method", `{"jsonrpc":"2.0","method":"compact","id":"1"}`, ErrCodeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":"1"}`, ErrCodeInvalidRequest},
		{"missing params", `{"jsonrpc":"2.0","method":"search","id":"1"}`, ErrCodeInvalidParams},
		{"blank query", `{"jsonrpc":"2.0","method":"search","params":{"query":"  "},"id":"1"}`, ErrCodeInvalidParams},
		{"empty ingest", `{"jsonrpc":"2.0","method":"ingest","params":{},"id":"1"}`, ErrCodeInvalidParams},
		{"malformed params", `{"jsonrpc":"2.0","method":"search","params":[1,2],"id":"1"}`, ErrCodeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resps := roundTrip(t, socket, tt.line)
			require.NotNil(t, resps[0].Error)
			assert.Equal(t, tt.code, resps[0].Error.Code)
		})
	}
}

func TestServer_ParseError(t *testing.T) {
	socket := startServer(t, &fakeHandler{})

	resps := roundTrip(t, socket, `{not json`)

	require.NotNil(t, resps[0].Error)
	assert.Equal(t, ErrCodeParseError, resps[0].Error.Code)
}

func TestServer_PipelineErrorCarriesCode(t *testing.T) {
	// Given: a handler whose oracle fails
	cause := errors.New("connection refused")
	socket := startServer(t, &fakeHandler{
		searchErr: ragerrors.New(ragerrors.ErrCodeRerankFailed, "rerank failed", cause),
	})

	// When: searching
	resps := roundTrip(t, socket, `{"jsonrpc":"2.0","method":"search","params":{"query":"q"},"id":"9"}`)

	// Then: the JSON-RPC error names the pipeline code
	require.NotNil(t, resps[0].Error)
	assert.Equal(t, ErrCodeSearchFailed, resps[0].Error.Code)
	require.NotNil(t, resps[0].Error.Data)
	assert.Equal(t, ragerrors.ErrCodeRerankFailed, resps[0].Error.Data.Code)
}

func TestClient_AgainstServer(t *testing.T) {
	socket := startServer(t, &fakeHandler{})
	client := NewClient(Config{SocketPath: socket, Timeout: 5 * time.Second})
	ctx := context.Background()

	require.NoError(t, client.Ping(ctx))

	res, err := client.Ingest(ctx, IngestParams{Documents: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Documents)

	_, err = client.Search(ctx, SearchParams{Query: ""})
	assert.Error(t, err)
}

func TestClient_NotRunning(t *testing.T) {
	client := NewClient(testConfig(t))

	assert.False(t, client.IsRunning())
	assert.Error(t, client.Ping(context.Background()))
}

func TestNewPipelineErrorResponse(t *testing.T) {
	validation := newPipelineErrorResponse("1", ErrCodeSearchFailed, ragerrors.ErrEmptyIndex)
	assert.Equal(t, ErrCodeInvalidParams, validation.Error.Code)
	assert.Equal(t, ragerrors.ErrCodeEmptyIndex, validation.Error.Data.Code)

	plain := newPipelineErrorResponse("2", ErrCodeIngestFailed, errors.New("boom"))
	assert.Equal(t, ErrCodeIngestFailed, plain.Error.Code)
	assert.Nil(t, plain.Error.Data)
}

func TestRemoteError_Message(t *testing.T) {
	err := &RemoteError{Method: "search", RPCCode: -32002, Code: "ERR_507_RERANK_FAILED", Message: "rerank failed"}
	assert.Equal(t, "search failed: [ERR_507_RERANK_FAILED] rerank failed", err.Error())
}
