package mcp

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/ragpipe/internal/config"
	"github.com/Aman-CERP/ragpipe/internal/loader"
	"github.com/Aman-CERP/ragpipe/internal/search"
	"github.com/Aman-CERP/ragpipe/pkg/version"
)

// Engine is the pipeline surface the tools call.
type Engine interface {
	AddDocuments(ctx context.Context, docs []string, metas []map[string]string) (search.IngestStats, error)
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]search.Result, error)
	Stats() search.EngineStats
}

// Server bridges MCP clients and one in-memory engine.
type Server struct {
	mcp     *mcp.Server
	engine  Engine
	loader  loader.Options
	topK    int
	rerankK int
	logger  *slog.Logger
}

// AddDocumentsInput defines the input schema for the add_documents tool.
type AddDocumentsInput struct {
	Documents []string            `json:"documents" jsonschema:"document texts to add to the index"`
	Metadata  []map[string]string `json:"metadata,omitempty" jsonschema:"optional metadata per document, same length as documents; the source key names the document"`
}

// AddFilesInput defines the input schema for the add_files tool.
type AddFilesInput struct {
	Paths []string `json:"paths" jsonschema:"files or directories to load (.txt, .md, .csv, .pdf)"`
}

// IngestOutput defines the output schema for the ingestion tools.
type IngestOutput struct {
	Documents   int   `json:"documents" jsonschema:"documents added by this call"`
	Chunks      int   `json:"chunks" jsonschema:"chunks added by this call"`
	TotalChunks int   `json:"total_chunks" jsonschema:"chunks in the index after this call"`
	DurationMs  int64 `json:"duration_ms" jsonschema:"ingestion time in milliseconds"`
}

// SearchInput defines the input schema for the search tool.
type SearchInput struct {
	Query   string `json:"query" jsonschema:"the natural-language query"`
	TopK    int    `json:"top_k,omitempty" jsonschema:"candidates taken from dense retrieval"`
	RerankK int    `json:"rerank_k,omitempty" jsonschema:"results returned after reranking"`
	Task    string `json:"task,omitempty" jsonschema:"task profile: none, qa, icl, chat, lrlm, tool, convsearch"`
}

// SearchOutput defines the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"reranked results, best first"`
}

// SearchResultOutput is one result with provenance.
type SearchResultOutput struct {
	Rank       int               `json:"rank"`
	Score      float64           `json:"score" jsonschema:"reranker relevance score"`
	DenseScore float64           `json:"dense_score" jsonschema:"dense retrieval similarity"`
	Text       string            `json:"text"`
	Source     string            `json:"source"`
	ChunkIndex int               `json:"chunk_index"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput reports index contents and the oracles in use.
type IndexStatusOutput struct {
	Ready bool               `json:"ready" jsonschema:"true once at least one chunk is indexed"`
	Stats search.EngineStats `json:"stats"`
}

// NewServer creates an MCP server over engine. cfg supplies default
// search depths and loader settings; nil uses defaults.
func NewServer(engine Engine, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine:  engine,
		topK:    cfg.Retrieval.TopK,
		rerankK: cfg.Retrieval.RerankK,
		loader: loader.Options{
			CSVColumn:   cfg.Ingest.CSVColumn,
			CSVLimit:    cfg.Ingest.CSVLimit,
			MaxFileSize: loader.DefaultMaxFileSize,
		},
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    version.Name,
		Version: version.Short(),
	}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_documents",
		Description: "Add raw text documents to the in-memory index. Documents are split into overlapping windows and embedded. The call is atomic: on failure nothing is added.",
	}, s.addDocumentsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_files",
		Description: "Load text, markdown, CSV or PDF files (or whole directories) from the server's filesystem and add them to the index.",
	}, s.addFilesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search over indexed documents: dense retrieval of top_k candidates followed by cross-encoder reranking, returning the best rerank_k passages.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Report how many documents and chunks are indexed and which embedding and rerank models are active.",
	}, s.indexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 4))
}

func (s *Server) addDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddDocumentsInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	if len(input.Documents) == 0 {
		return nil, IngestOutput{}, NewInvalidParamsError("documents parameter is required")
	}
	return s.ingest(ctx, input.Documents, input.Metadata)
}

func (s *Server) addFilesHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddFilesInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	if len(input.Paths) == 0 {
		return nil, IngestOutput{}, NewInvalidParamsError("paths parameter is required")
	}

	docs, err := loader.LoadPaths(ctx, input.Paths, s.loader)
	if err != nil {
		return nil, IngestOutput{}, MapError(err)
	}
	if len(docs) == 0 {
		return nil, IngestOutput{}, NewInvalidParamsError("no loadable documents found in the given paths")
	}

	texts, metas := loader.Split(docs)
	return s.ingest(ctx, texts, metas)
}

func (s *Server) ingest(ctx context.Context, docs []string, metas []map[string]string) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	stats, err := s.engine.AddDocuments(ctx, docs, metas)
	if err != nil {
		return nil, IngestOutput{}, MapError(err)
	}

	total := s.engine.Stats().Chunks
	out := IngestOutput{
		Documents:   stats.Documents,
		Chunks:      stats.Chunks,
		TotalChunks: total,
		DurationMs:  stats.Duration.Milliseconds(),
	}
	return textResult(FormatIngest(stats, total)), out, nil
}

func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	opts := search.SearchOptions{TopK: s.topK, RerankK: s.rerankK}
	if input.TopK > 0 {
		opts.TopK = input.TopK
	}
	if input.RerankK > 0 {
		opts.RerankK = input.RerankK
	}
	if input.Task != "" {
		task, err := search.ParseTaskProfile(input.Task)
		if err != nil {
			return nil, SearchOutput{}, MapError(err)
		}
		opts.Task = task
	}

	results, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, SearchResultOutput{
			Rank:       r.Rank,
			Score:      r.Score,
			DenseScore: r.DenseScore,
			Text:       r.Chunk.Text,
			Source:     r.Chunk.Metadata.Source,
			ChunkIndex: r.Chunk.Metadata.ChunkIndex,
			Extra:      r.Chunk.Metadata.Extra,
		})
	}
	return textResult(FormatSearchResults(input.Query, results)), out, nil
}

func (s *Server) indexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	stats := s.engine.Stats()
	return nil, IndexStatusOutput{Ready: stats.Chunks > 0, Stats: stats}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
