// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcpserver exposes search, grounded answers and document status as
// MCP tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/poiesic/corpora/core"
	"github.com/poiesic/corpora/lifecycle"
	"github.com/poiesic/corpora/search"
)

const (
	// Name is the implementation name announced to clients.
	Name = "corpora"

	// MaxWait bounds how long document_status may block.
	MaxWait = time.Minute
)

var (
	ErrSearchServiceRequired = errors.New("search service required")
	ErrManagerRequired       = errors.New("lifecycle manager required")
)

// Tools holds the services behind the MCP tools.
type Tools struct {
	search  *search.Service
	manager *lifecycle.Manager
	logger  *slog.Logger
}

// Option configures Tools.
type Option func(*Tools) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tools) error {
		if logger == nil {
			logger = slog.Default()
		}
		t.logger = logger
		return nil
	}
}

// New creates the tool set.
func New(svc *search.Service, manager *lifecycle.Manager, opts ...Option) (*Tools, error) {
	if svc == nil {
		return nil, ErrSearchServiceRequired
	}
	if manager == nil {
		return nil, ErrManagerRequired
	}
	t := &Tools{search: svc, manager: manager, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	t.logger = t.logger.With("component", "mcp")
	return t, nil
}

// NewServer returns an MCP server with every tool registered.
func (t *Tools) NewServer(version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil)
	t.Register(srv)
	return srv
}

// Run serves the tools over stdio until ctx is done or the client leaves.
func (t *Tools) Run(ctx context.Context, version string) error {
	return t.NewServer(version).Run(ctx, &mcp.StdioTransport{})
}

// Register adds the search, ask and document_status tools to srv.
func (t *Tools) Register(srv *mcp.Server) {
	addTool(t, srv, &mcp.Tool{
		Name:        "search",
		Description: "Search the document collections. Returns ranked documents and tables, figures or images with scores.",
		InputSchema: inputSchema(map[string]any{
			"query":     map[string]any{"type": "string", "description": "What to look for. Part numbers and other identifiers are matched exactly."},
			"limit":     map[string]any{"type": "integer", "description": "Maximum results (default 10, max 100)"},
			"threshold": map[string]any{"type": "number", "description": "Minimum score between 0 and 1, or -1 to keep everything"},
			"rerank":    map[string]any{"type": "boolean", "description": "Reorder the top results with the language model"},
		}, []string{"query"}),
	}, t.searchTool)

	addTool(t, srv, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the document collections, citing the sources used.",
		InputSchema: inputSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The question"},
			"history": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant"}},
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"role", "content"},
				},
				"description": "Earlier turns of the conversation, oldest first",
			},
		}, []string{"query"}),
	}, t.askTool)

	addTool(t, srv, &mcp.Tool{
		Name:        "document_status",
		Description: "Report the processing status of a document. Optionally wait until it is ready or failed.",
		InputSchema: inputSchema(map[string]any{
			"id":           map[string]any{"type": "string", "description": "Document id"},
			"wait_seconds": map[string]any{"type": "integer", "description": "Block up to this many seconds (max 60) for a terminal status"},
		}, []string{"id"}),
	}, t.statusTool)
}

type searchArgs struct {
	Query     string   `json:"query"`
	Limit     int      `json:"limit,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	Rerank    bool     `json:"rerank,omitempty"`
}

func (t *Tools) searchTool(ctx context.Context, args *searchArgs) (any, error) {
	req := search.SearchRequest{Query: args.Query, Limit: args.Limit, EnableRerank: args.Rerank}
	if args.Threshold != nil {
		req.Threshold = *args.Threshold
	}
	return t.search.Search(ctx, req)
}

type askArgs struct {
	Query   string             `json:"query"`
	History []core.ChatMessage `json:"history,omitempty"`
}

func (t *Tools) askTool(ctx context.Context, args *askArgs) (any, error) {
	return t.search.Chat(ctx, search.ChatRequest{Query: args.Query, ConversationHistory: args.History})
}

type statusArgs struct {
	ID          string `json:"id"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
}

type statusResult struct {
	ID           string              `json:"id"`
	CollectionID string              `json:"collectionId"`
	Filename     string              `json:"filename"`
	Status       core.DocumentStatus `json:"status"`
	Error        string              `json:"error,omitempty"`
	Elements     int                 `json:"elements"`
	UpdatedAt    time.Time           `json:"updatedAt"`
	ProcessedAt  *time.Time          `json:"processedAt,omitempty"`
}

func (t *Tools) statusTool(ctx context.Context, args *statusArgs) (any, error) {
	if args.ID == "" {
		return nil, &core.ValidationError{Field: "id", Err: errors.New("document id is required")}
	}
	var (
		doc *core.Document
		err error
	)
	if args.WaitSeconds > 0 {
		wait := min(time.Duration(args.WaitSeconds)*time.Second, MaxWait)
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		doc, err = t.manager.WaitFor(waitCtx, args.ID, core.StatusReady, core.StatusError)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			doc, err = t.manager.Get(ctx, args.ID)
		}
	} else {
		doc, err = t.manager.Get(ctx, args.ID)
	}
	if err != nil {
		return nil, err
	}

	els, err := t.manager.Elements(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return &statusResult{
		ID:           doc.ID,
		CollectionID: doc.CollectionID,
		Filename:     doc.File.Filename,
		Status:       doc.Status,
		Error:        doc.Error,
		Elements:     len(els),
		UpdatedAt:    doc.UpdatedAt,
		ProcessedAt:  doc.ProcessedAt,
	}, nil
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

// addTool registers fn as a tool whose arguments decode into A. Failures are
// reported as tool errors so the client model can read them.
func addTool[A any](t *Tools, srv *mcp.Server, tool *mcp.Tool, fn func(context.Context, *A) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args A
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		out, err := fn(ctx, &args)
		if err != nil {
			t.logger.Warn("tool failed", "tool", tool.Name, "err", err)
			return toolError(err), nil
		}
		data, err := json.Marshal(out)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
