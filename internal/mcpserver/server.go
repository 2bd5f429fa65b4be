// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only Open Me letter tools for LLM integration via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/openme/internal/apperr"
	"github.com/starford/openme/internal/letters"
	"github.com/starford/openme/internal/lock"
	"github.com/starford/openme/internal/models"
	"github.com/starford/openme/internal/parser"
)

const formatURI = "openme://letter-format"

// Server wraps the MCP server with letter tools.
type Server struct {
	mcp     *server.MCPServer
	letters *letters.Service
	now     func() time.Time
}

// New creates a new MCP server with all letter tools registered. A nil now
// uses the wall clock.
func New(svc *letters.Service, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{letters: svc, now: now}

	s.mcp = server.NewMCPServer(
		"Open Me",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_letters",
		mcp.WithDescription("List every letter with its lock type and current lock status."),
	), s.listLetters)

	s.mcp.AddTool(mcp.NewTool("get_letter",
		mcp.WithDescription("Read a single letter by id, including whether it is unlocked right now."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Letter id (e.g. sad-day)")),
	), s.getLetter)

	s.mcp.AddTool(mcp.NewTool("evaluate_lock",
		mcp.WithDescription("Decide whether a lock is open. Honor locks depend only on honorConfirmed; "+
			"time locks compare now with unlockAt."),
		mcp.WithString("lockType", mcp.Required(), mcp.Description("honor or time")),
		mcp.WithString("unlockAt", mcp.Description("ISO-8601 unlock datetime, required for time locks")),
		mcp.WithString("now", mcp.Description("ISO-8601 datetime to evaluate at; defaults to the current time")),
		mcp.WithBoolean("honorConfirmed", mcp.Description("Whether the reader confirmed an honor lock")),
	), s.evaluateLock)

	s.mcp.AddTool(mcp.NewTool("validate_letter",
		mcp.WithDescription("Parse and validate a Markdown letter document without storing it. "+
			"Read the format via get_letter_format or the "+formatURI+" resource first."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown letter with YAML frontmatter")),
		mcp.WithString("name", mcp.Description("File name used as the id fallback (e.g. sad-day.md)")),
	), s.validateLetter)

	s.mcp.AddTool(mcp.NewTool("get_letter_format",
		mcp.WithDescription("Returns the Markdown letter format used for seed letters."),
	), s.getLetterFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Letter Format",
			mcp.WithResourceDescription("Markdown letter format used for seed letters."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLetterFormatResource,
	)

	return s
}

// Serve runs the MCP protocol over in/out until ctx is cancelled or in
// reaches EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type letterSummary struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Preview   string          `json:"preview"`
	LockType  models.LockType `json:"lockType"`
	LockLabel string          `json:"lockLabel"`
}

type letterDetail struct {
	models.Letter
	Unlocked  bool   `json:"unlocked"`
	Countdown string `json:"countdown,omitempty"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listLetters(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	all, err := s.letters.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	now := s.now()
	out := make([]letterSummary, 0, len(all))
	for _, l := range all {
		out = append(out, letterSummary{
			ID:        l.ID,
			Title:     l.Title,
			Preview:   l.Preview,
			LockType:  l.LockType,
			LockLabel: lock.Label(l, now),
		})
	}
	return jsonResult(out)
}

func (s *Server) getLetter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	l, err := s.letters.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	now := s.now()
	return jsonResult(letterDetail{
		Letter:    l,
		Unlocked:  lock.IsUnlocked(l, now),
		Countdown: lock.Countdown(l, now),
	})
}

func (s *Server) evaluateLock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lockType, err := req.RequireString("lockType")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := lock.Input{LockType: models.LockType(lockType)}
	if v, vErr := req.RequireString("unlockAt"); vErr == nil {
		in.UnlockAt = v
	}
	if v, vErr := req.RequireBool("honorConfirmed"); vErr == nil {
		in.HonorConfirmed = v
	}
	in.Now = s.now()
	if v, vErr := req.RequireString("now"); vErr == nil && v != "" {
		now, pErr := lock.ParseTimestamp(v)
		if pErr != nil {
			return mcp.NewToolResultError("now must be a valid ISO datetime"), nil
		}
		in.Now = now
	}

	unlocked, err := lock.Evaluate(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]bool{"unlocked": unlocked})
}

func (s *Server) validateLetter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name := "letter.md"
	if v, vErr := req.RequireString("name"); vErr == nil && v != "" {
		name = v
	}

	l, err := parser.ParseLetter(name, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := letters.Validate(l); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(l)
}

func (s *Server) getLetterFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LetterFormatContract), nil
}

func (s *Server) readLetterFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     LetterFormatContract,
		},
	}, nil
}
