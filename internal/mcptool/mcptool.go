// Package mcptool exposes game matching and game launching to chat models as
// MCP tools.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverName = "playtutor"

// QueryGamesInput is the tool input.
type QueryGamesInput struct {
	ProblemSpec string `json:"problemSpec" jsonschema:"What the learner is working on, with sample questions, e.g. multiplication tables, specifically 7×8 and 9×4"`
	UserSpec    string `json:"userSpec,omitempty" jsonschema:"Who the learner is: grade, US state and interests, e.g. 3rd grade student in CA who likes dinosaurs"`
}

// QueryGamesResult lists at most two games, best first.
type QueryGamesResult struct {
	Results    []matching.MatchResult `json:"results"`
	TotalFound int                    `json:"totalFound"`
}

func QueryGamesTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "query_games",
		Description: "Finds educational games that fit a learning problem and a learner. Returns up to two games sorted by match score; an empty list means no suitable game.",
	}
}

func QueryGamesHandler(e *matching.Engine) mcp.ToolHandlerFor[QueryGamesInput, QueryGamesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input QueryGamesInput) (*mcp.CallToolResult, QueryGamesResult, error) {
		if strings.TrimSpace(input.ProblemSpec) == "" {
			return nil, QueryGamesResult{}, errors.New("problemSpec is required")
		}
		res := e.Match(ctx, input.ProblemSpec, input.UserSpec)
		return nil, QueryGamesResult{Results: res, TotalFound: len(res)}, nil
	}
}

// PresentGameInput is what a chat model fills in to put a game in front of the
// learner.
type PresentGameInput struct {
	GameID            string `json:"gameId" jsonschema:"ID of the game, as returned by query_games"`
	Style             string `json:"style,omitempty" jsonschema:"Art style for the game, e.g. dinosaurs"`
	QuestionSpec      string `json:"questionSpec,omitempty" jsonschema:"What the questions should cover, e.g. single digit multiplication"`
	RequiredQuestions string `json:"requiredQuestions,omitempty" jsonschema:"Questions that must be asked, one per line, e.g. Q: 7×8 (A: 56)"`
	ProblemSpec       string `json:"problemSpec,omitempty" jsonschema:"What the learner is working on"`
	UserSpec          string `json:"userSpec,omitempty" jsonschema:"Who the learner is"`
	Message           string `json:"message,omitempty" jsonschema:"Short fun message shown with the game, e.g. Practice multiplying with DINOSAURS!"`
}

// PresentGameResult identifies the launched session.
type PresentGameResult struct {
	SessionID     string `json:"sessionId"`
	GameID        string `json:"gameId"`
	SelectedStyle string `json:"selectedStyle"`
	Message       string `json:"message"`
	State         string `json:"state"`
	DocumentURL   string `json:"documentUrl"`
}

func PresentGameTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "present_game",
		Description: "Presents a kid friendly educational game about the topic in this chat. Creates a play session for the game and loads it.",
	}
}

func PresentGameHandler(e *matching.Engine, m *game.Manager) mcp.ToolHandlerFor[PresentGameInput, PresentGameResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input PresentGameInput) (*mcp.CallToolResult, PresentGameResult, error) {
		g, err := e.Catalog().Get(input.GameID)
		if err != nil {
			return nil, PresentGameResult{}, fmt.Errorf("present %q: %w", input.GameID, err)
		}
		match := matching.Complete(g, input.UserSpec, matching.MatchResult{
			GameID:            g.ID,
			SelectedStyle:     input.Style,
			QuestionSpec:      input.QuestionSpec,
			RequiredQuestions: input.RequiredQuestions,
			MatchScore:        1,
			Message:           input.Message,
		})
		s := m.Create(match, input.ProblemSpec, input.UserSpec)
		if _, err := m.Launch(ctx, s.ID); err != nil {
			return nil, PresentGameResult{}, fmt.Errorf("launch session %s: %w", s.ID, err)
		}
		return nil, PresentGameResult{
			SessionID:     s.ID,
			GameID:        g.ID,
			SelectedStyle: match.SelectedStyle,
			Message:       match.Message,
			State:         string(s.State()),
			DocumentURL:   "/api/sessions/" + s.ID + "/document",
		}, nil
	}
}

// NewServer builds an MCP server with the matching tools registered, and the
// present_game tool when sessions is set.
func NewServer(e *matching.Engine, sessions *game.Manager, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)
	mcp.AddTool(srv, QueryGamesTool(), QueryGamesHandler(e))
	if sessions != nil {
		mcp.AddTool(srv, PresentGameTool(), PresentGameHandler(e, sessions))
	}
	return srv
}

// Handler serves srv over streamable HTTP.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}
