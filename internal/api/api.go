// Package api is the HTTP surface the hosting UI drives: matching, session
// lifecycle and finished results.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/playtutor/internal/catalog"
	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/kiliankoe/playtutor/internal/results"
	"github.com/rs/zerolog/log"
)

// ResultLister reads stored session results.
type ResultLister interface {
	List(ctx context.Context, f results.Filter) ([]game.Result, error)
}

type API struct {
	Engine   *matching.Engine
	Catalog  *catalog.Catalog
	Sessions *game.Manager
	Results  ResultLister // optional
}

type matchReq struct {
	ProblemSpec string `json:"problemSpec" binding:"required"`
	UserSpec    string `json:"userSpec"`
}

type createReq struct {
	Match       *matching.MatchResult `json:"match"`
	ProblemSpec string                `json:"problemSpec"`
	UserSpec    string                `json:"userSpec"`
}

func (a *API) Register(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	api.GET("/games", a.listGames)
	api.POST("/games/match", a.match)
	api.POST("/sessions", a.createSession)
	api.GET("/sessions", a.listSessions)
	api.GET("/sessions/:id", a.getSession)
	api.GET("/sessions/:id/document", a.document)
	api.POST("/sessions/:id/launch", a.launch)
	api.POST("/sessions/:id/close", a.close)
	api.DELETE("/sessions/:id", a.discard)
	api.GET("/results", a.listResults)
}

func (a *API) listGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": a.Catalog.All()})
}

func (a *API) match(c *gin.Context) {
	var req matchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	res := a.Engine.Match(c.Request.Context(), req.ProblemSpec, req.UserSpec)
	c.JSON(http.StatusOK, gin.H{"results": res})
}

// createSession registers a session for the given match, or for the best
// match of problemSpec/userSpec when none is given, and launches it.
func (a *API) createSession(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var m matching.MatchResult
	switch {
	case req.Match != nil && req.Match.GameID != "":
		g, err := a.Catalog.Get(req.Match.GameID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "game_not_found"})
			return
		}
		if !matching.ValidScore(req.Match.MatchScore) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_match_score"})
			return
		}
		m = matching.Complete(g, req.UserSpec, *req.Match)
	case req.ProblemSpec != "":
		found := a.Engine.Match(c.Request.Context(), req.ProblemSpec, req.UserSpec)
		if len(found) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no_suitable_game"})
			return
		}
		m = found[0]
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "match_or_problem_required"})
		return
	}

	s := a.Sessions.Create(m, req.ProblemSpec, req.UserSpec)
	if _, err := a.Sessions.Launch(c.Request.Context(), s.ID); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("launch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "launch_failed", "session": s.Snapshot()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s.Snapshot()})
}

func (a *API) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": a.Sessions.List()})
}

func (a *API) getSession(c *gin.Context) {
	s, err := a.Sessions.Get(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
}

func (a *API) document(c *gin.Context) {
	s, err := a.Sessions.Get(c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	doc, ok := s.Document()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document_not_loaded"})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

func (a *API) launch(c *gin.Context) {
	s, err := a.Sessions.Launch(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
}

func (a *API) close(c *gin.Context) {
	id := c.Param("id")
	if err := a.Sessions.RequestClose(c.Request.Context(), id); err != nil {
		writeErr(c, err)
		return
	}
	s, err := a.Sessions.Get(id)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"session": s.Snapshot()})
}

func (a *API) discard(c *gin.Context) {
	if err := a.Sessions.Discard(c.Param("id")); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listResults(c *gin.Context) {
	if a.Results == nil {
		c.JSON(http.StatusOK, gin.H{"results": []game.Result{}})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	out, err := a.Results.List(c.Request.Context(), results.Filter{GameID: c.Query("gameId"), Limit: limit})
	if err != nil {
		log.Error().Err(err).Msg("list results")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "results_unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": out})
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, game.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session_not_found"})
	case errors.Is(err, game.ErrInvalidState):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_state", "message": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_failed", "message": err.Error()})
	}
}
