package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kiliankoe/playtutor/internal/ai"
	"github.com/kiliankoe/playtutor/internal/ai/ollama"
	"github.com/kiliankoe/playtutor/internal/ai/openai"
	"github.com/kiliankoe/playtutor/internal/api"
	"github.com/kiliankoe/playtutor/internal/catalog"
	"github.com/kiliankoe/playtutor/internal/config"
	"github.com/kiliankoe/playtutor/internal/documents"
	"github.com/kiliankoe/playtutor/internal/game"
	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/kiliankoe/playtutor/internal/mcptool"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/kiliankoe/playtutor/internal/results"
	"github.com/kiliankoe/playtutor/internal/ws"
	staticserver "github.com/kiliankoe/playtutor/static"
	"github.com/rs/zerolog"
	zerologlog "github.com/rs/zerolog/log"
)

const version = "v0.3.0-dev"

func main() {
	var (
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
		portFlag    = flag.String("port", "", "Port to listen on (overrides PORT env var)")
		envFile     = flag.String("env", "", "Load environment from this file (default: .env if present)")
	)
	flag.BoolVar(showHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Parse()

	if *showHelp {
		fmt.Printf(`PlayTutor - practice mini-games generated around what a learner is working on

Usage: %s [options]

Options:
  -h, --help      Show this help message
  -v, --version   Show version information
  --port PORT     Port to listen on (default: 8080 or PORT env var)
  --env FILE      Load environment variables from FILE

Environment Variables:
  PORT                Port to listen on (default: 8080)
  DEFAULT_PROVIDER    AI provider: "openai" or "ollama" (default: openai)
  DEFAULT_MODEL       AI model to use (default: gpt-4o-mini)
  SYSTEM_PROMPT       System prompt sent with every model request (optional)
  OPENAI_API_KEY      OpenAI API key (required for OpenAI provider)
  OPENAI_BASE_URL     Custom OpenAI API base URL (optional)
  OLLAMA_HOST         Ollama host URL (default: http://localhost:11434)
  QUESTION_TIMEOUT    Deadline for one question batch (default: 30s)
  MATCH_TIMEOUT       Deadline for one matching call (default: 45s)
  CLOSE_GRACE         How long a closing game may report stats (default: 100ms)
  CATALOG_FILE        YAML game catalog (default: built-in catalog)
  GAMES_DIR           Directory with game templates overriding the built-in ones
  EXPORT_ENABLED      Export session results to file (default: true)
  EXPORT_FILE         Path to export session results (default: ./playtutor-results.txt)
  RESULTS_DB          SQLite file for session results, empty disables (default: ./data/results.db)
  SESSION_RETENTION   Keep finished sessions this long (default: 30m)
  SWEEP_INTERVAL      How often finished sessions are swept (default: 1m)

Examples:
  %s                  Start server with default settings
  %s --port 3000      Start server on port 3000

Visit http://localhost:8080 after starting the server.
`, os.Args[0], os.Args[0], os.Args[0])
		return
	}

	if *showVersion {
		fmt.Printf("PlayTutor %s\n", version)
		return
	}

	// zerolog setup (human-friendly console)
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	zerologlog.Logger = zerologlog.Output(cw)
	log := zerologlog.Logger

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	port := *portFlag
	if port == "" {
		port = cfg.Port
	}

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("path", path).Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	})

	// Providers
	providers := map[string]ai.Provider{
		"openai": openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL),
		"ollama": ollama.New(cfg.OllamaHost),
	}
	gen := ai.NewGenerator(providers[cfg.DefaultProvider], cfg.DefaultModel, cfg.SystemPrompt)
	log.Info().Str("provider", cfg.DefaultProvider).Str("model", cfg.DefaultModel).Msg("ai backend")

	cat, err := catalog.LoadFile(cfg.CatalogFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CatalogFile).Msg("load catalog")
	}
	engine := matching.NewEngine(cat, gen, cfg.MatchTimeout)
	pipeline := questions.NewPipeline(gen, cfg.QuestionTimeout)
	loader := documents.NewLoader(cat, cfg.GamesDir)

	// Result sinks
	var sinks results.Multi
	if cfg.ExportEnabled {
		sinks = append(sinks, results.FileRecorder{Path: cfg.ExportFile})
	}
	a := &api.API{Engine: engine, Catalog: cat}
	if cfg.ResultsDB != "" {
		store, err := results.OpenSQLite(cfg.ResultsDB)
		if err != nil {
			log.Fatal().Err(err).Str("db", cfg.ResultsDB).Msg("open results db")
		}
		defer store.Close()
		sinks = append(sinks, store)
		a.Results = store
	}

	sessions := game.NewManager(loader,
		game.WithGrace(cfg.CloseGrace),
		game.OnFinalize(func(res game.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sinks.Record(ctx, res); err != nil {
				log.Error().Err(err).Str("session", res.SessionID).Msg("record result")
				return
			}
			log.Info().Str("session", res.SessionID).Str("cause", string(res.Cause)).Int("attempted", res.Stats.QuestionsAttempted).Msg("session result recorded")
		}),
	)
	a.Sessions = sessions

	sched, err := game.StartSweeper(sessions, cfg.SweepInterval, cfg.SessionRetention)
	if err != nil {
		log.Fatal().Err(err).Msg("start sweeper")
	}
	defer sched.Shutdown()

	a.Register(r)

	// Socket server for the hosting page, plain websocket for other hosts
	sock := ws.New(sessions, pipeline)
	io := sock.Mount(r)
	defer io.Close()
	r.GET("/ws/sessions/:id", ws.SessionSocket(sessions, pipeline))

	// Matching and game launching as MCP tools for assistants
	r.Any("/mcp", gin.WrapH(mcptool.Handler(mcptool.NewServer(engine, sessions, version))))

	// Serve frontend for all other routes
	r.NoRoute(func(c *gin.Context) {
		staticserver.Handler().ServeHTTP(c.Writer, c.Request)
	})

	log.Info().Str("port", port).Int("games", cat.Len()).Msg("listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}
