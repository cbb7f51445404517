package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aschepis/recall/assemble"
	"github.com/aschepis/recall/config"
	"github.com/aschepis/recall/conflict"
	"github.com/aschepis/recall/conversations"
	"github.com/aschepis/recall/intent"
	recalllogger "github.com/aschepis/recall/logger"
	"github.com/aschepis/recall/memory"
	"github.com/aschepis/recall/memory/ollama"
	"github.com/aschepis/recall/memory/openai"
	"github.com/aschepis/recall/migrations"
	"github.com/aschepis/recall/pipeline"
	"github.com/aschepis/recall/ranking"
	"github.com/aschepis/recall/runtime"
	"github.com/aschepis/recall/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse command-line flags
	var (
		dbPath     = flag.String("db", "", "Path to SQLite database file (overrides config)")
		configPath = flag.String("config", "", "Path to config file (default: ~/.recall/config.yaml)")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout/stderr")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		owner      = flag.String("owner", "local", "Owner id for this session")
		convID     = flag.String("conversation", "default", "Conversation id for this session")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	logger, err := recalllogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = config.GetConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}

	logger.Info().
		Str("db", cfg.DatabasePath).
		Str("embedding_provider", cfg.EmbeddingProvider).
		Msg("recall starting")

	db, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors

	if err := migrations.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	var embedder memory.Embedder
	switch cfg.EmbeddingProvider {
	case "openai":
		embedder, err = openai.NewEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		if err != nil {
			return fmt.Errorf("failed to create openai embedder: %w", err)
		}
	default:
		embedder, err = ollama.NewEmbedder(cfg.Ollama.Host, ollama.Model(cfg.Ollama.Model))
		if err != nil {
			return fmt.Errorf("failed to create ollama embedder: %w", err)
		}
	}

	memoryStore, err := memory.NewStore(db, embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to create memory store: %w", err)
	}
	stateStore := state.NewStore(db, logger)
	turnStore := conversations.NewStore(db)

	var merger state.Merger
	if cfg.Anthropic.APIKey != "" {
		merger, err = state.NewAnthropicMerger(cfg.Anthropic.MergerModel, cfg.Anthropic.APIKey, cfg.Anthropic.MaxTokens, logger)
		if err != nil {
			return fmt.Errorf("failed to create state merger: %w", err)
		}
	} else {
		logger.Warn().Msg("no anthropic api key configured, state merging disabled")
		merger = passthroughMerger{}
	}

	var fallback intent.Fallback
	if cfg.Anthropic.FallbackEnabled && cfg.Anthropic.APIKey != "" {
		fallback, err = intent.NewAnthropicFallback(cfg.Anthropic.ClassifierModel, cfg.Anthropic.APIKey, logger)
		if err != nil {
			return fmt.Errorf("failed to create intent fallback: %w", err)
		}
	}

	engine := pipeline.NewEngine(
		memoryStore,
		stateStore,
		turnStore,
		merger,
		intent.NewClassifier(fallback, logger),
		ranking.NewRanker(logger),
		conflict.NewTokenOverlap(logger),
		assemble.NewAssembler(logger),
		logger,
		pipeline.WithStateTTL(cfg.State.TTLHours),
	)

	sweeper := runtime.NewSweeper(stateStore, cfg.State.SweepSchedule, logger)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start state sweeper: %w", err)
	}
	defer sweeper.Stop()

	return repl(engine, memoryStore, cfg, *owner, *convID)
}

// passthroughMerger keeps the previous state untouched when no generative
// merger is configured.
type passthroughMerger struct{}

func (passthroughMerger) Merge(_ context.Context, prev *state.State, _ []conversations.Turn, _ string) (*state.State, error) {
	return prev.Clone(), nil
}

func repl(engine *pipeline.Engine, memoryStore *memory.Store, cfg *config.Config, owner, convID string) error {
	ctx := context.Background()
	fmt.Println("recall interactive session. Commands:")
	fmt.Println("  remember <type> <content>   store a memory")
	fmt.Println("  ask <message>               run the pipeline and print the context")
	fmt.Println("  outcome <id> good|bad       record whether a memory helped")
	fmt.Println("  quit")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(line, " ")
		switch cmd {
		case "quit", "exit":
			return nil

		case "remember":
			memType, content, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("usage: remember <type> <content>")
				continue
			}
			item, err := memoryStore.Remember(ctx, memory.RememberParams{
				OwnerID:    owner,
				Type:       memory.MemoryType(memType),
				Content:    content,
				Confidence: memory.ConfidenceMedium,
			})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("stored memory #%d\n", item.ID)

		case "ask":
			if rest == "" {
				fmt.Println("usage: ask <message>")
				continue
			}
			result, err := engine.Process(ctx, pipeline.Request{
				OwnerID:        owner,
				ConversationID: convID,
				Message:        rest,
				Settings:       assemble.Settings{SystemRules: cfg.SystemRules},
				Limit:          cfg.Retrieval.Limit,
			})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(result.Context)
			fmt.Printf("-- intent=%s memories=%d conflicts=%d\n",
				result.Intent, result.MemoriesUsed, result.ConflictsFound)

		case "outcome":
			idStr, verdict, ok := strings.Cut(rest, " ")
			if !ok || (verdict != "good" && verdict != "bad") {
				fmt.Println("usage: outcome <id> good|bad")
				continue
			}
			id, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil {
				fmt.Printf("invalid memory id %q\n", idStr)
				continue
			}
			if err := engine.RecordOutcome(ctx, id, verdict == "good"); err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println("recorded")

		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
	}
	return scanner.Err()
}
