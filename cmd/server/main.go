package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"

	_ "modernc.org/sqlite"

	"gradedesk/internal/adapters/grader"
	web "gradedesk/internal/adapters/http"
	"gradedesk/internal/adapters/http/perf"
	"gradedesk/internal/adapters/storage"
	submissionStore "gradedesk/internal/adapters/storage/submission"
	"gradedesk/internal/application/workspace"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize database with WAL mode, foreign keys, and busy timeout
	dbPath := envOrDefault("GRADEDESK_DB_PATH", "gradedesk.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Connection pool settings for WAL mode
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)

	// Health check
	if err := db.Ping(); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}

	if err := storage.InitDB(db); err != nil {
		log.Fatalf("failed to initialize schema: %v", err)
	}

	log.Println("Database initialized successfully!")

	// Performance instrumentation: wrap DB with timing, create collector
	collector := perf.NewCollector(perf.DefaultRingSize)
	timedDB := storage.NewTimedDB(db, collector)

	store := submissionStore.NewSQLiteStore(timedDB)

	// Load the persisted collection; a corrupt store yields an empty
	// workspace, never a failed start.
	ws := workspace.New(store, func(msg string) {
		slog.Warn("storage_warning", "message", msg)
	})
	ws.Load(context.Background())

	// Grading engine: Gemini when a key is configured, canned results otherwise
	var engine grader.Grader
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		engine = grader.NewGemini(apiKey, os.Getenv("GEMINI_MODEL"))
		log.Println("Grading engine configured (Gemini)")
	} else {
		engine = grader.Noop{}
		if os.Getenv("GRADEDESK_ENV") == "production" {
			log.Println("WARNING: GEMINI_API_KEY is not set — grading returns canned results")
		} else {
			log.Println("Grading engine configured (noop — set GEMINI_API_KEY for real grading)")
		}
	}

	app := &web.App{
		Workspace: ws,
		Grader:    engine,
		Language:  envOrDefault("GRADEDESK_LANG", "Vietnamese"),
	}

	// Create HTTP handler with middleware (pass collector for timing + status)
	mux := web.NewMux("static", app, collector)

	// Start server
	addr := envOrDefault("GRADEDESK_ADDR", ":8080")
	log.Printf("GradeDesk %s starting on %s (env=%s)", version, addr, envOrDefault("GRADEDESK_ENV", "development"))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
