package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"preflight/internal/logging"
	"preflight/internal/types"
)

// Store provides SQLite-backed records of discovered MCP tools and their usage.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// ToolStats is the persisted record of one tool.
type ToolStats struct {
	ServerID     string
	Name         string
	Description  string
	UsageCount   int64
	SuccessCount int64
	AvgLatencyMs int64
	LastError    string
	LastUsed     time.Time
}

// NewStore opens (creating if needed) the store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS mcp_tools (
			server_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			input_schema TEXT,

			usage_count INTEGER DEFAULT 0,
			success_count INTEGER DEFAULT 0,
			avg_latency_ms INTEGER DEFAULT 0,
			last_error TEXT,
			last_used INTEGER,

			registered_at DATETIME DEFAULT CURRENT_TIMESTAMP,

			PRIMARY KEY(server_id, name)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create mcp_tools table: %w", err)
	}
	_, _ = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_mcp_tools_server ON mcp_tools(server_id)`)
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTools upserts the tools a server advertised.
func (s *Store) SaveTools(ctx context.Context, serverID string, defs []types.ToolDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, def := range defs {
		schemaJSON, _ := json.Marshal(def.InputSchema)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mcp_tools (server_id, name, description, input_schema, registered_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(server_id, name) DO UPDATE SET
				description = excluded.description,
				input_schema = excluded.input_schema
		`, serverID, def.Name, def.Description, string(schemaJSON), time.Now())
		if err != nil {
			return fmt.Errorf("failed to save tool %s/%s: %w", serverID, def.Name, err)
		}
	}
	return tx.Commit()
}

// RecordUsage records a tool usage event, creating the tool row if needed.
func (s *Store) RecordUsage(ctx context.Context, usage types.ToolUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	successInc := 0
	if usage.Success {
		successInc = 1
	}
	latencyMs := usage.Latency.Milliseconds()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_tools (server_id, name, usage_count, success_count, avg_latency_ms, last_error, last_used, registered_at)
		VALUES (?, ?, 1, ?, ?, ?, ?, ?)
		ON CONFLICT(server_id, name) DO UPDATE SET
			usage_count = usage_count + 1,
			success_count = success_count + excluded.success_count,
			avg_latency_ms = ((avg_latency_ms * usage_count) + excluded.avg_latency_ms) / (usage_count + 1),
			last_error = excluded.last_error,
			last_used = excluded.last_used
	`, usage.Provider, usage.Tool, successInc, latencyMs, usage.Error, time.Now().Unix(), time.Now())
	if err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to record usage of %s/%s: %v", usage.Provider, usage.Tool, err)
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// Stats returns all tool records ordered by server and name.
func (s *Store) Stats(ctx context.Context) ([]ToolStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, name, COALESCE(description, ''), usage_count, success_count,
			avg_latency_ms, COALESCE(last_error, ''), last_used
		FROM mcp_tools
		ORDER BY server_id, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tools: %w", err)
	}
	defer rows.Close()

	var stats []ToolStats
	for rows.Next() {
		var st ToolStats
		var lastUsed sql.NullInt64
		if err := rows.Scan(&st.ServerID, &st.Name, &st.Description, &st.UsageCount,
			&st.SuccessCount, &st.AvgLatencyMs, &st.LastError, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan tool: %w", err)
		}
		if lastUsed.Valid {
			st.LastUsed = time.Unix(lastUsed.Int64, 0)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
