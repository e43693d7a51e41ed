package contentstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaVersion is written to PRAGMA user_version after migration.
const schemaVersion = 1

// schemaDDL creates every table the crawl database needs, not only
// the ones ContentStore itself reads and writes: Planner shares this
// same sqlite file (config.SqlitePath), so the bootstrap lives once
// here. CrawlContext keeps its state in memory and uses no table.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT UNIQUE NOT NULL,
		host TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS http_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		fetched_at DATETIME NOT NULL,
		http_status INTEGER NOT NULL,
		content_sha256 TEXT,
		elapsed_ms INTEGER NOT NULL,
		bytes_downloaded INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS compression_types (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		algorithm TEXT NOT NULL,
		level INTEGER NOT NULL,
		memory_mb INTEGER NOT NULL DEFAULT 0,
		window_bits INTEGER NOT NULL DEFAULT 0,
		block_bits INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS content_storage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		storage_type TEXT NOT NULL,
		compression_type_id INTEGER NOT NULL REFERENCES compression_types(id),
		content_blob BLOB,
		content_sha256 TEXT UNIQUE NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		compression_ratio REAL NOT NULL,
		bucket_id INTEGER,
		bucket_entry_key TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS compression_buckets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_type TEXT NOT NULL,
		compression_type_id INTEGER NOT NULL REFERENCES compression_types(id),
		content_count INTEGER NOT NULL,
		uncompressed_size INTEGER NOT NULL,
		compressed_size INTEGER NOT NULL,
		bucket_blob BLOB NOT NULL,
		index_json TEXT NOT NULL,
		finalized_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		title TEXT,
		body TEXT,
		host TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src_url_id INTEGER NOT NULL REFERENCES urls(id),
		dst_url_id INTEGER NOT NULL REFERENCES urls(id)
	)`,
	`CREATE TABLE IF NOT EXISTS planning_heuristics (
		domain TEXT PRIMARY KEY,
		patterns TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		sample_size INTEGER NOT NULL DEFAULT 0,
		avg_lookahead REAL NOT NULL DEFAULT 0,
		branching_factor REAL NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pattern_performance (
		pattern TEXT PRIMARY KEY,
		success_count INTEGER NOT NULL DEFAULT 0,
		total_count INTEGER NOT NULL DEFAULT 0,
		avg_value REAL NOT NULL DEFAULT 0,
		last_used DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS crawl_jobs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		ended_at DATETIME,
		config TEXT,
		url_id INTEGER REFERENCES urls(id)
	)`,
	`CREATE TABLE IF NOT EXISTS queue_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES crawl_jobs(id),
		event_type TEXT NOT NULL,
		data TEXT,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`,
}

var seedCompressionTypes = []CompressionType{
	{Name: "none", Algorithm: AlgoNone, Level: 0},
	{Name: "deflate-1", Algorithm: AlgoDeflate, Level: 1},
	{Name: "deflate-3", Algorithm: AlgoDeflate, Level: 3},
	{Name: "deflate-6", Algorithm: AlgoDeflate, Level: 6},
	{Name: "deflate-9", Algorithm: AlgoDeflate, Level: 9},
	{Name: "brotli-0", Algorithm: AlgoBrotli, Level: 0},
	{Name: "brotli-4", Algorithm: AlgoBrotli, Level: 4},
	{Name: "brotli-6", Algorithm: AlgoBrotli, Level: 6},
	{Name: "brotli-9", Algorithm: AlgoBrotli, Level: 9},
	{Name: "brotli-10", Algorithm: AlgoBrotli, Level: 10, MemoryMB: 256, WindowBits: 24, BlockBits: 24},
	{Name: "brotli-11", Algorithm: AlgoBrotli, Level: 11, MemoryMB: 256, WindowBits: 24, BlockBits: 24},
	{Name: "zstd-3", Algorithm: AlgoZstd, Level: 3},
	{Name: "zstd-19", Algorithm: AlgoZstd, Level: 19},
}

// Open bootstraps (or reuses) a sqlite database at path: foreign keys
// on, every table created if absent, and the compression_types lookup
// table seeded.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	for _, stmt := range schemaDDL {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply schema: %w", err)
		}
	}

	if err := seedCompressionTypesIfEmpty(db); err != nil {
		return nil, err
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return nil, fmt.Errorf("set schema version: %w", err)
	}

	return db, nil
}

func seedCompressionTypesIfEmpty(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM compression_types").Scan(&count); err != nil {
		return fmt.Errorf("count compression_types: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, ct := range seedCompressionTypes {
		_, err := db.Exec(
			`INSERT INTO compression_types (name, algorithm, level, memory_mb, window_bits, block_bits)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			ct.Name, string(ct.Algorithm), ct.Level, ct.MemoryMB, ct.WindowBits, ct.BlockBits,
		)
		if err != nil {
			return fmt.Errorf("seed compression type %s: %w", ct.Name, err)
		}
	}
	return nil
}
