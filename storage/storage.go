// Package storage persists conversation sessions and research reports.
//
// Backends are hidden behind small interfaces so callers can swap between
// in-memory storage (tests, ephemeral sessions) and SQLite without API
// changes. Each implementation encapsulates its own schema and locking.
package storage

import (
	"context"

	"magellan/llm"
)

// ConversationStorage stores per-session chat history.
type ConversationStorage interface {
	// Save replaces the stored history for a session.
	Save(ctx context.Context, sessionID string, history []llm.ChatMessage) error

	// Load returns the stored history for a session.
	// Returns an empty slice (not nil) for an unknown session; errors are
	// reserved for storage failures.
	Load(ctx context.Context, sessionID string) ([]llm.ChatMessage, error)

	// Delete removes a session and its history.
	Delete(ctx context.Context, sessionID string) error

	// ListSessions lists all session IDs.
	ListSessions(ctx context.Context) ([]string, error)

	// Exists reports whether a session exists.
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// ReportMeta describes one saved research report.
type ReportMeta struct {
	Slug          string
	Query         string
	Path          string
	LearningCount int
	SourceCount   int
	CreatedAt     int64
}

// ReportStorage indexes saved reports. The markdown bodies live on disk;
// the index only carries metadata and the file path.
type ReportStorage interface {
	// IndexReport records a saved report.
	IndexReport(ctx context.Context, meta ReportMeta) error

	// ListReports returns all indexed reports, newest first.
	ListReports(ctx context.Context) ([]ReportMeta, error)

	// FindReport looks up a report by slug. Returns nil when absent.
	FindReport(ctx context.Context, slug string) (*ReportMeta, error)

	// DeleteReport removes a report from the index.
	DeleteReport(ctx context.Context, slug string) error
}
