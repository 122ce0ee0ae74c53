package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
)

const maxSlugLen = 48

// ReportStore writes report markdown to a directory and keeps metadata in
// a ReportStorage index. File names are slugs derived from the query plus
// a timestamp, so repeated runs of the same query never collide.
type ReportStore struct {
	dir   string
	index ReportStorage
	now   func() time.Time
}

// NewReportStore creates a store writing under dir, indexed by index.
func NewReportStore(dir string, index ReportStorage) *ReportStore {
	return &ReportStore{dir: dir, index: index, now: time.Now}
}

// SaveReport writes the markdown body to disk and records its metadata.
func (s *ReportStore) SaveReport(ctx context.Context, query, content string, learningCount, sourceCount int) (ReportMeta, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return ReportMeta{}, fmt.Errorf("failed to create reports directory: %w", err)
	}

	now := s.now()
	slug := fmt.Sprintf("%s-%s", Slugify(query), now.Format("20060102-150405"))
	path := filepath.Join(s.dir, slug+".md")

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return ReportMeta{}, fmt.Errorf("failed to write report: %w", err)
	}

	meta := ReportMeta{
		Slug:          slug,
		Query:         query,
		Path:          path,
		LearningCount: learningCount,
		SourceCount:   sourceCount,
		CreatedAt:     now.Unix(),
	}
	if err := s.index.IndexReport(ctx, meta); err != nil {
		return ReportMeta{}, err
	}
	return meta, nil
}

// LoadReport returns the markdown body of an indexed report.
func (s *ReportStore) LoadReport(ctx context.Context, slug string) (string, *ReportMeta, error) {
	meta, err := s.index.FindReport(ctx, slug)
	if err != nil {
		return "", nil, err
	}
	if meta == nil {
		return "", nil, fmt.Errorf("no report with slug %q", slug)
	}

	body, err := os.ReadFile(meta.Path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read report %s: %w", meta.Path, err)
	}
	return string(body), meta, nil
}

// List returns the metadata of every indexed report, newest first.
func (s *ReportStore) List(ctx context.Context) ([]ReportMeta, error) {
	return s.index.ListReports(ctx)
}

// Slugify lowercases the query and collapses every non-alphanumeric run
// into a single hyphen, truncated to a filesystem-friendly length.
func Slugify(query string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(query) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		slug = "report"
	}
	return slug
}
