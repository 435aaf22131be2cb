package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCategory is returned for a source category outside SourceCategories.
var ErrInvalidCategory = errors.New("invalid source category")

const sourceColumns = "s.id, s.title, s.url, s.type, s.content, s.category, s.video_id, s.channel_title, s.thumbnail, s.created_at"

// CreateSource inserts a corpus entry and its tags. Tags are stored lowercased and de-duplicated.
func (s *SQLiteStore) CreateSource(ctx context.Context, src *Source) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin source insert: %w", err)
	}
	defer tx.Rollback()

	if err := insertSource(ctx, tx, src); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit source insert: %w", err)
	}
	return nil
}

func insertSource(ctx context.Context, tx *sql.Tx, src *Source) error {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Type == "" {
		src.Type = SourceTypeArticle
	}
	src.Category = strings.ToLower(strings.TrimSpace(src.Category))
	if src.Category == "" {
		src.Category = CategoryGeneral
	}
	if !ValidCategory(src.Category) {
		return fmt.Errorf("%w %q for source %q", ErrInvalidCategory, src.Category, src.Title)
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now().UTC()
	}
	src.Tags = NormalizeTags(src.Tags)

	var videoID, channel, thumbnail string
	if src.Video != nil {
		videoID, channel, thumbnail = src.Video.VideoID, src.Video.ChannelTitle, src.Video.Thumbnail
	}

	_, err := tx.ExecContext(ctx, `INSERT INTO sources (id, title, url, type, content, category, video_id,
        channel_title, thumbnail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Title, src.URL, src.Type, src.Content, src.Category, videoID, channel, thumbnail, src.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert source %q: %w", src.Title, err)
	}

	for _, tag := range src.Tags {
		if _, err := tx.ExecContext(ctx, "INSERT INTO source_tags (source_id, tag) VALUES (?, ?)", src.ID, tag); err != nil {
			return fmt.Errorf("failed to insert tag %q for source %q: %w", tag, src.Title, err)
		}
	}
	return nil
}

// FindByTags returns sources carrying any of tags, ranked by how many of the tags
// each one carries (descending), insertion order breaking ties.
func (s *SQLiteStore) FindByTags(ctx context.Context, tags []string, limit int) ([]ScoredSource, error) {
	tags = NormalizeTags(tags)
	if len(tags) == 0 || limit <= 0 {
		return []ScoredSource{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(tags)), ",")
	query := `SELECT ` + sourceColumns + `, COUNT(DISTINCT LOWER(t.tag)) AS match_score
        FROM sources s JOIN source_tags t ON t.source_id = s.id
        WHERE LOWER(t.tag) IN (` + placeholders + `)
        GROUP BY s.id
        ORDER BY match_score DESC, s.rowid ASC
        LIMIT ?`

	args := make([]any, 0, len(tags)+1)
	for _, tag := range tags {
		args = append(args, tag)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sources by tags: %w", err)
	}
	defer rows.Close()

	var results []ScoredSource
	for rows.Next() {
		var scored ScoredSource
		if err := scanSourceInto(rows, &scored.Source, &scored.MatchScore); err != nil {
			return nil, err
		}
		results = append(results, scored)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sources: %w", err)
	}

	for i := range results {
		if results[i].Tags, err = s.tagsFor(ctx, results[i].ID); err != nil {
			return nil, err
		}
	}
	if results == nil {
		results = []ScoredSource{}
	}
	return results, nil
}

// SampleSources returns up to limit sources chosen uniformly at random.
func (s *SQLiteStore) SampleSources(ctx context.Context, limit int) ([]Source, error) {
	if limit <= 0 {
		return []Source{}, nil
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+sourceColumns+" FROM sources s ORDER BY RANDOM() LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample sources: %w", err)
	}
	defer rows.Close()

	sources := []Source{}
	for rows.Next() {
		var src Source
		if err := scanSourceInto(rows, &src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sampled sources: %w", err)
	}

	for i := range sources {
		if sources[i].Tags, err = s.tagsFor(ctx, sources[i].ID); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func (s *SQLiteStore) CountSources(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sources").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sources: %w", err)
	}
	return n, nil
}

// ReplaceSources clears the corpus and inserts sources in one transaction.
func (s *SQLiteStore) ReplaceSources(ctx context.Context, sources []Source) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin corpus replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM source_tags"); err != nil {
		return 0, fmt.Errorf("failed to delete source tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sources"); err != nil {
		return 0, fmt.Errorf("failed to delete sources: %w", err)
	}
	for i := range sources {
		if err := insertSource(ctx, tx, &sources[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit corpus replace: %w", err)
	}
	return len(sources), nil
}

// LoadSeedFile reads a YAML list of sources.
func LoadSeedFile(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var sources []Source
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, src := range sources {
		if strings.TrimSpace(src.Title) == "" || strings.TrimSpace(src.URL) == "" {
			return nil, fmt.Errorf("seed entry %d: title and url are required", i)
		}
		if src.Category != "" && !ValidCategory(src.Category) {
			return nil, fmt.Errorf("seed entry %d: %w %q", i, ErrInvalidCategory, src.Category)
		}
	}
	return sources, nil
}

func (s *SQLiteStore) tagsFor(ctx context.Context, sourceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT tag FROM source_tags WHERE source_id = ? ORDER BY rowid", sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func scanSourceInto(rows *sql.Rows, src *Source, extra ...any) error {
	var videoID, channel, thumbnail string
	dest := []any{&src.ID, &src.Title, &src.URL, &src.Type, &src.Content, &src.Category,
		&videoID, &channel, &thumbnail, &src.CreatedAt}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan source row: %w", err)
	}
	if videoID != "" || channel != "" || thumbnail != "" {
		src.Video = &VideoRef{VideoID: videoID, ChannelTitle: channel, Thumbnail: thumbnail}
	}
	return nil
}

// NormalizeTags lowercases and trims tags, dropping empties and duplicates. Order is preserved.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
