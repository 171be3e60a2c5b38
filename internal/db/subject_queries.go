package db

import (
	"context"
	"fmt"
	"strings"
)

// ListSubjects returns all subjects with their primary/total comment counts.
func (p *Pool) ListSubjects(ctx context.Context) ([]SubjectSummary, error) {
	const q = `
SELECT
	s.subject_id,
	s.subject_uuid::text,
	s.display_name,
	s.faction,
	s.created_at,
	COUNT(c.comment_id)::BIGINT AS comment_count,
	COUNT(c.comment_id) FILTER (WHERE c.duplicate_of IS NULL)::BIGINT AS primary_count
FROM advocacy.subjects s
LEFT JOIN advocacy.comments c
	ON c.subject_id = s.subject_id
GROUP BY s.subject_id
ORDER BY s.display_name ASC, s.subject_id ASC
`
	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	out := make([]SubjectSummary, 0, 64)
	for rows.Next() {
		var row SubjectSummary
		if err := rows.Scan(
			&row.SubjectID,
			&row.SubjectUUID,
			&row.DisplayName,
			&row.Faction,
			&row.CreatedAt,
			&row.CommentCount,
			&row.PrimaryCount,
		); err != nil {
			return nil, fmt.Errorf("scan subject row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subject rows: %w", err)
	}
	return out, nil
}

// SubjectSummary is a subject with comment counters.
type SubjectSummary struct {
	Subject
	CommentCount int64 `json:"comment_count"`
	PrimaryCount int64 `json:"primary_count"`
}

// CreateSubject inserts a subject and returns the stored row.
func (p *Pool) CreateSubject(ctx context.Context, displayName string, faction *string) (*Subject, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, fmt.Errorf("display name is required")
	}
	if faction != nil {
		trimmed := strings.TrimSpace(*faction)
		if trimmed == "" {
			faction = nil
		} else {
			faction = &trimmed
		}
	}

	const q = `
INSERT INTO advocacy.subjects (display_name, faction)
VALUES ($1, $2)
RETURNING subject_id, subject_uuid::text, display_name, faction, created_at
`
	var s Subject
	if err := p.QueryRow(ctx, q, name, faction).Scan(
		&s.SubjectID,
		&s.SubjectUUID,
		&s.DisplayName,
		&s.Faction,
		&s.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert subject: %w", err)
	}
	return &s, nil
}

// GetSubject loads one subject. It returns ErrNoRows when absent.
func (p *Pool) GetSubject(ctx context.Context, subjectID int64) (*Subject, error) {
	const q = `
SELECT subject_id, subject_uuid::text, display_name, faction, created_at
FROM advocacy.subjects
WHERE subject_id = $1
`
	var s Subject
	if err := p.QueryRow(ctx, q, subjectID).Scan(
		&s.SubjectID,
		&s.SubjectUUID,
		&s.DisplayName,
		&s.Faction,
		&s.CreatedAt,
	); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get subject subject_id=%d: %w", subjectID, err)
	}
	return &s, nil
}
