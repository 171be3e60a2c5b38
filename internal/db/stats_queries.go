package db

import (
	"context"
	"fmt"
	"time"
)

// DedupDecisionCount is the number of dedup events per decision.
type DedupDecisionCount struct {
	Decision string `json:"decision"`
	Count    int64  `json:"count"`
}

// DedupStats is the read model returned by the stats command and endpoint.
type DedupStats struct {
	Subjects          int64                `json:"subjects"`
	Comments          int64                `json:"comments"`
	Primaries         int64                `json:"primaries"`
	Duplicates        int64                `json:"duplicates"`
	Verified          int64                `json:"verified"`
	CreatedSince      int64                `json:"created_since"`
	Since             time.Time            `json:"since"`
	Decisions         []DedupDecisionCount `json:"decisions"`
	AverageFuzzyScore *float64             `json:"average_fuzzy_score,omitempty"`
}

// HealthSnapshot is the liveness read model: row counts that prove the schema
// is migrated and reachable.
type HealthSnapshot struct {
	Subjects        int64      `json:"subjects"`
	Comments        int64      `json:"comments"`
	Primaries       int64      `json:"primaries"`
	LatestCommentAt *time.Time `json:"latest_comment_at,omitempty"`
}

func (p *Pool) QueryHealthSnapshot(ctx context.Context) (*HealthSnapshot, error) {
	const query = `
SELECT
	(SELECT COUNT(*)::BIGINT FROM advocacy.subjects) AS subjects,
	COUNT(c.comment_id)::BIGINT AS comments,
	COUNT(c.comment_id) FILTER (WHERE c.duplicate_of IS NULL)::BIGINT AS primaries,
	MAX(c.created_at) AS latest_comment_at
FROM advocacy.comments c
`
	var snapshot HealthSnapshot
	if err := p.QueryRow(ctx, query).Scan(
		&snapshot.Subjects,
		&snapshot.Comments,
		&snapshot.Primaries,
		&snapshot.LatestCommentAt,
	); err != nil {
		return nil, fmt.Errorf("query health snapshot: %w", err)
	}
	if snapshot.LatestCommentAt != nil {
		latest := snapshot.LatestCommentAt.UTC()
		snapshot.LatestCommentAt = &latest
	}
	return &snapshot, nil
}

// QueryDedupStats returns comment totals and dedup decision counts. Comments
// created at or after since are counted separately.
func (p *Pool) QueryDedupStats(ctx context.Context, since time.Time) (*DedupStats, error) {
	stats := &DedupStats{
		Since:     since.UTC(),
		Decisions: make([]DedupDecisionCount, 0, 3),
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*)::BIGINT FROM advocacy.subjects) AS subjects,
	COUNT(c.comment_id)::BIGINT AS comments,
	COUNT(c.comment_id) FILTER (WHERE c.duplicate_of IS NULL)::BIGINT AS primaries,
	COUNT(c.comment_id) FILTER (WHERE c.duplicate_of IS NOT NULL)::BIGINT AS duplicates,
	COUNT(c.comment_id) FILTER (WHERE c.is_verified)::BIGINT AS verified,
	COUNT(c.comment_id) FILTER (WHERE c.created_at >= $1)::BIGINT AS created_since
FROM advocacy.comments c
`
	if err := p.QueryRow(ctx, totalsQuery, stats.Since).Scan(
		&stats.Subjects,
		&stats.Comments,
		&stats.Primaries,
		&stats.Duplicates,
		&stats.Verified,
		&stats.CreatedSince,
	); err != nil {
		return nil, fmt.Errorf("query comment totals: %w", err)
	}

	const decisionsQuery = `
SELECT e.decision::text, COUNT(*)::BIGINT
FROM advocacy.dedup_events e
GROUP BY e.decision
ORDER BY 1
`
	rows, err := p.Query(ctx, decisionsQuery)
	if err != nil {
		return nil, fmt.Errorf("query dedup decisions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row DedupDecisionCount
		if err := rows.Scan(&row.Decision, &row.Count); err != nil {
			return nil, fmt.Errorf("scan dedup decision row: %w", err)
		}
		stats.Decisions = append(stats.Decisions, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup decision rows: %w", err)
	}

	const fuzzyQuery = `
SELECT AVG(e.best_score)::DOUBLE PRECISION
FROM advocacy.dedup_events e
WHERE e.decision = 'fuzzy_duplicate'
`
	if err := p.QueryRow(ctx, fuzzyQuery).Scan(&stats.AverageFuzzyScore); err != nil {
		return nil, fmt.Errorf("query average fuzzy score: %w", err)
	}

	return stats, nil
}
