package db

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DedupCandidate is the projection scored by the fuzzy duplicate scan.
type DedupCandidate struct {
	CommentID         int64
	DuplicateOf       *int64
	DuplicateGroup    string
	NormalizedContent string
	CommentDate       time.Time
}

// DuplicateRef is the provenance projection attached to a primary comment.
type DuplicateRef struct {
	CommentID      int64     `json:"comment_id"`
	DuplicateOf    int64     `json:"duplicate_of"`
	SourceURL      string    `json:"source_url"`
	SourcePlatform string    `json:"source_platform"`
	SourceName     *string   `json:"source_name,omitempty"`
	CommentDate    time.Time `json:"comment_date"`
}

// PrimaryFilter narrows primary comment listings. Nil pointers and empty
// strings disable the corresponding filter.
type PrimaryFilter struct {
	SubjectID *int64
	Platform  string
	Verified  *bool
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// DeleteCommentResult reports what a delete touched.
type DeleteCommentResult struct {
	Deleted   int64 `json:"deleted"`
	Released  int64 `json:"released"`
	Repointed int64 `json:"repointed"`
}

const commentColumns = `
	c.comment_id,
	c.comment_uuid::text,
	c.subject_id,
	c.content,
	c.normalized_content,
	c.content_hash,
	c.source_url,
	c.source_platform,
	c.source_type::text,
	c.source_name,
	c.source_credibility,
	c.comment_date,
	c.keywords,
	c.language,
	c.is_verified,
	c.duplicate_of,
	c.duplicate_group::text,
	c.created_at,
	c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (*Comment, error) {
	var c Comment
	if err := row.Scan(
		&c.CommentID,
		&c.CommentUUID,
		&c.SubjectID,
		&c.Content,
		&c.NormalizedContent,
		&c.ContentHash,
		&c.SourceURL,
		&c.SourcePlatform,
		&c.SourceType,
		&c.SourceName,
		&c.SourceCredibility,
		&c.CommentDate,
		&c.Keywords,
		&c.Language,
		&c.IsVerified,
		&c.DuplicateOf,
		&c.DuplicateGroup,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	return &c, nil
}

// FindByContentHash returns the earliest comment of the subject with the given
// content hash, primary or not. It returns ErrNoRows when none exists.
func (p *Pool) FindByContentHash(ctx context.Context, subjectID int64, contentHash string) (*Comment, error) {
	q := `
SELECT` + commentColumns + `
FROM advocacy.comments c
WHERE c.subject_id = $1
  AND c.content_hash = $2
ORDER BY c.comment_date ASC, c.comment_id ASC
LIMIT 1
`
	comment, err := scanComment(p.QueryRow(ctx, q, subjectID, contentHash))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("find comment by content hash subject_id=%d: %w", subjectID, err)
	}
	return comment, nil
}

// ListCandidatesSince returns the subject's comments dated at or after cutoff,
// newest first. Ties on comment_date break by comment_id descending so the
// scan order is total.
func (p *Pool) ListCandidatesSince(ctx context.Context, subjectID int64, cutoff time.Time) ([]DedupCandidate, error) {
	const q = `
SELECT
	c.comment_id,
	c.duplicate_of,
	c.duplicate_group::text,
	c.normalized_content,
	c.comment_date
FROM advocacy.comments c
WHERE c.subject_id = $1
  AND c.comment_date >= $2
ORDER BY c.comment_date DESC, c.comment_id DESC
`
	rows, err := p.Query(ctx, q, subjectID, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query dedup candidates subject_id=%d: %w", subjectID, err)
	}
	defer rows.Close()

	out := make([]DedupCandidate, 0, 32)
	for rows.Next() {
		var row DedupCandidate
		if err := rows.Scan(
			&row.CommentID,
			&row.DuplicateOf,
			&row.DuplicateGroup,
			&row.NormalizedContent,
			&row.CommentDate,
		); err != nil {
			return nil, fmt.Errorf("scan dedup candidate: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup candidates: %w", err)
	}
	return out, nil
}

// GetComment loads one comment by id. It returns ErrNoRows when absent.
func (p *Pool) GetComment(ctx context.Context, commentID int64) (*Comment, error) {
	q := `
SELECT` + commentColumns + `
FROM advocacy.comments c
WHERE c.comment_id = $1
`
	comment, err := scanComment(p.QueryRow(ctx, q, commentID))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("get comment comment_id=%d: %w", commentID, err)
	}
	return comment, nil
}

// InsertComment stores the comment together with its dedup event in one
// transaction and returns the stored row. The pool translates driver errors,
// so unique and foreign-key violations surface as ErrUniqueViolation and
// ErrForeignKeyViolation.
func (p *Pool) InsertComment(ctx context.Context, comment *Comment, event DedupEvent) (*Comment, error) {
	if comment == nil {
		return nil, fmt.Errorf("comment is nil")
	}
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}

	row := *comment
	row.CommentID = 0
	row.CommentUUID = ""
	if row.Keywords == nil {
		row.Keywords = []string{}
	}

	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}

		event.DedupEventID = 0
		event.DedupEventUUID = ""
		event.CommentID = row.CommentID
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("insert dedup event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stored, err := p.GetComment(ctx, row.CommentID)
	if err != nil {
		return nil, fmt.Errorf("reload inserted comment: %w", err)
	}
	return stored, nil
}

// SetCommentVerified flips the moderation flag. It returns ErrNoRows when the
// comment does not exist.
func (p *Pool) SetCommentVerified(ctx context.Context, commentID int64, verified bool, now time.Time) (*Comment, error) {
	q := `
UPDATE advocacy.comments c
SET
	is_verified = $2,
	updated_at = $3
WHERE c.comment_id = $1
RETURNING` + commentColumns + `
`
	comment, err := scanComment(p.QueryRow(ctx, q, commentID, verified, now.UTC()))
	if err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("set comment verified comment_id=%d: %w", commentID, err)
	}
	return comment, nil
}

// DeleteComment removes a comment. Deleting a primary releases its duplicates
// first: for each distinct content hash among them the earliest becomes a new
// primary with a fresh group and the remaining same-hash duplicates are
// repointed at it, so no two primaries of a subject share a content hash.
func (p *Pool) DeleteComment(ctx context.Context, commentID int64, now time.Time) (DeleteCommentResult, error) {
	tx, err := p.BeginTx(ctx, TxOptions{})
	if err != nil {
		return DeleteCommentResult{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const lockQuery = `
SELECT c.duplicate_of
FROM advocacy.comments c
WHERE c.comment_id = $1
FOR UPDATE
`
	var duplicateOf *int64
	if err := tx.QueryRow(ctx, lockQuery, commentID).Scan(&duplicateOf); err != nil {
		if IsNoRows(err) {
			return DeleteCommentResult{}, ErrNoRows
		}
		return DeleteCommentResult{}, fmt.Errorf("lock comment comment_id=%d: %w", commentID, err)
	}

	var result DeleteCommentResult
	if duplicateOf == nil {
		const repointQuery = `
WITH heirs AS (
	SELECT DISTINCT ON (d.content_hash)
		d.comment_id,
		d.content_hash
	FROM advocacy.comments d
	WHERE d.duplicate_of = $1
	ORDER BY d.content_hash, d.comment_date ASC, d.comment_id ASC
)
UPDATE advocacy.comments c
SET
	duplicate_of = h.comment_id,
	updated_at = $2
FROM heirs h
WHERE c.duplicate_of = $1
  AND c.content_hash = h.content_hash
  AND c.comment_id <> h.comment_id
`
		tag, err := tx.Exec(ctx, repointQuery, commentID, now.UTC())
		if err != nil {
			return DeleteCommentResult{}, fmt.Errorf("repoint duplicates of comment_id=%d: %w", commentID, err)
		}
		result.Repointed = tag.RowsAffected()

		const regroupQuery = `
WITH heirs AS (
	SELECT
		d.comment_id,
		gen_random_uuid() AS duplicate_group
	FROM advocacy.comments d
	WHERE d.duplicate_of = $1
)
UPDATE advocacy.comments c
SET
	duplicate_group = h.duplicate_group,
	updated_at = $2
FROM heirs h
WHERE c.comment_id = h.comment_id
   OR c.duplicate_of = h.comment_id
`
		if _, err := tx.Exec(ctx, regroupQuery, commentID, now.UTC()); err != nil {
			return DeleteCommentResult{}, fmt.Errorf("regroup duplicates of comment_id=%d: %w", commentID, err)
		}

		// The heir sharing the deleted primary's hash can only be released
		// once the primary row is gone.
		const releaseQuery = `
UPDATE advocacy.comments c
SET
	duplicate_of = NULL,
	updated_at = $2
WHERE c.duplicate_of = $1
  AND c.content_hash <> (SELECT p.content_hash FROM advocacy.comments p WHERE p.comment_id = $1)
`
		tag, err = tx.Exec(ctx, releaseQuery, commentID, now.UTC())
		if err != nil {
			return DeleteCommentResult{}, fmt.Errorf("release duplicates of comment_id=%d: %w", commentID, err)
		}
		result.Released = tag.RowsAffected()

		const remainingQuery = `
SELECT COUNT(*)::BIGINT
FROM advocacy.comments c
WHERE c.duplicate_of = $1
`
		var remaining int64
		if err := tx.QueryRow(ctx, remainingQuery, commentID).Scan(&remaining); err != nil {
			return DeleteCommentResult{}, fmt.Errorf("count remaining duplicates of comment_id=%d: %w", commentID, err)
		}
		// fk_comments_duplicate_of is ON DELETE SET NULL.
		result.Released += remaining
	}

	const deleteQuery = `
DELETE FROM advocacy.comments
WHERE comment_id = $1
`
	tag, err := tx.Exec(ctx, deleteQuery, commentID)
	if err != nil {
		return DeleteCommentResult{}, fmt.Errorf("delete comment comment_id=%d: %w", commentID, err)
	}
	result.Deleted = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return DeleteCommentResult{}, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// ListPrimaries returns primary comments matching filter ordered by
// comment_date descending.
func (p *Pool) ListPrimaries(ctx context.Context, filter PrimaryFilter) ([]Comment, error) {
	if filter.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if filter.Offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0")
	}

	q := `
SELECT` + commentColumns + `
FROM advocacy.comments c
WHERE c.duplicate_of IS NULL` + primaryFilterClause + `
ORDER BY c.comment_date DESC, c.comment_id DESC
LIMIT $6
OFFSET $7
`
	args := append(primaryFilterArgs(filter), filter.Limit, filter.Offset)
	rows, err := p.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query primary comments: %w", err)
	}
	defer rows.Close()

	out := make([]Comment, 0, filter.Limit)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan primary comment: %w", err)
		}
		out = append(out, *comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary comments: %w", err)
	}
	return out, nil
}

// CountPrimaries counts primary comments matching filter, ignoring paging.
func (p *Pool) CountPrimaries(ctx context.Context, filter PrimaryFilter) (int64, error) {
	q := `
SELECT COUNT(*)::BIGINT
FROM advocacy.comments c
WHERE c.duplicate_of IS NULL` + primaryFilterClause + `
`
	var total int64
	if err := p.QueryRow(ctx, q, primaryFilterArgs(filter)...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count primary comments: %w", err)
	}
	return total, nil
}

const primaryFilterClause = `
  AND ($1::BIGINT IS NULL OR c.subject_id = $1)
  AND ($2 = '' OR c.source_platform = $2)
  AND ($3::BOOLEAN IS NULL OR c.is_verified = $3)
  AND ($4::TIMESTAMPTZ IS NULL OR c.comment_date >= $4)
  AND ($5::TIMESTAMPTZ IS NULL OR c.comment_date < $5)`

func primaryFilterArgs(filter PrimaryFilter) []any {
	var from, to *time.Time
	if filter.From != nil {
		v := filter.From.UTC()
		from = &v
	}
	if filter.To != nil {
		v := filter.To.UTC()
		to = &v
	}
	return []any{filter.SubjectID, filter.Platform, filter.Verified, from, to}
}

// ListDuplicatesOf returns the duplicates pointing at each of the given
// primaries, keyed by primary id and ordered by comment_date ascending.
func (p *Pool) ListDuplicatesOf(ctx context.Context, primaryIDs []int64) (map[int64][]DuplicateRef, error) {
	out := make(map[int64][]DuplicateRef, len(primaryIDs))
	if len(primaryIDs) == 0 {
		return out, nil
	}

	const q = `
SELECT
	c.comment_id,
	c.duplicate_of,
	c.source_url,
	c.source_platform,
	c.source_name,
	c.comment_date
FROM advocacy.comments c
WHERE c.duplicate_of = ANY($1::BIGINT[])
ORDER BY c.duplicate_of, c.comment_date ASC, c.comment_id ASC
`
	rows, err := p.Query(ctx, q, primaryIDs)
	if err != nil {
		return nil, fmt.Errorf("query duplicates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref DuplicateRef
		if err := rows.Scan(
			&ref.CommentID,
			&ref.DuplicateOf,
			&ref.SourceURL,
			&ref.SourcePlatform,
			&ref.SourceName,
			&ref.CommentDate,
		); err != nil {
			return nil, fmt.Errorf("scan duplicate row: %w", err)
		}
		out[ref.DuplicateOf] = append(out[ref.DuplicateOf], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate duplicate rows: %w", err)
	}
	return out, nil
}
