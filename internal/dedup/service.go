package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/globaltime"
	"horse.fit/mkquotes/internal/sources"
	"horse.fit/mkquotes/internal/textmatch"
)

const (
	DefaultWindowDays   = 90
	DefaultThreshold    = 0.85
	DefaultPrimaryLimit = 50
	MaxPrimaryLimit     = 500
	DefaultPageSize     = 20
)

// Signal names which path flagged a duplicate.
type Signal string

const (
	SignalNone  Signal = "none"
	SignalExact Signal = "exact"
	SignalFuzzy Signal = "fuzzy"
)

const (
	decisionNewPrimary     = "new_primary"
	decisionExactDuplicate = "exact_duplicate"
	decisionFuzzyDuplicate = "fuzzy_duplicate"
)

// Store is the comment persistence the service depends on. *db.Pool
// implements it.
type Store interface {
	FindByContentHash(ctx context.Context, subjectID int64, contentHash string) (*db.Comment, error)
	ListCandidatesSince(ctx context.Context, subjectID int64, cutoff time.Time) ([]db.DedupCandidate, error)
	InsertComment(ctx context.Context, comment *db.Comment, event db.DedupEvent) (*db.Comment, error)
	SetCommentVerified(ctx context.Context, commentID int64, verified bool, now time.Time) (*db.Comment, error)
	DeleteComment(ctx context.Context, commentID int64, now time.Time) (db.DeleteCommentResult, error)
	ListPrimaries(ctx context.Context, filter db.PrimaryFilter) ([]db.Comment, error)
	CountPrimaries(ctx context.Context, filter db.PrimaryFilter) (int64, error)
	ListDuplicatesOf(ctx context.Context, primaryIDs []int64) (map[int64][]db.DuplicateRef, error)
}

// LanguageDetector tags comment text with an ISO 639-1 code or "".
type LanguageDetector interface {
	DetectISO6391(text string) string
}

type Options struct {
	WindowDays   int
	Threshold    float64
	DefaultLimit int
	Now          func() time.Time
	Languages    LanguageDetector
}

type Service struct {
	store        Store
	logger       zerolog.Logger
	window       time.Duration
	threshold    float64
	defaultLimit int
	now          func() time.Time
	languages    LanguageDetector
}

// SimilarComment is a fuzzy candidate that cleared the threshold.
type SimilarComment struct {
	CommentID      int64     `json:"comment_id"`
	DuplicateOf    *int64    `json:"duplicate_of"`
	DuplicateGroup string    `json:"duplicate_group"`
	CommentDate    time.Time `json:"comment_date"`
	Score          float64   `json:"score"`
}

type CheckResult struct {
	IsDuplicate     bool             `json:"is_duplicate"`
	DuplicateOf     *int64           `json:"duplicate_of"`
	DuplicateGroup  *string          `json:"duplicate_group"`
	Signal          Signal           `json:"signal"`
	BestScore       float64          `json:"best_score"`
	CandidateCount  int              `json:"candidate_count"`
	SimilarComments []SimilarComment `json:"similar_comments"`
}

// NewComment is the input of CreateComment. Nil SourceCredibility and nil
// Keywords mean "derive"; an empty non-nil Keywords slice is kept as given.
type NewComment struct {
	SubjectID         int64
	Content           string
	SourceURL         string
	SourcePlatform    string
	SourceType        string
	SourceName        *string
	SourceCredibility *int
	Keywords          []string
	CommentDate       time.Time
}

type DuplicateRef = db.DuplicateRef

// PrimaryComment is a primary with the provenance of its duplicates.
type PrimaryComment struct {
	db.Comment
	Duplicates []DuplicateRef `json:"duplicates"`
}

type ListFilter struct {
	SubjectID *int64
	Platform  string
	Verified  *bool
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

type PrimaryPage struct {
	Items    []PrimaryComment `json:"items"`
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

func NewService(store Store, logger zerolog.Logger, opts Options) *Service {
	windowDays := opts.WindowDays
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	threshold := opts.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	defaultLimit := opts.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = DefaultPrimaryLimit
	}
	now := opts.Now
	if now == nil {
		now = globaltime.UTC
	}

	return &Service{
		store:        store,
		logger:       logger,
		window:       time.Duration(windowDays) * 24 * time.Hour,
		threshold:    threshold,
		defaultLimit: min(defaultLimit, MaxPrimaryLimit),
		now:          now,
		languages:    opts.Languages,
	}
}

// CheckForDuplicates reports whether content duplicates an existing comment of
// the subject. An exact normalized-hash hit wins over the fuzzy scan; either
// way the result points at the group primary. It never writes.
func (s *Service) CheckForDuplicates(ctx context.Context, subjectID int64, content, sourceURL string) (CheckResult, error) {
	if s == nil || s.store == nil {
		return CheckResult{}, fmt.Errorf("dedup service is not initialized")
	}

	errs := fieldErrors{}
	validateSubjectAndContent(errs, subjectID, content)
	if err := errs.err(); err != nil {
		return CheckResult{}, err
	}

	return s.check(ctx, subjectID, textmatch.Normalize(content), sourceURL)
}

func (s *Service) check(ctx context.Context, subjectID int64, normalized, sourceURL string) (CheckResult, error) {
	result := CheckResult{
		Signal:          SignalNone,
		SimilarComments: []SimilarComment{},
	}

	hit, err := s.store.FindByContentHash(ctx, subjectID, textmatch.HashNormalized(normalized))
	switch {
	case err == nil && hit != nil:
		primaryID := hit.CommentID
		if hit.DuplicateOf != nil {
			primaryID = *hit.DuplicateOf
		}
		group := hit.DuplicateGroup
		result.IsDuplicate = true
		result.DuplicateOf = &primaryID
		result.DuplicateGroup = &group
		result.Signal = SignalExact
		result.BestScore = 1
		return result, nil
	case err != nil && !db.IsNoRows(err):
		return CheckResult{}, fmt.Errorf("exact duplicate lookup subject_id=%d: %w", subjectID, err)
	}

	cutoff := s.now().Add(-s.window)
	candidates, err := s.store.ListCandidatesSince(ctx, subjectID, cutoff)
	if err != nil {
		return CheckResult{}, fmt.Errorf("list dedup candidates subject_id=%d: %w", subjectID, err)
	}
	result.CandidateCount = len(candidates)

	for _, candidate := range candidates {
		score := textmatch.Similarity(normalized, candidate.NormalizedContent)
		result.BestScore = max(result.BestScore, score)
		if score < s.threshold {
			continue
		}
		result.SimilarComments = append(result.SimilarComments, SimilarComment{
			CommentID:      candidate.CommentID,
			DuplicateOf:    candidate.DuplicateOf,
			DuplicateGroup: candidate.DuplicateGroup,
			CommentDate:    candidate.CommentDate,
			Score:          score,
		})
	}

	if len(result.SimilarComments) > 0 {
		first := result.SimilarComments[0]
		primaryID := first.CommentID
		if first.DuplicateOf != nil {
			primaryID = *first.DuplicateOf
		}
		group := first.DuplicateGroup
		result.IsDuplicate = true
		result.DuplicateOf = &primaryID
		result.DuplicateGroup = &group
		result.Signal = SignalFuzzy
	}

	s.logger.Debug().
		Int64("subject_id", subjectID).
		Str("source_url", sourceURL).
		Int("candidates", result.CandidateCount).
		Int("similar", len(result.SimilarComments)).
		Bool("duplicate", result.IsDuplicate).
		Msg("fuzzy duplicate scan finished")

	return result, nil
}

// CreateComment runs one duplicate check and stores the comment linked to the
// found group, or as the primary of a fresh group.
func (s *Service) CreateComment(ctx context.Context, input NewComment) (*db.Comment, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("dedup service is not initialized")
	}

	row, err := s.prepare(input)
	if err != nil {
		return nil, err
	}

	check, err := s.check(ctx, row.SubjectID, row.NormalizedContent, row.SourceURL)
	if err != nil {
		return nil, err
	}

	event := db.DedupEvent{
		Decision:       decisionNewPrimary,
		CandidateCount: check.CandidateCount,
	}
	if check.IsDuplicate {
		row.DuplicateOf = check.DuplicateOf
		row.DuplicateGroup = *check.DuplicateGroup

		score := check.BestScore
		event.ChosenPrimaryID = check.DuplicateOf
		event.BestScore = &score
		event.Decision = decisionFuzzyDuplicate
		if check.Signal == SignalExact {
			event.Decision = decisionExactDuplicate
		}
	} else {
		row.DuplicateGroup = uuid.NewString()
		if check.CandidateCount > 0 {
			score := check.BestScore
			event.BestScore = &score
		}
	}

	stored, err := s.store.InsertComment(ctx, row, event)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrForeignKeyViolation):
			return nil, fmt.Errorf("%w: subject_id=%d", ErrSubjectNotFound, row.SubjectID)
		case errors.Is(err, db.ErrUniqueViolation):
			return nil, fmt.Errorf("%w: an identical primary was stored concurrently for subject_id=%d", ErrConflict, row.SubjectID)
		default:
			return nil, fmt.Errorf("insert comment subject_id=%d: %w", row.SubjectID, err)
		}
	}

	s.logger.Info().
		Int64("comment_id", stored.CommentID).
		Int64("subject_id", stored.SubjectID).
		Str("decision", event.Decision).
		Str("duplicate_group", stored.DuplicateGroup).
		Int("candidates", check.CandidateCount).
		Msg("comment stored")

	return stored, nil
}

func (s *Service) prepare(input NewComment) (*db.Comment, error) {
	errs := fieldErrors{}
	validateSubjectAndContent(errs, input.SubjectID, input.Content)

	sourceType := strings.TrimSpace(input.SourceType)
	if !sources.ValidSourceType(sourceType) {
		errs.add("source_type", "must be Primary or Secondary")
	}
	if input.SourceCredibility != nil && !sources.ValidCredibility(*input.SourceCredibility) {
		errs.add("source_credibility", fmt.Sprintf("must be between %d and %d", sources.MinCredibility, sources.MaxCredibility))
	}

	sourceURL := strings.TrimSpace(input.SourceURL)
	var host string
	if sourceURL != "" {
		canonical, parsedHost := sources.CanonicalURL(sourceURL)
		if canonical == "" {
			errs.add("source_url", "must be an absolute URL")
		}
		sourceURL, host = canonical, parsedHost
	}

	platform := sources.NormalizePlatform(input.SourcePlatform)
	if platform == "" {
		platform = sources.DetectPlatform(host)
	}

	if err := errs.err(); err != nil {
		return nil, err
	}

	commentDate := input.CommentDate.UTC()
	if input.CommentDate.IsZero() {
		commentDate = s.now().UTC()
	}

	keywords := input.Keywords
	if keywords == nil {
		keywords = textmatch.MatchesTopic(input.Content, 1).Keywords
	}

	var language string
	if s.languages != nil {
		language = s.languages.DetectISO6391(input.Content)
	}

	var sourceName *string
	if input.SourceName != nil {
		if trimmed := strings.TrimSpace(*input.SourceName); trimmed != "" {
			sourceName = &trimmed
		}
	}

	normalized := textmatch.Normalize(input.Content)
	return &db.Comment{
		SubjectID:         input.SubjectID,
		Content:           input.Content,
		NormalizedContent: normalized,
		ContentHash:       textmatch.HashNormalized(normalized),
		SourceURL:         sourceURL,
		SourcePlatform:    platform,
		SourceType:        sourceType,
		SourceName:        sourceName,
		SourceCredibility: sources.ResolveCredibility(input.SourceCredibility, platform),
		CommentDate:       commentDate,
		Keywords:          cleanKeywords(keywords),
		Language:          language,
	}, nil
}

func validateSubjectAndContent(errs fieldErrors, subjectID int64, content string) {
	if subjectID <= 0 {
		errs.add("subject_id", "must be a positive integer")
	}
	if strings.TrimSpace(content) == "" {
		errs.add("content", "is required")
		return
	}
	if textmatch.Normalize(content) == "" {
		errs.add("content", "has no comparable text after normalization")
	}
}

func cleanKeywords(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		keyword := strings.TrimSpace(value)
		if keyword == "" {
			continue
		}
		if _, exists := seen[keyword]; exists {
			continue
		}
		seen[keyword] = struct{}{}
		out = append(out, keyword)
	}
	return out
}

// GetPrimaryComments returns the subject's primaries, newest comment_date
// first, each with its duplicates attached. limit <= 0 uses the default.
func (s *Service) GetPrimaryComments(ctx context.Context, subjectID int64, limit int) ([]PrimaryComment, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("dedup service is not initialized")
	}
	if subjectID <= 0 {
		return nil, &ValidationError{Fields: map[string]string{"subject_id": "must be a positive integer"}}
	}
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, MaxPrimaryLimit)

	primaries, err := s.store.ListPrimaries(ctx, db.PrimaryFilter{
		SubjectID: &subjectID,
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list primary comments subject_id=%d: %w", subjectID, err)
	}
	return s.attachDuplicates(ctx, primaries)
}

// ListPrimaryComments is the filtered, paginated variant of
// GetPrimaryComments.
func (s *Service) ListPrimaryComments(ctx context.Context, filter ListFilter) (PrimaryPage, error) {
	if s == nil || s.store == nil {
		return PrimaryPage{}, fmt.Errorf("dedup service is not initialized")
	}

	errs := fieldErrors{}
	if filter.SubjectID != nil && *filter.SubjectID <= 0 {
		errs.add("subject_id", "must be a positive integer")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		errs.add("from", "must be before to")
	}
	if filter.Page < 0 {
		errs.add("page", "must be >= 1")
	}
	if filter.PageSize < 0 || filter.PageSize > MaxPrimaryLimit {
		errs.add("page_size", fmt.Sprintf("must be between 1 and %d", MaxPrimaryLimit))
	}
	if err := errs.err(); err != nil {
		return PrimaryPage{}, err
	}

	page := max(filter.Page, 1)
	pageSize := filter.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	query := db.PrimaryFilter{
		SubjectID: filter.SubjectID,
		Platform:  sources.NormalizePlatform(filter.Platform),
		Verified:  filter.Verified,
		From:      filter.From,
		To:        filter.To,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	}

	total, err := s.store.CountPrimaries(ctx, query)
	if err != nil {
		return PrimaryPage{}, fmt.Errorf("count primary comments: %w", err)
	}

	items := []PrimaryComment{}
	if int64(query.Offset) < total {
		primaries, err := s.store.ListPrimaries(ctx, query)
		if err != nil {
			return PrimaryPage{}, fmt.Errorf("list primary comments: %w", err)
		}
		items, err = s.attachDuplicates(ctx, primaries)
		if err != nil {
			return PrimaryPage{}, err
		}
	}

	return PrimaryPage{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (s *Service) attachDuplicates(ctx context.Context, primaries []db.Comment) ([]PrimaryComment, error) {
	out := make([]PrimaryComment, 0, len(primaries))
	if len(primaries) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(primaries))
	for _, primary := range primaries {
		ids = append(ids, primary.CommentID)
	}
	duplicates, err := s.store.ListDuplicatesOf(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list duplicates: %w", err)
	}

	for _, primary := range primaries {
		refs := duplicates[primary.CommentID]
		if refs == nil {
			refs = []DuplicateRef{}
		}
		out = append(out, PrimaryComment{
			Comment:    primary,
			Duplicates: refs,
		})
	}
	return out, nil
}

// SetVerified records a moderation decision on one comment.
func (s *Service) SetVerified(ctx context.Context, commentID int64, verified bool) (*db.Comment, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("dedup service is not initialized")
	}
	if commentID <= 0 {
		return nil, &ValidationError{Fields: map[string]string{"comment_id": "must be a positive integer"}}
	}

	comment, err := s.store.SetCommentVerified(ctx, commentID, verified, s.now())
	if err != nil {
		if db.IsNoRows(err) {
			return nil, fmt.Errorf("%w: comment_id=%d", ErrCommentNotFound, commentID)
		}
		return nil, fmt.Errorf("set verified comment_id=%d: %w", commentID, err)
	}
	return comment, nil
}

// DeleteComment removes a comment. The store releases the duplicates of a
// deleted primary in the same transaction.
func (s *Service) DeleteComment(ctx context.Context, commentID int64) (db.DeleteCommentResult, error) {
	if s == nil || s.store == nil {
		return db.DeleteCommentResult{}, fmt.Errorf("dedup service is not initialized")
	}
	if commentID <= 0 {
		return db.DeleteCommentResult{}, &ValidationError{Fields: map[string]string{"comment_id": "must be a positive integer"}}
	}

	result, err := s.store.DeleteComment(ctx, commentID, s.now())
	if err != nil {
		switch {
		case db.IsNoRows(err):
			return db.DeleteCommentResult{}, fmt.Errorf("%w: comment_id=%d", ErrCommentNotFound, commentID)
		case errors.Is(err, db.ErrUniqueViolation):
			return db.DeleteCommentResult{}, fmt.Errorf("%w: releasing duplicates of comment_id=%d", ErrConflict, commentID)
		default:
			return db.DeleteCommentResult{}, fmt.Errorf("delete comment_id=%d: %w", commentID, err)
		}
	}

	s.logger.Info().
		Int64("comment_id", commentID).
		Int64("released", result.Released).
		Int64("repointed", result.Repointed).
		Msg("comment deleted")

	return result, nil
}
