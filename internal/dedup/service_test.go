package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/mkquotes/internal/db"
	"horse.fit/mkquotes/internal/sources"
	"horse.fit/mkquotes/internal/textmatch"
)

const (
	quoteOriginal  = "The minister said the recruitment law must pass before the summer session ends."
	quoteSpaced    = "  The minister said   the recruitment law must pass before the summer session ends  "
	quoteTrimmed   = "The minister said the recruitment law must pass before the summer session."
	quoteReworded  = "The minister said that the recruitment law must pass before the summer session ends."
	quoteUnrelated = "The opposition will fight the budget cuts in every committee."
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fixedLanguage string

func (f fixedLanguage) DetectISO6391(string) string { return string(f) }

func newTestService(store Store) *Service {
	return NewService(store, zerolog.Nop(), Options{
		Now:       func() time.Time { return testNow },
		Languages: fixedLanguage("en"),
	})
}

func newInput(content string) NewComment {
	return NewComment{
		SubjectID:      1,
		Content:        content,
		SourceURL:      "https://www.ynet.co.il/news/article/abc",
		SourcePlatform: sources.PlatformNews,
		SourceType:     sources.TypeSecondary,
		CommentDate:    testNow.Add(-24 * time.Hour),
	}
}

func seedComment(store *memoryStore, content string, date time.Time, duplicateOf *int64, group string) db.Comment {
	normalized := textmatch.Normalize(content)
	return store.seed(db.Comment{
		SubjectID:         1,
		Content:           content,
		NormalizedContent: normalized,
		ContentHash:       textmatch.HashNormalized(normalized),
		SourcePlatform:    sources.PlatformNews,
		SourceType:        sources.TypeSecondary,
		SourceCredibility: 7,
		CommentDate:       date,
		DuplicateOf:       duplicateOf,
		DuplicateGroup:    group,
	})
}

func TestCheckForDuplicates_ExactHitOnDuplicateResolvesToPrimary(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	group := uuid.NewString()
	primary := seedComment(store, quoteOriginal, testNow.AddDate(0, 0, -5), nil, group)
	primaryID := primary.CommentID
	seedComment(store, quoteTrimmed, testNow.AddDate(0, 0, -4), &primaryID, group)

	check, err := svc.CheckForDuplicates(context.Background(), 1, quoteTrimmed, "")
	if err != nil {
		t.Fatalf("CheckForDuplicates() error = %v", err)
	}
	if !check.IsDuplicate || check.Signal != SignalExact {
		t.Fatalf("expected exact duplicate, got %+v", check)
	}
	if *check.DuplicateOf != primaryID {
		t.Fatalf("expected duplicate_of to resolve to primary %d, got %d", primaryID, *check.DuplicateOf)
	}
	if *check.DuplicateGroup != group {
		t.Fatalf("expected group %q, got %q", group, *check.DuplicateGroup)
	}
}

func TestCheckForDuplicates_FuzzyHitOnDuplicateResolvesToPrimary(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	group := uuid.NewString()
	primary := seedComment(store, quoteUnrelated+" Again.", testNow.AddDate(0, 0, -5), nil, group)
	primaryID := primary.CommentID
	// Newest candidate is a duplicate pointing at the primary.
	seedComment(store, quoteOriginal, testNow.AddDate(0, 0, -1), &primaryID, group)

	check, err := svc.CheckForDuplicates(context.Background(), 1, quoteReworded, "")
	if err != nil {
		t.Fatalf("CheckForDuplicates() error = %v", err)
	}
	if !check.IsDuplicate || check.Signal != SignalFuzzy {
		t.Fatalf("expected fuzzy duplicate, got %+v", check)
	}
	if *check.DuplicateOf != primaryID {
		t.Fatalf("expected primary %d, got %d", primaryID, *check.DuplicateOf)
	}
}

func TestCheckForDuplicates_FirstCandidateInScanOrderWins(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	older := seedComment(store, quoteOriginal, testNow.AddDate(0, 0, -20), nil, uuid.NewString())
	newer := seedComment(store, quoteTrimmed, testNow.AddDate(0, 0, -2), nil, uuid.NewString())

	check, err := svc.CheckForDuplicates(context.Background(), 1, quoteReworded, "")
	if err != nil {
		t.Fatalf("CheckForDuplicates() error = %v", err)
	}
	if len(check.SimilarComments) != 2 {
		t.Fatalf("expected both candidates above threshold, got %+v", check.SimilarComments)
	}
	if check.SimilarComments[0].CommentID != newer.CommentID || check.SimilarComments[1].CommentID != older.CommentID {
		t.Fatalf("expected newest-first scan order, got %+v", check.SimilarComments)
	}
	if *check.DuplicateOf != newer.CommentID {
		t.Fatalf("expected newest matching candidate to win, got %d", *check.DuplicateOf)
	}
}

func TestCheckForDuplicates_ScopedToSubject(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1, 2)
	svc := newTestService(store)
	seedComment(store, quoteOriginal, testNow.AddDate(0, 0, -1), nil, uuid.NewString())

	check, err := svc.CheckForDuplicates(context.Background(), 2, quoteOriginal, "")
	if err != nil {
		t.Fatalf("CheckForDuplicates() error = %v", err)
	}
	if check.IsDuplicate {
		t.Fatalf("did not expect a match across subjects")
	}
}

func TestCreateComment_DerivesProvenance(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	input := newInput(quoteOriginal)
	input.SourcePlatform = ""
	input.SourceURL = "https://x.com/mk/status/123?utm_source=share&s=20"
	created, err := svc.CreateComment(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if created.SourcePlatform != sources.PlatformTwitter {
		t.Fatalf("expected platform detected from host, got %q", created.SourcePlatform)
	}
	if created.SourceURL != "https://x.com/mk/status/123" {
		t.Fatalf("expected canonical source url, got %q", created.SourceURL)
	}
	if created.SourceCredibility != 5 {
		t.Fatalf("expected social default credibility 5, got %d", created.SourceCredibility)
	}
	if len(created.Keywords) != 1 || created.Keywords[0] != "recruitment law" {
		t.Fatalf("expected derived keywords, got %v", created.Keywords)
	}
	if created.Language != "en" {
		t.Fatalf("expected language tag, got %q", created.Language)
	}
	if created.NormalizedContent != textmatch.Normalize(quoteOriginal) || created.ContentHash != textmatch.ContentHash(quoteOriginal) {
		t.Fatalf("expected normalized content and hash to be derived from content")
	}
}

func TestCreateComment_CallerValuesWin(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	credibility := 3
	input := newInput(quoteOriginal)
	input.SourcePlatform = sources.PlatformKnesset
	input.SourceCredibility = &credibility
	input.Keywords = []string{}

	created, err := svc.CreateComment(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if created.SourceCredibility != 3 {
		t.Fatalf("expected caller credibility, got %d", created.SourceCredibility)
	}
	if len(created.Keywords) != 0 {
		t.Fatalf("expected caller-supplied empty keywords to be kept, got %v", created.Keywords)
	}

	input = newInput(quoteUnrelated)
	input.SourcePlatform = sources.PlatformKnesset
	created, err = svc.CreateComment(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if created.SourceCredibility != sources.MaxCredibility {
		t.Fatalf("expected registry default credibility, got %d", created.SourceCredibility)
	}
}

func TestCreateComment_Validation(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	credibility := 11
	input := NewComment{
		SubjectID:         0,
		Content:           "   ",
		SourceType:        "Tertiary",
		SourceURL:         "not a url",
		SourceCredibility: &credibility,
	}
	_, err := svc.CreateComment(context.Background(), input)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	for _, field := range []string{"subject_id", "content", "source_type", "source_url", "source_credibility"} {
		if _, ok := validationErr.Fields[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, validationErr.Fields)
		}
	}

	if _, err := svc.CheckForDuplicates(context.Background(), 1, "?!.,", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected punctuation-only content to be rejected, got %v", err)
	}
	if len(store.comments) != 0 {
		t.Fatalf("expected no writes on validation failure")
	}
}

func TestCreateComment_StoreErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection refused")

	store := newMemoryStore(1)
	store.findErr = boom
	svc := newTestService(store)
	if _, err := svc.CreateComment(context.Background(), newInput(quoteOriginal)); !errors.Is(err, boom) {
		t.Fatalf("expected store error to propagate, got %v", err)
	}
	if len(store.comments) != 0 {
		t.Fatalf("expected no insert after failed lookup")
	}

	store = newMemoryStore(1)
	store.listErr = boom
	svc = newTestService(store)
	if _, err := svc.CheckForDuplicates(context.Background(), 1, quoteOriginal, ""); !errors.Is(err, boom) {
		t.Fatalf("expected candidate scan error to propagate, got %v", err)
	}
}

func TestCreateComment_ConstraintErrors(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	store.insertErr = db.ErrUniqueViolation
	svc := newTestService(store)
	if _, err := svc.CreateComment(context.Background(), newInput(quoteOriginal)); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	store = newMemoryStore()
	svc = newTestService(store)
	if _, err := svc.CreateComment(context.Background(), newInput(quoteOriginal)); !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got %v", err)
	}
}

func TestGetPrimaryComments_OrderAndLimit(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	for i := 0; i < 5; i++ {
		seedComment(store, quoteUnrelated+" "+string(rune('a'+i)), testNow.AddDate(0, 0, -i), nil, uuid.NewString())
	}

	primaries, err := svc.GetPrimaryComments(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("GetPrimaryComments() error = %v", err)
	}
	if len(primaries) != 3 {
		t.Fatalf("expected limit to apply, got %d", len(primaries))
	}
	for i := 1; i < len(primaries); i++ {
		if primaries[i].CommentDate.After(primaries[i-1].CommentDate) {
			t.Fatalf("expected comment_date descending order")
		}
		if primaries[i].Duplicates == nil {
			t.Fatalf("expected empty duplicates slice, got nil")
		}
	}
}

func TestListPrimaryComments_Pagination(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)
	for i := 0; i < 5; i++ {
		seedComment(store, quoteUnrelated+" "+string(rune('a'+i)), testNow.AddDate(0, 0, -i), nil, uuid.NewString())
	}

	subjectID := int64(1)
	page, err := svc.ListPrimaryComments(context.Background(), ListFilter{SubjectID: &subjectID, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("ListPrimaryComments() error = %v", err)
	}
	if page.Total != 5 || len(page.Items) != 2 || page.Page != 2 || page.PageSize != 2 {
		t.Fatalf("unexpected page: total=%d items=%d page=%d size=%d", page.Total, len(page.Items), page.Page, page.PageSize)
	}

	page, err = svc.ListPrimaryComments(context.Background(), ListFilter{Page: 9, PageSize: 2})
	if err != nil {
		t.Fatalf("ListPrimaryComments() error = %v", err)
	}
	if len(page.Items) != 0 || page.Total != 5 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}

	from := testNow
	to := testNow.AddDate(0, 0, -1)
	if _, err := svc.ListPrimaryComments(context.Background(), ListFilter{From: &from, To: &to}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected inverted range to be rejected, got %v", err)
	}
}

func TestModeration_NotFoundAndRelease(t *testing.T) {
	t.Parallel()

	store := newMemoryStore(1)
	svc := newTestService(store)

	if _, err := svc.SetVerified(context.Background(), 99, true); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
	if _, err := svc.DeleteComment(context.Background(), 99); !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}

	primary, err := svc.CreateComment(context.Background(), newInput(quoteOriginal))
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if _, err := svc.CreateComment(context.Background(), newInput(quoteTrimmed)); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	verified, err := svc.SetVerified(context.Background(), primary.CommentID, true)
	if err != nil || !verified.IsVerified {
		t.Fatalf("expected comment to be verified, got %+v err=%v", verified, err)
	}

	result, err := svc.DeleteComment(context.Background(), primary.CommentID)
	if err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}
	if result.Deleted != 1 || result.Released != 1 {
		t.Fatalf("unexpected delete result: %+v", result)
	}

	primaries, err := svc.GetPrimaryComments(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("GetPrimaryComments() error = %v", err)
	}
	if len(primaries) != 1 || primaries[0].Content != quoteTrimmed {
		t.Fatalf("expected released duplicate to become a primary, got %+v", primaries)
	}
}
