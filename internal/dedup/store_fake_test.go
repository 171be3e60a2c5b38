package dedup

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"horse.fit/mkquotes/internal/db"
)

// memoryStore mirrors the ordering and constraint behavior of the Postgres
// store closely enough for service tests.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	comments []db.Comment
	events   []db.DedupEvent
	subjects map[int64]struct{}

	findErr   error
	listErr   error
	insertErr error
	cutoffs   []time.Time
}

func newMemoryStore(subjectIDs ...int64) *memoryStore {
	subjects := make(map[int64]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		subjects[id] = struct{}{}
	}
	return &memoryStore{subjects: subjects}
}

// seed stores a comment as-is, bypassing the service.
func (m *memoryStore) seed(c db.Comment) db.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.CommentID = m.nextID
	m.comments = append(m.comments, c)
	return c
}

func (m *memoryStore) FindByContentHash(_ context.Context, subjectID int64, contentHash string) (*db.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}

	var best *db.Comment
	for i := range m.comments {
		c := m.comments[i]
		if c.SubjectID != subjectID || c.ContentHash != contentHash {
			continue
		}
		if best == nil || c.CommentDate.Before(best.CommentDate) ||
			(c.CommentDate.Equal(best.CommentDate) && c.CommentID < best.CommentID) {
			copied := c
			best = &copied
		}
	}
	if best == nil {
		return nil, db.ErrNoRows
	}
	return best, nil
}

func (m *memoryStore) ListCandidatesSince(_ context.Context, subjectID int64, cutoff time.Time) ([]db.DedupCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cutoffs = append(m.cutoffs, cutoff)
	if m.listErr != nil {
		return nil, m.listErr
	}

	out := make([]db.DedupCandidate, 0, len(m.comments))
	for _, c := range m.comments {
		if c.SubjectID != subjectID || c.CommentDate.Before(cutoff) {
			continue
		}
		out = append(out, db.DedupCandidate{
			CommentID:         c.CommentID,
			DuplicateOf:       c.DuplicateOf,
			DuplicateGroup:    c.DuplicateGroup,
			NormalizedContent: c.NormalizedContent,
			CommentDate:       c.CommentDate,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CommentDate.Equal(out[j].CommentDate) {
			return out[i].CommentDate.After(out[j].CommentDate)
		}
		return out[i].CommentID > out[j].CommentID
	})
	return out, nil
}

func (m *memoryStore) InsertComment(_ context.Context, comment *db.Comment, event db.DedupEvent) (*db.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return nil, m.insertErr
	}
	if _, ok := m.subjects[comment.SubjectID]; !ok {
		return nil, db.ErrForeignKeyViolation
	}
	if comment.DuplicateOf == nil {
		for _, c := range m.comments {
			if c.SubjectID == comment.SubjectID && c.ContentHash == comment.ContentHash && c.DuplicateOf == nil {
				return nil, db.ErrUniqueViolation
			}
		}
	}

	m.nextID++
	stored := *comment
	stored.CommentID = m.nextID
	stored.CreatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	stored.UpdatedAt = stored.CreatedAt
	m.comments = append(m.comments, stored)

	event.CommentID = stored.CommentID
	m.events = append(m.events, event)
	return &stored, nil
}

func (m *memoryStore) SetCommentVerified(_ context.Context, commentID int64, verified bool, now time.Time) (*db.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.comments {
		if m.comments[i].CommentID == commentID {
			m.comments[i].IsVerified = verified
			m.comments[i].UpdatedAt = now
			copied := m.comments[i]
			return &copied, nil
		}
	}
	return nil, db.ErrNoRows
}

func (m *memoryStore) DeleteComment(_ context.Context, commentID int64, now time.Time) (db.DeleteCommentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.comments {
		if m.comments[i].CommentID == commentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return db.DeleteCommentResult{}, db.ErrNoRows
	}

	var result db.DeleteCommentResult
	if m.comments[idx].DuplicateOf == nil {
		// Same election as the Postgres store: per content hash the earliest
		// dependent (comment_date, then comment_id) becomes the new primary.
		heirs := make(map[string]int)
		for i := range m.comments {
			c := m.comments[i]
			if c.DuplicateOf == nil || *c.DuplicateOf != commentID {
				continue
			}
			best, ok := heirs[c.ContentHash]
			if !ok || c.CommentDate.Before(m.comments[best].CommentDate) ||
				(c.CommentDate.Equal(m.comments[best].CommentDate) && c.CommentID < m.comments[best].CommentID) {
				heirs[c.ContentHash] = i
			}
		}

		groups := make(map[string]string, len(heirs))
		for hash := range heirs {
			groups[hash] = uuid.NewString()
		}
		for i := range m.comments {
			c := &m.comments[i]
			if c.DuplicateOf == nil || *c.DuplicateOf != commentID {
				continue
			}
			heir := heirs[c.ContentHash]
			c.DuplicateGroup = groups[c.ContentHash]
			c.UpdatedAt = now
			if i == heir {
				c.DuplicateOf = nil
				result.Released++
				continue
			}
			heirID := m.comments[heir].CommentID
			c.DuplicateOf = &heirID
			result.Repointed++
		}
	}

	m.comments = append(m.comments[:idx], m.comments[idx+1:]...)
	result.Deleted = 1
	return result, nil
}

func (m *memoryStore) filtered(filter db.PrimaryFilter) []db.Comment {
	out := make([]db.Comment, 0, len(m.comments))
	for _, c := range m.comments {
		if c.DuplicateOf != nil {
			continue
		}
		if filter.SubjectID != nil && c.SubjectID != *filter.SubjectID {
			continue
		}
		if filter.Platform != "" && c.SourcePlatform != filter.Platform {
			continue
		}
		if filter.Verified != nil && c.IsVerified != *filter.Verified {
			continue
		}
		if filter.From != nil && c.CommentDate.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !c.CommentDate.Before(*filter.To) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CommentDate.Equal(out[j].CommentDate) {
			return out[i].CommentDate.After(out[j].CommentDate)
		}
		return out[i].CommentID > out[j].CommentID
	})
	return out
}

func (m *memoryStore) ListPrimaries(_ context.Context, filter db.PrimaryFilter) ([]db.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.filtered(filter)
	if filter.Offset >= len(rows) {
		return []db.Comment{}, nil
	}
	rows = rows[filter.Offset:]
	if len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (m *memoryStore) CountPrimaries(_ context.Context, filter db.PrimaryFilter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.filtered(filter))), nil
}

func (m *memoryStore) ListDuplicatesOf(_ context.Context, primaryIDs []int64) (map[int64][]db.DuplicateRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[int64]struct{}, len(primaryIDs))
	for _, id := range primaryIDs {
		wanted[id] = struct{}{}
	}
	out := make(map[int64][]db.DuplicateRef, len(primaryIDs))
	for _, c := range m.comments {
		if c.DuplicateOf == nil {
			continue
		}
		if _, ok := wanted[*c.DuplicateOf]; !ok {
			continue
		}
		out[*c.DuplicateOf] = append(out[*c.DuplicateOf], db.DuplicateRef{
			CommentID:      c.CommentID,
			DuplicateOf:    *c.DuplicateOf,
			SourceURL:      c.SourceURL,
			SourcePlatform: c.SourcePlatform,
			SourceName:     c.SourceName,
			CommentDate:    c.CommentDate,
		})
	}
	for id := range out {
		refs := out[id]
		sort.SliceStable(refs, func(i, j int) bool {
			return refs[i].CommentDate.Before(refs[j].CommentDate)
		})
	}
	return out, nil
}

func (m *memoryStore) eventFor(commentID int64) (db.DedupEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.CommentID == commentID {
			return e, true
		}
	}
	return db.DedupEvent{}, false
}
