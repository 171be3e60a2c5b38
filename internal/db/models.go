package db

import (
	"time"

	"gorm.io/datatypes"
)

// Subject maps advocacy.subjects. A subject is the public figure a comment is
// attributed to.
type Subject struct {
	SubjectID   int64     `gorm:"column:subject_id;primaryKey;autoIncrement" json:"subject_id"`
	SubjectUUID string    `gorm:"column:subject_uuid;type:uuid;not null;default:gen_random_uuid();unique" json:"subject_uuid"`
	DisplayName string    `gorm:"column:display_name;type:text;not null" json:"display_name"`
	Faction     *string   `gorm:"column:faction;type:text" json:"faction,omitempty"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()" json:"created_at"`
}

func (Subject) TableName() string { return "advocacy.subjects" }

// Comment maps advocacy.comments.
type Comment struct {
	CommentID         int64                       `gorm:"column:comment_id;primaryKey;autoIncrement" json:"comment_id"`
	CommentUUID       string                      `gorm:"column:comment_uuid;type:uuid;not null;default:gen_random_uuid();unique" json:"comment_uuid"`
	SubjectID         int64                       `gorm:"column:subject_id;type:bigint;not null;index:idx_comments_subject_date,priority:1;index:idx_comments_subject_hash,priority:1" json:"subject_id"`
	Content           string                      `gorm:"column:content;type:text;not null" json:"content"`
	NormalizedContent string                      `gorm:"column:normalized_content;type:text;not null" json:"-"`
	ContentHash       string                      `gorm:"column:content_hash;type:char(64);not null;index:idx_comments_subject_hash,priority:2" json:"content_hash"`
	SourceURL         string                      `gorm:"column:source_url;type:text;not null;default:''" json:"source_url"`
	SourcePlatform    string                      `gorm:"column:source_platform;type:text;not null" json:"source_platform"`
	SourceType        string                      `gorm:"column:source_type;type:advocacy.source_type;not null" json:"source_type"`
	SourceName        *string                     `gorm:"column:source_name;type:text" json:"source_name,omitempty"`
	SourceCredibility int                         `gorm:"column:source_credibility;type:smallint;not null" json:"source_credibility"`
	CommentDate       time.Time                   `gorm:"column:comment_date;type:timestamptz;not null;index:idx_comments_subject_date,priority:2" json:"comment_date"`
	Keywords          datatypes.JSONSlice[string] `gorm:"column:keywords;type:jsonb;not null;default:'[]'" json:"keywords"`
	Language          string                      `gorm:"column:language;type:text;not null;default:''" json:"language,omitempty"`
	IsVerified        bool                        `gorm:"column:is_verified;type:boolean;not null;default:false" json:"is_verified"`
	DuplicateOf       *int64                      `gorm:"column:duplicate_of;type:bigint;index" json:"duplicate_of"`
	DuplicateGroup    string                      `gorm:"column:duplicate_group;type:uuid;not null;index" json:"duplicate_group"`
	CreatedAt         time.Time                   `gorm:"column:created_at;type:timestamptz;not null;default:now()" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;type:timestamptz;not null;default:now()" json:"updated_at"`
}

func (Comment) TableName() string { return "advocacy.comments" }

// IsPrimary reports whether the comment is the canonical member of its group.
func (c *Comment) IsPrimary() bool {
	return c != nil && c.DuplicateOf == nil
}

// DedupEvent maps advocacy.dedup_events.
type DedupEvent struct {
	DedupEventID    int64     `gorm:"column:dedup_event_id;primaryKey;autoIncrement"`
	DedupEventUUID  string    `gorm:"column:dedup_event_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	CommentID       int64     `gorm:"column:comment_id;type:bigint;not null;unique"`
	Decision        string    `gorm:"column:decision;type:advocacy.dedup_decision;not null"`
	ChosenPrimaryID *int64    `gorm:"column:chosen_primary_id;type:bigint"`
	BestScore       *float64  `gorm:"column:best_score;type:double precision"`
	CandidateCount  int       `gorm:"column:candidate_count;type:integer;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupEvent) TableName() string { return "advocacy.dedup_events" }

func autoMigrateModels() []any {
	return []any{
		&Subject{},
		&Comment{},
		&DedupEvent{},
	}
}
