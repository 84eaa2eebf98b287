package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Media limits per story.
const (
	MaxStoryImages = 5
	MaxStoryVideos = 2
)

// Profile is the per-account record. It is created from the identity provider
// and never deleted.
type Profile struct {
	ID        uuid.UUID  `gorm:"type:uuid;primarykey" json:"id"`
	Email     string     `gorm:"not null;uniqueIndex" json:"email"`
	Username  string     `gorm:"not null;uniqueIndex" json:"username"`
	FullName  string     `gorm:"not null;default:''" json:"fullName"`
	AvatarURL string     `gorm:"not null;default:''" json:"avatarUrl"`
	Bio       string     `gorm:"not null;default:''" json:"bio"`
	Points    int        `gorm:"not null;default:0" json:"points"`
	Level     int        `gorm:"not null;default:1" json:"level"`
	IsAdmin   bool       `gorm:"not null;default:false" json:"isAdmin"`
	IsBanned  bool       `gorm:"not null;default:false;index" json:"isBanned"`
	BannedAt  *time.Time `json:"bannedAt"`
	BannedBy  *uuid.UUID `gorm:"type:uuid" json:"bannedBy"`
	BanReason *string    `json:"banReason"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// CanAdminister reports whether the profile may perform moderation actions.
// A banned admin is not an admin.
func (p *Profile) CanAdminister() bool {
	return p.IsAdmin && !p.IsBanned
}

// BanConsistent reports whether the ban fields are all set or all cleared.
func (p *Profile) BanConsistent() bool {
	if p.IsBanned {
		return p.BannedAt != nil && p.BannedBy != nil && p.BanReason != nil
	}
	return p.BannedAt == nil && p.BannedBy == nil && p.BanReason == nil
}

// Story is a submitted report. Stories are soft-deleted by admins only.
type Story struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primarykey" json:"id"`
	Title              string     `gorm:"not null" json:"title"`
	Content            string     `gorm:"type:text;not null" json:"content"`
	Location           *string    `json:"location"`
	DateOccurred       *time.Time `json:"dateOccurred"`
	Category           Category   `gorm:"not null;index" json:"category"`
	AuthorID           uuid.UUID  `gorm:"type:uuid;not null;index" json:"authorId"`
	ImageURLs          StringList `gorm:"type:text;not null" json:"imageUrls"`
	VideoURLs          StringList `gorm:"type:text;not null" json:"videoUrls"`
	IsVerified         bool       `gorm:"not null;default:false" json:"isVerified"`
	CredibilityScore   int        `gorm:"not null;default:0" json:"credibilityScore"`
	InvestigationCount int        `gorm:"not null;default:0" json:"investigationCount"`
	CommentCount       int        `gorm:"not null;default:0" json:"commentCount"`
	IsDeleted          bool       `gorm:"not null;default:false;index" json:"isDeleted"`
	DeletedAt          *time.Time `json:"deletedAt,omitempty"`
	DeletedBy          *uuid.UUID `gorm:"type:uuid" json:"deletedBy,omitempty"`
	DeleteReason       *string    `json:"deleteReason,omitempty"`
	SearchText         string     `gorm:"type:text;not null;default:''" json:"-"`
	CreatedAt          time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// DeletionConsistent reports whether the deletion metadata is all set or all cleared.
func (s *Story) DeletionConsistent() bool {
	if s.IsDeleted {
		return s.DeletedAt != nil && s.DeletedBy != nil && s.DeleteReason != nil
	}
	return s.DeletedAt == nil && s.DeletedBy == nil && s.DeleteReason == nil
}

// Investigation is a theory attached to a story. Votes is the signed sum of
// its Vote rows and only changes through the voting service.
type Investigation struct {
	ID             uuid.UUID  `gorm:"type:uuid;primarykey" json:"id"`
	StoryID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"storyId"`
	InvestigatorID uuid.UUID  `gorm:"type:uuid;not null;index" json:"investigatorId"`
	Theory         string     `gorm:"type:text;not null" json:"theory"`
	Evidence       *string    `gorm:"type:text" json:"evidence"`
	EvidenceURLs   StringList `gorm:"type:text;not null" json:"evidenceUrls"`
	Votes          int        `gorm:"not null;default:0" json:"votes"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Comment is an append-only message on a story.
type Comment struct {
	ID        uuid.UUID `gorm:"type:uuid;primarykey" json:"id"`
	StoryID   uuid.UUID `gorm:"type:uuid;not null;index:idx_comment_story_created,priority:1" json:"storyId"`
	AuthorID  uuid.UUID `gorm:"type:uuid;not null;index" json:"authorId"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_comment_story_created,priority:2" json:"createdAt"`
}

// Vote is one signed vote by one voter on one investigation.
type Vote struct {
	ID              uuid.UUID `gorm:"type:uuid;primarykey" json:"id"`
	InvestigationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vote_investigation_voter,priority:1" json:"investigationId"`
	VoterID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_vote_investigation_voter,priority:2" json:"voterId"`
	VoteType        int       `gorm:"not null" json:"voteType"` // +1 or -1
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ModerationLogEntry is an immutable audit record of an admin action.
type ModerationLogEntry struct {
	ID            uuid.UUID  `gorm:"type:uuid;primarykey" json:"id"`
	AdminID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"adminId"`
	ActionType    ActionType `gorm:"not null" json:"actionType"`
	TargetUserID  *uuid.UUID `gorm:"type:uuid" json:"targetUserId"`
	TargetStoryID *uuid.UUID `gorm:"type:uuid" json:"targetStoryId"`
	Reason        *string    `json:"reason"`
	CreatedAt     time.Time  `gorm:"index" json:"createdAt"`
}

func (ModerationLogEntry) TableName() string { return "moderation_logs" }

// All lists every model for migrations.
func All() []any {
	return []any{
		&Profile{},
		&Story{},
		&Investigation{},
		&Comment{},
		&Vote{},
		&ModerationLogEntry{},
	}
}

func (p *Profile) BeforeCreate(*gorm.DB) error            { p.ID = ensureID(p.ID); return nil }
func (s *Story) BeforeCreate(*gorm.DB) error {
	s.ID = ensureID(s.ID)
	s.SearchText = s.SearchKey()
	return nil
}

func (i *Investigation) BeforeCreate(*gorm.DB) error      { i.ID = ensureID(i.ID); return nil }
func (c *Comment) BeforeCreate(*gorm.DB) error            { c.ID = ensureID(c.ID); return nil }
func (v *Vote) BeforeCreate(*gorm.DB) error               { v.ID = ensureID(v.ID); return nil }
func (e *ModerationLogEntry) BeforeCreate(*gorm.DB) error { e.ID = ensureID(e.ID); return nil }

// SearchKey is the lowercased text searched by story listings. SQLite's
// LOWER() folds ASCII only, so the folding is done here and stored.
func (s *Story) SearchKey() string {
	key := s.Title + "\n" + s.Content
	if s.Location != nil {
		key += "\n" + *s.Location
	}
	return strings.ToLower(key)
}

func ensureID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
