package service

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/models"
)

// ProfileSummary is the public slice of a profile shown next to content.
type ProfileSummary struct {
	ID        uuid.UUID    `json:"id"`
	Username  string       `json:"username"`
	AvatarURL string       `json:"avatarUrl"`
	Level     int          `json:"level"`
	Badge     models.Badge `json:"badge"`
	IsBanned  bool         `json:"isBanned"`
}

func summarize(p *models.Profile) *ProfileSummary {
	if p == nil {
		return nil
	}
	return &ProfileSummary{
		ID:        p.ID,
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
		Level:     p.Level,
		Badge:     models.BadgeFor(p.Level),
		IsBanned:  p.IsBanned,
	}
}

type ProfileView struct {
	models.Profile
	Badge models.Badge `json:"badge"`
}

func profileView(p *models.Profile) *ProfileView {
	return &ProfileView{Profile: *p, Badge: models.BadgeFor(p.Level)}
}

type StoryView struct {
	models.Story
	Author *ProfileSummary `json:"author"`
}

type InvestigationView struct {
	models.Investigation
	Investigator *ProfileSummary `json:"investigator"`
}

type CommentView struct {
	models.Comment
	Author *ProfileSummary `json:"author"`
}

type ModerationLogView struct {
	models.ModerationLogEntry
	Admin      *ProfileSummary `json:"admin"`
	TargetUser *ProfileSummary `json:"targetUser,omitempty"`
}

// profilesByID resolves a set of profile ids in one query. Missing ids are
// absent from the result.
func profilesByID(tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.Profile, error) {
	out := make(map[uuid.UUID]*models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	var profiles []models.Profile
	if err := tx.Where("id IN ?", unique).Find(&profiles).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to load profiles")
	}
	for i := range profiles {
		out[profiles[i].ID] = &profiles[i]
	}
	return out, nil
}
