package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/models"
)

// ProfileService creates and reads per-account profiles.
type ProfileService struct {
	base
}

// Ensure returns the caller's profile, creating it on first use from the
// identity in the session.
func (p *ProfileService) Ensure(ctx context.Context, s *auth.Session) (*models.Profile, error) {
	if s == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}

	var out *models.Profile
	err := p.tx(ctx, func(tx *gorm.DB) error {
		existing, err := loadProfile(tx, s.UserID)
		if err == nil {
			out = existing
			return nil
		}
		if apperr.KindOf(err) != apperr.KindNotFound {
			return err
		}

		now := p.now()
		prof := &models.Profile{
			ID:        s.UserID,
			Email:     strings.ToLower(strings.TrimSpace(s.Email)),
			FullName:  s.FullName,
			AvatarURL: s.AvatarURL,
			Level:     1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		candidates := usernamesFor(s)
		for i, username := range candidates {
			prof.Username = username
			var res *gorm.DB
			// Savepoint, so a unique violation leaves tx usable for the next name.
			err := tx.Transaction(func(sp *gorm.DB) error {
				res = sp.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "id"}},
					DoNothing: true,
				}).Create(prof)
				return res.Error
			})
			if err != nil {
				if apperr.KindOf(apperr.FromDB(err, "")) != apperr.KindConflict {
					return apperr.FromDB(err, "failed to create profile")
				}
				if i < len(candidates)-1 {
					continue
				}
				return apperr.Conflict("username %q or email is already taken", username)
			}
			if res.RowsAffected == 0 {
				// Lost a race with a concurrent first request.
				out, err = loadProfile(tx, s.UserID)
				return err
			}
			break
		}
		slog.Info("profile created", "user_id", prof.ID, "username", prof.Username)
		out = prof
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "failed to load profile")
	}
	return out, nil
}

// Me returns the caller's profile with its badge.
func (p *ProfileService) Me(ctx context.Context, s *auth.Session) (*ProfileView, error) {
	prof, err := p.Ensure(ctx, s)
	if err != nil {
		return nil, err
	}
	return profileView(prof), nil
}

func (p *ProfileService) Get(ctx context.Context, id uuid.UUID) (*ProfileSummary, error) {
	prof, err := loadProfile(p.db.WithContext(ctx), id)
	if err != nil {
		return nil, err
	}
	return summarize(prof), nil
}

// usernamesFor lists the usernames to try, in order. A name the user chose is
// the only candidate. A name derived from the email gets a suffixed fallback
// because two providers can share a local part.
func usernamesFor(s *auth.Session) []string {
	if u := strings.TrimSpace(s.Username); u != "" {
		return []string{u}
	}
	suffix := s.UserID.String()[:8]
	if local, _, ok := strings.Cut(strings.TrimSpace(s.Email), "@"); ok && local != "" {
		return []string{local, local + "-" + suffix}
	}
	return []string{"user-" + suffix}
}
