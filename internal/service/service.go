// Package service implements the moderation, content, voting and read-side
// operations on top of gorm. Every operation takes the caller's session
// explicitly and reports failures as *apperr.Error.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/media"
	"github.com/sujalbistaa/setor7/internal/models"
)

// Options tune service behaviour. Zero values fall back to defaults.
type Options struct {
	AuditRetryTimeout  time.Duration
	AuditRetryInterval time.Duration
	Now                func() time.Time
}

// Services bundles every service sharing one database and blob store.
type Services struct {
	Profiles   *ProfileService
	Moderation *ModerationService
	Content    *ContentService
	Voting     *VotingService
	Queries    *QueryService
}

func New(db *gorm.DB, store media.Store, opts Options) *Services {
	if opts.AuditRetryTimeout <= 0 {
		opts.AuditRetryTimeout = 5 * time.Second
	}
	if opts.AuditRetryInterval <= 0 {
		opts.AuditRetryInterval = 100 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := base{db: db, now: opts.Now, validate: newValidator()}
	return &Services{
		Profiles: &ProfileService{base: b},
		Moderation: &ModerationService{
			base:    b,
			auditor: auditor{timeout: opts.AuditRetryTimeout, interval: opts.AuditRetryInterval},
		},
		Content: &ContentService{base: b, store: store},
		Voting:  &VotingService{base: b},
		Queries: &QueryService{base: b},
	}
}

type base struct {
	db       *gorm.DB
	now      func() time.Time
	validate *validator
}

// tx runs fn in a transaction bound to ctx.
func (b base) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.db.WithContext(ctx).Transaction(fn)
}

func loadProfile(tx *gorm.DB, id uuid.UUID) (*models.Profile, error) {
	var p models.Profile
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		return nil, apperr.FromDB(err, "profile not found")
	}
	return &p, nil
}

// requireAdmin loads the caller and fails with Forbidden unless it is an
// active admin.
func requireAdmin(tx *gorm.DB, s *auth.Session) (*models.Profile, error) {
	if s == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	p, err := loadProfile(tx, s.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Forbidden("Administrator access required")
		}
		return nil, err
	}
	if !p.CanAdminister() {
		return nil, apperr.Forbidden("Administrator access required")
	}
	return p, nil
}

// requireActive loads the caller and fails with Forbidden if it is banned or
// has no profile yet.
func requireActive(tx *gorm.DB, s *auth.Session) (*models.Profile, error) {
	if s == nil {
		return nil, apperr.Unauthenticated("Authentication required")
	}
	p, err := loadProfile(tx, s.UserID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Forbidden("Profile not found for this account")
		}
		return nil, err
	}
	if p.IsBanned {
		return nil, apperr.Forbidden("Your account is banned")
	}
	return p, nil
}

// isAdmin reports whether the session belongs to an active admin. Lookup
// failures count as not admin.
func isAdmin(tx *gorm.DB, s *auth.Session) bool {
	if s == nil {
		return false
	}
	p, err := loadProfile(tx, s.UserID)
	return err == nil && p.CanAdminister()
}

// visibleStory loads a story that is not deleted, or NotFound.
func visibleStory(tx *gorm.DB, id uuid.UUID, includeDeleted bool) (*models.Story, error) {
	var st models.Story
	if err := tx.Where("id = ?", id).First(&st).Error; err != nil {
		return nil, apperr.FromDB(err, "story not found")
	}
	if st.IsDeleted && !includeDeleted {
		return nil, apperr.NotFound("story not found")
	}
	return &st, nil
}

func strPtr(s string) *string { return &s }
