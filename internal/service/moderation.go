package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/models"
)

// UnbanReason is recorded on every unban_user log entry.
const UnbanReason = "user unbanned"

// ModerationService lets admins ban users, remove stories and promote admins.
// Each action and its log entry commit together or not at all.
type ModerationService struct {
	base
	auditor auditor
}

type banInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type deleteInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type promoteInput struct {
	Email string `json:"email" validate:"required,email"`
}

// apply checks the caller is an admin, runs action and appends the entry it
// returns, all in one transaction.
func (m *ModerationService) apply(ctx context.Context, s *auth.Session,
	action func(tx *gorm.DB, admin *models.Profile) (*models.ModerationLogEntry, error),
) (*models.ModerationLogEntry, error) {
	var entry *models.ModerationLogEntry
	err := m.tx(ctx, func(tx *gorm.DB) error {
		admin, err := requireAdmin(tx, s)
		if err != nil {
			return err
		}
		e, err := action(tx, admin)
		if err != nil {
			return err
		}
		e.AdminID = admin.ID
		e.CreatedAt = m.now()
		if err := m.auditor.append(ctx, tx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "moderation action failed")
	}
	return entry, nil
}

// BanUser bans target. Admins cannot ban themselves, and a user that is
// already banned is a Conflict.
func (m *ModerationService) BanUser(ctx context.Context, s *auth.Session, targetID uuid.UUID, reason string) (*models.ModerationLogEntry, error) {
	entry, err := m.apply(ctx, s, func(tx *gorm.DB, admin *models.Profile) (*models.ModerationLogEntry, error) {
		in := banInput{Reason: strings.TrimSpace(reason)}
		if err := m.validate.Struct(in); err != nil {
			return nil, err
		}
		if targetID == admin.ID {
			return nil, apperr.InvalidArgument("admins cannot ban themselves")
		}

		res := tx.Model(&models.Profile{}).
			Where("id = ? AND is_banned = ?", targetID, false).
			Updates(map[string]any{
				"is_banned":  true,
				"banned_at":  m.now(),
				"banned_by":  admin.ID,
				"ban_reason": in.Reason,
			})
		if res.Error != nil {
			return nil, apperr.FromDB(res.Error, "failed to ban user")
		}
		if res.RowsAffected == 0 {
			if _, err := loadProfile(tx, targetID); err != nil {
				return nil, err
			}
			return nil, apperr.Conflict("user is already banned")
		}
		return &models.ModerationLogEntry{
			ActionType:   models.ActionBanUser,
			TargetUserID: &targetID,
			Reason:       strPtr(in.Reason),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user banned", "admin_id", entry.AdminID, "target_user_id", targetID)
	return entry, nil
}

// UnbanUser clears every ban field of target.
func (m *ModerationService) UnbanUser(ctx context.Context, s *auth.Session, targetID uuid.UUID) (*models.ModerationLogEntry, error) {
	entry, err := m.apply(ctx, s, func(tx *gorm.DB, admin *models.Profile) (*models.ModerationLogEntry, error) {
		res := tx.Model(&models.Profile{}).
			Where("id = ? AND is_banned = ?", targetID, true).
			Updates(map[string]any{
				"is_banned":  false,
				"banned_at":  nil,
				"banned_by":  nil,
				"ban_reason": nil,
			})
		if res.Error != nil {
			return nil, apperr.FromDB(res.Error, "failed to unban user")
		}
		if res.RowsAffected == 0 {
			if _, err := loadProfile(tx, targetID); err != nil {
				return nil, err
			}
			return nil, apperr.Conflict("user is not banned")
		}
		return &models.ModerationLogEntry{
			ActionType:   models.ActionUnbanUser,
			TargetUserID: &targetID,
			Reason:       strPtr(UnbanReason),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user unbanned", "admin_id", entry.AdminID, "target_user_id", targetID)
	return entry, nil
}

// DeleteStory soft-deletes a story. Deleting twice is InvalidArgument.
func (m *ModerationService) DeleteStory(ctx context.Context, s *auth.Session, storyID uuid.UUID, reason string) (*models.ModerationLogEntry, error) {
	entry, err := m.apply(ctx, s, func(tx *gorm.DB, admin *models.Profile) (*models.ModerationLogEntry, error) {
		in := deleteInput{Reason: strings.TrimSpace(reason)}
		if err := m.validate.Struct(in); err != nil {
			return nil, err
		}

		res := tx.Model(&models.Story{}).
			Where("id = ? AND is_deleted = ?", storyID, false).
			Updates(map[string]any{
				"is_deleted":    true,
				"deleted_at":    m.now(),
				"deleted_by":    admin.ID,
				"delete_reason": in.Reason,
			})
		if res.Error != nil {
			return nil, apperr.FromDB(res.Error, "failed to delete story")
		}
		if res.RowsAffected == 0 {
			if _, err := visibleStory(tx, storyID, true); err != nil {
				return nil, err
			}
			return nil, apperr.InvalidArgument("story is already deleted")
		}
		return &models.ModerationLogEntry{
			ActionType:    models.ActionDeleteStory,
			TargetStoryID: &storyID,
			Reason:        strPtr(in.Reason),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("story deleted", "admin_id", entry.AdminID, "story_id", storyID)
	return entry, nil
}

// PromoteToAdmin grants admin rights to the account registered with email.
// Promoting an admin again succeeds and is logged again.
func (m *ModerationService) PromoteToAdmin(ctx context.Context, s *auth.Session, email string) (*models.ModerationLogEntry, error) {
	entry, err := m.apply(ctx, s, func(tx *gorm.DB, admin *models.Profile) (*models.ModerationLogEntry, error) {
		in := promoteInput{Email: strings.TrimSpace(email)}
		if err := m.validate.Struct(in); err != nil {
			return nil, err
		}
		target, err := promote(tx, in.Email)
		if err != nil {
			return nil, err
		}
		return &models.ModerationLogEntry{
			ActionType:   models.ActionPromoteAdmin,
			TargetUserID: &target.ID,
			Reason:       strPtr(fmt.Sprintf("promoted user with email: %s", in.Email)),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("user promoted to admin", "admin_id", entry.AdminID, "target_user_id", *entry.TargetUserID)
	return entry, nil
}

// BootstrapAdmin promotes the first administrator. It only succeeds while no
// admin exists; the new admin is recorded as the actor.
func (m *ModerationService) BootstrapAdmin(ctx context.Context, email string) (*models.ModerationLogEntry, error) {
	in := promoteInput{Email: strings.TrimSpace(email)}
	if err := m.validate.Struct(in); err != nil {
		return nil, err
	}

	var entry *models.ModerationLogEntry
	err := m.tx(ctx, func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&models.Profile{}).Where("is_admin = ?", true).Count(&admins).Error; err != nil {
			return apperr.FromDB(err, "failed to count admins")
		}
		if admins > 0 {
			return apperr.Conflict("an administrator already exists")
		}
		target, err := promote(tx, in.Email)
		if err != nil {
			return err
		}
		e := &models.ModerationLogEntry{
			AdminID:      target.ID,
			ActionType:   models.ActionPromoteAdmin,
			TargetUserID: &target.ID,
			Reason:       strPtr(fmt.Sprintf("first administrator: %s", in.Email)),
			CreatedAt:    m.now(),
		}
		if err := m.auditor.append(ctx, tx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "bootstrap failed")
	}
	slog.Info("first administrator promoted", "admin_id", entry.AdminID)
	return entry, nil
}

func promote(tx *gorm.DB, email string) (*models.Profile, error) {
	var target models.Profile
	if err := tx.Where("LOWER(email) = ?", strings.ToLower(email)).First(&target).Error; err != nil {
		return nil, apperr.FromDB(err, fmt.Sprintf("no account registered with email %s", email))
	}
	if err := tx.Model(&models.Profile{}).Where("id = ?", target.ID).Update("is_admin", true).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to promote user")
	}
	target.IsAdmin = true
	return &target, nil
}
