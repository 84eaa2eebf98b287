package service

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/models"
)

// VotingService keeps one vote per voter per investigation and the
// investigation's tally equal to the sum of its votes.
type VotingService struct {
	base
}

type VoteResult struct {
	InvestigationID uuid.UUID `json:"investigationId"`
	VoteType        int       `json:"voteType"`
	Votes           int       `json:"votes"`
	Changed         bool      `json:"changed"`
}

// CastVote records voteType (+1 or -1) for the caller. Repeating the same vote
// is a no-op; switching applies the difference to the tally.
func (v *VotingService) CastVote(ctx context.Context, s *auth.Session, investigationID uuid.UUID, voteType int) (*VoteResult, error) {
	if voteType != 1 && voteType != -1 {
		return nil, apperr.InvalidArgument("voteType must be 1 or -1")
	}

	var out *VoteResult
	err := v.tx(ctx, func(tx *gorm.DB) error {
		voter, err := requireActive(tx, s)
		if err != nil {
			return err
		}

		var inv models.Investigation
		if err := tx.Where("id = ?", investigationID).First(&inv).Error; err != nil {
			return apperr.FromDB(err, "investigation not found")
		}
		if _, err := visibleStory(tx, inv.StoryID, false); err != nil {
			return apperr.NotFound("investigation not found")
		}

		delta, err := v.upsertVote(tx, investigationID, voter.ID, voteType)
		if err != nil {
			return err
		}
		if delta != 0 {
			err := tx.Model(&models.Investigation{}).
				Where("id = ?", investigationID).
				UpdateColumn("votes", gorm.Expr("votes + ?", delta)).Error
			if err != nil {
				return apperr.FromDB(err, "failed to update tally")
			}
		}

		var current models.Investigation
		if err := tx.Select("id", "votes").Where("id = ?", investigationID).First(&current).Error; err != nil {
			return apperr.FromDB(err, "failed to read tally")
		}
		out = &VoteResult{
			InvestigationID: investigationID,
			VoteType:        voteType,
			Votes:           current.Votes,
			Changed:         delta != 0,
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "failed to cast vote")
	}
	return out, nil
}

// upsertVote inserts the vote or flips an existing one and returns the change
// to apply to the tally. Both paths are single conditional statements so a
// concurrent duplicate from the same voter cannot double count.
func (v *VotingService) upsertVote(tx *gorm.DB, investigationID, voterID uuid.UUID, voteType int) (int, error) {
	now := v.now()
	vote := &models.Vote{
		InvestigationID: investigationID,
		VoterID:         voterID,
		VoteType:        voteType,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "investigation_id"}, {Name: "voter_id"}},
		DoNothing: true,
	}).Create(vote)
	if res.Error != nil {
		return 0, apperr.FromDB(res.Error, "failed to record vote")
	}
	if res.RowsAffected == 1 {
		return voteType, nil
	}

	res = tx.Model(&models.Vote{}).
		Where("investigation_id = ? AND voter_id = ? AND vote_type <> ?", investigationID, voterID, voteType).
		Updates(map[string]any{"vote_type": voteType, "updated_at": now})
	if res.Error != nil {
		return 0, apperr.FromDB(res.Error, "failed to change vote")
	}
	if res.RowsAffected == 1 {
		return 2 * voteType, nil
	}
	return 0, nil
}
