package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/models"
)

const (
	DefaultLogLimit   = 50
	MaxLogLimit       = 50
	DefaultStoryLimit = 100
	MaxStoryLimit     = 200
)

// QueryService serves the read side. Related profiles are fetched in a second
// query and attached as summaries.
type QueryService struct {
	base
}

type StoryFilter struct {
	Category string
	Search   string
	// IncludeDeleted is honoured for admins only.
	IncludeDeleted bool
	Limit          int
	Offset         int
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (q *QueryService) ListStories(ctx context.Context, s *auth.Session, f StoryFilter) ([]StoryView, error) {
	db := q.db.WithContext(ctx)

	query := db.Model(&models.Story{})
	if !f.IncludeDeleted || !isAdmin(db, s) {
		query = query.Where("is_deleted = ?", false)
	}
	if c := strings.TrimSpace(f.Category); c != "" {
		if !models.Category(c).Valid() {
			return nil, apperr.InvalidArgument("unknown category %q", c)
		}
		query = query.Where("category = ?", c)
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		query = query.Where(`search_text LIKE ? ESCAPE '\'`, pattern)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultStoryLimit
	}
	if limit > MaxStoryLimit {
		limit = MaxStoryLimit
	}
	offset := max(f.Offset, 0)

	var stories []models.Story
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&stories).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to list stories")
	}

	ids := make([]uuid.UUID, len(stories))
	for i := range stories {
		ids[i] = stories[i].AuthorID
	}
	authors, err := profilesByID(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]StoryView, len(stories))
	for i := range stories {
		out[i] = StoryView{Story: stories[i], Author: summarize(authors[stories[i].AuthorID])}
	}
	return out, nil
}

// GetStory returns a story. Deleted stories are only visible to admins.
func (q *QueryService) GetStory(ctx context.Context, s *auth.Session, id uuid.UUID) (*StoryView, error) {
	db := q.db.WithContext(ctx)
	st, err := visibleStory(db, id, isAdmin(db, s))
	if err != nil {
		return nil, err
	}
	authors, err := profilesByID(db, []uuid.UUID{st.AuthorID})
	if err != nil {
		return nil, err
	}
	return &StoryView{Story: *st, Author: summarize(authors[st.AuthorID])}, nil
}

func (q *QueryService) ListInvestigations(ctx context.Context, storyID uuid.UUID) ([]InvestigationView, error) {
	db := q.db.WithContext(ctx)
	if _, err := visibleStory(db, storyID, false); err != nil {
		return nil, err
	}

	var invs []models.Investigation
	err := db.Where("story_id = ?", storyID).
		Order("votes desc").Order("created_at asc").
		Find(&invs).Error
	if err != nil {
		return nil, apperr.FromDB(err, "failed to list investigations")
	}

	ids := make([]uuid.UUID, len(invs))
	for i := range invs {
		ids[i] = invs[i].InvestigatorID
	}
	people, err := profilesByID(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]InvestigationView, len(invs))
	for i := range invs {
		out[i] = InvestigationView{Investigation: invs[i], Investigator: summarize(people[invs[i].InvestigatorID])}
	}
	return out, nil
}

func (q *QueryService) ListComments(ctx context.Context, storyID uuid.UUID) ([]CommentView, error) {
	db := q.db.WithContext(ctx)
	if _, err := visibleStory(db, storyID, false); err != nil {
		return nil, err
	}

	var comments []models.Comment
	if err := db.Where("story_id = ?", storyID).Order("created_at asc").Find(&comments).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to list comments")
	}

	ids := make([]uuid.UUID, len(comments))
	for i := range comments {
		ids[i] = comments[i].AuthorID
	}
	authors, err := profilesByID(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]CommentView, len(comments))
	for i := range comments {
		out[i] = CommentView{Comment: comments[i], Author: summarize(authors[comments[i].AuthorID])}
	}
	return out, nil
}

// ListModerationLog returns the most recent log entries for an admin caller.
func (q *QueryService) ListModerationLog(ctx context.Context, s *auth.Session, limit int) ([]ModerationLogView, error) {
	db := q.db.WithContext(ctx)
	if _, err := requireAdmin(db, s); err != nil {
		return nil, err
	}
	return q.ModerationLog(ctx, limit)
}

// ModerationLog lists entries without an authorization check. It backs the
// operator CLI, which runs with direct database access.
func (q *QueryService) ModerationLog(ctx context.Context, limit int) ([]ModerationLogView, error) {
	db := q.db.WithContext(ctx)
	if limit <= 0 || limit > MaxLogLimit {
		limit = DefaultLogLimit
	}

	var entries []models.ModerationLogEntry
	if err := db.Order("created_at desc").Limit(limit).Find(&entries).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to list moderation log")
	}

	ids := make([]uuid.UUID, 0, 2*len(entries))
	for _, e := range entries {
		ids = append(ids, e.AdminID)
		if e.TargetUserID != nil {
			ids = append(ids, *e.TargetUserID)
		}
	}
	people, err := profilesByID(db, ids)
	if err != nil {
		return nil, err
	}

	out := make([]ModerationLogView, len(entries))
	for i, e := range entries {
		out[i] = ModerationLogView{ModerationLogEntry: e, Admin: summarize(people[e.AdminID])}
		if e.TargetUserID != nil {
			out[i].TargetUser = summarize(people[*e.TargetUserID])
		}
	}
	return out, nil
}

// ListProfiles returns every profile, newest first. Admin only.
func (q *QueryService) ListProfiles(ctx context.Context, s *auth.Session) ([]ProfileView, error) {
	db := q.db.WithContext(ctx)
	if _, err := requireAdmin(db, s); err != nil {
		return nil, err
	}

	var profiles []models.Profile
	if err := db.Order("created_at desc").Find(&profiles).Error; err != nil {
		return nil, apperr.FromDB(err, "failed to list profiles")
	}
	out := make([]ProfileView, len(profiles))
	for i := range profiles {
		out[i] = *profileView(&profiles[i])
	}
	return out, nil
}
