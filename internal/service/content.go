package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/media"
	"github.com/sujalbistaa/setor7/internal/models"
)

// ContentService creates stories, investigations and comments for active users.
type ContentService struct {
	base
	store media.Store
}

type StoryInput struct {
	Title        string     `json:"title" validate:"required,max=200"`
	Content      string     `json:"content" validate:"required,max=20000"`
	Location     string     `json:"location" validate:"max=200"`
	DateOccurred *time.Time `json:"dateOccurred"`
	Category     string     `json:"category" validate:"required,category"`
}

// MediaFile is one uploaded file. Size must match the bytes Reader yields.
type MediaFile struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

type Media struct {
	Images []MediaFile
	Videos []MediaFile
}

type InvestigationInput struct {
	Theory       string   `json:"theory" validate:"required,max=5000"`
	Evidence     string   `json:"evidence" validate:"max=10000"`
	EvidenceURLs []string `json:"evidenceUrls" validate:"max=10,dive,url"`
}

type commentInput struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// CreateStory uploads the media one file at a time and inserts the story only
// after every upload succeeded. Blobs uploaded before a failure are removed.
func (c *ContentService) CreateStory(ctx context.Context, s *auth.Session, in StoryInput, m Media) (*StoryView, error) {
	author, err := requireActive(c.db.WithContext(ctx), s)
	if err != nil {
		return nil, err
	}

	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Location = strings.TrimSpace(in.Location)
	in.Category = strings.TrimSpace(in.Category)
	if err := c.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := checkMedia(m); err != nil {
		return nil, err
	}

	var uploaded []string
	cleanup := func() {
		// The request may already be canceled; removal must still run.
		dctx := context.WithoutCancel(ctx)
		for _, key := range uploaded {
			if derr := c.store.Delete(dctx, key); derr != nil && !errors.Is(derr, media.ErrNotFound) {
				slog.Warn("failed to remove orphaned media", "key", key, "err", derr)
			}
		}
	}

	upload := func(folder media.Folder, files []MediaFile) ([]string, error) {
		urls := make([]string, 0, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, apperr.UploadFailed(err, "upload of %s was canceled", f.Filename)
			}
			key := media.NewKey(folder, f.Filename, c.now())
			url, err := c.store.Put(ctx, key, f.Reader, f.Size, f.ContentType)
			if err != nil {
				return nil, apperr.UploadFailed(err, "failed to upload %s", f.Filename)
			}
			uploaded = append(uploaded, key)
			urls = append(urls, url)
		}
		return urls, nil
	}

	imageURLs, err := upload(media.FolderImages, m.Images)
	if err != nil {
		cleanup()
		return nil, err
	}
	videoURLs, err := upload(media.FolderVideos, m.Videos)
	if err != nil {
		cleanup()
		return nil, err
	}

	story := &models.Story{
		Title:        in.Title,
		Content:      in.Content,
		DateOccurred: in.DateOccurred,
		Category:     models.Category(in.Category),
		AuthorID:     author.ID,
		ImageURLs:    imageURLs,
		VideoURLs:    videoURLs,
		CreatedAt:    c.now(),
		UpdatedAt:    c.now(),
	}
	if in.Location != "" {
		story.Location = strPtr(in.Location)
	}

	err = c.tx(ctx, func(tx *gorm.DB) error {
		// The author may have been banned while the files were uploading.
		if _, err := requireActive(tx, s); err != nil {
			return err
		}
		return tx.Create(story).Error
	})
	if err != nil {
		cleanup()
		return nil, apperr.FromDB(err, "failed to create story")
	}

	slog.Info("story created", "story_id", story.ID, "author_id", author.ID,
		"images", len(imageURLs), "videos", len(videoURLs))
	return &StoryView{Story: *story, Author: summarize(author)}, nil
}

func checkMedia(m Media) error {
	if len(m.Images) > models.MaxStoryImages {
		return apperr.InvalidArgument("at most %d images per story", models.MaxStoryImages)
	}
	if len(m.Videos) > models.MaxStoryVideos {
		return apperr.InvalidArgument("at most %d videos per story", models.MaxStoryVideos)
	}
	check := func(files []MediaFile, prefix string) error {
		for _, f := range files {
			if f.Reader == nil || f.Size < 0 {
				return apperr.InvalidArgument("file %s is empty", f.Filename)
			}
			if !strings.HasPrefix(f.ContentType, prefix) {
				return apperr.InvalidArgument("file %s must be %s*, got %q", f.Filename, prefix, f.ContentType)
			}
		}
		return nil
	}
	if err := check(m.Images, "image/"); err != nil {
		return err
	}
	return check(m.Videos, "video/")
}

// CreateInvestigation attaches a theory to a visible story and bumps the
// story's investigation counter in the same transaction.
func (c *ContentService) CreateInvestigation(ctx context.Context, s *auth.Session, storyID uuid.UUID, in InvestigationInput) (*InvestigationView, error) {
	var out *InvestigationView
	err := c.tx(ctx, func(tx *gorm.DB) error {
		author, err := requireActive(tx, s)
		if err != nil {
			return err
		}
		if _, err := visibleStory(tx, storyID, false); err != nil {
			return err
		}

		in.Theory = strings.TrimSpace(in.Theory)
		in.Evidence = strings.TrimSpace(in.Evidence)
		if err := c.validate.Struct(in); err != nil {
			return err
		}

		inv := &models.Investigation{
			StoryID:        storyID,
			InvestigatorID: author.ID,
			Theory:         in.Theory,
			EvidenceURLs:   models.StringList(in.EvidenceURLs),
			CreatedAt:      c.now(),
		}
		if in.Evidence != "" {
			inv.Evidence = strPtr(in.Evidence)
		}
		if err := tx.Create(inv).Error; err != nil {
			return apperr.FromDB(err, "failed to create investigation")
		}
		if err := bumpCounter(tx, storyID, "investigation_count"); err != nil {
			return err
		}
		out = &InvestigationView{Investigation: *inv, Investigator: summarize(author)}
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "failed to create investigation")
	}
	return out, nil
}

// CreateComment appends a comment to a visible story.
func (c *ContentService) CreateComment(ctx context.Context, s *auth.Session, storyID uuid.UUID, content string) (*CommentView, error) {
	var out *CommentView
	err := c.tx(ctx, func(tx *gorm.DB) error {
		author, err := requireActive(tx, s)
		if err != nil {
			return err
		}
		if _, err := visibleStory(tx, storyID, false); err != nil {
			return err
		}

		in := commentInput{Content: strings.TrimSpace(content)}
		if err := c.validate.Struct(in); err != nil {
			return err
		}

		cm := &models.Comment{
			StoryID:   storyID,
			AuthorID:  author.ID,
			Content:   in.Content,
			CreatedAt: c.now(),
		}
		if err := tx.Create(cm).Error; err != nil {
			return apperr.FromDB(err, "failed to create comment")
		}
		if err := bumpCounter(tx, storyID, "comment_count"); err != nil {
			return err
		}
		out = &CommentView{Comment: *cm, Author: summarize(author)}
		return nil
	})
	if err != nil {
		return nil, apperr.FromDB(err, "failed to create comment")
	}
	return out, nil
}

func bumpCounter(tx *gorm.DB, storyID uuid.UUID, column string) error {
	err := tx.Model(&models.Story{}).
		Where("id = ?", storyID).
		UpdateColumn(column, gorm.Expr(fmt.Sprintf("%s + ?", column), 1)).Error
	return apperr.FromDB(err, "failed to update story counters")
}
