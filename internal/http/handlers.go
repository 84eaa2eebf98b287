package http

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/service"
)

// --- Structs for request binding ---
type ReasonInput struct {
	Reason string `json:"reason"`
}
type CommentInput struct {
	Content string `json:"content"`
}
type VoteInput struct {
	VoteType int `json:"voteType"`
}
type PromoteInput struct {
	Email string `json:"email"`
}

// --- Handlers ---
type Env struct {
	DB  *gorm.DB
	Svc *service.Services
}

func (e *Env) Health(c *gin.Context) {
	sqlDB, err := e.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		slog.Error("health check failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (e *Env) GetSession(c *gin.Context) {
	s, _ := auth.FromContext(c)
	c.JSON(http.StatusOK, s)
}

// SignOut only acknowledges; tokens are revoked by the identity service.
func (e *Env) SignOut(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

func (e *Env) GetMe(c *gin.Context) {
	s, _ := auth.FromContext(c)
	me, err := e.Svc.Profiles.Me(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, me)
}

func (e *Env) ListStories(c *gin.Context) {
	s, _ := auth.FromContext(c)
	filter := service.StoryFilter{
		Category: c.Query("category"),
		Search:   c.Query("q"),
	}
	var err error
	if v := c.Query("deleted"); v != "" {
		if filter.IncludeDeleted, err = strconv.ParseBool(v); err != nil {
			respondError(c, apperr.InvalidArgument("deleted must be true or false"))
			return
		}
	}
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		respondError(c, err)
		return
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		respondError(c, err)
		return
	}

	stories, err := e.Svc.Queries.ListStories(c.Request.Context(), s, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stories)
}

func (e *Env) GetStory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s, _ := auth.FromContext(c)
	story, err := e.Svc.Queries.GetStory(c.Request.Context(), s, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

// CreateStory accepts multipart/form-data with the story fields and up to
// five "images" and two "videos" file parts.
func (e *Env) CreateStory(c *gin.Context) {
	s, _ := auth.FromContext(c)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.InvalidArgument("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		respondError(c, apperr.InvalidArgument("expected multipart form: %v", err))
		return
	}
	defer func() { _ = form.RemoveAll() }()

	in := service.StoryInput{
		Title:    c.PostForm("title"),
		Content:  c.PostForm("content"),
		Location: c.PostForm("location"),
		Category: c.PostForm("category"),
	}
	if v := strings.TrimSpace(c.PostForm("dateOccurred")); v != "" {
		t, err := parseDate(v)
		if err != nil {
			respondError(c, err)
			return
		}
		in.DateOccurred = &t
	}

	var m service.Media
	var opened []multipart.File
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for field, dst := range map[string]*[]service.MediaFile{"images": &m.Images, "videos": &m.Videos} {
		for _, fh := range form.File[field] {
			f, err := fh.Open()
			if err != nil {
				respondError(c, apperr.InvalidArgument("cannot read %s: %v", fh.Filename, err))
				return
			}
			opened = append(opened, f)
			*dst = append(*dst, service.MediaFile{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Reader:      f,
			})
		}
	}

	story, err := e.Svc.Content.CreateStory(c.Request.Context(), s, in, m)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (e *Env) ListInvestigations(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	invs, err := e.Svc.Queries.ListInvestigations(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, invs)
}

func (e *Env) CreateInvestigation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input service.InvestigationInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	inv, err := e.Svc.Content.CreateInvestigation(c.Request.Context(), s, id, input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, inv)
}

func (e *Env) ListComments(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	comments, err := e.Svc.Queries.ListComments(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (e *Env) CreateComment(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input CommentInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	comment, err := e.Svc.Content.CreateComment(c.Request.Context(), s, id, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (e *Env) VoteOnInvestigation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input VoteInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	res, err := e.Svc.Voting.CastVote(c.Request.Context(), s, id, input.VoteType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (e *Env) ListProfiles(c *gin.Context) {
	s, _ := auth.FromContext(c)
	profiles, err := e.Svc.Queries.ListProfiles(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profiles)
}

func (e *Env) ListModerationLog(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	s, _ := auth.FromContext(c)
	logs, err := e.Svc.Queries.ListModerationLog(c.Request.Context(), s, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (e *Env) BanUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input ReasonInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	entry, err := e.Svc.Moderation.BanUser(c.Request.Context(), s, id, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (e *Env) UnbanUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	s, _ := auth.FromContext(c)
	entry, err := e.Svc.Moderation.UnbanUser(c.Request.Context(), s, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (e *Env) DeleteStory(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var input ReasonInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	entry, err := e.Svc.Moderation.DeleteStory(c.Request.Context(), s, id, input.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (e *Env) PromoteToAdmin(c *gin.Context) {
	var input PromoteInput
	if !bindJSON(c, &input) {
		return
	}
	s, _ := auth.FromContext(c)
	entry, err := e.Svc.Moderation.PromoteToAdmin(c.Request.Context(), s, input.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// --- Helpers ---

// respondError writes err as {"error": {"code", "message"}} with the status
// for its kind. Storage failures are logged; their details are not returned.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "kind", kind, "err", err)
	}
	c.JSON(status, gin.H{"error": gin.H{
		"code":    kind,
		"message": apperr.Message(err),
	}})
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperr.InvalidArgument("invalid id %q", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.InvalidArgument("Invalid input: %v", err))
		return false
	}
	return true
}

func intQuery(c *gin.Context, name string) (int, error) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.InvalidArgument("%s must be a non-negative integer", name)
	}
	return n, nil
}

func parseDate(v string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.InvalidArgument("dateOccurred %q is not a date", v)
}
