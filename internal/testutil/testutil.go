// Package testutil provides sqlite-backed databases, fixtures and fake blob
// stores for package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/db"
	"github.com/sujalbistaa/setor7/internal/media"
	"github.com/sujalbistaa/setor7/internal/models"
)

// NewTestDB opens a migrated sqlite database in a temp dir. It is closed when
// the test ends.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "setor7_test.db")
	gdb, err := db.Init("sqlite://"+path, db.Options{LogLevel: logger.Silent})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })

	if err := db.Migrate(context.Background(), gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return gdb
}

// Clock is a manual clock whose every reading advances by one millisecond, so
// records created in sequence get distinct, ordered timestamps.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// ProfileOption customises CreateProfile.
type ProfileOption func(*models.Profile)

func Admin() ProfileOption {
	return func(p *models.Profile) { p.IsAdmin = true }
}

func Level(level int) ProfileOption {
	return func(p *models.Profile) { p.Level = level }
}

// CreateProfile inserts a profile named username with email <username>@example.com.
func CreateProfile(t testing.TB, gdb *gorm.DB, username string, opts ...ProfileOption) *models.Profile {
	t.Helper()
	p := &models.Profile{
		ID:       uuid.New(),
		Email:    username + "@example.com",
		Username: username,
		Level:    1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := gdb.Create(p).Error; err != nil {
		t.Fatalf("failed to create profile %s: %v", username, err)
	}
	return p
}

// CreateStory inserts a visible story by author.
func CreateStory(t testing.TB, gdb *gorm.DB, author *models.Profile, title string) *models.Story {
	t.Helper()
	st := &models.Story{
		Title:     title,
		Content:   "Something moved in the attic.",
		Category:  models.CategoryHaunting,
		AuthorID:  author.ID,
		ImageURLs: models.StringList{},
		VideoURLs: models.StringList{},
	}
	if err := gdb.Create(st).Error; err != nil {
		t.Fatalf("failed to create story %s: %v", title, err)
	}
	return st
}

// CreateInvestigation inserts an investigation with zero votes.
func CreateInvestigation(t testing.TB, gdb *gorm.DB, story *models.Story, investigator *models.Profile) *models.Investigation {
	t.Helper()
	inv := &models.Investigation{
		StoryID:        story.ID,
		InvestigatorID: investigator.ID,
		Theory:         "Settling floorboards.",
		EvidenceURLs:   models.StringList{},
	}
	if err := gdb.Create(inv).Error; err != nil {
		t.Fatalf("failed to create investigation: %v", err)
	}
	return inv
}

// SessionFor returns the session a token for p would resolve to.
func SessionFor(p *models.Profile) *auth.Session {
	return &auth.Session{
		UserID:    p.ID,
		Email:     p.Email,
		Username:  p.Username,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

// Token signs a one-hour access token for s.
func Token(t testing.TB, v *auth.Verifier, s *auth.Session) string {
	t.Helper()
	tok, err := v.Sign(*s, time.Hour)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

// Count returns the number of rows of model.
func Count(t testing.TB, gdb *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := gdb.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return n
}

var ErrInjected = errors.New("injected failure")

// FlakyStore wraps a MemoryStore and fails the Put calls listed in FailOn
// (1-based). It records every Put attempt.
type FlakyStore struct {
	*media.MemoryStore
	FailOn map[int]bool

	mu   sync.Mutex
	puts int
}

func NewFlakyStore(failOn ...int) *FlakyStore {
	s := &FlakyStore{MemoryStore: media.NewMemoryStore("https://media.test"), FailOn: map[int]bool{}}
	for _, n := range failOn {
		s.FailOn[n] = true
	}
	return s
}

func (s *FlakyStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	s.puts++
	n := s.puts
	s.mu.Unlock()

	if s.FailOn[n] {
		_, _ = io.Copy(io.Discard, r)
		return "", fmt.Errorf("put %d: %w", n, ErrInjected)
	}
	return s.MemoryStore.Put(ctx, key, r, size, contentType)
}

// Puts returns how many uploads were attempted.
func (s *FlakyStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

var _ media.Store = (*FlakyStore)(nil)
