package service

import (
	"context"
	"database/sql/driver"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/models"
	"github.com/sujalbistaa/setor7/internal/testutil"
)

func TestBanThenUnbanRestoresProfile(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "lurker", testutil.Level(4))
	if err := f.db.Model(target).Update("points", 120).Error; err != nil {
		t.Fatal(err)
	}

	entry, err := f.svc.Moderation.BanUser(ctx, testutil.SessionFor(admin), target.ID, "  spam  ")
	if err != nil {
		t.Fatalf("BanUser() error = %v", err)
	}
	if entry.ActionType != models.ActionBanUser || entry.AdminID != admin.ID || *entry.TargetUserID != target.ID || *entry.Reason != "spam" {
		t.Errorf("unexpected ban entry: %+v", entry)
	}

	banned, err := loadProfile(f.db, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !banned.IsBanned || !banned.BanConsistent() || *banned.BannedBy != admin.ID || *banned.BanReason != "spam" {
		t.Errorf("ban fields not populated: %+v", banned)
	}

	entry, err = f.svc.Moderation.UnbanUser(ctx, testutil.SessionFor(admin), target.ID)
	if err != nil {
		t.Fatalf("UnbanUser() error = %v", err)
	}
	if entry.ActionType != models.ActionUnbanUser || *entry.Reason != UnbanReason {
		t.Errorf("unexpected unban entry: %+v", entry)
	}

	restored, err := loadProfile(f.db, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if restored.IsBanned || restored.BannedAt != nil || restored.BannedBy != nil || restored.BanReason != nil {
		t.Errorf("ban fields not cleared: %+v", restored)
	}
	if restored.Points != 120 || restored.Level != 4 {
		t.Errorf("points/level changed: points=%d level=%d", restored.Points, restored.Level)
	}
	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 2 {
		t.Errorf("log entries = %d, want 2", n)
	}
}

func TestModerationRequiresAdmin(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		caller func(t *testing.T, f *fixture) *models.Profile
	}{
		{
			name: "regular user",
			caller: func(t *testing.T, f *fixture) *models.Profile {
				return testutil.CreateProfile(t, f.db, "regular")
			},
		},
		{
			name: "banned admin",
			caller: func(t *testing.T, f *fixture) *models.Profile {
				p := testutil.CreateProfile(t, f.db, "fallen", testutil.Admin())
				now := time.Now()
				reason := "abuse"
				err := f.db.Model(p).Updates(map[string]any{
					"is_banned": true, "banned_at": now, "banned_by": uuid.New(), "ban_reason": reason,
				}).Error
				if err != nil {
					t.Fatal(err)
				}
				return p
			},
		},
		{
			name: "no profile",
			caller: func(t *testing.T, f *fixture) *models.Profile {
				return &models.Profile{ID: uuid.New(), Email: "ghost@example.com", Username: "ghost"}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			author := testutil.CreateProfile(t, f.db, "author")
			story := testutil.CreateStory(t, f.db, author, "Shadow on the stairs")
			s := testutil.SessionFor(tt.caller(t, f))

			ops := map[string]func() error{
				"ban": func() error {
					_, err := f.svc.Moderation.BanUser(ctx, s, author.ID, "spam")
					return err
				},
				"ban with empty reason": func() error {
					_, err := f.svc.Moderation.BanUser(ctx, s, author.ID, "")
					return err
				},
				"unban": func() error {
					_, err := f.svc.Moderation.UnbanUser(ctx, s, author.ID)
					return err
				},
				"delete story": func() error {
					_, err := f.svc.Moderation.DeleteStory(ctx, s, story.ID, "fake")
					return err
				},
				"promote": func() error {
					_, err := f.svc.Moderation.PromoteToAdmin(ctx, s, author.Email)
					return err
				},
			}
			for name, op := range ops {
				if err := op(); apperr.KindOf(err) != apperr.KindForbidden {
					t.Errorf("%s: error = %v, want forbidden", name, err)
				}
			}

			if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 0 {
				t.Errorf("log entries = %d, want 0", n)
			}
			got, err := loadProfile(f.db, author.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.IsBanned || got.IsAdmin {
				t.Errorf("target mutated: %+v", got)
			}
			st, err := visibleStory(f.db, story.ID, true)
			if err != nil {
				t.Fatal(err)
			}
			if st.IsDeleted {
				t.Error("story was deleted")
			}
		})
	}
}

func TestBanUserValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "lurker")
	s := testutil.SessionFor(admin)

	_, err := f.svc.Moderation.BanUser(ctx, s, target.ID, "   ")
	assertKind(t, err, apperr.KindInvalidArgument)

	_, err = f.svc.Moderation.BanUser(ctx, s, admin.ID, "testing")
	assertKind(t, err, apperr.KindInvalidArgument)

	_, err = f.svc.Moderation.BanUser(ctx, s, uuid.New(), "spam")
	assertKind(t, err, apperr.KindNotFound)

	if _, err := f.svc.Moderation.BanUser(ctx, s, target.ID, "spam"); err != nil {
		t.Fatalf("BanUser() error = %v", err)
	}
	_, err = f.svc.Moderation.BanUser(ctx, s, target.ID, "spam again")
	assertKind(t, err, apperr.KindConflict)

	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 1 {
		t.Errorf("log entries = %d, want 1", n)
	}
}

func TestUnbanUserNotBanned(t *testing.T) {
	f := newFixture(t, nil)
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "lurker")

	_, err := f.svc.Moderation.UnbanUser(context.Background(), testutil.SessionFor(admin), target.ID)
	assertKind(t, err, apperr.KindConflict)
	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 0 {
		t.Errorf("log entries = %d, want 0", n)
	}
}

func TestDeleteStory(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	author := testutil.CreateProfile(t, f.db, "author")
	story := testutil.CreateStory(t, f.db, author, "Lights over the lake")
	s := testutil.SessionFor(admin)

	_, err := f.svc.Moderation.DeleteStory(ctx, s, story.ID, "")
	assertKind(t, err, apperr.KindInvalidArgument)

	entry, err := f.svc.Moderation.DeleteStory(ctx, s, story.ID, "hoax")
	if err != nil {
		t.Fatalf("DeleteStory() error = %v", err)
	}
	if entry.ActionType != models.ActionDeleteStory || *entry.TargetStoryID != story.ID || entry.TargetUserID != nil {
		t.Errorf("unexpected entry: %+v", entry)
	}

	st, err := visibleStory(f.db, story.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !st.IsDeleted || !st.DeletionConsistent() || *st.DeletedBy != admin.ID || *st.DeleteReason != "hoax" {
		t.Errorf("deletion metadata: %+v", st)
	}

	_, err = f.svc.Moderation.DeleteStory(ctx, s, story.ID, "hoax")
	assertKind(t, err, apperr.KindInvalidArgument)

	_, err = f.svc.Moderation.DeleteStory(ctx, s, uuid.New(), "hoax")
	assertKind(t, err, apperr.KindNotFound)
}

func TestPromoteToAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "deputy")
	s := testutil.SessionFor(admin)

	_, err := f.svc.Moderation.PromoteToAdmin(ctx, s, "nobody@example.com")
	assertKind(t, err, apperr.KindNotFound)

	_, err = f.svc.Moderation.PromoteToAdmin(ctx, s, "not-an-email")
	assertKind(t, err, apperr.KindInvalidArgument)

	for i := 0; i < 2; i++ {
		entry, err := f.svc.Moderation.PromoteToAdmin(ctx, s, "DEPUTY@example.com")
		if err != nil {
			t.Fatalf("PromoteToAdmin() #%d error = %v", i+1, err)
		}
		if *entry.TargetUserID != target.ID || *entry.Reason != "promoted user with email: DEPUTY@example.com" {
			t.Errorf("unexpected entry: %+v", entry)
		}
	}

	got, err := loadProfile(f.db, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsAdmin {
		t.Error("target was not promoted")
	}
	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 2 {
		t.Errorf("log entries = %d, want 2", n)
	}
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	first := testutil.CreateProfile(t, f.db, "founder")
	second := testutil.CreateProfile(t, f.db, "latecomer")

	entry, err := f.svc.Moderation.BootstrapAdmin(ctx, first.Email)
	if err != nil {
		t.Fatalf("BootstrapAdmin() error = %v", err)
	}
	if entry.AdminID != first.ID || *entry.TargetUserID != first.ID {
		t.Errorf("unexpected entry: %+v", entry)
	}

	_, err = f.svc.Moderation.BootstrapAdmin(ctx, second.Email)
	assertKind(t, err, apperr.KindConflict)

	got, err := loadProfile(f.db, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsAdmin {
		t.Error("second bootstrap promoted a user")
	}
}

// failLogInserts makes the next n inserts into moderation_logs fail with a
// dropped connection. n < 0 fails forever.
func failLogInserts(t *testing.T, gdb *gorm.DB, n int32) *atomic.Int32 {
	t.Helper()
	var remaining, attempts atomic.Int32
	remaining.Store(n)
	err := gdb.Callback().Create().Before("gorm:create").Register("test:fail_log_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "moderation_logs" {
			return
		}
		attempts.Add(1)
		if n < 0 || remaining.Add(-1) >= 0 {
			_ = tx.AddError(driver.ErrBadConn)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	return &attempts
}

func TestAuditAppendRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, nil)
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "lurker")
	attempts := failLogInserts(t, f.db, 2)

	entry, err := f.svc.Moderation.BanUser(context.Background(), testutil.SessionFor(admin), target.ID, "spam")
	if err != nil {
		t.Fatalf("BanUser() error = %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("log insert attempts = %d, want 3", got)
	}

	var logs []models.ModerationLogEntry
	if err := f.db.Find(&logs).Error; err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].ID != entry.ID {
		t.Fatalf("logs = %+v, want exactly the returned entry", logs)
	}
	got, err := loadProfile(f.db, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsBanned {
		t.Error("ban was not applied")
	}
}

func TestAuditFailureRollsBackMutation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	target := testutil.CreateProfile(t, f.db, "lurker")
	author := testutil.CreateProfile(t, f.db, "author")
	story := testutil.CreateStory(t, f.db, author, "Knocking in the walls")
	failLogInserts(t, f.db, -1)
	s := testutil.SessionFor(admin)

	_, err := f.svc.Moderation.BanUser(ctx, s, target.ID, "spam")
	assertKind(t, err, apperr.KindUnavailable)
	_, err = f.svc.Moderation.DeleteStory(ctx, s, story.ID, "hoax")
	assertKind(t, err, apperr.KindUnavailable)
	_, err = f.svc.Moderation.PromoteToAdmin(ctx, s, target.Email)
	assertKind(t, err, apperr.KindUnavailable)

	got, err := loadProfile(f.db, target.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := *target
	opts := cmp.FilterPath(func(p cmp.Path) bool {
		name := p.Last().String()
		return name == ".CreatedAt" || name == ".UpdatedAt"
	}, cmp.Ignore())
	if diff := cmp.Diff(want, *got, opts); diff != "" {
		t.Errorf("profile changed without a log entry (-want +got):\n%s", diff)
	}

	st, err := visibleStory(f.db, story.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if st.IsDeleted {
		t.Error("story deleted without a log entry")
	}
	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 0 {
		t.Errorf("log entries = %d, want 0", n)
	}
}

func appendInTx(gdb *gorm.DB, a auditor, adminID uuid.UUID) error {
	return gdb.Transaction(func(tx *gorm.DB) error {
		return a.append(context.Background(), tx, &models.ModerationLogEntry{
			AdminID:    adminID,
			ActionType: models.ActionPromoteAdmin,
			CreatedAt:  time.Now(),
		})
	})
}

func TestAuditAppendWaitsBetweenRetries(t *testing.T) {
	f := newFixture(t, nil)
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	attempts := failLogInserts(t, f.db, 2)
	a := auditor{timeout: 2 * time.Second, interval: 40 * time.Millisecond}

	start := time.Now()
	if err := appendInTx(f.db, a, admin.ID); err != nil {
		t.Fatalf("append() error = %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("log insert attempts = %d, want 3", got)
	}
	if elapsed := time.Since(start); elapsed < 2*a.interval {
		t.Errorf("two retries took %v, want at least %v", elapsed, 2*a.interval)
	}
}

func TestAuditAppendDeadlineBoundsInsert(t *testing.T) {
	f := newFixture(t, nil)
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	err := f.db.Callback().Create().Before("gorm:create").Register("test:hang_log_insert", func(tx *gorm.DB) {
		if tx.Statement.Table != "moderation_logs" {
			return
		}
		<-tx.Statement.Context.Done()
		_ = tx.AddError(tx.Statement.Context.Err())
	})
	if err != nil {
		t.Fatal(err)
	}
	a := auditor{timeout: 100 * time.Millisecond, interval: 10 * time.Millisecond}

	done := make(chan error, 1)
	go func() { done <- appendInTx(f.db, a, admin.ID) }()
	select {
	case err := <-done:
		assertKind(t, err, apperr.KindUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("append() did not return after its deadline")
	}
	if n := testutil.Count(t, f.db, &models.ModerationLogEntry{}); n != 0 {
		t.Errorf("log entries = %d, want 0", n)
	}
}
