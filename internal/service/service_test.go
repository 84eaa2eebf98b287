package service

import (
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/media"
	"github.com/sujalbistaa/setor7/internal/testutil"
)

type fixture struct {
	db    *gorm.DB
	svc   *Services
	clock *testutil.Clock
}

func newFixture(t *testing.T, store media.Store) *fixture {
	t.Helper()
	if store == nil {
		store = media.NewMemoryStore("https://media.test")
	}
	gdb := testutil.NewTestDB(t)
	clock := testutil.NewClock()
	svc := New(gdb, store, Options{
		AuditRetryTimeout:  200 * time.Millisecond,
		AuditRetryInterval: 5 * time.Millisecond,
		Now:                clock.Now,
	})
	return &fixture{db: gdb, svc: svc, clock: clock}
}

func assertKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
	var e *apperr.Error
	if !errors.As(err, &e) || e.Message == "" {
		t.Errorf("error %v carries no message", err)
	}
}
