package service

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/sujalbistaa/setor7/internal/apperr"
	"github.com/sujalbistaa/setor7/internal/auth"
	"github.com/sujalbistaa/setor7/internal/models"
	"github.com/sujalbistaa/setor7/internal/testutil"
)

func titles(stories []StoryView) []string {
	out := make([]string, len(stories))
	for i, s := range stories {
		out[i] = s.Title
	}
	return out
}

func TestListStories(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	author := testutil.CreateProfile(t, f.db, "witness", testutil.Level(5))
	s := testutil.SessionFor(author)

	create := func(title, content, location string, cat models.Category) *StoryView {
		t.Helper()
		st, err := f.svc.Content.CreateStory(ctx, s, StoryInput{
			Title: title, Content: content, Location: location, Category: string(cat),
		}, Media{})
		if err != nil {
			t.Fatalf("CreateStory(%q) error = %v", title, err)
		}
		return st
	}
	create("Lights over the lake", "Three orange lights hovering.", "Lake Tahoe", models.CategoryUFO)
	hoax := create("Ghost in the mirror", "A face behind me.", "", models.CategoryGhosts)
	create("Something in the barn", "Heavy breathing, 100% real.", "Iowa", models.CategoryCreature)

	if _, err := f.svc.Moderation.DeleteStory(ctx, testutil.SessionFor(admin), hoax.ID, "hoax"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		session *auth.Session
		filter  StoryFilter
		want    []string
	}{
		{
			name: "newest first, deleted hidden",
			want: []string{"Something in the barn", "Lights over the lake"},
		},
		{
			name:   "deleted requested by non-admin",
			filter: StoryFilter{IncludeDeleted: true},
			want:   []string{"Something in the barn", "Lights over the lake"},
		},
		{
			name:    "deleted requested by admin",
			session: testutil.SessionFor(admin),
			filter:  StoryFilter{IncludeDeleted: true},
			want:    []string{"Something in the barn", "Ghost in the mirror", "Lights over the lake"},
		},
		{
			name:   "category",
			filter: StoryFilter{Category: "ufo"},
			want:   []string{"Lights over the lake"},
		},
		{
			name:   "search matches location case-insensitively",
			filter: StoryFilter{Search: "TAHOE"},
			want:   []string{"Lights over the lake"},
		},
		{
			name:   "search treats percent literally",
			filter: StoryFilter{Search: "100%"},
			want:   []string{"Something in the barn"},
		},
		{
			name:   "limit",
			filter: StoryFilter{Limit: 1},
			want:   []string{"Something in the barn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := tt.session
			if sess == nil {
				sess = s
			}
			got, err := f.svc.Queries.ListStories(ctx, sess, tt.filter)
			if err != nil {
				t.Fatalf("ListStories() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, titles(got)); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got, err := f.svc.Queries.ListStories(ctx, s, StoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	want := &ProfileSummary{ID: author.ID, Username: "witness", Level: 5, Badge: models.BadgeExperienced}
	if diff := cmp.Diff(want, got[0].Author); diff != "" {
		t.Errorf("author summary mismatch (-want +got):\n%s", diff)
	}

	_, err = f.svc.Queries.ListStories(ctx, s, StoryFilter{Category: "cryptids"})
	assertKind(t, err, apperr.KindInvalidArgument)
}

func TestListStoriesSearchFoldsAccents(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	author := testutil.CreateProfile(t, f.db, "testemunha")
	s := testutil.SessionFor(author)

	for _, in := range []StoryInput{
		{Title: "ASSOMBRAÇÃO NA ESTRADA", Content: "Uma luz seguiu o carro.", Category: "haunting"},
		{Title: "Vulto no quintal", Content: "Algo se mexeu.", Location: "SÃO PAULO", Category: "ghosts"},
	} {
		if _, err := f.svc.Content.CreateStory(ctx, s, in, Media{}); err != nil {
			t.Fatalf("CreateStory(%q) error = %v", in.Title, err)
		}
	}

	tests := []struct {
		search string
		want   []string
	}{
		{search: "assombração", want: []string{"ASSOMBRAÇÃO NA ESTRADA"}},
		{search: "ASSOMBRAÇÃO", want: []string{"ASSOMBRAÇÃO NA ESTRADA"}},
		{search: "Estrada", want: []string{"ASSOMBRAÇÃO NA ESTRADA"}},
		{search: "são paulo", want: []string{"Vulto no quintal"}},
		{search: "sao paulo", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			got, err := f.svc.Queries.ListStories(ctx, s, StoryFilter{Search: tt.search})
			if err != nil {
				t.Fatalf("ListStories() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, titles(got)); diff != "" {
				t.Errorf("titles mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestGetStoryHidesDeleted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	author := testutil.CreateProfile(t, f.db, "witness")
	story := testutil.CreateStory(t, f.db, author, "Poltergeist")

	if _, err := f.svc.Queries.GetStory(ctx, testutil.SessionFor(author), story.ID); err != nil {
		t.Fatalf("GetStory() error = %v", err)
	}
	if _, err := f.svc.Moderation.DeleteStory(ctx, testutil.SessionFor(admin), story.ID, "duplicate"); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Queries.GetStory(ctx, testutil.SessionFor(author), story.ID)
	assertKind(t, err, apperr.KindNotFound)

	got, err := f.svc.Queries.GetStory(ctx, testutil.SessionFor(admin), story.ID)
	if err != nil {
		t.Fatalf("GetStory() as admin error = %v", err)
	}
	if !got.IsDeleted || *got.DeleteReason != "duplicate" {
		t.Errorf("admin view = %+v", got.Story)
	}
}

func TestListInvestigationsOrderedByVotes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	author := testutil.CreateProfile(t, f.db, "witness")
	voter := testutil.CreateProfile(t, f.db, "voter")
	story := testutil.CreateStory(t, f.db, author, "Moving chair")
	s := testutil.SessionFor(author)

	var ids []uuid.UUID
	for _, theory := range []string{"wind", "cat", "ghost"} {
		inv, err := f.svc.Content.CreateInvestigation(ctx, s, story.ID, InvestigationInput{Theory: theory})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, inv.ID)
	}
	if _, err := f.svc.Voting.CastVote(ctx, testutil.SessionFor(voter), ids[2], 1); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Voting.CastVote(ctx, testutil.SessionFor(voter), ids[0], -1); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Queries.ListInvestigations(ctx, story.ID)
	if err != nil {
		t.Fatalf("ListInvestigations() error = %v", err)
	}
	var order []string
	for _, inv := range got {
		order = append(order, inv.Theory)
	}
	if diff := cmp.Diff([]string{"ghost", "cat", "wind"}, order); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got[0].Investigator == nil || got[0].Investigator.Username != "witness" {
		t.Errorf("investigator not resolved: %+v", got[0].Investigator)
	}
}

func TestListModerationLog(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	user := testutil.CreateProfile(t, f.db, "lurker")
	as := testutil.SessionFor(admin)

	if _, err := f.svc.Moderation.BanUser(ctx, as, user.ID, "spam"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Moderation.UnbanUser(ctx, as, user.ID); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Queries.ListModerationLog(ctx, testutil.SessionFor(user), 10)
	assertKind(t, err, apperr.KindForbidden)

	logs, err := f.svc.Queries.ListModerationLog(ctx, as, 0)
	if err != nil {
		t.Fatalf("ListModerationLog() error = %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("entries = %d, want 2", len(logs))
	}
	if logs[0].ActionType != models.ActionUnbanUser || logs[1].ActionType != models.ActionBanUser {
		t.Errorf("entries not newest first: %s, %s", logs[0].ActionType, logs[1].ActionType)
	}
	if logs[0].Admin.Username != "warden" || logs[0].TargetUser.Username != "lurker" {
		t.Errorf("profiles not resolved: admin=%+v target=%+v", logs[0].Admin, logs[0].TargetUser)
	}

	logs, err = f.svc.Queries.ListModerationLog(ctx, as, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Errorf("limited entries = %d, want 1", len(logs))
	}
}

func TestListProfilesAdminOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	admin := testutil.CreateProfile(t, f.db, "warden", testutil.Admin())
	user := testutil.CreateProfile(t, f.db, "lurker", testutil.Level(10))

	_, err := f.svc.Queries.ListProfiles(ctx, testutil.SessionFor(user))
	assertKind(t, err, apperr.KindForbidden)

	got, err := f.svc.Queries.ListProfiles(ctx, testutil.SessionFor(admin))
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("profiles = %d, want 2", len(got))
	}
	for _, p := range got {
		if p.ID == user.ID && p.Badge != models.BadgeMaster {
			t.Errorf("badge = %s, want master", p.Badge)
		}
	}
}
