package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"techfest-registration/models"
	"techfest-registration/testutil"
)

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = b
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func eventInput(title string) EventInput {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return EventInput{
		Title:       title,
		Venue:       "Main Hall",
		StartsAt:    start,
		EndsAt:      start.Add(3 * time.Hour),
		Fee:         150,
		ReservedFee: 50,
	}
}

func TestCreateEvent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEventService(db, nil)
	staff := testutil.Staff(t, db, "staff")
	alice := testutil.Profile(t, db, "alice", nil)

	if _, err := svc.CreateTag(staff, "robotics", "bots"); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := svc.CreateCategory(staff, "technical", ""); err != nil {
		t.Fatalf("create category: %v", err)
	}

	in := eventInput("Robo Wars")
	in.MinTeamSize, in.MaxTeamSize = 2, 4
	in.Tags = []string{"robotics"}
	in.Categories = []string{"technical"}
	e, err := svc.Create(staff, models.EventTypeTeam, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(e.PublicID, "robo-wars-") {
		t.Errorf("public id = %q", e.PublicID)
	}

	got, err := svc.Get(e.PublicID)
	if err != nil || len(got.Tags) != 1 || len(got.Categories) != 1 {
		t.Fatalf("get = %+v, %v", got, err)
	}

	bad := eventInput("Broken")
	bad.EndsAt = bad.StartsAt.Add(-time.Hour)
	unknownTag := eventInput("Tagged")
	unknownTag.Tags = []string{"nope"}
	soloWithSizes := eventInput("Solo Sizes")
	soloWithSizes.MinTeamSize = 2

	tests := []struct {
		name      string
		viewer    *models.Profile
		eventType string
		in        EventInput
		want      error
	}{
		{"not staff", alice, models.EventTypeSolo, eventInput("Quiz"), ErrForbidden},
		{"duplicate title", staff, models.EventTypeSolo, eventInput("Robo Wars"), ErrInvalid},
		{"ends before start", staff, models.EventTypeSolo, bad, ErrInvalid},
		{"unknown tag", staff, models.EventTypeSolo, unknownTag, ErrInvalid},
		{"team without sizes", staff, models.EventTypeTeam, eventInput("Relay"), ErrInvalid},
		{"solo with sizes", staff, models.EventTypeSolo, soloWithSizes, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(tt.viewer, tt.eventType, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestListEventsFilters(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEventService(db, nil)
	staff := testutil.Staff(t, db, "staff")
	svc.CreateTag(staff, "coding", "")
	svc.CreateCategory(staff, "technical", "")

	quiz := eventInput("Quiz")
	quiz.Tags = []string{"coding"}
	if _, err := svc.Create(staff, models.EventTypeSolo, quiz); err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	relay := eventInput("Relay")
	relay.MinTeamSize, relay.MaxTeamSize = 1, 3
	relay.Categories = []string{"technical"}
	if _, err := svc.Create(staff, models.EventTypeTeam, relay); err != nil {
		t.Fatalf("create relay: %v", err)
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   int
	}{
		{"all", EventFilter{}, 2},
		{"by type", EventFilter{Type: models.EventTypeTeam}, 1},
		{"by tag", EventFilter{Tag: "coding"}, 1},
		{"by category", EventFilter{Category: "technical"}, 1},
		{"no match", EventFilter{Tag: "coding", Type: models.EventTypeTeam}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.List(tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestUpdateAndDeleteEvent(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEventService(db, nil)
	staff := testutil.Staff(t, db, "staff")
	alice := testutil.Profile(t, db, "alice", nil)
	svc.CreateTag(staff, "coding", "")

	e, err := svc.Create(staff, models.EventTypeSolo, eventInput("Quiz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	in := eventInput("Mega Quiz")
	in.Tags = []string{"coding"}
	updated, err := svc.Update(staff, e.PublicID, in)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Mega Quiz" || len(updated.Tags) != 1 || updated.PublicID != e.PublicID {
		t.Errorf("updated = %+v", updated)
	}

	if _, err := NewRegistrationService(db, 10, "").Register(alice, e.PublicID, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Delete(context.Background(), staff, e.PublicID); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete with registrations err = %v, want ErrConflict", err)
	}

	other, err := svc.Create(staff, models.EventTypeSolo, eventInput("Empty"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Delete(context.Background(), alice, other.PublicID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-staff delete err = %v, want ErrForbidden", err)
	}
	if err := svc.Delete(context.Background(), staff, other.PublicID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(other.PublicID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted err = %v, want ErrNotFound", err)
	}
}

func TestTagsAndCategoriesAreUnique(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEventService(db, nil)
	staff := testutil.Staff(t, db, "staff")

	if _, err := svc.CreateTag(staff, "coding", ""); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := svc.CreateTag(staff, "coding", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate tag err = %v, want ErrConflict", err)
	}
	if _, err := svc.CreateCategory(staff, "cultural", ""); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if _, err := svc.CreateCategory(staff, "cultural", ""); !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate category err = %v, want ErrConflict", err)
	}
	tags, _ := svc.Tags()
	cats, _ := svc.Categories()
	if len(tags) != 1 || len(cats) != 1 {
		t.Errorf("tags = %d categories = %d", len(tags), len(cats))
	}
}

func TestEventRoles(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewEventService(db, nil)
	staff := testutil.Staff(t, db, "staff")
	alice := testutil.Profile(t, db, "alice", nil)
	bob := testutil.Profile(t, db, "bob", nil)
	e, err := svc.Create(staff, models.EventTypeSolo, eventInput("Quiz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.AssignRole(staff, e.PublicID, "alice", models.RoleOrganizer); err != nil {
		t.Fatalf("assign: %v", err)
	}
	role, err := svc.AssignRole(staff, e.PublicID, "alice", models.RoleVolunteer)
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if role.Role != models.RoleVolunteer {
		t.Errorf("role = %s", role.Role)
	}
	roles, err := svc.Roles(e.PublicID)
	if err != nil || len(roles) != 1 || roles[0].Role != models.RoleVolunteer {
		t.Fatalf("roles = %+v, %v", roles, err)
	}

	if _, err := NewRegistrationService(db, 10, "").Register(bob, e.PublicID, ""); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if _, err := svc.AssignRole(staff, e.PublicID, "bob", models.RoleOrganizer); !errors.Is(err, ErrConflict) {
		t.Errorf("assign registered err = %v, want ErrConflict", err)
	}
	if _, err := svc.AssignRole(staff, e.PublicID, "alice", "judge"); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad role err = %v, want ErrInvalid", err)
	}
	if _, err := svc.AssignRole(alice, e.PublicID, "bob", models.RoleOrganizer); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-staff assign err = %v, want ErrForbidden", err)
	}

	if err := svc.RemoveRole(staff, e.PublicID, "alice"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := svc.RemoveRole(staff, e.PublicID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove twice err = %v, want ErrNotFound", err)
	}
}

func TestUploadImage(t *testing.T) {
	db := testutil.NewDB(t)
	staff := testutil.Staff(t, db, "staff")

	unconfigured := NewEventService(db, nil)
	e, err := unconfigured.Create(staff, models.EventTypeSolo, eventInput("Quiz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = unconfigured.UploadImage(context.Background(), staff, e.PublicID, models.ImagePurposeLogo, "logo.png", "image/png", bytes.NewReader([]byte("png")), 3)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("upload without storage err = %v, want ErrUnavailable", err)
	}

	store := &memoryStore{}
	svc := NewEventService(db, store)
	if _, err := svc.UploadImage(context.Background(), staff, e.PublicID, "banner", "b.png", "image/png", bytes.NewReader(nil), 0); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad purpose err = %v, want ErrInvalid", err)
	}
	img, err := svc.UploadImage(context.Background(), staff, e.PublicID, models.ImagePurposeLogo, "Logo.PNG", "image/png", bytes.NewReader([]byte("png")), 3)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	wantPrefix := "events/" + e.PublicID + "/event_logo/"
	if !strings.HasPrefix(img.ObjectKey, wantPrefix) || !strings.HasSuffix(img.ObjectKey, ".png") {
		t.Errorf("object key = %q", img.ObjectKey)
	}
	if string(store.objects[img.ObjectKey]) != "png" {
		t.Errorf("stored bytes = %q", store.objects[img.ObjectKey])
	}
	got, _ := svc.Get(e.PublicID)
	if len(got.Images) != 1 || got.Images[0].URL != img.URL {
		t.Errorf("event images = %+v", got.Images)
	}
}

func TestDeleteEventRemovesStoredImages(t *testing.T) {
	db := testutil.NewDB(t)
	staff := testutil.Staff(t, db, "staff")
	store := &memoryStore{}
	svc := NewEventService(db, store)
	e, err := svc.Create(staff, models.EventTypeSolo, eventInput("Quiz"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, purpose := range []string{models.ImagePurposeLogo, models.ImagePurposePicture} {
		if _, err := svc.UploadImage(context.Background(), staff, e.PublicID, purpose, "a.png", "image/png", bytes.NewReader([]byte("png")), 3); err != nil {
			t.Fatalf("upload %s: %v", purpose, err)
		}
	}
	if len(store.objects) != 2 {
		t.Fatalf("stored objects = %d, want 2", len(store.objects))
	}

	if err := svc.Delete(context.Background(), staff, e.PublicID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(store.objects) != 0 {
		t.Errorf("objects left after delete: %v", store.objects)
	}
	var rows int64
	db.Model(&models.EventImage{}).Count(&rows)
	if rows != 0 {
		t.Errorf("image rows left = %d", rows)
	}
}
