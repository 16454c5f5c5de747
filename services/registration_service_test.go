package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"techfest-registration/models"
	"techfest-registration/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const reservedInstitute = "Indian Institute of Information Technology, Sri City"

func newLedger(t *testing.T) (*RegistrationService, *TeamService, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewRegistrationService(db, 10, reservedInstitute), NewTeamService(db, 10, nil), db
}

func boolPtr(b bool) *bool { return &b }

func TestRegisterSolo(t *testing.T) {
	regs, _, db := newLedger(t)
	home := testutil.Institute(t, db, reservedInstitute)
	alice := testutil.Profile(t, db, "alice", home)
	bob := testutil.Profile(t, db, "bob", nil)
	event := testutil.Event(t, db, "Code Golf", models.EventTypeSolo, 0, 0)

	reg, err := regs.Register(alice, event.PublicID, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Solo.IsReserved || reg.State().Fee(event) != 100 {
		t.Errorf("alice should be reserved at the reserved fee: %+v", reg.Solo.RegistrationState)
	}
	if reg.State().Status() != models.StatusPaymentPending {
		t.Errorf("status = %q", reg.State().Status())
	}

	if _, err := regs.Register(alice, event.PublicID, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("register twice err = %v, want ErrConflict", err)
	}
	if _, err := regs.Register(bob, event.PublicID, "someteam"); !errors.Is(err, ErrInvalid) {
		t.Errorf("solo with teamId err = %v, want ErrInvalid", err)
	}
	if _, err := regs.Register(bob, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v, want ErrNotFound", err)
	}

	reg, err = regs.Register(bob, event.PublicID, "")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if reg.Solo.IsReserved || reg.State().Fee(event) != 200 {
		t.Errorf("bob should pay the base fee: %+v", reg.Solo.RegistrationState)
	}
}

func TestRegisterSoloRejectsEventStaff(t *testing.T) {
	regs, _, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	event := testutil.Event(t, db, "Quiz", models.EventTypeSolo, 0, 0)
	role := models.EventRole{ID: uuid.NewString(), EventID: event.ID, ProfileID: alice.ID, Role: models.RoleVolunteer}
	if err := db.Omit("Profile").Create(&role).Error; err != nil {
		t.Fatalf("create role: %v", err)
	}

	if _, err := regs.Register(alice, event.PublicID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("volunteer register err = %v, want ErrConflict", err)
	}
}

func TestRegisterTeamSizeAndReadiness(t *testing.T) {
	regs, teams, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	bob := testutil.Profile(t, db, "bob", nil)
	testutil.Profile(t, db, "carol", nil)
	event := testutil.Event(t, db, "Robo Wars", models.EventTypeTeam, 2, 4)

	team := formTeam(t, teams, "alpha", alice, bob)
	if _, err := teams.Invite(context.Background(), alice, team.PublicID, "carol"); err != nil {
		t.Fatalf("invite: %v", err)
	}

	if _, err := regs.Register(alice, event.PublicID, team.PublicID); !errors.Is(err, ErrConflict) {
		t.Fatalf("team with pending invitee err = %v, want ErrConflict", err)
	}

	if err := teams.WithdrawInvitation(alice, team.PublicID, "carol"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	reg, err := regs.Register(alice, event.PublicID, team.PublicID)
	if err != nil {
		t.Fatalf("register ready team of 2: %v", err)
	}
	if reg.Team.Team.PublicID != team.PublicID {
		t.Errorf("registered team = %s", reg.Team.Team.PublicID)
	}
}

func TestRegisterTeamRules(t *testing.T) {
	regs, teams, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	bob := testutil.Profile(t, db, "bob", nil)
	carol := testutil.Profile(t, db, "carol", nil)
	dave := testutil.Profile(t, db, "dave", nil)
	event := testutil.Event(t, db, "Robo Wars", models.EventTypeTeam, 2, 2)

	solo := formTeam(t, teams, "solo", dave)
	alpha := formTeam(t, teams, "alpha", alice, bob)
	beta := formTeam(t, teams, "beta", carol, bob)

	tests := []struct {
		name   string
		viewer *models.Profile
		teamID string
		want   error
	}{
		{"missing team id", alice, "", ErrInvalid},
		{"unknown team", alice, "nope", ErrNotFound},
		{"not leader", bob, alpha.PublicID, ErrConflict},
		{"too small", dave, solo.PublicID, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := regs.Register(tt.viewer, event.PublicID, tt.teamID); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := regs.Register(alice, event.PublicID, alpha.PublicID); err != nil {
		t.Fatalf("register alpha: %v", err)
	}
	if _, err := regs.Register(alice, event.PublicID, alpha.PublicID); !errors.Is(err, ErrConflict) {
		t.Errorf("register twice err = %v, want ErrConflict", err)
	}
	// bob already plays for alpha.
	if _, err := regs.Register(carol, event.PublicID, beta.PublicID); !errors.Is(err, ErrConflict) {
		t.Errorf("overlapping team err = %v, want ErrConflict", err)
	}
}

func TestReservedCapacity(t *testing.T) {
	regs, _, db := newLedger(t)
	home := testutil.Institute(t, db, reservedInstitute)
	event := testutil.Event(t, db, "Treasure Hunt", models.EventTypeSolo, 0, 0)
	if err := db.Model(event).Updates(map[string]any{"max_participants": 2, "reserved_slots": 1}).Error; err != nil {
		t.Fatalf("set capacity: %v", err)
	}

	outsider1 := testutil.Profile(t, db, "out1", nil)
	outsider2 := testutil.Profile(t, db, "out2", nil)
	insider := testutil.Profile(t, db, "in1", home)
	insider2 := testutil.Profile(t, db, "in2", home)

	if _, err := regs.Register(outsider1, event.PublicID, ""); err != nil {
		t.Fatalf("first open slot: %v", err)
	}
	if _, err := regs.Register(outsider2, event.PublicID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("second non-reserved err = %v, want ErrConflict", err)
	}
	if _, err := regs.Register(insider, event.PublicID, ""); err != nil {
		t.Fatalf("reserved slot: %v", err)
	}
	if _, err := regs.Register(insider2, event.PublicID, ""); !errors.Is(err, ErrConflict) {
		t.Fatalf("full event err = %v, want ErrConflict", err)
	}
}

func TestReservedTeam(t *testing.T) {
	regs, teams, db := newLedger(t)
	home := testutil.Institute(t, db, reservedInstitute)
	alice := testutil.Profile(t, db, "alice", home)
	bob := testutil.Profile(t, db, "bob", home)
	carol := testutil.Profile(t, db, "carol", home)
	dave := testutil.Profile(t, db, "dave", nil)
	event := testutil.Event(t, db, "Relay", models.EventTypeTeam, 2, 2)

	home1 := formTeam(t, teams, "home", alice, bob)
	mixed := formTeam(t, teams, "mixed", carol, dave)

	reg, err := regs.Register(alice, event.PublicID, home1.PublicID)
	if err != nil || !reg.Team.IsReserved {
		t.Fatalf("home team reserved = %v, err %v", reg, err)
	}
	reg, err = regs.Register(carol, event.PublicID, mixed.PublicID)
	if err != nil || reg.Team.IsReserved {
		t.Fatalf("mixed team reserved = %v, err %v", reg, err)
	}
}

func TestUnregisterAndMine(t *testing.T) {
	regs, teams, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	bob := testutil.Profile(t, db, "bob", nil)
	soloEvent := testutil.Event(t, db, "Quiz", models.EventTypeSolo, 0, 0)
	teamEvent := testutil.Event(t, db, "Robo Wars", models.EventTypeTeam, 2, 4)
	team := formTeam(t, teams, "alpha", alice, bob)

	if reg, err := regs.Mine(alice, soloEvent.PublicID); err != nil || reg != nil {
		t.Fatalf("mine before register = %v, %v", reg, err)
	}
	if deleted, err := regs.Unregister(alice, soloEvent.PublicID); err != nil || deleted {
		t.Fatalf("unregister nothing = %v, %v", deleted, err)
	}
	if _, err := regs.Register(alice, soloEvent.PublicID, ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if reg, err := regs.Mine(alice, soloEvent.PublicID); err != nil || reg == nil {
		t.Fatalf("mine after register = %v, %v", reg, err)
	}
	if deleted, err := regs.Unregister(alice, soloEvent.PublicID); err != nil || !deleted {
		t.Fatalf("unregister = %v, %v", deleted, err)
	}

	if _, err := regs.Register(alice, teamEvent.PublicID, team.PublicID); err != nil {
		t.Fatalf("register team: %v", err)
	}
	reg, err := regs.Mine(bob, teamEvent.PublicID)
	if err != nil || reg == nil || reg.Team.Team.Name != "alpha" {
		t.Fatalf("member sees team registration = %v, %v", reg, err)
	}
	if _, err := regs.Unregister(bob, teamEvent.PublicID); !errors.Is(err, ErrConflict) {
		t.Errorf("member unregister err = %v, want ErrConflict", err)
	}
	if deleted, err := regs.Unregister(alice, teamEvent.PublicID); err != nil || !deleted {
		t.Fatalf("leader unregister = %v, %v", deleted, err)
	}
}

func TestUpdateRegistrationStateMachine(t *testing.T) {
	regs, _, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	staff := testutil.Staff(t, db, "staff")
	event := testutil.Event(t, db, "Quiz", models.EventTypeSolo, 0, 0)

	reg, err := regs.Register(alice, event.PublicID, "")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	id := reg.PublicID()

	if _, err := regs.Update(alice, id, boolPtr(true), nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-staff update err = %v, want ErrForbidden", err)
	}
	if _, err := regs.Update(staff, id, nil, boolPtr(true)); !errors.Is(err, ErrConflict) {
		t.Errorf("confirm incomplete err = %v, want ErrConflict", err)
	}
	if _, err := regs.Update(staff, "missing", boolPtr(true), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing registration err = %v, want ErrNotFound", err)
	}

	steps := []struct {
		complete, confirmed *bool
		want                string
	}{
		{boolPtr(true), nil, models.StatusWaiting},
		{nil, boolPtr(true), models.StatusConfirmed},
	}
	for _, s := range steps {
		got, err := regs.Update(staff, id, s.complete, s.confirmed)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if got.State().Status() != s.want {
			t.Fatalf("status = %q, want %q", got.State().Status(), s.want)
		}
	}

	if _, err := regs.Update(staff, id, boolPtr(false), nil); !errors.Is(err, ErrConflict) {
		t.Errorf("uncomplete confirmed err = %v, want ErrConflict", err)
	}
	mine, err := regs.Mine(alice, event.PublicID)
	if err != nil || mine.State().Status() != models.StatusConfirmed {
		t.Fatalf("persisted status = %v, %v", mine, err)
	}
}

func TestListForEventAndProfile(t *testing.T) {
	regs, teams, db := newLedger(t)
	alice := testutil.Profile(t, db, "alice", nil)
	bob := testutil.Profile(t, db, "bob", nil)
	staff := testutil.Staff(t, db, "staff")
	soloEvent := testutil.Event(t, db, "Quiz", models.EventTypeSolo, 0, 0)
	teamEvent := testutil.Event(t, db, "Robo Wars", models.EventTypeTeam, 2, 4)
	team := formTeam(t, teams, "alpha", alice, bob)

	if _, err := regs.Register(bob, soloEvent.PublicID, ""); err != nil {
		t.Fatalf("register solo: %v", err)
	}
	if _, err := regs.Register(alice, teamEvent.PublicID, team.PublicID); err != nil {
		t.Fatalf("register team: %v", err)
	}

	if _, err := regs.ListForEvent(alice, teamEvent.PublicID); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-staff list err = %v, want ErrForbidden", err)
	}
	if _, err := regs.ListForEvent(staff, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v, want ErrNotFound", err)
	}
	list, err := regs.ListForEvent(staff, teamEvent.PublicID)
	if err != nil || len(list) != 1 || list[0].Team.Team.MemberCount() != 2 {
		t.Fatalf("team event list = %v, %v", list, err)
	}

	mine, err := regs.ForProfile(bob, "bob")
	if err != nil || len(mine) != 2 {
		t.Fatalf("bob registrations = %d, %v", len(mine), err)
	}
	if _, err := regs.ForProfile(alice, "bob"); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user's registrations err = %v, want ErrForbidden", err)
	}
	if theirs, err := regs.ForProfile(staff, "alice"); err != nil || len(theirs) != 1 {
		t.Errorf("staff view of alice = %d, %v", len(theirs), err)
	}
}

func TestConcurrentInviteAndTeamRegistration(t *testing.T) {
	for i := 0; i < 5; i++ {
		regs, teams, db := newLedger(t)
		alice := testutil.Profile(t, db, "alice", nil)
		bob := testutil.Profile(t, db, "bob", nil)
		testutil.Profile(t, db, "carol", nil)
		event := testutil.Event(t, db, "Robo Wars", models.EventTypeTeam, 1, 4)
		team := formTeam(t, teams, "alpha", alice, bob)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = regs.Register(alice, event.PublicID, team.PublicID)
		}()
		go func() {
			defer wg.Done()
			_, _ = teams.Invite(context.Background(), alice, team.PublicID, "carol")
		}()
		wg.Wait()

		var registered, pending int64
		db.Model(&models.TeamEventRegistration{}).Where("team_id = ?", team.ID).Count(&registered)
		db.Model(&models.TeamMember{}).
			Where("team_id = ? AND invitation_accepted = ? AND invitation_rejected = ?", team.ID, false, false).
			Count(&pending)
		if registered+pending != 1 {
			t.Fatalf("run %d: registered = %d, pending invitations = %d; exactly one should win", i, registered, pending)
		}
	}
}
