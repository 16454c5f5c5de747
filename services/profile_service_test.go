package services

import (
	"errors"
	"testing"

	"techfest-registration/testutil"
)

func TestAuthenticateStaff(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewProfileService(db)
	staff := testutil.Staff(t, db, "staff")
	alice := testutil.Profile(t, db, "alice", nil)

	if err := svc.SetPassword(staff.ID, "short"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("short password err = %v, want ErrInvalid", err)
	}
	for _, id := range []string{staff.ID, alice.ID} {
		if err := svc.SetPassword(id, "correct horse"); err != nil {
			t.Fatalf("set password: %v", err)
		}
	}
	if err := svc.SetPassword("missing", "correct horse"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing profile err = %v, want ErrNotFound", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"ok", "staff", "correct horse", nil},
		{"wrong password", "staff", "battery staple", ErrUnauthenticated},
		{"unknown user", "nobody", "correct horse", ErrUnauthenticated},
		{"not staff", "alice", "correct horse", ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := svc.AuthenticateStaff(tt.username, tt.password)
			if tt.want == nil {
				if err != nil || p.Username != tt.username {
					t.Fatalf("got %v, %v", p, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	byExt, err := svc.ByExternalID("ext-alice")
	if err != nil || byExt.ID != alice.ID {
		t.Fatalf("by external id = %v, %v", byExt, err)
	}
}
