package models

import (
	"errors"
	"time"
)

const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationRejected = "rejected"
)

var (
	ErrInvitationAlreadyAccepted = errors.New("invitation already accepted")
	ErrInvitationAlreadyRejected = errors.New("invitation already rejected")
)

// Team is owned by its leader. Memberships cascade on delete; registrations protect it.
type Team struct {
	ID          string       `json:"-" gorm:"primaryKey"`
	PublicID    string       `json:"team_id" gorm:"uniqueIndex;not null"`
	Name        string       `json:"name" gorm:"size:20;uniqueIndex;not null"`
	LeaderID    string       `json:"-" gorm:"not null;index"`
	Leader      Profile      `json:"-" gorm:"foreignKey:LeaderID"`
	Memberships []TeamMember `json:"-" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time    `json:"created_at" gorm:"autoCreateTime"`
}

// Members returns the accepted memberships. Memberships must be loaded.
func (t *Team) Members() []TeamMember {
	var out []TeamMember
	for _, m := range t.Memberships {
		if m.InvitationAccepted {
			out = append(out, m)
		}
	}
	return out
}

// Invitees returns memberships still waiting for an answer.
func (t *Team) Invitees() []TeamMember {
	var out []TeamMember
	for _, m := range t.Memberships {
		if m.Status() == InvitationPending {
			out = append(out, m)
		}
	}
	return out
}

// MemberCount counts the leader plus accepted members.
func (t *Team) MemberCount() int {
	return 1 + len(t.Members())
}

// Ready reports whether no invitation is pending.
func (t *Team) Ready() bool {
	return len(t.Invitees()) == 0
}

// Participants returns the leader followed by accepted members.
func (t *Team) Participants() []Profile {
	out := []Profile{t.Leader}
	for _, m := range t.Members() {
		out = append(out, m.Profile)
	}
	return out
}

func (t *Team) IsLeader(profileID string) bool {
	return t.LeaderID == profileID
}

// HasParticipant reports whether the profile leads the team or accepted its invitation.
func (t *Team) HasParticipant(profileID string) bool {
	if t.IsLeader(profileID) {
		return true
	}
	for _, m := range t.Members() {
		if m.ProfileID == profileID {
			return true
		}
	}
	return false
}

// IsReserved reports whether every participant belongs to the given institute.
// Leader and membership profiles must be loaded with their institutes.
func (t *Team) IsReserved(institute string) bool {
	for _, p := range t.Participants() {
		if !p.BelongsTo(institute) {
			return false
		}
	}
	return true
}

// TeamMember is an invitation that becomes a membership once accepted.
type TeamMember struct {
	ID                 string    `json:"-" gorm:"primaryKey"`
	TeamID             string    `json:"-" gorm:"uniqueIndex:idx_team_profile;not null"`
	Team               *Team     `json:"-" gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE"`
	ProfileID          string    `json:"-" gorm:"uniqueIndex:idx_team_profile;not null;index"`
	Profile            Profile   `json:"-" gorm:"foreignKey:ProfileID"`
	InvitationAccepted bool      `json:"-" gorm:"default:false"`
	InvitationRejected bool      `json:"-" gorm:"default:false"`
	JoinedOn           time.Time `json:"-" gorm:"autoUpdateTime"`
}

func (m *TeamMember) Status() string {
	switch {
	case m.InvitationAccepted:
		return InvitationAccepted
	case m.InvitationRejected:
		return InvitationRejected
	default:
		return InvitationPending
	}
}

// Accept moves a pending invitation to accepted.
func (m *TeamMember) Accept() error {
	if m.InvitationAccepted {
		return ErrInvitationAlreadyAccepted
	}
	if m.InvitationRejected {
		return ErrInvitationAlreadyRejected
	}
	m.InvitationAccepted = true
	return nil
}

// Reject marks the invitation rejected; a rejected invitation is never accepted.
func (m *TeamMember) Reject() error {
	if m.InvitationRejected {
		return ErrInvitationAlreadyRejected
	}
	m.InvitationRejected = true
	m.InvitationAccepted = false
	return nil
}

// Reset turns a rejected invitation back into a pending one.
func (m *TeamMember) Reset() {
	m.InvitationAccepted = false
	m.InvitationRejected = false
}
