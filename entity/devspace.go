package entity

import "go.mongodb.org/mongo-driver/bson/primitive"

// Devspace is the per-user team formation record. Team never contains Owner.
type Devspace struct {
	ID                 primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Owner              primitive.ObjectID   `bson:"owner" json:"user"`
	Team               []primitive.ObjectID `bson:"team" json:"team"`
	PendingInvitations []Invitation         `bson:"pending_invitations" json:"pendingInvitations"`
	SentInvitations    []SentInvitation     `bson:"sent_invitations" json:"sentInvitations"`
	Idea               *Idea                `bson:"idea,omitempty" json:"idea,omitempty"`
	Version            int64                `bson:"version" json:"-"`
}

type Invitation struct {
	ID          primitive.ObjectID   `bson:"_id" json:"_id"`
	From        primitive.ObjectID   `bson:"from" json:"from"`
	TeamMembers []primitive.ObjectID `bson:"team_members" json:"teamMembers"`
}

type SentInvitation struct {
	To primitive.ObjectID `bson:"to" json:"to"`
}

type Idea struct {
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
}

func NewDevspace(owner primitive.ObjectID) *Devspace {
	return &Devspace{
		Owner:              owner,
		Team:               []primitive.ObjectID{},
		PendingInvitations: []Invitation{},
		SentInvitations:    []SentInvitation{},
	}
}

// Outstanding is the number of slots counted against the send cap.
func (d *Devspace) Outstanding() int {
	return len(d.Team) + len(d.SentInvitations)
}

func (d *Devspace) HasSentTo(id primitive.ObjectID) bool {
	for _, s := range d.SentInvitations {
		if s.To == id {
			return true
		}
	}
	return false
}

// DevspaceInfo is a devspace record with user references resolved.
type DevspaceInfo struct {
	Owner              primitive.ObjectID `json:"user"`
	Team               []UserSummary      `json:"team"`
	PendingInvitations []InvitationInfo   `json:"pendingInvitations"`
	SentInvitations    []SentInfo         `json:"sentInvitations"`
	Idea               *Idea              `json:"idea,omitempty"`
}

type InvitationInfo struct {
	ID          primitive.ObjectID   `json:"_id"`
	From        UserSummary          `json:"from"`
	TeamMembers []primitive.ObjectID `json:"teamMembers"`
}

type SentInfo struct {
	To UserSummary `json:"to"`
}
