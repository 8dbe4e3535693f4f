package projection

import (
	"chat-session/domain"

	"github.com/samber/lo"
)

// Roster holds the last complete participant list broadcast by the room.
// It is replaced wholesale, never patched.
type Roster struct {
	participants []domain.Participant
}

func NewRoster() *Roster {
	return &Roster{}
}

func (r *Roster) Replace(participants []domain.Participant) {
	r.participants = make([]domain.Participant, len(participants))
	copy(r.participants, participants)
}

func (r *Roster) Clear() {
	r.participants = nil
}

func (r *Roster) Participants() []domain.Participant {
	out := make([]domain.Participant, len(r.participants))
	copy(out, r.participants)
	return out
}

func (r *Roster) Len() int {
	return len(r.participants)
}

func (r *Roster) Find(userID domain.UserID) (domain.Participant, bool) {
	return lo.Find(r.participants, func(p domain.Participant) bool {
		return p.UserID == userID
	})
}
