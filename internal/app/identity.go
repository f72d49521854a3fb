package app

// Identity exposes the player a game belongs to, if any.
// It is consulted when a session finishes, so a late login still gets its score saved.
type Identity interface {
	CurrentUserID() (string, bool)
}

// UserIdentity is a fixed logged-in player.
type UserIdentity string

func (u UserIdentity) CurrentUserID() (string, bool) {
	return string(u), u != ""
}

// Anonymous is the identity of a guest player.
var Anonymous Identity = UserIdentity("")
