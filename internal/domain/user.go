package domain

// Profile holds the display fields of a chat participant, cached so the
// messaging platform does not have to be queried on every backend call.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
	PhotoURL  string
}

// IsZero reports whether no profile field is set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Merge returns p with empty fields filled from fallback.
func (p Profile) Merge(fallback Profile) Profile {
	if p.Username == "" {
		p.Username = fallback.Username
	}
	if p.FirstName == "" {
		p.FirstName = fallback.FirstName
	}
	if p.LastName == "" {
		p.LastName = fallback.LastName
	}
	if p.PhotoURL == "" {
		p.PhotoURL = fallback.PhotoURL
	}
	return p
}

// Credentials is the per-chat record kept in the credential store.
type Credentials struct {
	TelegramID    int64
	AccessToken   string // empty when absent
	RefreshToken  string // empty when absent
	BackendUserID *int64 // nil until the first successful registration
	Profile       Profile
}
