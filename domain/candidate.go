package domain

// Candidate is a user returned by the participant search, eligible to
// start a new conversation with. Result sets are transient and replaced
// wholesale on each completed search.
type Candidate struct {
	ID          string
	DisplayName string
	Email       string
	Role        Role
}
