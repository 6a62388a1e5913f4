// Package domain contains core concepts of the hospital chat client.
// Conversations, messages and participants are plain values; all
// mutation rules live in the owning components.
package domain

import "time"

type ConversationID string

// Role of a participant as reported by the backend.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
	RoleAny     Role = ""
)

// Participant is the other party of a two-sided conversation.
type Participant struct {
	ID          string
	DisplayName string
	Role        Role
	AvatarURL   string
}

// Conversation is a cached row of the conversation directory.
// The server is authoritative: rows are replaced on refresh,
// never patched locally.
type Conversation struct {
	ID          ConversationID
	Participant Participant
	LastMessage string
	UnreadCount int
	UpdatedAt   time.Time
}
