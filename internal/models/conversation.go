package models

// Conversation turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in an interactive session.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
