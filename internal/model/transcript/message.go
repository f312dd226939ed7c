package transcript

// Role tags who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ValidRole reports whether r is one of the three known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a transcript. Array position is the only ordering
// key: insertion order equals conversation order.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
