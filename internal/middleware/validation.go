package middleware

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// MaxContentLength bounds a single message body.
const MaxContentLength = 100000

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > MaxContentLength {
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ParseID parses a positive numeric record id from a path segment.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id format")
	}
	return id, nil
}

// ValidateRole validates a message role supplied by a client. Clients may
// not impersonate the system.
func ValidateRole(role model.Role) error {
	if !role.Valid() {
		return errors.New("unknown message role")
	}
	if role == model.RoleSystem {
		return errors.New("system messages cannot be posted over the API")
	}
	return nil
}

// ValidateAgentType validates an agent type path segment.
func ValidateAgentType(agentType string) error {
	if agentType == "" {
		return errors.New("agent type cannot be empty")
	}
	if len(agentType) > 64 {
		return errors.New("agent type exceeds maximum length")
	}
	for _, r := range agentType {
		if !(r == '_' || r == '-' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return errors.New("agent type must be lowercase letters, digits, '-' or '_'")
		}
	}
	return nil
}

// ValidateTitle validates a conversation title.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return errors.New("title cannot be empty")
	}
	if len(title) > 256 {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
