package resilience

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

// placeholderNamespace seeds the name-based uuids of placeholders.
var placeholderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:agent-conversations:placeholder"))

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func joinKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func conversationKey(scope model.Scope, params model.CreateConversationParams) string {
	target := "title:" + digest(strings.TrimSpace(params.Title))
	if id := scope.ConversationID(); id > 0 {
		target = "id:" + strconv.FormatInt(id, 10)
	}
	return joinKey("conversation", scope.OrganizationID(), scope.UserID(), target)
}

func messageKey(scope model.Scope, conversationID int64, params model.AddMessageParams) string {
	return joinKey("message", scope.OrganizationID(), scope.UserID(), strconv.FormatInt(conversationID, 10),
		string(params.Role), deref(params.AgentType), deref(params.AgentID), digest(params.Content))
}

func agentStateKey(scope model.Scope, key model.AgentStateKey) string {
	return joinKey("agent_state", scope.OrganizationID(), scope.UserID(),
		strconv.FormatInt(key.ConversationID, 10), key.AgentType, key.AgentID)
}

func otherAgentStateKey(scope model.Scope, conversationID int64, agentType, agentID string) string {
	return joinKey("other_agent_state", scope.OrganizationID(), scope.UserID(),
		strconv.FormatInt(conversationID, 10), agentType, agentID)
}

func contextKey(scope model.Scope, conversationID int64) string {
	return joinKey("context", scope.OrganizationID(), scope.UserID(), strconv.FormatInt(conversationID, 10))
}

// payloadKey extends key with a digest of the given payloads. fmt prints
// map keys in sorted order, so equal payloads give equal keys.
func payloadKey(key string, payloads ...model.Payload) string {
	return joinKey(key, digest(fmt.Sprint(payloads)))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// placeholderID derives a stable negative id from key. Persisted rows
// always have positive ids.
func placeholderID(key string) int64 {
	sum := sha256.Sum256([]byte(key))
	id := int64(binary.BigEndian.Uint64(sum[:8]) >> 1)
	if id == 0 {
		id = 1
	}
	return -id
}

func placeholderUUID(key string) uuid.UUID {
	return uuid.NewSHA1(placeholderNamespace, []byte(key))
}
