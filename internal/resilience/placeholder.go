package resilience

import (
	"strings"
	"time"

	"github.com/capitalize-ai/agent-conversations/internal/model"
)

func placeholderConversation(key string, scope model.Scope, params model.CreateConversationParams, now time.Time) *model.Conversation {
	convType := params.Type
	if convType == "" {
		convType = model.DefaultConversationType
	}
	agentContext := params.AgentContext.Clone()
	if agentContext == nil {
		agentContext = model.Payload{}
	}
	return &model.Conversation{
		ID:               placeholderID(key),
		UUID:             placeholderUUID(key),
		OrganizationID:   scope.OrganizationID(),
		UserID:           scope.UserID(),
		EventID:          params.EventID,
		Title:            strings.TrimSpace(params.Title),
		Description:      params.Description,
		Type:             convType,
		Status:           model.ConversationActive,
		PrimaryAgentType: params.PrimaryAgentType,
		AgentContext:     agentContext,
		CreatedAt:        now,
		UpdatedAt:        now,
		LastActivityAt:   now,
	}
}

func placeholderMessage(key string, scope model.Scope, conversationID int64, params model.AddMessageParams, now time.Time) *model.Message {
	contentType := params.ContentType
	if contentType == "" {
		contentType = model.DefaultContentType
	}
	metadata := params.Metadata.Clone()
	if metadata == nil {
		metadata = model.Payload{}
	}
	return &model.Message{
		ID:              placeholderID(key),
		UUID:            placeholderUUID(key),
		OrganizationID:  scope.OrganizationID(),
		ConversationID:  conversationID,
		UserID:          params.Author(scope),
		Role:            params.Role,
		Content:         params.Content,
		ContentType:     contentType,
		AgentType:       params.AgentType,
		AgentID:         params.AgentID,
		ParentMessageID: params.ParentMessageID,
		LatencyMs:       params.LatencyMs,
		TokenCount:      params.TokenCount,
		IsInternal:      params.IsInternal,
		IsError:         params.IsError,
		RequiresAction:  params.RequiresAction,
		Metadata:        metadata,
		CreatedAt:       now,
	}
}

// placeholderAgentState has version 0: it was never written.
func placeholderAgentState(key string, scope model.Scope, agentKey model.AgentStateKey, data, checkpoint model.Payload, now time.Time) *model.AgentState {
	data = data.Clone()
	if data == nil {
		data = model.Payload{}
	}
	return &model.AgentState{
		ID:             placeholderID(key),
		OrganizationID: scope.OrganizationID(),
		ConversationID: agentKey.ConversationID,
		UserID:         scope.UserID(),
		AgentType:      agentKey.AgentType,
		AgentID:        agentKey.AgentID,
		SchemaVersion:  model.StateSchemaVersion,
		StateData:      data,
		CheckpointData: checkpoint.Clone(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// placeholderContext has context version 0: it was never written.
func placeholderContext(key string, scope model.Scope, conversationID int64, now time.Time) *model.ConversationContext {
	cc := model.NewConversationContext(scope.OrganizationID(), conversationID, now)
	cc.ID = placeholderID(key)
	cc.ContextVersion = 0
	return cc
}
