package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/agent-conversations/internal/model"
	"github.com/capitalize-ai/agent-conversations/internal/service"
	"github.com/capitalize-ai/agent-conversations/pkg/logger"
	"github.com/capitalize-ai/agent-conversations/pkg/metrics"
	"github.com/capitalize-ai/agent-conversations/pkg/tracing"
)

// Store is the conversation store the adapter wraps.
type Store interface {
	Ping(ctx context.Context) error
	AgentKey(conversationID int64, agentType, agentID string) model.AgentStateKey

	CreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) (*model.Conversation, error)
	GetOrCreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) (*model.Conversation, bool, error)
	GetConversation(ctx context.Context, scope model.Scope, id int64, opts service.GetOptions) (*model.Conversation, error)
	ListConversations(ctx context.Context, scope model.Scope, filter model.ConversationFilter, limit, offset int) (*model.ConversationList, error)
	UpdateConversationStatus(ctx context.Context, scope model.Scope, id int64, status model.ConversationStatus) (*model.Conversation, error)
	UpdateConversationProgress(ctx context.Context, scope model.Scope, id int64, progress model.ConversationProgress) (*model.Conversation, error)

	AddMessage(ctx context.Context, scope model.Scope, conversationID int64, params model.AddMessageParams) (*model.Message, error)
	GetMessages(ctx context.Context, scope model.Scope, conversationID int64, filter model.MessageFilter) ([]model.Message, error)

	SaveAgentState(ctx context.Context, scope model.Scope, conversationID int64, params model.SaveAgentStateParams) (*model.AgentState, error)
	GetAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) (*model.AgentState, error)
	GetOtherAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) (*model.AgentState, error)
	RecordInteraction(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string, outcome model.Interaction) (*model.AgentState, error)

	UpdateConversationContext(ctx context.Context, scope model.Scope, conversationID int64, u model.ContextUpdate) (*model.ConversationContext, error)
	GetConversationContext(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationContext, error)
	MarkContextSummarized(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationContext, error)

	AddParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string, role model.ParticipantRole, permissions []string) (*model.Participant, error)
	DeactivateParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string) error
	GetConversationSummary(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationSummary, error)
}

var _ Store = (*service.ConversationStore)(nil)

const (
	reasonCached        = "storage unavailable: returning last known result"
	reasonPlaceholder   = "storage unavailable: returning unsaved placeholder"
	reasonUnsavedUpdate = "storage unavailable: update applied to last known context, not saved"
	reasonUnknown       = "storage unavailable: no known result"
)

// Adapter retries every store operation that fails transiently. After the
// last attempt, the operations agents depend on degrade to a cached copy or
// a placeholder instead of failing.
type Adapter struct {
	store  Store
	policy Policy
	cache  Cache
	logger *logger.Logger
	now    func() time.Time
}

// NewAdapter wraps store.
func NewAdapter(store Store, policy Policy, cache Cache, log *logger.Logger) *Adapter {
	return &Adapter{
		store:  store,
		policy: policy,
		cache:  cache,
		logger: log,
		now:    time.Now,
	}
}

// do runs fn under the retry policy. Only transient storage errors are
// retried.
func (a *Adapter) do(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := tracing.Tracer().Start(ctx, "store."+op)
	defer span.End()

	start := time.Now()
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil || model.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, a.policy.BackOff(ctx), func(err error, wait time.Duration) {
		metrics.StoreRetriesTotal.WithLabelValues(op).Inc()
		a.logger.Debug("retrying store operation",
			zap.String("operation", op),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	})

	span.SetAttributes(attribute.Int("store.attempts", attempts))
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.RecordStoreOperation(op, status, time.Since(start).Seconds())
	return err
}

// call is do for operations with a result.
func call[T any](ctx context.Context, a *Adapter, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := a.do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// degradable reports whether err is an exhausted transient failure rather
// than a caller error or cancellation.
func degradable(ctx context.Context, err error) bool {
	return model.IsTransient(err) && ctx.Err() == nil
}

func cached[T any](a *Adapter, key string) (T, bool) {
	var zero T
	v, ok := a.cache.Get(key)
	if !ok {
		return zero, false
	}
	out, ok := v.(T)
	return out, ok
}

// fallback returns the stored result cached at key. Otherwise it returns
// the placeholder cached at placeholderKey, building and caching one with
// build on first use. Placeholders never land under key, so they are never
// served as a stored result.
func fallback[T any](a *Adapter, op, key, placeholderKey string, clone func(T) T, build func(placeholderKey string) T) Outcome[T] {
	if v, ok := cached[T](a, key); ok {
		metrics.DegradedResultsTotal.WithLabelValues(op, "cache").Inc()
		a.logger.Warn("store unavailable, returning cached result", zap.String("operation", op))
		return Degraded(clone(v), reasonCached)
	}
	p, ok := cached[T](a, placeholderKey)
	if ok {
		p = clone(p)
	} else {
		p = build(placeholderKey)
		a.cache.Set(placeholderKey, clone(p))
	}
	metrics.DegradedResultsTotal.WithLabelValues(op, "placeholder").Inc()
	a.logger.Warn("store unavailable, returning placeholder", zap.String("operation", op))
	return Degraded(p, reasonPlaceholder)
}

// Ping checks the store once.
func (a *Adapter) Ping(ctx context.Context) error {
	return a.store.Ping(ctx)
}

// AgentKey resolves an agent's upsert identity.
func (a *Adapter) AgentKey(conversationID int64, agentType, agentID string) model.AgentStateKey {
	return a.store.AgentKey(conversationID, agentType, agentID)
}

// GetOrCreateConversation degrades on storage exhaustion.
func (a *Adapter) GetOrCreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) Outcome[*model.Conversation] {
	const op = "get_or_create_conversation"
	key := conversationKey(scope, params)
	conv, err := call(ctx, a, op, func(ctx context.Context) (*model.Conversation, error) {
		c, _, err := a.store.GetOrCreateConversation(ctx, scope, params)
		return c, err
	})
	switch {
	case err == nil:
		a.cache.Set(key, conv.Clone())
		return Stored(conv)
	case degradable(ctx, err):
		return fallback(a, op, key, joinKey(key, op), (*model.Conversation).Clone, func(pk string) *model.Conversation {
			return placeholderConversation(pk, scope, params, a.now().UTC())
		})
	default:
		return Failed[*model.Conversation](err)
	}
}

// AddMessage degrades on storage exhaustion.
func (a *Adapter) AddMessage(ctx context.Context, scope model.Scope, conversationID int64, params model.AddMessageParams) Outcome[*model.Message] {
	const op = "add_message"
	key := messageKey(scope, conversationID, params)
	msg, err := call(ctx, a, op, func(ctx context.Context) (*model.Message, error) {
		return a.store.AddMessage(ctx, scope, conversationID, params)
	})
	switch {
	case err == nil:
		a.cache.Set(key, msg.Clone())
		return Stored(msg)
	case degradable(ctx, err):
		return fallback(a, op, key, joinKey(key, op), (*model.Message).Clone, func(pk string) *model.Message {
			return placeholderMessage(pk, scope, conversationID, params, a.now().UTC())
		})
	default:
		return Failed[*model.Message](err)
	}
}

// SaveAgentState degrades on storage exhaustion. A degraded save returns
// the last stored state when one is cached, otherwise an unsaved state
// carrying the requested payload.
func (a *Adapter) SaveAgentState(ctx context.Context, scope model.Scope, conversationID int64, params model.SaveAgentStateParams) Outcome[*model.AgentState] {
	const op = "save_agent_state"
	agentKey := a.store.AgentKey(conversationID, params.AgentType, params.AgentID)
	params.AgentID = agentKey.AgentID
	key := agentStateKey(scope, agentKey)

	state, err := call(ctx, a, op, func(ctx context.Context) (*model.AgentState, error) {
		return a.store.SaveAgentState(ctx, scope, conversationID, params)
	})
	switch {
	case err == nil:
		a.cache.Set(key, state.Clone())
		return Stored(state)
	case degradable(ctx, err):
		unsaved := payloadKey(joinKey(key, op), params.StateData, params.CheckpointData)
		return fallback(a, op, key, unsaved, (*model.AgentState).Clone, func(pk string) *model.AgentState {
			return placeholderAgentState(pk, scope, agentKey, params.StateData, params.CheckpointData, a.now().UTC())
		})
	default:
		return Failed[*model.AgentState](err)
	}
}

// GetAgentState degrades on storage exhaustion. A stored outcome may hold
// a nil value when nothing was saved yet.
func (a *Adapter) GetAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) Outcome[*model.AgentState] {
	const op = "get_agent_state"
	agentKey := a.store.AgentKey(conversationID, agentType, agentID)
	key := agentStateKey(scope, agentKey)

	state, err := call(ctx, a, op, func(ctx context.Context) (*model.AgentState, error) {
		return a.store.GetAgentState(ctx, scope, conversationID, agentType, agentKey.AgentID)
	})
	switch {
	case err == nil:
		if state != nil {
			a.cache.Set(key, state.Clone())
		}
		return Stored(state)
	case degradable(ctx, err):
		return fallback(a, op, key, joinKey(key, op), (*model.AgentState).Clone, func(pk string) *model.AgentState {
			return placeholderAgentState(pk, scope, agentKey, nil, nil, a.now().UTC())
		})
	default:
		return Failed[*model.AgentState](err)
	}
}

// CreateConversation retries transient failures.
func (a *Adapter) CreateConversation(ctx context.Context, scope model.Scope, params model.CreateConversationParams) (*model.Conversation, error) {
	return call(ctx, a, "create_conversation", func(ctx context.Context) (*model.Conversation, error) {
		return a.store.CreateConversation(ctx, scope, params)
	})
}

// GetConversation retries transient failures.
func (a *Adapter) GetConversation(ctx context.Context, scope model.Scope, id int64, opts service.GetOptions) (*model.Conversation, error) {
	return call(ctx, a, "get_conversation", func(ctx context.Context) (*model.Conversation, error) {
		return a.store.GetConversation(ctx, scope, id, opts)
	})
}

// ListConversations retries transient failures.
func (a *Adapter) ListConversations(ctx context.Context, scope model.Scope, filter model.ConversationFilter, limit, offset int) (*model.ConversationList, error) {
	return call(ctx, a, "list_conversations", func(ctx context.Context) (*model.ConversationList, error) {
		return a.store.ListConversations(ctx, scope, filter, limit, offset)
	})
}

// UpdateConversationStatus retries transient failures.
func (a *Adapter) UpdateConversationStatus(ctx context.Context, scope model.Scope, id int64, status model.ConversationStatus) (*model.Conversation, error) {
	return call(ctx, a, "update_conversation_status", func(ctx context.Context) (*model.Conversation, error) {
		return a.store.UpdateConversationStatus(ctx, scope, id, status)
	})
}

// UpdateConversationProgress retries transient failures.
func (a *Adapter) UpdateConversationProgress(ctx context.Context, scope model.Scope, id int64, progress model.ConversationProgress) (*model.Conversation, error) {
	return call(ctx, a, "update_conversation_progress", func(ctx context.Context) (*model.Conversation, error) {
		return a.store.UpdateConversationProgress(ctx, scope, id, progress)
	})
}

// GetMessages retries transient failures.
func (a *Adapter) GetMessages(ctx context.Context, scope model.Scope, conversationID int64, filter model.MessageFilter) ([]model.Message, error) {
	return call(ctx, a, "get_messages", func(ctx context.Context) ([]model.Message, error) {
		return a.store.GetMessages(ctx, scope, conversationID, filter)
	})
}

// GetOtherAgentState degrades on storage exhaustion to the last state read
// for the same agent. Without one, the degraded value is nil. A stored
// outcome may hold a nil value when the agent has saved nothing.
func (a *Adapter) GetOtherAgentState(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string) Outcome[*model.AgentState] {
	const op = "get_other_agent_state"
	key := otherAgentStateKey(scope, conversationID, agentType, agentID)
	state, err := call(ctx, a, op, func(ctx context.Context) (*model.AgentState, error) {
		return a.store.GetOtherAgentState(ctx, scope, conversationID, agentType, agentID)
	})
	switch {
	case err == nil:
		if state != nil {
			a.cache.Set(key, state.Clone())
		}
		return Stored(state)
	case degradable(ctx, err):
		if v, ok := cached[*model.AgentState](a, key); ok {
			metrics.DegradedResultsTotal.WithLabelValues(op, "cache").Inc()
			a.logger.Warn("store unavailable, returning cached result", zap.String("operation", op))
			return Degraded(v.Clone(), reasonCached)
		}
		metrics.DegradedResultsTotal.WithLabelValues(op, "none").Inc()
		a.logger.Warn("store unavailable, no cached result", zap.String("operation", op))
		return Degraded[*model.AgentState](nil, reasonUnknown)
	default:
		return Failed[*model.AgentState](err)
	}
}

// RecordInteraction retries transient failures.
func (a *Adapter) RecordInteraction(ctx context.Context, scope model.Scope, conversationID int64, agentType, agentID string, outcome model.Interaction) (*model.AgentState, error) {
	return call(ctx, a, "record_interaction", func(ctx context.Context) (*model.AgentState, error) {
		return a.store.RecordInteraction(ctx, scope, conversationID, agentType, agentID, outcome)
	})
}

// UpdateConversationContext degrades on storage exhaustion. The degraded
// value is u applied to the last known context, or to an empty one. It is
// not saved and not cached.
func (a *Adapter) UpdateConversationContext(ctx context.Context, scope model.Scope, conversationID int64, u model.ContextUpdate) Outcome[*model.ConversationContext] {
	const op = "update_context"
	key := contextKey(scope, conversationID)
	cc, err := call(ctx, a, op, func(ctx context.Context) (*model.ConversationContext, error) {
		return a.store.UpdateConversationContext(ctx, scope, conversationID, u)
	})
	switch {
	case err == nil:
		a.cache.Set(key, cc.Clone())
		return Stored(cc)
	case degradable(ctx, err):
		now := a.now().UTC()
		source := "cache"
		base, ok := cached[*model.ConversationContext](a, key)
		if ok {
			base = base.Clone()
		} else {
			source = "placeholder"
			base = placeholderContext(joinKey(key, op), scope, conversationID, now)
		}
		base.Apply(u, now)
		metrics.DegradedResultsTotal.WithLabelValues(op, source).Inc()
		a.logger.Warn("store unavailable, returning unsaved context update", zap.String("operation", op))
		return Degraded(base, reasonUnsavedUpdate)
	default:
		return Failed[*model.ConversationContext](err)
	}
}

// GetConversationContext degrades on storage exhaustion. A stored outcome
// holds a nil value when the conversation is not accessible.
func (a *Adapter) GetConversationContext(ctx context.Context, scope model.Scope, conversationID int64) Outcome[*model.ConversationContext] {
	const op = "get_context"
	key := contextKey(scope, conversationID)
	cc, err := call(ctx, a, op, func(ctx context.Context) (*model.ConversationContext, error) {
		return a.store.GetConversationContext(ctx, scope, conversationID)
	})
	switch {
	case err == nil:
		if cc != nil {
			a.cache.Set(key, cc.Clone())
		}
		return Stored(cc)
	case degradable(ctx, err):
		return fallback(a, op, key, joinKey(key, op), (*model.ConversationContext).Clone, func(pk string) *model.ConversationContext {
			return placeholderContext(pk, scope, conversationID, a.now().UTC())
		})
	default:
		return Failed[*model.ConversationContext](err)
	}
}

// MarkContextSummarized retries transient failures.
func (a *Adapter) MarkContextSummarized(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationContext, error) {
	cc, err := call(ctx, a, "mark_context_summarized", func(ctx context.Context) (*model.ConversationContext, error) {
		return a.store.MarkContextSummarized(ctx, scope, conversationID)
	})
	if err == nil {
		a.cache.Set(contextKey(scope, conversationID), cc.Clone())
	}
	return cc, err
}

// AddParticipant retries transient failures.
func (a *Adapter) AddParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string, role model.ParticipantRole, permissions []string) (*model.Participant, error) {
	return call(ctx, a, "add_participant", func(ctx context.Context) (*model.Participant, error) {
		return a.store.AddParticipant(ctx, scope, conversationID, userID, role, permissions)
	})
}

// DeactivateParticipant retries transient failures.
func (a *Adapter) DeactivateParticipant(ctx context.Context, scope model.Scope, conversationID int64, userID string) error {
	return a.do(ctx, "deactivate_participant", func(ctx context.Context) error {
		return a.store.DeactivateParticipant(ctx, scope, conversationID, userID)
	})
}

// GetConversationSummary retries transient failures.
func (a *Adapter) GetConversationSummary(ctx context.Context, scope model.Scope, conversationID int64) (*model.ConversationSummary, error) {
	return call(ctx, a, "get_conversation_summary", func(ctx context.Context) (*model.ConversationSummary, error) {
		return a.store.GetConversationSummary(ctx, scope, conversationID)
	})
}

// IsDegradedID reports whether id belongs to a placeholder.
func IsDegradedID(id int64) bool {
	return id < 0
}
