package handler

import (
	"github.com/go-chi/chi/v5"
)

// API groups the authenticated endpoint handlers.
type API struct {
	Conversations *ConversationHandler
	Messages      *MessageHandler
	Participants  *ParticipantHandler
	Context       *ContextHandler
	Agents        *AgentHandler
	Events        *EventHandler
}

// Mount registers the conversation routes on r. Authentication must
// already be applied.
func (a *API) Mount(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", a.Conversations.Create)
		r.Get("/", a.Conversations.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.Conversations.Get)
			r.Put("/status", a.Conversations.UpdateStatus)
			r.Put("/progress", a.Conversations.UpdateProgress)
			r.Get("/summary", a.Conversations.Summary)

			r.Get("/messages", a.Messages.List)
			r.Post("/messages", a.Messages.Send)

			r.Post("/participants", a.Participants.Add)
			r.Delete("/participants/{userID}", a.Participants.Remove)

			r.Get("/context", a.Context.Get)
			r.Patch("/context", a.Context.Update)
			r.Post("/context/summarized", a.Context.MarkSummarized)

			r.Get("/agents/{agentType}/state", a.Agents.GetState)
			r.Put("/agents/{agentType}/state", a.Agents.SaveState)
			r.Post("/agents/{agentType}/messages", a.Agents.SendMessage)

			r.Get("/events", a.Events.Stream)
		})
	})
}
