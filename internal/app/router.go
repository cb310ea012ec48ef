package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// NoExclude is the zero sender for broadcasts that echo to everyone.
const NoExclude core.ConnectionID = ""

// Router fans events out to room members. Delivery to one member is
// fire-and-forget: a broken connection never aborts the rest of the room.
type Router struct {
	Registry *Registry
}

func NewRouter(reg *Registry) *Router {
	return &Router{Registry: reg}
}

// Broadcast serializes the event once and pushes it to every current
// member of the room except the excluded sender. Returns how many
// connections accepted the frame.
func (rt *Router) Broadcast(room domain.RoomName, event string, payload any, exclude core.ConnectionID) int {
	frame, err := json.Marshal(core.Envelope{Event: event, Data: payload})
	if err != nil {
		log.Error().Err(err).Str("module", "app.router").Str("event", event).Msg("marshal event")
		return 0
	}

	members := rt.Registry.MembersOf(room)
	delivered, dropped := 0, 0
	for _, m := range members {
		if m.ID == exclude {
			continue
		}
		if err := m.Conn.TrySend(core.Frame(frame)); err != nil {
			dropped++
			log.Warn().Err(err).Str("module", "app.router").Str("sid", string(m.ID)).
				Str("room", string(room)).Str("event", event).Msg("dropped delivery")
			continue
		}
		delivered++
	}
	log.Debug().Str("module", "app.router").Str("room", string(room)).Str("event", event).
		Int("delivered", delivered).Int("dropped", dropped).Msg("broadcast")
	return delivered
}
