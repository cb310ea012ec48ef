package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/core"
)

func (ctl *Controller) writePump(ctx context.Context, sid core.ConnectionID, c *chatConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client events until the connection drops, then feeds the
// disconnect into the dispatcher so no membership leaks.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sid core.ConnectionID, c *chatConn) {
	defer func() {
		cancel()
		ctl.Dispatcher.Disconnect(sid)
		ctl.limiter.Forget(sid)
		c.Close()
		log.Info().Str("module", "ws").Str("sid", string(sid)).Msg("readPump closing")
	}()

	pongWait := ctl.Cfg.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			ctl.handleEvent(sid, c, data)
		}
	}
}

func (ctl *Controller) handleEvent(sid core.ConnectionID, c *chatConn, data []byte) {
	if !ctl.limiter.Allow(sid) {
		log.Warn().Str("module", "ws").Str("sid", string(sid)).Msg("event rate limit hit")
		ctl.sendErrorCode(c, "rate_limited")
		return
	}

	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("sid", string(sid)).Msg("bad event json")
		ctl.sendErrorCode(c, "bad_payload")
		return
	}

	switch env.Event {
	case "join_conversation":
		ctl.handleJoin(sid, c, env.Data)
	case "leave_room":
		ctl.handleLeave(sid, c, env.Data)
	case "typing_status":
		ctl.handleRelay(sid, c, env.Data, ctl.Dispatcher.RelayTypingStatus)
	case "messages_read":
		ctl.handleRelay(sid, c, env.Data, ctl.Dispatcher.RelayMessagesRead)
	case "test_message":
		ctl.handleTestMessage(sid, c, env.Data)
	case "ping":
		ctl.sendJSON(c, core.Envelope{Event: "pong"})
	default:
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
		ctl.sendErrorCode(c, "unknown_event")
	}
}
