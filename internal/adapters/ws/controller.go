package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sageteck/tuneup-relay/internal/app"
	"github.com/sageteck/tuneup-relay/internal/config"
	"github.com/sageteck/tuneup-relay/internal/core"
	"github.com/sageteck/tuneup-relay/internal/domain"
)

// Controller upgrades HTTP requests into live chat connections and runs
// their read/write pumps.
type Controller struct {
	Dispatcher *app.Dispatcher
	Cfg        *config.Config
	limiter    *EventRateLimiter
	upgrader   websocket.Upgrader
}

func NewController(disp *app.Dispatcher, cfg *config.Config) *Controller {
	origins := cfg.CORS.Policy()
	return &Controller{
		Dispatcher: disp,
		Cfg:        cfg,
		limiter:    NewEventRateLimiter(60, 10*time.Second),
		upgrader: websocket.Upgrader{
			// The live path carries no shared secret, so the origin
			// policy is the only browser-side control. Requests with
			// no Origin header are not from browsers and pass.
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin != "" && !origins.Allow(origin) {
					log.Warn().Str("module", "ws").Str("origin", origin).Msg("upgrade refused, origin not allowed")
					return false
				}
				return true
			},
		},
	}
}

// HandleChat admits one live connection. Claims arrive out-of-band in the
// handshake (query params, headers as fallback); bad claims refuse the
// connection before the upgrade so no transport session ever exists.
func (ctl *Controller) HandleChat(ctx context.Context, c *gin.Context) {
	claims := parseClaims(c)
	if err := ctl.Dispatcher.Guard.AuthorizeConnect(claims.TenantID, claims.UserID); err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("handshake refused")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": core.ErrorCode(err)})
		return
	}

	socket, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("ws upgrade")
		return
	}

	sid := core.ConnectionID(uuid.NewString())
	conn := newChatConn(socket)

	if err := ctl.Dispatcher.Connect(sid, claims, conn); err != nil {
		// Registry fault after admission passed. No write pump is
		// running yet, so the frame goes straight onto the socket.
		ctl.refuseSocket(socket, err)
		conn.Close()
		return
	}

	log.Info().Str("module", "ws").Str("sid", string(sid)).
		Int64("tenant_id", int64(claims.TenantID)).Msg("new chat connection")

	ctl.sendJSON(conn, core.Envelope{Event: "connected", Data: gin.H{
		"sid":         sid,
		"tenant_room": domain.TenantRoom(claims.TenantID),
	}})

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, sid, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

// refuseSocket writes an error envelope directly on a freshly upgraded
// socket that has no write pump yet.
func (ctl *Controller) refuseSocket(socket *websocket.Conn, err error) {
	b, merr := json.Marshal(core.Envelope{Event: "error", Data: map[string]any{"error": core.ErrorCode(err)}})
	if merr != nil {
		return
	}
	_ = socket.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout))
	_ = socket.WriteMessage(websocket.TextMessage, b)
}

// parseClaims reads the handshake identity claims. Missing or malformed
// values come back zero and fail admission.
func parseClaims(c *gin.Context) app.AuthClaims {
	tenant := queryOrHeader(c, "tenant_id", "X-Tenant-ID")
	user := queryOrHeader(c, "user_id", "X-User-ID")
	isStudent := queryOrHeader(c, "is_student", "X-Is-Student")

	tenantID, _ := strconv.ParseInt(tenant, 10, 64)
	userID, _ := strconv.ParseInt(user, 10, 64)
	student := isStudent != "false" && isStudent != "0"

	return app.AuthClaims{
		TenantID: domain.TenantID(tenantID),
		UserID:   domain.UserID(userID),
		Role:     domain.RoleFromIsStudent(student),
	}
}

func queryOrHeader(c *gin.Context, query, header string) string {
	if v := c.Query(query); v != "" {
		return v
	}
	return c.GetHeader(header)
}
