package ws

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cmallory/chat-relay/auth"
	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/globals"
	"github.com/cmallory/chat-relay/persistence"
	"github.com/cmallory/chat-relay/room"
	"github.com/cmallory/chat-relay/types"
	"github.com/gorilla/websocket"
)

// Handler drives one websocket connection end to end: it resolves the
// sender's identity and target room during the handshake, registers the send
// path, pumps inbound frames through persist-then-broadcast, and guarantees
// deregistration on every exit edge.
type Handler struct {
	registry  *Registry
	resolver  *auth.Resolver
	directory *room.Directory
	store     persistence.Persister
	cfg       *config.Config

	upgrader websocket.Upgrader
}

func NewHandler(registry *Registry, resolver *auth.Resolver, directory *room.Directory, store persistence.Persister, cfg *config.Config) *Handler {
	return &Handler{
		registry:  registry,
		resolver:  resolver,
		directory: directory,
		store:     store,
		cfg:       cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// bearerCredential extracts the bearer credential from the handshake: the
// Authorization header, or the access_token query parameter for clients that
// cannot set headers on a websocket dial.
func bearerCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("access_token")
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	principal, err := h.resolver.Resolve(bearerCredential(r))
	if err != nil {
		var rejected *auth.RejectedError
		reason := "authentication failed"
		if errors.As(err, &rejected) {
			reason = rejected.Reason
		}
		globals.AppLogger.Info("handshake rejected", "reason", reason)
		http.Error(w, reason, http.StatusUnauthorized)
		return
	}

	roomIdentifier, err := h.resolveRoom(r, principal)
	if err != nil {
		globals.AppLogger.Info("room resolution failed", "user", principal.ID, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	c := newClient(conn, *principal, roomIdentifier, h.cfg.TimeoutConfig.WriteWait, h.cfg.TimeoutConfig.PongWait)

	h.registry.Register(roomIdentifier, c)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.registry.Unregister(roomIdentifier, c)
			c.closeSend()
			conn.Close()
			h.SendInfo(roomIdentifier)
		})
	}
	defer cleanup()

	go c.writeLoop()

	globals.AppLogger.Info("client connected", "user", principal.ID, "room", roomIdentifier)
	h.SendInfo(roomIdentifier)
	h.replayHistory(c)

	h.readLoop(c)
}

// resolveRoom determines the target room identifier from the handshake
// parameters: either an explicit identifier (the room must already exist) or
// a participant-id set to derive it from. The caller is always part of the
// derived member set.
func (h *Handler) resolveRoom(r *http.Request, principal *types.Principal) (string, error) {
	vals := r.URL.Query()
	if identifier := vals.Get("room"); identifier != "" {
		if _, err := h.directory.FindByIdentifier(identifier); err != nil {
			if errors.Is(err, persistence.ErrNotFound) {
				return "", errors.New("unknown room")
			}
			return "", errors.New("room lookup failed")
		}
		return identifier, nil
	}
	if members := vals.Get("members"); members != "" {
		memberIds := []string{principal.ID}
		for _, id := range strings.Split(members, ",") {
			if id != "" {
				memberIds = append(memberIds, id)
			}
		}
		rm, err := h.directory.FindOrCreate(memberIds)
		if err != nil {
			return "", errors.New("room resolution failed")
		}
		return rm.RoomIdentifier, nil
	}
	return "", errors.New("no room selection supplied")
}

// readLoop processes inbound frames sequentially: build the message record
// with the already-resolved principal as sender, append it to the store, then
// broadcast, strictly in that order, so a message is never visible without
// being durable. It returns on disconnect or a fatal transport error.
func (h *Handler) readLoop(c *Client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Info("connection closed unexpectedly", "user", c.principal.ID, "error", err)
			}
			return
		}

		// The inbound payload is the message body, verbatim.
		msg := &types.Message{
			RoomId:    c.roomIdentifier,
			SenderId:  c.principal.ID,
			Message:   string(raw),
			CreatedAt: time.Now(),
		}
		if err := h.store.AppendMessage(msg); err != nil {
			globals.AppLogger.Error("could not persist message", "room", c.roomIdentifier, "error", err)
			h.sendError(c, "PERSISTENCE_FAILED", "message could not be stored")
			continue
		}
		payload, err := types.NewWireMessage(types.WireEventMessage, msg)
		if err != nil {
			globals.AppLogger.Error("could not marshal message", "error", err)
			continue
		}
		h.registry.Broadcast(c.roomIdentifier, payload)
	}
}

// replayHistory sends the room's persisted history to a newly connected
// client, oldest first, before live traffic reaches it.
func (h *Handler) replayHistory(c *Client) {
	history, err := h.store.MessagesByRoom(c.roomIdentifier)
	if err != nil {
		globals.AppLogger.Error("could not load history", "room", c.roomIdentifier, "error", err)
		return
	}
	if size := h.cfg.HistoryConfig.HistorySize; size > 0 && len(history) > size {
		history = history[len(history)-size:]
	}
	for _, msg := range history {
		payload, err := types.NewWireMessage(types.WireEventMessage, msg)
		if err != nil {
			continue
		}
		if !c.trySend(payload) {
			return
		}
	}
}

func (h *Handler) sendError(c *Client, code, message string) {
	payload, err := types.NewWireMessage(types.WireEventError, types.ErrorMessage{Code: code, Message: message})
	if err != nil {
		return
	}
	c.trySend(payload)
}

// SendInfo broadcasts the room's occupancy to its participants.
func (h *Handler) SendInfo(roomIdentifier string) {
	info := types.InfoMessage{
		RoomIdentifier: roomIdentifier,
		NoConnections:  h.registry.NoClients(roomIdentifier),
	}
	payload, err := types.NewWireMessage(types.WireEventInfo, info)
	if err != nil {
		globals.AppLogger.Error("could not marshal room info", "error", err)
		return
	}
	h.registry.Broadcast(roomIdentifier, payload)
}
