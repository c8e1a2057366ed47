package types

import "encoding/json"

const (
	WireEventMessage = "message"
	WireEventInfo    = "info"
	WireEventError   = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// InfoMessage reports a room's current occupancy to its participants.
type InfoMessage struct {
	RoomIdentifier string `json:"roomIdentifier"`
	NoConnections  int    `json:"noConnections"`
}

// ErrorMessage reports a per-connection failure, f.e. a failed persistence
// attempt. It is only ever sent to the connection that caused it.
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewWireMessage serializes data into the websocket envelope for the given
// event name.
func NewWireMessage(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: raw})
}
