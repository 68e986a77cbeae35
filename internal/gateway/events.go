package gateway

import "encoding/json"

// Event is the wire format for every server-to-client frame.
type Event struct {
	Event string      `json:"event"`
	Room  string      `json:"room,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// Server event names.
const (
	EventAuthenticated = "authenticated"
	EventJoined        = "joined"
	EventLeft          = "left"
	EventError         = "error"
)

// Client message types.
const (
	MsgAuthenticate = "authenticate"
	MsgJoin         = "join"
	MsgLeave        = "leave"
)

// clientMessage is the envelope for every client-to-server frame. Unknown
// fields are ignored so clients can extend payloads without breaking older
// servers.
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Room  string `json:"room,omitempty"`
}

func encodeEvent(ev Event) []byte {
	buf, err := json.Marshal(ev)
	if err != nil {
		// Event payloads are produced by this process; a marshal failure is
		// a programming error, not a runtime condition.
		panic(err)
	}
	return buf
}

func errorEvent(code, message string) []byte {
	return encodeEvent(Event{
		Event: EventError,
		Data:  map[string]string{"code": code, "message": message},
	})
}
