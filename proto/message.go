package proto

// HostMessage is the closed union of application payloads carried inside
// fragmented packets: either a client-to-server request or a
// server-to-client reply. Exactly one of the two fields is non-nil; the
// json tags double as the discriminator the fragmentation codec relies on
// (spec.md §4.4 — canonical JSON, no NUL bytes inside a valid encoding).
type HostMessage struct {
	FromClient *ClientToServerMessage `json:"from_client,omitempty"`
	FromServer *ServerToClientMessage `json:"from_server,omitempty"`
}

// ClientToServerMessage is the closed union of requests a client can send
// to a server.
type ClientToServerMessage struct {
	RegisterUser   *RegisterUser   `json:"register_user,omitempty"`
	UnregisterUser *UnregisterUser `json:"unregister_user,omitempty"`
	SendText       *SendText       `json:"send_text,omitempty"`
}

type RegisterUser struct {
	Name string `json:"name"`
}

type UnregisterUser struct {
	Name string `json:"name"`
}

type SendText struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// ServerToClientMessage is the closed union of replies a server can send
// to a client, plus the out-of-band SendingError surfaced locally on
// send failure (spec.md §6).
type ServerToClientMessage struct {
	RegisteredUsers *RegisteredUsers `json:"registered_users,omitempty"`
	TextReceived    *TextReceived    `json:"text_received,omitempty"`
	SendingError    *SendingError    `json:"sending_error,omitempty"`
}

type RegisteredUsers struct {
	Names []string `json:"names"`
}

type TextReceived struct {
	From string `json:"from"`
	Body string `json:"body"`
}

// SendingError is the fixed explanatory envelope returned to the UI
// collaborator when a send fails locally (missing route or channel
// failure) rather than being reported by the network.
type SendingError struct {
	Error   string                 `json:"error"`
	Message ClientToServerMessage  `json:"message"`
}
