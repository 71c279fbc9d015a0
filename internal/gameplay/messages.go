// Package gameplay carries the message catalogue exchanged inside wire
// frames and the embedded ship catalogue used by the board engine.
package gameplay

// Result carries a terminal or informational outcome message to a client.
type Result struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// NewResult builds a server->client `result` payload.
func NewResult(msg string) Result { return Result{Type: "result", Msg: msg} }

// Board carries a rendered grid, either the setup view (ships visible) or
// the display view (hit/miss/unknown only).
type Board struct {
	Type  string `json:"type"`
	Ships bool   `json:"ships"`
	Data  string `json:"data"`
}

// NewBoard builds a server->client `board` payload.
func NewBoard(data string, showShips bool) Board {
	return Board{Type: "board", Ships: showShips, Data: data}
}

// Prompt carries a request for the client's next input, with an optional
// timeout hint in seconds.
type Prompt struct {
	Type    string `json:"type"`
	Msg     string `json:"msg"`
	Timeout int    `json:"timeout,omitempty"`
}

// NewPrompt builds a server->client `prompt` payload.
func NewPrompt(msg string) Prompt { return Prompt{Type: "prompt", Msg: msg} }

// NewPromptWithTimeout builds a `prompt` payload annotated with a timeout hint.
func NewPromptWithTimeout(msg string, timeoutSeconds int) Prompt {
	return Prompt{Type: "prompt", Msg: msg, Timeout: timeoutSeconds}
}

// SMessage carries a short status or error string, typically during
// authentication or mid-turn validation.
type SMessage struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// NewSMessage builds a server->client `s_msg` payload.
func NewSMessage(msg string) SMessage { return SMessage{Type: "s_msg", Msg: msg} }

// Waiting tells a client it must wait on its opponent or the queue.
type Waiting struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// NewWaiting builds a server->client `waiting` payload.
func NewWaiting(msg string) Waiting { return Waiting{Type: "waiting", Msg: msg} }

// Shutdown tells a client the server is going away.
type Shutdown struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// NewShutdown builds a server->client `shutdown` payload.
func NewShutdown(msg string) Shutdown { return Shutdown{Type: "shutdown", Msg: msg} }

// Chat carries a broadcast chat line, in either direction.
type Chat struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// NewChat builds a `chat` payload.
func NewChat(msg string) Chat { return Chat{Type: "chat", Msg: msg} }

// Command carries a raw client->server input line (coordinate, auth verb,
// or rematch reply).
type Command struct {
	Type  string `json:"type"`
	Coord string `json:"coord"`
}

// Envelope is the minimal shape every inbound payload shares: enough to
// discriminate on Type before decoding the rest.
type Envelope struct {
	Type string `json:"type"`
}
