package chat

// WireEvent is the JSON envelope sent server->client.
// Every event has a monotonic Seq for catchup replay.
type WireEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"`

	// session_ready
	SessionID string        `json:"session_id,omitempty"`
	History   []HistoryItem `json:"history,omitempty"`

	// catchup
	Events []WireEvent `json:"events,omitempty"`

	// text_delta / notice / error
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`

	// image_partial / image_final
	B64      string `json:"b64,omitempty"`
	Index    int    `json:"index,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

type HistoryItem struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ClientEvent is the JSON envelope sent client->server.
type ClientEvent struct {
	Type string `json:"type"`

	// message
	Text string `json:"text,omitempty"`

	// generate_image
	Prompt   string `json:"prompt,omitempty"`
	Partials int    `json:"partials,omitempty"`
}
