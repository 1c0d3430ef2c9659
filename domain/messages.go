package domain

// Client event types sent from the app over the voice socket
const (
	ClientEventConfig = "config"
	ClientEventAudio  = "audio"
	ClientEventPing   = "ping"
)

// Server event types sent back to the app
const (
	ServerEventConfigAck     = "config_ack"
	ServerEventAudioDelta    = "audio_delta"
	ServerEventAudioResponse = "audio_response"
	ServerEventTextResponse  = "text_response"
	ServerEventError         = "error"
	ServerEventPong          = "pong"
)

// ClientMessage represents an incoming event from the app
type ClientMessage struct {
	Type       string `json:"type"`
	PersonaID  string `json:"persona_id,omitempty"`
	Payload    string `json:"payload,omitempty"` // base64 encoded container bytes
	FormatHint string `json:"format_hint,omitempty"`
}

// ServerMessage represents an outgoing event to the app
type ServerMessage struct {
	Type      string `json:"type"`
	PersonaID string `json:"persona_id,omitempty"`
	Payload   string `json:"payload,omitempty"` // base64 encoded PCM or container
	Format    string `json:"format,omitempty"`
	Text      string `json:"text,omitempty"`
	Message   string `json:"message,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

// ErrorMessage builds an error event
func ErrorMessage(message string) ServerMessage {
	return ServerMessage{Type: ServerEventError, Message: message}
}
