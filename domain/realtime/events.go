// Package realtime holds the JSON events exchanged with the upstream realtime
// endpoint.
package realtime

import "encoding/json"

// Client event types
const (
	EventSessionUpdate      = "session.update"
	EventConversationCreate = "conversation.item.create"
	EventResponseCreate     = "response.create"
)

// Server event types
const (
	EventSessionCreated          = "session.created"
	EventSessionUpdated          = "session.updated"
	EventAudioDelta              = "response.audio.delta"
	EventAudioDone               = "response.audio.done"
	EventTextDelta               = "response.text.delta"
	EventTextDone                = "response.text.done"
	EventAudioTranscriptDelta    = "response.audio_transcript.delta"
	EventAudioTranscriptDone     = "response.audio_transcript.done"
	EventResponseDone            = "response.done"
	EventInputTranscriptionDone  = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptionError = "conversation.item.input_audio_transcription.failed"
	EventError                   = "error"
)

// Modalities
const (
	ModalityAudio = "audio"
	ModalityText  = "text"
)

// AudioFormatPCM16 is signed 16-bit little-endian PCM at 24 kHz mono
const AudioFormatPCM16 = "pcm16"

// SessionUpdate reconfigures the upstream session
type SessionUpdate struct {
	Type    string  `json:"type"`
	Session Session `json:"session"`
}

// Session is the full upstream session configuration
type Session struct {
	Modalities              []string                 `json:"modalities"`
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        string                   `json:"input_audio_format"`
	OutputAudioFormat       string                   `json:"output_audio_format"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection           `json:"turn_detection,omitempty"`
	Temperature             float64                  `json:"temperature"`
}

// InputAudioTranscription selects the transcription model for user audio
type InputAudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection configures server side voice activity detection
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

// ConversationItemCreate appends an item to the upstream conversation
type ConversationItemCreate struct {
	Type string `json:"type"`
	Item Item   `json:"item"`
}

// Item is a conversation message
type Item struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is one part of an item. Audio is base64 PCM16.
type ContentPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

// Content part types
const (
	ContentInputText  = "input_text"
	ContentInputAudio = "input_audio"
	ContentText       = "text"
)

// ResponseCreate asks the upstream to produce a response
type ResponseCreate struct {
	Type     string          `json:"type"`
	Response ResponseOptions `json:"response"`
}

// ResponseOptions are the per-response overrides
type ResponseOptions struct {
	Modalities   []string `json:"modalities"`
	Instructions string   `json:"instructions,omitempty"`
}

// ServerEvent is the union of upstream events the mediator consumes
type ServerEvent struct {
	Type       string          `json:"type"`
	EventID    string          `json:"event_id,omitempty"`
	ResponseID string          `json:"response_id,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Text       string          `json:"text,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      *ErrorDetail    `json:"error,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
}

// ErrorDetail is the body of an upstream error event
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// NewSessionUpdate wraps a session configuration
func NewSessionUpdate(s Session) SessionUpdate {
	return SessionUpdate{Type: EventSessionUpdate, Session: s}
}

// NewTextItem builds a text conversation item for a role
func NewTextItem(role, text string) ConversationItemCreate {
	partType := ContentInputText
	if role == "assistant" {
		partType = ContentText
	}
	return ConversationItemCreate{
		Type: EventConversationCreate,
		Item: Item{
			Type:    "message",
			Role:    role,
			Content: []ContentPart{{Type: partType, Text: text}},
		},
	}
}

// NewAudioItem builds a user item carrying base64 PCM16 audio
func NewAudioItem(audioBase64 string) ConversationItemCreate {
	return ConversationItemCreate{
		Type: EventConversationCreate,
		Item: Item{
			Type:    "message",
			Role:    "user",
			Content: []ContentPart{{Type: ContentInputAudio, Audio: audioBase64}},
		},
	}
}

// NewResponseCreate requests a response with the given modalities
func NewResponseCreate(instructions string, modalities ...string) ResponseCreate {
	return ResponseCreate{
		Type:     EventResponseCreate,
		Response: ResponseOptions{Modalities: modalities, Instructions: instructions},
	}
}
