package entities

// PersonaStatusActive marks a persona that may be served to clients.
const PersonaStatusActive = "active"

// Persona is an astrologer identity the upstream model is told to embody.
type Persona struct {
	ID                string   `json:"astrologer_id"`
	Name              string   `json:"name"`
	Speciality        string   `json:"speciality"`
	Language          string   `json:"language"`
	Gender            string   `json:"gender"`
	VoiceID           string   `json:"voice_id"`
	SystemPrompt      string   `json:"system_prompt"`
	Greeting          string   `json:"greeting"`
	ExpertiseKeywords []string `json:"expertise_keywords"`
	TextSystemPrompt  string   `json:"text_system_prompt,omitempty"`
	Status            string   `json:"status"`
}

// IsActive reports whether the persona is served by the catalog.
func (p *Persona) IsActive() bool {
	return p.Status == PersonaStatusActive
}

// TextPrompt returns the prompt used for text chat, falling back to the voice prompt.
func (p *Persona) TextPrompt() string {
	if p.TextSystemPrompt != "" {
		return p.TextSystemPrompt
	}
	return p.SystemPrompt
}
