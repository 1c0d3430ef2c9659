// Package realtime mediates live voice consultations between a client socket
// and the upstream realtime endpoint. Each user gets one Mediator whose event
// loop owns all session state.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/adapters/audio"
	rtclient "github.com/satriahrh/kundli/server/adapters/realtime"
	"github.com/satriahrh/kundli/server/domain"
	"github.com/satriahrh/kundli/server/domain/entities"
	rt "github.com/satriahrh/kundli/server/domain/realtime"
	"github.com/satriahrh/kundli/server/domain/repositories"
	"github.com/satriahrh/kundli/server/internal/instruction"
)

const (
	mailboxSize         = 64
	dialTimeout         = 15 * time.Second
	storeTimeout        = 5 * time.Second
	defaultTurnTimeout  = 30 * time.Second
	defaultTemperature  = 0.4
	defaultVADThreshold = 0.5
)

// Sink delivers server events to the client connection
type Sink interface {
	Send(msg domain.ServerMessage) error
	Close()
}

// Settler finalizes a consultation when its mediator goes away
type Settler interface {
	Settle(ctx context.Context, summary entities.SessionSummary) error
}

// Config holds the process wide upstream session settings
type Config struct {
	Temperature        float64
	VADThreshold       float64
	TranscriptionModel string
	TurnTimeout        time.Duration
	ResponseFormat     string // wav or mp3
	DefaultPersonaID   string
}

func (c Config) withDefaults() Config {
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.VADThreshold == 0 {
		c.VADThreshold = defaultVADThreshold
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = defaultTurnTimeout
	}
	if c.ResponseFormat == "" {
		c.ResponseFormat = audio.OutputWAV
	}
	return c
}

// Dependencies are the collaborators shared by all mediators. Conversations
// and Settler may be nil.
type Dependencies struct {
	Dialer        repositories.RealtimeDialer
	Synthesizer   *instruction.Synthesizer
	Codec         *audio.Codec
	States        repositories.UserStateStore
	Conversations repositories.ConversationStore
	Settler       Settler
	Config        Config
	Logger        *zap.Logger
}

type eventKind int

const (
	evConfig eventKind = iota
	evAudio
	evUpstream
	evUpstreamClosed
	evTimeout
)

type event struct {
	kind      eventKind
	personaID string
	blob      []byte
	hint      string
	retried   bool
	upstream  rt.ServerEvent
	err       error
	gen       int
}

// Mediator owns one user's live session. Public methods only enqueue work;
// everything else runs on the event loop goroutine.
type Mediator struct {
	userID   string
	sink     Sink
	deps     Dependencies
	cfg      Config
	logger   *zap.Logger
	registry *Registry

	mailbox chan event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	state   atomic.Int32
	// open conversation id, readable off the event loop
	holding atomic.Value

	// owned by the event loop
	personaID       string
	upstream        repositories.RealtimeConn
	gen             int
	pending         []event
	greetingPending bool
	inFlight        bool
	greeting        bool
	delivered       bool
	audioDone       bool
	textOnly        bool
	turnSeq         int
	timer           *time.Timer
	audioBuf        [][]byte
	textBuf         strings.Builder
	transcriptBuf   strings.Builder
	conversationID  string
	startedAt       time.Time

	attachOnce sync.Once
}

func newMediator(userID string, sink Sink, deps Dependencies, registry *Registry) *Mediator {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mediator{
		userID:   userID,
		sink:     sink,
		deps:     deps,
		cfg:      deps.Config.withDefaults(),
		logger:   deps.Logger.With(zap.String("userID", userID)),
		registry: registry,
		mailbox:  make(chan event, mailboxSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	m.personaID = m.cfg.DefaultPersonaID
	if bound, ok := deps.States.Binding(userID); ok {
		m.personaID = bound
	}
	m.setState(StateNew)
	return m
}

// UserID returns the user the mediator belongs to
func (m *Mediator) UserID() string { return m.userID }

// State returns the current lifecycle state
func (m *Mediator) State() State { return State(m.state.Load()) }

// Done is closed once the mediator has been torn down
func (m *Mediator) Done() <-chan struct{} { return m.done }

func (m *Mediator) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("Mediator state changed", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

func (m *Mediator) start() {
	m.attachOnce.Do(func() {
		m.setState(StateIdle)
		go m.run()
	})
}

// SelectPersona changes the active persona
func (m *Mediator) SelectPersona(personaID string) {
	m.enqueue(event{kind: evConfig, personaID: personaID})
}

// OnClientAudio submits one recorded user turn
func (m *Mediator) OnClientAudio(blob []byte, hint string) {
	m.enqueue(event{kind: evAudio, blob: blob, hint: hint})
}

// Handle dispatches a decoded client message
func (m *Mediator) Handle(msg domain.ClientMessage) {
	switch msg.Type {
	case domain.ClientEventConfig:
		m.SelectPersona(msg.PersonaID)
	case domain.ClientEventAudio:
		blob, err := base64.StdEncoding.DecodeString(msg.Payload)
		if err != nil || len(blob) == 0 {
			m.send(domain.ErrorMessage("invalid audio payload"))
			return
		}
		m.OnClientAudio(blob, msg.FormatHint)
	case domain.ClientEventPing:
		m.send(domain.ServerMessage{Type: domain.ServerEventPong})
	default:
		m.send(domain.ErrorMessage("unknown event type: " + msg.Type))
	}
}

// Detach tears the mediator down and waits until the upstream is closed and
// the conversation settled
func (m *Mediator) Detach() {
	m.cancel()
	<-m.done
}

func (m *Mediator) enqueue(ev event) {
	select {
	case m.mailbox <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Mediator) run() {
	defer m.teardown()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.mailbox:
			m.handle(ev)
		}
		if m.State() == StateClosed {
			return
		}
	}
}

func (m *Mediator) handle(ev event) {
	switch ev.kind {
	case evConfig, evAudio:
		if m.State().busy() || m.inFlight {
			m.pending = append(m.pending, ev)
			return
		}
		m.dispatch(ev)
	case evUpstream:
		if ev.gen != m.gen {
			return
		}
		m.onUpstream(ev.upstream)
	case evUpstreamClosed:
		if ev.gen != m.gen || m.upstream == nil {
			return
		}
		m.onUpstreamLost(ev.err)
	case evTimeout:
		if ev.gen != m.turnSeq || !m.State().busy() {
			return
		}
		m.onTimeout()
	}
}

func (m *Mediator) dispatch(ev event) {
	switch ev.kind {
	case evConfig:
		m.selectPersona(ev.personaID)
	case evAudio:
		m.submitTurn(ev)
	}
}

func (m *Mediator) drainPending() {
	for len(m.pending) > 0 && !m.State().busy() && m.State() != StateClosed {
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.dispatch(next)
	}
}

// selectPersona binds the persona and pushes its configuration upstream
func (m *Mediator) selectPersona(personaID string) {
	warning := ""
	if personaID == "" || m.deps.Synthesizer.Persona(personaID) == nil {
		warning = "unknown persona, using default instructions"
		m.logger.Warn("Unknown persona selected", zap.String("personaID", personaID))
	} else {
		m.deps.States.BindPersona(m.userID, personaID)
	}

	if personaID != m.personaID && m.conversationID != "" {
		m.settle()
	}
	m.personaID = personaID
	m.send(domain.ServerMessage{Type: domain.ServerEventConfigAck, PersonaID: personaID, Warning: warning})

	m.greetingPending = true
	if m.upstream == nil {
		m.connect()
		return
	}

	if err := m.sendUpstream(m.sessionUpdate()); err != nil {
		// The socket died before the reader noticed; configure a fresh one.
		m.logger.Warn("Upstream send failed during reconfigure, reconnecting", zap.Error(err))
		m.dropUpstream()
		m.connect()
		return
	}
	m.setState(StateReconfiguring)
	m.armTimer()
	m.openConversation()
}

// connect dials the upstream and sends the initial configuration. The
// mediator stays busy until the upstream acknowledges it.
func (m *Mediator) connect() {
	m.setState(StateUpstreamConnecting)

	ctx, cancel := context.WithTimeout(m.ctx, dialTimeout)
	conn, err := m.deps.Dialer.Dial(ctx)
	cancel()
	if err != nil {
		m.greetingPending = false
		if errors.Is(err, rtclient.ErrUnauthorized) {
			m.logger.Error("Upstream rejected credentials", zap.Error(err))
			m.send(domain.ErrorMessage("voice service authentication failed"))
			m.setState(StateClosed)
			return
		}
		m.logger.Warn("Failed to connect upstream", zap.Error(err))
		m.send(domain.ErrorMessage("voice service unavailable, please try again"))
		m.pending = nil
		m.setState(StateIdle)
		return
	}

	m.gen++
	m.upstream = conn
	go m.readUpstream(conn, m.gen)

	m.setState(StateConfigured)
	if err := m.sendUpstream(m.sessionUpdate()); err != nil {
		m.onUpstreamLost(err)
		return
	}
	m.armTimer()
	m.openConversation()
}

func (m *Mediator) sessionUpdate() rt.SessionUpdate {
	session := m.deps.Synthesizer.Session(m.personaID)
	return rt.NewSessionUpdate(rt.Session{
		Modalities:        []string{rt.ModalityAudio, rt.ModalityText},
		Instructions:      session.Instructions,
		Voice:             session.Voice,
		InputAudioFormat:  rt.AudioFormatPCM16,
		OutputAudioFormat: rt.AudioFormatPCM16,
		InputAudioTranscription: &rt.InputAudioTranscription{
			Model: m.cfg.TranscriptionModel,
		},
		TurnDetection: &rt.TurnDetection{
			Type:              "server_vad",
			Threshold:         m.cfg.VADThreshold,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
			CreateResponse:    false,
		},
		Temperature: m.cfg.Temperature,
	})
}

func (m *Mediator) readUpstream(conn repositories.RealtimeConn, gen int) {
	for {
		ev, err := conn.Read(m.ctx)
		if err != nil {
			m.enqueue(event{kind: evUpstreamClosed, err: err, gen: gen})
			return
		}
		m.enqueue(event{kind: evUpstream, upstream: ev, gen: gen})
	}
}

func (m *Mediator) sendUpstream(ev any) error {
	ctx, cancel := context.WithTimeout(m.ctx, storeTimeout)
	defer cancel()
	return m.upstream.Send(ctx, ev)
}

// submitTurn transcodes a user blob and asks the upstream for a reply
func (m *Mediator) submitTurn(ev event) {
	if m.upstream == nil {
		m.pending = append([]event{ev}, m.pending...)
		m.connect()
		return
	}

	pcm, err := m.deps.Codec.Decode(m.ctx, ev.blob, ev.hint)
	if err != nil {
		m.logger.Warn("Failed to decode client audio", zap.String("hint", ev.hint), zap.Error(err))
		m.send(domain.ErrorMessage("could not decode audio, please try again"))
		return
	}

	turn := m.deps.Synthesizer.ForTurn(m.ctx, m.userID, m.personaID, instruction.ModeVoice)
	events := []any{
		rt.NewTextItem(string(entities.TurnRoleSystem), turn.Context),
		rt.NewAudioItem(base64.StdEncoding.EncodeToString(pcm)),
		rt.NewResponseCreate(turn.ResponseInstructions(), rt.ModalityAudio, rt.ModalityText),
	}
	for _, e := range events {
		if err := m.sendUpstream(e); err != nil {
			m.resubmit(ev, err)
			return
		}
	}

	m.logger.Debug("Turn submitted", zap.Stringer("phase", turn.Phase), zap.Int("pcmBytes", len(pcm)))
	m.beginResponse(false, false)
}

// resubmit handles a turn whose upstream send failed. The turn is retried once
// on a fresh connection; a second failure is reported to the client.
func (m *Mediator) resubmit(ev event, err error) {
	m.logger.Warn("Upstream send failed, reconnecting", zap.Bool("retried", ev.retried), zap.Error(err))
	m.dropUpstream()
	if ev.retried {
		m.send(domain.ErrorMessage("voice service connection lost, please try again"))
		m.drainPending()
		return
	}
	ev.retried = true
	m.pending = append([]event{ev}, m.pending...)
	m.drainPending()
}

// dropUpstream discards a broken connection without touching queued commands
func (m *Mediator) dropUpstream() {
	m.closeUpstream()
	m.stopTimer()
	m.resetBuffers()
	m.setState(StateIdle)
}

// emitGreeting injects the persona greeting and requests it spoken
func (m *Mediator) emitGreeting() {
	m.greetingPending = false
	p := m.deps.Synthesizer.Persona(m.personaID)
	if p == nil || p.Greeting == "" {
		return
	}

	greeting := m.deps.Synthesizer.RecordAssistant(m.userID, p.Greeting)
	if err := m.sendUpstream(rt.NewTextItem(string(entities.TurnRoleAssistant), greeting)); err != nil {
		m.onUpstreamLost(err)
		return
	}
	if err := m.sendUpstream(rt.NewResponseCreate("", rt.ModalityAudio)); err != nil {
		m.onUpstreamLost(err)
		return
	}
	m.appendMessage(entities.TurnRoleAssistant, entities.MessageKindGreeting, greeting)
	m.beginResponse(true, false)
}

func (m *Mediator) beginResponse(greeting, textOnly bool) {
	m.inFlight = true
	m.greeting = greeting
	m.textOnly = textOnly
	m.delivered = false
	m.audioDone = false
	m.resetBuffers()
	m.setState(StateAwaitingResponse)
	m.armTimer()
}

// releaseFence ends the in-flight response and admits queued commands. The
// fence falls once both audio and text are done, on response.done, on error or
// on timeout. It is safe to call more than once per response.
func (m *Mediator) releaseFence() {
	if !m.inFlight {
		return
	}
	m.inFlight = false
	m.greeting = false
	m.stopTimer()
	m.resetBuffers()
	if m.upstream == nil {
		m.setState(StateIdle)
	} else {
		m.setState(StateReady)
	}
	m.drainPending()
}

func (m *Mediator) onUpstream(ev rt.ServerEvent) {
	switch ev.Type {
	case rt.EventSessionCreated:
		m.logger.Debug("Upstream session created")

	case rt.EventSessionUpdated:
		state := m.State()
		if state != StateConfigured && state != StateReconfiguring {
			return
		}
		m.stopTimer()
		m.setState(StateReady)
		if m.greetingPending {
			m.emitGreeting()
		}
		m.drainPending()

	case rt.EventAudioDelta:
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			m.logger.Warn("Invalid audio delta", zap.Error(err))
			return
		}
		m.audioBuf = append(m.audioBuf, pcm)
		m.send(domain.ServerMessage{Type: domain.ServerEventAudioDelta, Payload: ev.Delta})

	case rt.EventAudioDone:
		m.flushAudio()
		m.audioDone = true
		if m.delivered {
			m.releaseFence()
		}

	case rt.EventTextDelta:
		m.textBuf.WriteString(ev.Delta)

	case rt.EventAudioTranscriptDelta:
		m.transcriptBuf.WriteString(ev.Delta)

	case rt.EventTextDone:
		text := ev.Text
		if text == "" {
			text = m.textBuf.String()
		}
		m.textBuf.Reset()
		m.deliverText(text, entities.MessageKindText)
		if m.textOnly || m.audioDone {
			m.releaseFence()
		}

	case rt.EventAudioTranscriptDone:
		text := ev.Transcript
		if text == "" {
			text = m.transcriptBuf.String()
		}
		m.transcriptBuf.Reset()
		m.deliverText(text, entities.MessageKindTranscript)
		if m.audioDone {
			m.releaseFence()
		}

	case rt.EventInputTranscriptionDone:
		if strings.TrimSpace(ev.Transcript) == "" {
			return
		}
		m.deps.Synthesizer.RecordUser(m.userID, ev.Transcript)
		m.appendMessage(entities.TurnRoleUser, entities.MessageKindTranscript, ev.Transcript)

	case rt.EventInputTranscriptionError:
		m.logger.Warn("Upstream could not transcribe user audio", zap.Any("error", ev.Error))

	case rt.EventResponseDone:
		m.flushAudio()
		m.releaseFence()

	case rt.EventError:
		m.onUpstreamError(ev.Error)
	}
}

func (m *Mediator) onUpstreamError(detail *rt.ErrorDetail) {
	message := "voice service error"
	code := ""
	if detail != nil {
		message = detail.Message
		code = detail.Code
	}
	m.logger.Warn("Upstream error", zap.String("code", code), zap.String("message", message))
	m.send(domain.ErrorMessage(message))

	if code == "invalid_api_key" {
		m.setState(StateClosed)
		return
	}
	if m.State() == StateConfigured || m.State() == StateReconfiguring {
		m.stopTimer()
		m.greetingPending = false
		m.setState(StateReady)
		m.drainPending()
		return
	}
	m.releaseFence()
}

// flushAudio delivers the buffered response as one playable container
func (m *Mediator) flushAudio() {
	if len(m.audioBuf) == 0 {
		return
	}
	data, format := m.deps.Codec.ReassembleAs(m.ctx, m.audioBuf, m.cfg.ResponseFormat)
	m.audioBuf = nil
	m.send(domain.ServerMessage{
		Type:    domain.ServerEventAudioResponse,
		Payload: base64.StdEncoding.EncodeToString(data),
		Format:  format,
	})
}

// deliverText scrubs and forwards one assistant reply. Only the first text of
// a response is recorded.
func (m *Mediator) deliverText(text string, kind entities.MessageKind) {
	if strings.TrimSpace(text) == "" || m.delivered {
		return
	}
	m.delivered = true

	if m.greeting {
		// greeting was recorded when injected
		if clean := instruction.Scrub(text); clean != "" {
			m.send(domain.ServerMessage{Type: domain.ServerEventTextResponse, Text: clean})
		}
		return
	}

	clean := m.deps.Synthesizer.RecordAssistant(m.userID, text)
	if clean == "" {
		return
	}
	m.send(domain.ServerMessage{Type: domain.ServerEventTextResponse, Text: clean})
	m.appendMessage(entities.TurnRoleAssistant, kind, clean)
}

func (m *Mediator) onUpstreamLost(err error) {
	m.logger.Warn("Upstream connection lost", zap.Error(err))
	m.closeUpstream()
	m.greetingPending = false

	state := m.State()
	wasBusy := state.busy() || m.inFlight
	if state == StateUpstreamConnecting || state == StateConfigured {
		m.pending = nil
	}
	m.inFlight = false
	m.greeting = false
	m.stopTimer()
	m.resetBuffers()
	m.setState(StateIdle)
	if wasBusy {
		m.send(domain.ErrorMessage("voice service connection lost, please try again"))
	}
	m.drainPending()
}

func (m *Mediator) onTimeout() {
	state := m.State()
	m.logger.Warn("Upstream response timed out", zap.Stringer("state", state))
	m.send(domain.ErrorMessage("response timed out, please try again"))

	if state == StateConfigured || state == StateReconfiguring {
		m.closeUpstream()
		m.greetingPending = false
		m.pending = nil
		m.setState(StateIdle)
		return
	}
	m.releaseFence()
}

func (m *Mediator) armTimer() {
	m.stopTimer()
	m.turnSeq++
	seq := m.turnSeq
	m.timer = time.AfterFunc(m.cfg.TurnTimeout, func() {
		m.enqueue(event{kind: evTimeout, gen: seq})
	})
}

func (m *Mediator) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Mediator) resetBuffers() {
	m.audioBuf = nil
	m.textBuf.Reset()
	m.transcriptBuf.Reset()
}

func (m *Mediator) closeUpstream() {
	if m.upstream == nil {
		return
	}
	if err := m.upstream.Close(); err != nil {
		m.logger.Debug("Failed to close upstream", zap.Error(err))
	}
	m.upstream = nil
	m.gen++
}

func (m *Mediator) openConversation() {
	if m.conversationID != "" || m.deps.Conversations == nil {
		return
	}
	topic := ""
	if p := m.deps.Synthesizer.Persona(m.personaID); p != nil {
		topic = p.Speciality
	}

	ctx, cancel := context.WithTimeout(m.ctx, storeTimeout)
	defer cancel()
	id, err := m.deps.Conversations.Open(ctx, m.userID, m.personaID, topic)
	if err != nil {
		m.logger.Error("Failed to open conversation", zap.Error(err))
		return
	}
	m.conversationID = id
	m.holding.Store(id)
	m.startedAt = time.Now()
	m.logger.Info("Conversation opened", zap.String("conversationID", id), zap.String("personaID", m.personaID))
}

func (m *Mediator) appendMessage(sender entities.TurnRole, kind entities.MessageKind, content string) {
	if m.conversationID == "" || m.deps.Conversations == nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, storeTimeout)
	defer cancel()
	err := m.deps.Conversations.AppendMessage(ctx, m.conversationID, sender, kind, content)
	if errors.Is(err, repositories.ErrConversationEnded) {
		// Settled elsewhere; carry on in a fresh conversation.
		m.logger.Warn("Conversation ended underneath the session, reopening", zap.String("conversationID", m.conversationID))
		m.releaseConversation()
		m.openConversation()
		if m.conversationID == "" {
			return
		}
		err = m.deps.Conversations.AppendMessage(ctx, m.conversationID, sender, kind, content)
	}
	if err != nil {
		m.logger.Error("Failed to append message", zap.String("conversationID", m.conversationID), zap.Error(err))
	}
}

func (m *Mediator) releaseConversation() {
	m.conversationID = ""
	m.holding.Store("")
}

// Holds reports whether the mediator still owns the conversation
func (m *Mediator) Holds(conversationID string) bool {
	id, _ := m.holding.Load().(string)
	return id != "" && id == conversationID
}

// settle hands the open conversation to the settler. It runs on a fresh
// context so detach does not cut it short.
func (m *Mediator) settle() {
	if m.conversationID == "" {
		return
	}
	summary := entities.SessionSummary{
		UserID:         m.userID,
		PersonaID:      m.personaID,
		ConversationID: m.conversationID,
		StartedAt:      m.startedAt,
		EndedAt:        time.Now(),
	}
	m.releaseConversation()

	if m.deps.Settler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*storeTimeout)
	defer cancel()
	if err := m.deps.Settler.Settle(ctx, summary); err != nil {
		m.logger.Error("Failed to settle conversation",
			zap.String("conversationID", summary.ConversationID),
			zap.Error(err))
	}
}

func (m *Mediator) teardown() {
	m.cancel()
	m.stopTimer()
	m.closeUpstream()
	m.pending = nil
	m.setState(StateClosed)
	m.registry.remove(m.userID, m)
	m.settle()
	m.sink.Close()
	close(m.done)
	m.logger.Info("Mediator closed")
}

func (m *Mediator) send(msg domain.ServerMessage) {
	if err := m.sink.Send(msg); err != nil {
		m.logger.Debug("Failed to deliver server event", zap.String("type", msg.Type), zap.Error(err))
	}
}
