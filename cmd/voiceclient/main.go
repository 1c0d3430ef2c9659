// Command voiceclient plays one voice consultation turn against a running
// server: it mints a token, selects a persona, sends an audio file and saves
// the spoken reply.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain"
)

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

func main() {
	var (
		server     = flag.String("server", "localhost:8080", "server host:port")
		serviceKey = flag.String("service-key", os.Getenv("SERVICE_API_KEY"), "service key used to mint a user token")
		userID     = flag.String("user", "voice-client", "user id")
		personaID  = flag.String("persona", "tina_kulkarni_vedic_marriage", "astrologer id")
		audioPath  = flag.String("audio", "sample_audio.wav", "recorded turn to send")
		outDir     = flag.String("out", "audio_responses", "directory for spoken replies")
		wait       = flag.Duration("wait", 45*time.Second, "how long to wait for the reply")
	)
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	token, err := mintToken(*server, *serviceKey, *userID)
	if err != nil {
		logger.Fatal("Failed to mint token", zap.Error(err))
	}
	logger.Info("Authenticated", zap.String("userID", *userID))

	u := url.URL{Scheme: "ws", Host: *server, Path: "/ws"}
	headers := http.Header{}
	headers.Add("Authorization", "Bearer "+token)

	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer c.Close()

	blob, err := os.ReadFile(*audioPath)
	if err != nil {
		logger.Fatal("Failed to read audio file", zap.Error(err))
	}

	if err := c.WriteJSON(domain.ClientMessage{Type: domain.ClientEventConfig, PersonaID: *personaID}); err != nil {
		logger.Fatal("Failed to send config", zap.Error(err))
	}

	// The greeting comes first; the turn is sent once it has been spoken.
	sent := false
	deadline := time.Now().Add(*wait)
	for time.Now().Before(deadline) {
		c.SetReadDeadline(deadline)
		var msg domain.ServerMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Fatal("read", zap.Error(err))
		}

		switch msg.Type {
		case domain.ServerEventConfigAck:
			logger.Info("Persona selected", zap.String("personaID", msg.PersonaID), zap.String("warning", msg.Warning))
		case domain.ServerEventAudioDelta:
		case domain.ServerEventTextResponse:
			logger.Info("Astrologer said", zap.String("text", msg.Text))
		case domain.ServerEventAudioResponse:
			path, err := saveReply(*outDir, msg)
			if err != nil {
				logger.Error("Failed to save reply", zap.Error(err))
			} else {
				logger.Info("Saved spoken reply", zap.String("path", path))
			}
			if sent {
				c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			sent = true
			logger.Info("Sending turn", zap.String("file", *audioPath), zap.Int("bytes", len(blob)))
			if err := c.WriteJSON(domain.ClientMessage{
				Type:       domain.ClientEventAudio,
				Payload:    base64.StdEncoding.EncodeToString(blob),
				FormatHint: hintFor(*audioPath),
			}); err != nil {
				logger.Fatal("Failed to send audio", zap.Error(err))
			}
		case domain.ServerEventError:
			logger.Warn("Server error", zap.String("message", msg.Message))
		default:
			logger.Info("Received event", zap.String("type", msg.Type))
		}
	}
	logger.Warn("Timed out waiting for the reply")
}

func mintToken(server, serviceKey, userID string) (string, error) {
	body, _ := json.Marshal(map[string]string{"user_id": userID})
	req, err := http.NewRequest(http.MethodPost, "http://"+server+"/api/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Key", serviceKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: %s", string(data))
	}

	var out tokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func saveReply(dir string, msg domain.ServerMessage) (string, error) {
	data, err := base64.StdEncoding.DecodeString(msg.Payload)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	format := msg.Format
	if format == "" {
		format = "wav"
	}
	path := filepath.Join(dir, fmt.Sprintf("%d.%s", time.Now().UnixNano(), format))
	return path, os.WriteFile(path, data, 0644)
}

func hintFor(path string) string {
	switch filepath.Ext(path) {
	case ".webm":
		return "audio/webm"
	case ".m4a", ".mp4":
		return "audio/mp4"
	}
	return "audio/wav"
}
