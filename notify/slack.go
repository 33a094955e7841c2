package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Slack schickt Pipeline-Benachrichtigungen an einen Incoming-Webhook.
// Ohne konfigurierte URL werden Nachrichten nur geloggt.
type Slack struct {
	WebhookURL string
	Logger     *zap.Logger
}

// NewSlack erstellt einen neuen Slack-Notifier.
func NewSlack(webhookURL string, logger *zap.Logger) *Slack {
	return &Slack{WebhookURL: webhookURL, Logger: logger}
}

// Send schickt eine Nachricht. Fehler werden geloggt, nie propagiert; eine
// fehlgeschlagene Benachrichtigung darf die Pipeline nicht stoppen.
func (s *Slack) Send(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	if s.WebhookURL == "" {
		s.Logger.Info("Slack notification skipped", zap.String("message", message))
		return
	}
	payload, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		s.Logger.Error("Could not marshal slack payload", zap.Error(err))
		return
	}
	resp, err := httpClient.Post(s.WebhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.Logger.Error("Could not send slack notification", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		s.Logger.Error("Slack webhook rejected notification", zap.Int("status", resp.StatusCode))
	}
}
