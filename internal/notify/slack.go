package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const slackTimeout = 15 * time.Second

// Slack posts alerts to an incoming-webhook URL. The payload travels as the
// form-encoded "payload" parameter, the format the webhook has always
// accepted.
type Slack struct {
	WebhookURL string
	Ack        *AckSource
	Log        *zap.SugaredLogger
	Client     *http.Client
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string    `json:"type"`
	Text slackText `json:"text"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Slack) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: slackTimeout}
}

func (s *Slack) Alert(message string) error {
	payload := slackPayload{
		Text: message,
		Blocks: []slackBlock{{
			Type: "section",
			Text: slackText{Type: "mrkdwn", Text: message},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: "slack", Err: err}
	}

	form := url.Values{"payload": {string(body)}}
	resp, err := s.client().PostForm(s.WebhookURL, form)
	if err != nil {
		return &DeliveryError{Channel: "slack", Err: err}
	}
	defer resp.Body.Close()

	reply, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode != http.StatusOK || !strings.EqualFold(strings.TrimSpace(string(reply)), "ok") {
		return &DeliveryError{
			Channel: "slack",
			Err:     fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, reply),
		}
	}
	s.Log.Info("slack notification sent")
	return nil
}

func (s *Slack) AwaitAck() error {
	s.Log.Info("waiting for operator confirmation (press Enter)")
	return s.Ack.Wait()
}
