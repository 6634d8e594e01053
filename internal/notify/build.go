package notify

import (
	"go.uber.org/zap"

	"cycletester/internal/relay"
)

// ForMode builds the notifier for a manual_temp_mode setting.
func ForMode(mode string, relays relay.Controller, beeperPins []int, webhookURL string, ack *AckSource, log *zap.SugaredLogger) Notifier {
	beeper := &Beeper{Relays: relays, Pins: beeperPins, Ack: ack, Log: log}
	slack := &Slack{WebhookURL: webhookURL, Ack: ack, Log: log}
	switch mode {
	case "beeper":
		return beeper
	case "slack":
		return slack
	case "both":
		return &Multi{Channels: []Notifier{beeper, slack}, Log: log}
	default:
		return &None{Ack: ack, Log: log}
	}
}
