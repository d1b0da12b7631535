package dispatch

import "github.com/banshee-data/dwell.report/internal/config"

// ChannelsFromTuning builds the delivery channels enabled in the tuning
// file. Returns nil when nothing is enabled, which callers treat as
// "run without a dispatcher".
func ChannelsFromTuning(cfg *config.TuningConfig) []Channel {
	var channels []Channel
	if cfg.Webhook.GetEnabled() {
		channels = append(channels, NewWebhookChannel(cfg.Webhook, nil, nil))
	}
	if cfg.MQTT.GetEnabled() {
		channels = append(channels, NewMQTTChannel(cfg.MQTT))
	}
	return channels
}
