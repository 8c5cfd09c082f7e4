package notifications

import (
	"bytes"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

type DiscordNotifier struct {
	webhookURL string
}

func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{webhookURL: webhookURL}
}

// discordColors maps alert levels to embed sidebar colors.
var discordColors = map[string]int{
	LevelInfo:    0x3498db,
	LevelWarning: 0xf1c40f,
	LevelError:   0xe74c3c,
	LevelSuccess: 0x2ecc71,
	LevelTrade:   0x9b59b6,
}

func (d *DiscordNotifier) SendAlert(level, message string) error {
	color, ok := discordColors[level]
	if !ok {
		color = discordColors[LevelInfo]
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       "Trading Engine",
				"description": message,
				"color":       color,
			},
		},
	}

	body, err := jsoniter.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode discord payload: %w", err)
	}

	resp, err := http.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}

	return nil
}
