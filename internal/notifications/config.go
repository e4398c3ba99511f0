package notifications

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// NotificationConfig holds the notification-related configuration.
type NotificationConfig struct {
	ShoutrrrURLs []string
	Rate         rate.Limit // Messages per second
	Burst        int
}

// LoadNotificationConfig loads notification configuration from environment variables.
func LoadNotificationConfig() (*NotificationConfig, error) {
	shoutrrrURLsStr := os.Getenv("SHOUTRRR_URLS")
	if shoutrrrURLsStr == "" {
		return nil, fmt.Errorf("SHOUTRRR_URLS environment variable is required for notifications")
	}

	rateValue, err := strconv.ParseFloat(os.Getenv("NOTIFY_RATE"), 64)
	if err != nil || rateValue <= 0 {
		rateValue = 0.2 // One message every five seconds
		logrus.Infof("Invalid or missing NOTIFY_RATE. Defaulting to %.1f messages per second.", rateValue)
	}

	burst, err := strconv.Atoi(os.Getenv("NOTIFY_BURST"))
	if err != nil || burst <= 0 {
		burst = 5
		logrus.Infof("Invalid or missing NOTIFY_BURST. Defaulting to %d.", burst)
	}

	return &NotificationConfig{
		ShoutrrrURLs: parseShoutrrrURLs(shoutrrrURLsStr),
		Rate:         rate.Limit(rateValue),
		Burst:        burst,
	}, nil
}

// parseShoutrrrURLs parses a comma-separated list of Shoutrrr URLs.
func parseShoutrrrURLs(urls string) []string {
	var result []string
	for _, url := range strings.Split(urls, ",") {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
