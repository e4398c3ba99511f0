package notifications

import (
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/metrics"
)

// sender is the part of the shoutrrr router the notifier uses.
type sender interface {
	Send(message string, params *types.Params) []error
}

// Notifier handles sending notifications via Shoutrrr. Messages beyond the
// configured rate are dropped so a batch of hostile files cannot flood a
// channel.
type Notifier struct {
	sr      sender
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewNotifier initializes a new Notifier with the provided configuration.
func NewNotifier(config *NotificationConfig, logger *logrus.Logger) (*Notifier, error) {
	sr, err := router.New(nil, config.ShoutrrrURLs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification router: %w", err)
	}
	return newNotifier(sr, config.Rate, config.Burst, logger), nil
}

func newNotifier(sr sender, limit rate.Limit, burst int, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Notifier{
		sr:      sr,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Send sends a notification message to all configured services.
func (n *Notifier) Send(title, message string) {
	if !n.limiter.Allow() {
		metrics.Notifications.WithLabelValues("dropped").Inc()
		n.logger.WithField("title", title).Warn("Notification rate limit reached, message dropped")
		return
	}

	params := types.Params{
		"title": title,
	}
	failed := false
	for _, err := range n.sr.Send(message, &params) {
		if err != nil {
			failed = true
			n.logger.WithError(err).Error("Failed to send notification")
		}
	}
	if failed {
		metrics.Notifications.WithLabelValues("failed").Inc()
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	n.logger.WithField("title", title).Info("Notification sent successfully")
}

// dangerTags are the threat tags that trigger an alert.
var dangerTags = map[string]bool{
	"INJECTION":          true,
	"MACROS":             true,
	"DDE":                true,
	"VERY HIDDEN SHEET":  true,
	"SUSPICIOUS FORMULA": true,
	"AUTO OPEN":          true,
	"USER LEAK":          true,
	"SYNTHETIC":          true,
}

// NotifyRecord alerts on a record that carries at least one high-risk tag.
// It reports whether a message was attempted.
func (n *Notifier) NotifyRecord(record models.FileRecord) bool {
	var hits []string
	for _, tag := range record.Threats {
		if dangerTags[tag] {
			hits = append(hits, tag)
		}
	}
	if len(hits) == 0 {
		return false
	}

	message := fmt.Sprintf("File **%s** raised **%s**.\nVerdict: %s\nSHA256: %s\nPath: %s",
		record.Filename, strings.Join(hits, ", "), record.Verdict, record.SHA256, record.FullPath)
	if record.LeakedIdentity != "" {
		message += "\nLeaked identity: " + record.LeakedIdentity
	}
	n.Send("OfficeRecon alert", message)
	return true
}
