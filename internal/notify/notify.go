// Package notify delivers email confirmation messages. The log notifier is
// the default; a real mail provider can be dropped in behind the same
// interface.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gatekeep.org/internal/obs"
)

// LogNotifier writes confirmation links to the service log instead of
// sending mail. Useful in development and tests.
type LogNotifier struct {
	baseURL string
}

// NewLogNotifier returns a notifier that logs confirmation links. baseURL is
// the public address the confirmation endpoint is reachable at.
func NewLogNotifier(baseURL string) *LogNotifier {
	return &LogNotifier{baseURL: strings.TrimRight(baseURL, "/")}
}

// SendEmailConfirmation logs the link a real mailer would send.
func (n *LogNotifier) SendEmailConfirmation(_ context.Context, email, token string, expiresAt time.Time) error {
	if email == "" {
		return fmt.Errorf("notify: email is required")
	}
	link := fmt.Sprintf("%s/v1/users/confirm-email?token=%s", n.baseURL, url.QueryEscape(token))
	obs.LogJSON(map[string]any{
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
		"level":      "info",
		"msg":        "email confirmation issued",
		"email":      email,
		"link":       link,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
	return nil
}
