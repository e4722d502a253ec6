package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const notifierTitle = "yajirobe"

// Slack posts messages to a Slack incoming webhook as a single attachment
// with the severity as its color bar.
type Slack struct {
	webhookURL string
	http       *http.Client
}

// NewSlack builds a Slack notifier for the given webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type attachment struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Color string `json:"color"`
}

type payload struct {
	Attachments []attachment `json:"attachments"`
}

func (s *Slack) Notify(ctx context.Context, severity Severity, text string) error {
	body, err := json.Marshal(payload{
		Attachments: []attachment{{Title: notifierTitle, Text: text, Color: string(severity)}},
	})
	if err != nil {
		return errors.Wrap(err, "marshal slack payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "post to slack webhook")
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("slack webhook returned status %d", res.StatusCode)
	}
	return nil
}
