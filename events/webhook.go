package events

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/petert82/go-translation-corpus/trans"
)

// Webhook is a Dispatcher that POSTs each event as JSON to a fixed URL.
type Webhook struct {
	url  string
	http *resty.Client
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{url: url, http: resty.New().SetTimeout(timeout)}
}

type webhookPayload struct {
	Event   string      `json:"event"`
	Payload trans.Event `json:"payload"`
}

func (w *Webhook) Dispatch(e trans.Event) error {
	resp, err := w.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{Event: e.EventName(), Payload: e}).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("events: webhook %v returned %v", w.url, resp.Status())
	}
	return nil
}
