/*
Package events delivers the notifications a committed import produces to
interested subscribers. Delivery is strictly fire-and-forget: a subscriber
failure is logged and swallowed, it never affects the import that produced
the event.
*/
package events

import (
	"log"
	"time"

	"github.com/petert82/go-translation-corpus/trans"
)

// Dispatcher delivers one event to one kind of subscriber.
type Dispatcher interface {
	Dispatch(e trans.Event) error
}

// Log is a Dispatcher that writes events to a standard logger. A zero Log
// uses the default logger.
type Log struct {
	Logger *log.Logger
}

func (l Log) Dispatch(e trans.Event) error {
	if l.Logger != nil {
		l.Logger.Printf("event %v: %+v", e.EventName(), e)
	} else {
		log.Printf("event %v: %+v", e.EventName(), e)
	}
	return nil
}

// Multi fans each event out to several dispatchers.
type Multi struct {
	dispatchers []Dispatcher
}

func NewMulti(dispatchers ...Dispatcher) *Multi {
	return &Multi{dispatchers: dispatchers}
}

func (m *Multi) Dispatch(e trans.Event) error {
	for _, d := range m.dispatchers {
		if err := d.Dispatch(e); err != nil {
			log.Printf("events: delivering %v: %v", e.EventName(), err)
		}
	}
	return nil
}

// NewFanout builds the standard fan-out: a log dispatcher plus one webhook
// dispatcher per URL.
func NewFanout(webhooks []string, timeout time.Duration) Dispatcher {
	dispatchers := []Dispatcher{Log{}}
	for _, url := range webhooks {
		dispatchers = append(dispatchers, NewWebhook(url, timeout))
	}
	return NewMulti(dispatchers...)
}

// DispatchAll sends every event of one import through the dispatcher. A nil
// dispatcher drops the events.
func DispatchAll(d Dispatcher, events []trans.Event) {
	if d == nil {
		return
	}
	for _, e := range events {
		if err := d.Dispatch(e); err != nil {
			log.Printf("events: delivering %v: %v", e.EventName(), err)
		}
	}
}
