package sinks

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pure-golang/mailblast/blast"
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventSent      EventType = "sent"
	EventCompleted EventType = "completed"
)

// Event is the wire form of a progress notification.
type Event struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	Type     EventType `json:"type"`
	Worker   int       `json:"worker,omitempty"`
	Sent     int       `json:"sent"`
	Total    int       `json:"total"`
	Label    string    `json:"label"`
	Success  *bool     `json:"success,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
	Time     time.Time `json:"time"`
}

// String renders the event as one log-style line, used by the text encoding.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run=%s %s", e.Time.Format(time.RFC3339), e.RunID, e.Type)
	if e.Type == EventSent {
		fmt.Fprintf(&b, " worker=%d", e.Worker)
	}
	if e.Success != nil {
		fmt.Fprintf(&b, " success=%t", *e.Success)
	}
	fmt.Fprintf(&b, " %q", e.Label)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, " failure[%d]=%s:%q", f.Worker, f.Account, f.Error)
	}
	return b.String()
}

type Failure struct {
	Worker   int    `json:"worker"`
	Account  string `json:"account"`
	Assigned int    `json:"assigned"`
	Sent     int    `json:"sent"`
	Error    string `json:"error"`
}

func newEvent(typ EventType, runID string, sent, total int) Event {
	return Event{
		ID:    uuid.NewString(),
		RunID: runID,
		Type:  typ,
		Sent:  sent,
		Total: total,
		Label: blast.ProgressLabel(sent, total),
		Time:  time.Now().UTC(),
	}
}

func failures(info *blast.ErrorInfo) []Failure {
	if info == nil {
		return nil
	}
	out := make([]Failure, 0, len(info.Failures))
	for _, f := range info.Failures {
		fl := Failure{
			Worker:   f.Worker,
			Account:  f.Account,
			Assigned: f.Assigned,
			Sent:     f.Sent,
		}
		if f.Err != nil {
			fl.Error = f.Err.Error()
		}
		out = append(out, fl)
	}
	return out
}
