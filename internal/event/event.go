// Package event defines the commentary event model shared by the stream
// client, the queue, and the orchestrator.
//
// Events arrive as JSON over the push channel or the missed-events endpoint,
// are admitted into the queue exactly once (dedup by id), and are consumed by
// the orchestrator which commits their ids to the runtime checkpoint.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Priority levels for the mixer slot and the queue. Smaller values win.
const (
	// PriorityAnnouncement is reserved for match-lifecycle speech (welcome,
	// innings break, match end). It preempts everything.
	PriorityAnnouncement = 0

	// PrioritySpecial is used for wickets and other special deliveries.
	PrioritySpecial = 1

	// PriorityNormal is the default for ball-by-ball commentary.
	PriorityNormal = 2
)

// Intensity grades how animated the delivery of an event should be.
type Intensity string

const (
	IntensityLow     Intensity = "low"
	IntensityNormal  Intensity = "normal"
	IntensityMedium  Intensity = "medium"
	IntensityHigh    Intensity = "high"
	IntensityExtreme Intensity = "extreme"
)

// IsValid reports whether i is a recognised intensity grade.
func (i Intensity) IsValid() bool {
	switch i {
	case IntensityLow, IntensityNormal, IntensityMedium, IntensityHigh, IntensityExtreme:
		return true
	}
	return false
}

// Event is one unit of commentary. Immutable once decoded.
type Event struct {
	// ID is unique within a match. Used for dedup and checkpointing.
	ID string

	// MatchID identifies the match the event belongs to.
	MatchID string

	// BatsmanName is the batter on strike, when the publisher knows it.
	BatsmanName string

	// Text is the authoritative utterance. Never transformed. May be empty
	// for legacy publishers; the orchestrator then falls back to a template.
	Text string

	// Intensity is the raw wire intensity. Unknown grades are preserved and
	// treated as normal downstream.
	Intensity Intensity

	// Priority is derived at decode time from priority_class, falling back
	// to the legacy id-prefix encoding.
	Priority int

	// RunsScored is the runs off the delivery, when the publisher sent it.
	// -1 encodes a wicket. Nil means absent.
	RunsScored *int

	// ExtraType names an extra delivery (wide, no_ball, bye, leg_bye), when
	// the publisher sent it.
	ExtraType string
}

// wireEvent is the JSON shape delivered by the push channel and the
// missed-events endpoint.
type wireEvent struct {
	EventID       string `json:"event_id"`
	MatchID       string `json:"match_id"`
	BatsmanName   string `json:"batsman_name"`
	Sentences     string `json:"sentences"`
	Intensity     string `json:"intensity"`
	PriorityClass string `json:"priority_class"`
	RunsScored    *int   `json:"runs_scored"`
	ExtraType     string `json:"extra_type"`
}

// Decode parses one wire event. It fails on payloads missing event_id or
// match_id; such payloads carry nothing the checkpoint could trust.
func Decode(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("event: decode: %w", err)
	}
	if w.EventID == "" {
		return Event{}, fmt.Errorf("event: decode: missing event_id")
	}
	if w.MatchID == "" {
		return Event{}, fmt.Errorf("event: decode: missing match_id (event %q)", w.EventID)
	}

	return Event{
		ID:          w.EventID,
		MatchID:     w.MatchID,
		BatsmanName: w.BatsmanName,
		Text:        w.Sentences,
		Intensity:   Intensity(w.Intensity),
		Priority:    derivePriority(w.PriorityClass, w.EventID),
		RunsScored:  w.RunsScored,
		ExtraType:   w.ExtraType,
	}, nil
}

// derivePriority resolves the event priority. The explicit priority_class
// field wins; legacy publishers encode priority in the event id prefix
// instead, and anything unrecognised is normal commentary.
func derivePriority(class, id string) int {
	switch class {
	case "announcement":
		return PriorityAnnouncement
	case "special":
		return PrioritySpecial
	case "normal":
		return PriorityNormal
	}
	switch {
	case strings.HasPrefix(id, "special_event_announcement_"):
		return PriorityAnnouncement
	case strings.HasPrefix(id, "special_event_wicket_"):
		return PrioritySpecial
	}
	return PriorityNormal
}

// Announcement builds a synthetic priority-0 event for match-lifecycle
// speech. The id carries a nanosecond stamp so two announcements in the same
// second never collide in the dedup set.
func Announcement(matchID, text string) Event {
	return Event{
		ID:       fmt.Sprintf("special_event_announcement_%d", time.Now().UnixNano()),
		MatchID:  matchID,
		Text:     text,
		Priority: PriorityAnnouncement,
	}
}
