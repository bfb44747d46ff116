// Package match models the small amount of match-lifecycle state the engine
// needs to drive announcements: who is playing, which innings is live, and
// which one-shot announcements have already been spoken.
//
// Lifecycle state is in-memory only and resets whenever the match id
// changes. The scoring backend remains authoritative for everything else.
package match

import (
	"encoding/json"
	"fmt"
)

// Phase is the innings lifecycle reported by the scoring backend.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseToBegin
	PhaseInnings1
	PhaseInningsBreak
	PhaseInnings2
	PhaseEnded
)

// String returns the wire spelling of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseToBegin:
		return "To Begin"
	case PhaseInnings1:
		return "Innings 1"
	case PhaseInningsBreak:
		return "Innings Break"
	case PhaseInnings2:
		return "Innings 2"
	case PhaseEnded:
		return "End Innings"
	default:
		return "Unknown"
	}
}

// ParsePhase maps a wire phase string to a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "To Begin":
		return PhaseToBegin, nil
	case "Innings 1":
		return PhaseInnings1, nil
	case "Innings Break":
		return PhaseInningsBreak, nil
	case "Innings 2":
		return PhaseInnings2, nil
	case "End Innings":
		return PhaseEnded, nil
	default:
		return PhaseUnknown, fmt.Errorf("match: unknown phase %q", s)
	}
}

// Info describes one match slot as returned by the bookings endpoint.
type Info struct {
	// ID is the slot id, stringified; it doubles as the match id on the
	// commentary stream.
	ID string

	TeamOneName string
	TeamTwoName string
	TeamOneID   string
	TeamTwoID   string
	TeamOneRuns int
	TeamTwoRuns int

	// WinnerID is empty while the match is live.
	WinnerID string

	// TeamOneInnings is the raw batting-order marker for team one.
	TeamOneInnings string
}

// BattingFirst returns the name of the side batting first.
func (i *Info) BattingFirst() string {
	if i.TeamOneInnings == "Batting First" {
		return i.TeamOneName
	}
	return i.TeamTwoName
}

// Winner resolves the winner id against the team names. Unset or
// unrecognised ids read as a draw.
func (i *Info) Winner() string {
	switch {
	case i.WinnerID == "":
		return "Draw"
	case i.WinnerID == i.TeamOneID:
		return i.TeamOneName
	case i.WinnerID == i.TeamTwoID:
		return i.TeamTwoName
	default:
		return "Draw"
	}
}

// Cue names a lifecycle announcement owed to the listeners.
type Cue int

const (
	CueWelcome Cue = iota
	CueBreak
	CueEnd
)

// String returns a log-friendly cue name.
func (c Cue) String() string {
	switch c {
	case CueWelcome:
		return "welcome"
	case CueBreak:
		return "innings_break"
	case CueEnd:
		return "match_end"
	default:
		return "unknown"
	}
}

// State tracks lifecycle for a single match. Not safe for concurrent use;
// the orchestrator owns it.
type State struct {
	Info  *Info
	Phase Phase

	welcomed       bool
	breakAnnounced bool
	endAnnounced   bool
}

// Advance records the latest phase and returns the announcements now due, in
// speaking order. Each cue fires at most once per match.
func (s *State) Advance(p Phase) []Cue {
	if p != PhaseUnknown {
		s.Phase = p
	}

	var cues []Cue
	if !s.welcomed && s.Phase != PhaseEnded {
		s.welcomed = true
		cues = append(cues, CueWelcome)
	}
	if !s.breakAnnounced && s.Phase == PhaseInningsBreak {
		s.breakAnnounced = true
		cues = append(cues, CueBreak)
	}
	if !s.endAnnounced && s.Phase == PhaseEnded {
		s.endAnnounced = true
		cues = append(cues, CueEnd)
	}
	return cues
}

// wireMatch is the match object inside the bookings envelope. Ids arrive as
// numbers from some backends and strings from others.
type wireMatch struct {
	SlotID         json.Number `json:"slot_id"`
	TeamOneName    string      `json:"teamOneName"`
	TeamTwoName    string      `json:"teamTwoName"`
	TeamOneID      json.Number `json:"teamOneId"`
	TeamTwoID      json.Number `json:"teamTwoId"`
	TeamOneRuns    int         `json:"teamOneRuns"`
	TeamTwoRuns    int         `json:"teamTwoRuns"`
	WinnerID       json.Number `json:"winnerId"`
	TeamOneInnings string      `json:"teamOneInnings"`
}

func (w *wireMatch) toInfo() *Info {
	return &Info{
		ID:             w.SlotID.String(),
		TeamOneName:    w.TeamOneName,
		TeamTwoName:    w.TeamTwoName,
		TeamOneID:      w.TeamOneID.String(),
		TeamTwoID:      w.TeamTwoID.String(),
		TeamOneRuns:    w.TeamOneRuns,
		TeamTwoRuns:    w.TeamTwoRuns,
		WinnerID:       w.WinnerID.String(),
		TeamOneInnings: w.TeamOneInnings,
	}
}
