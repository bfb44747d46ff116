// Package commentary owns the words the engine speaks on its own: the
// intensity-to-excitement mapping, the match-lifecycle announcements, and the
// templated ball-by-ball lines used when a publisher sends an event without
// text.
//
// Authoritative event text is never transformed; this package only fills the
// gaps.
package commentary

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Excitement bounds. Excitement drives TTS voice settings monotonically.
const (
	MinExcitement = 0
	MaxExcitement = 10
)

// DefaultExcitement is used for unknown intensity grades.
const DefaultExcitement = 5

// excitementByIntensity maps wire intensity grades to excitement.
var excitementByIntensity = map[string]int{
	"low":     2,
	"normal":  5,
	"medium":  7,
	"high":    9,
	"extreme": 10,
}

// ExcitementFor maps an intensity grade to excitement. Unknown grades read
// as normal.
func ExcitementFor(intensity string) int {
	if e, ok := excitementByIntensity[intensity]; ok {
		return e
	}
	return DefaultExcitement
}

// Welcome returns the match-opening announcement.
func Welcome(teamOne, teamTwo string) (string, int) {
	return fmt.Sprintf(
		"Ladies and gentlemen, welcome to this exciting indoor cricket match between %s and %s! Here we go!",
		teamOne, teamTwo,
	), 9
}

// InningsBreak returns the first-innings-over announcement.
func InningsBreak() (string, int) {
	return "That's the end of the first innings! Time for a short break.", 4
}

// MatchEnd returns the closing announcement. An empty or "Draw" winner reads
// as a draw.
func MatchEnd(winner string) (string, int) {
	if winner == "" || winner == "Draw" {
		return "And that's the game! It's a thrilling draw! What a contest!", 10
	}
	return fmt.Sprintf("And that's the game! %s wins this thrilling contest! What a match!", winner), 10
}

// Template lines per outcome. {batsman} is replaced with the batter on
// strike, or a generic form when the publisher did not name one.
var (
	wicketLines = []string{
		"Gone! {batsman} has to walk, what a moment in this game!",
		"Bowled him! {batsman} is on the way back, the fielding side erupts!",
		"That's out! A huge wicket, {batsman} departs!",
	}
	sixLines = []string{
		"That's massive! {batsman} launches it over the netting for six!",
		"Six runs! {batsman} has absolutely creamed that one!",
		"Huge hit from {batsman}, all the way for maximum!",
	}
	fourLines = []string{
		"Beautifully struck by {batsman}, that races away for four!",
		"Four runs! {batsman} finds the gap with ease.",
		"Cracking shot from {batsman}, the fielders had no chance.",
	}
	threeLines = []string{
		"Good running, {batsman} pushes hard and they take three!",
		"Worked away nicely by {batsman}, three runs added.",
	}
	twoLines = []string{
		"Tidy work from {batsman}, they come back for two.",
		"Two more to the total, sharp running between the wickets.",
	}
	oneLine = []string{
		"{batsman} nudges it into the gap for a single.",
		"Quick single taken, good awareness from {batsman}.",
	}
	dotLines = []string{
		"No run there, tight bowling keeps {batsman} quiet.",
		"Dot ball, well fielded.",
	}
	extraLines = map[string][]string{
		"wide":    {"That one's called wide, an extra run to the batting side."},
		"no_ball": {"No ball! The bowler has overstepped, a free run added."},
		"bye":     {"Through everyone! They sneak a bye."},
		"leg_bye": {"Off the pads and away, a leg bye taken."},
	}
)

// ForBall composes a templated line for an event that arrived without text.
// Returns false when the event carries nothing to describe.
func ForBall(runsScored *int, extraType, batsman string) (string, int, bool) {
	if batsman == "" {
		batsman = "the batter"
	}

	if extraType != "" {
		lines, ok := extraLines[extraType]
		if !ok {
			return "", 0, false
		}
		return fill(pick(lines), batsman), 5, true
	}
	if runsScored == nil {
		return "", 0, false
	}

	runs := *runsScored
	switch {
	case runs < 0:
		return fill(pick(wicketLines), batsman), 10, true
	case runs >= 6:
		return fill(pick(sixLines), batsman), 10, true
	case runs == 4:
		return fill(pick(fourLines), batsman), 7, true
	case runs == 3:
		return fill(pick(threeLines), batsman), 5, true
	case runs == 2:
		return fill(pick(twoLines), batsman), 3, true
	case runs == 1:
		return fill(pick(oneLine), batsman), 2, true
	case runs == 0:
		return fill(pick(dotLines), batsman), 1, true
	default:
		// Odd totals like overthrown fives still deserve a call.
		return fmt.Sprintf("They pick up %d runs, the scorers are busy!", runs), 5, true
	}
}

func pick(lines []string) string {
	return lines[rand.IntN(len(lines))]
}

func fill(line, batsman string) string {
	return strings.ReplaceAll(line, "{batsman}", batsman)
}
