package commentary_test

import (
	"strings"
	"testing"

	"github.com/ovalsounds/stumpcast/internal/commentary"
)

func intp(n int) *int { return &n }

func TestExcitementFor(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"low":     2,
		"normal":  5,
		"medium":  7,
		"high":    9,
		"extreme": 10,
		"":        5,
		"banana":  5,
	}
	for intensity, want := range cases {
		if got := commentary.ExcitementFor(intensity); got != want {
			t.Errorf("ExcitementFor(%q) = %d, want %d", intensity, got, want)
		}
	}
}

func TestAnnouncements(t *testing.T) {
	t.Parallel()

	welcome, exc := commentary.Welcome("Thunder", "Strikers")
	if welcome != "Ladies and gentlemen, welcome to this exciting indoor cricket match between Thunder and Strikers! Here we go!" {
		t.Errorf("unexpected welcome text: %q", welcome)
	}
	if exc != 9 {
		t.Errorf("welcome excitement = %d, want 9", exc)
	}

	brk, exc := commentary.InningsBreak()
	if brk != "That's the end of the first innings! Time for a short break." {
		t.Errorf("unexpected break text: %q", brk)
	}
	if exc != 4 {
		t.Errorf("break excitement = %d, want 4", exc)
	}

	end, exc := commentary.MatchEnd("Thunder")
	if end != "And that's the game! Thunder wins this thrilling contest! What a match!" {
		t.Errorf("unexpected end text: %q", end)
	}
	if exc != 10 {
		t.Errorf("end excitement = %d, want 10", exc)
	}

	draw, exc := commentary.MatchEnd("Draw")
	if !strings.Contains(draw, "draw") {
		t.Errorf("draw text should mention the draw: %q", draw)
	}
	if exc != 10 {
		t.Errorf("draw excitement = %d, want 10", exc)
	}
	if noWinner, _ := commentary.MatchEnd(""); noWinner != draw {
		t.Errorf("empty winner should read as a draw, got %q", noWinner)
	}
}

func TestForBall_Excitements(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		runs *int
		want int
	}{
		{"wicket", intp(-1), 10},
		{"six", intp(6), 10},
		{"seven off one ball", intp(7), 10},
		{"four", intp(4), 7},
		{"three", intp(3), 5},
		{"two", intp(2), 3},
		{"single", intp(1), 2},
		{"dot", intp(0), 1},
		{"five", intp(5), 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, exc, ok := commentary.ForBall(tc.runs, "", "Smith")
			if !ok {
				t.Fatal("expected a line")
			}
			if text == "" {
				t.Fatal("expected non-empty text")
			}
			if exc != tc.want {
				t.Errorf("excitement = %d, want %d", exc, tc.want)
			}
			if strings.Contains(text, "{batsman}") {
				t.Errorf("placeholder left unfilled: %q", text)
			}
		})
	}
}

func TestForBall_UsesBatsmanName(t *testing.T) {
	t.Parallel()

	// Wicket lines all name the batter, so the name must appear.
	text, _, ok := commentary.ForBall(intp(-1), "", "Kohli")
	if !ok {
		t.Fatal("expected a line")
	}
	if !strings.Contains(text, "Kohli") {
		t.Errorf("expected the batter's name in %q", text)
	}

	text, _, ok = commentary.ForBall(intp(-1), "", "")
	if !ok {
		t.Fatal("expected a line")
	}
	if !strings.Contains(text, "the batter") {
		t.Errorf("expected the generic form in %q", text)
	}
}

func TestForBall_Extras(t *testing.T) {
	t.Parallel()

	for _, extra := range []string{"wide", "no_ball", "bye", "leg_bye"} {
		text, exc, ok := commentary.ForBall(nil, extra, "")
		if !ok {
			t.Errorf("expected a line for extra %q", extra)
			continue
		}
		if text == "" {
			t.Errorf("empty line for extra %q", extra)
		}
		if exc != 5 {
			t.Errorf("extra %q excitement = %d, want 5", extra, exc)
		}
	}

	if _, _, ok := commentary.ForBall(nil, "overthrow", ""); ok {
		t.Error("unknown extra type should yield no line")
	}
}

func TestForBall_NothingToDescribe(t *testing.T) {
	t.Parallel()

	if _, _, ok := commentary.ForBall(nil, "", "Smith"); ok {
		t.Error("no runs and no extra should yield no line")
	}
}
