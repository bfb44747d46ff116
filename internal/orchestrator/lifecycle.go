package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ovalsounds/stumpcast/internal/commentary"
	"github.com/ovalsounds/stumpcast/internal/event"
	"github.com/ovalsounds/stumpcast/internal/match"
	"github.com/ovalsounds/stumpcast/pkg/audio"
)

// lifecycleLoop polls the scoring backend and speaks the announcements owed
// by phase transitions. It runs independently of the consume loop so a
// match-end announcement still fires when no further ball events arrive.
func (o *Orchestrator) lifecycleLoop(ctx context.Context) {
	o.pollOnce(ctx)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce refreshes the current booking and innings phase, adopts a new
// match when the backend has moved on, and fires any announcements that
// came due.
func (o *Orchestrator) pollOnce(ctx context.Context) {
	info, err := o.matches.CurrentMatch(ctx)
	if err != nil {
		slog.Warn("orchestrator: current match fetch failed", "err", err)
	} else {
		o.adoptBooking(info)
	}

	matchID := o.MatchID()
	if matchID == "" {
		return
	}

	phase, err := o.matches.InningsPhase(ctx, matchID)
	if err != nil {
		slog.Warn("orchestrator: innings phase fetch failed",
			"match_id", matchID, "err", err)
		return
	}

	o.mu.Lock()
	cues := o.state.Advance(phase)
	infoSnap := o.state.Info
	o.mu.Unlock()

	for _, cue := range cues {
		o.announce(ctx, cue, matchID, infoSnap)
	}
}

// adoptBooking reconciles the polled booking with the current match. Same
// id refreshes the stored details (runs, winner); a different id resets
// lifecycle and redirects the queue and stream, exactly as an inbound event
// for a new match would.
func (o *Orchestrator) adoptBooking(info *match.Info) {
	o.mu.Lock()
	if info.ID == o.matchID {
		o.state.Info = info
		o.mu.Unlock()
		return
	}
	old := o.matchID
	o.matchID = info.ID
	o.state = match.State{Info: info}
	o.mu.Unlock()

	slog.Info("orchestrator: booking moved to a new match", "from", old, "to", info.ID)
	o.q.SetMatch(info.ID)
	if old != "" && o.stream != nil {
		o.stream.Switch(info.ID)
	}
}

// announce speaks one lifecycle cue straight to the mixer, bypassing the
// queue. The synthetic id is committed as soon as the mixer accepts the
// segment; the per-match cue flags already prevent repeats, so a crash
// mid-announcement must not replay it.
func (o *Orchestrator) announce(ctx context.Context, cue match.Cue, matchID string, info *match.Info) {
	var (
		text       string
		excitement int
	)
	switch cue {
	case match.CueWelcome:
		teamOne, teamTwo := "the home side", "the visitors"
		if info != nil {
			teamOne, teamTwo = info.TeamOneName, info.TeamTwoName
		}
		text, excitement = commentary.Welcome(teamOne, teamTwo)
	case match.CueBreak:
		text, excitement = commentary.InningsBreak()
	case match.CueEnd:
		winner := ""
		if info != nil {
			winner = info.Winner()
		}
		text, excitement = commentary.MatchEnd(winner)
	default:
		return
	}

	ev := event.Announcement(matchID, text)
	slog.Info("orchestrator: announcing", "cue", cue.String(), "event_id", ev.ID)

	seg, err := o.speak(ctx, ev.ID, text, excitement, event.PriorityAnnouncement)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("orchestrator: announcement synthesis failed",
			"cue", cue.String(), "err", err)
		o.metrics.RecordSkipped(ctx, "announcement")
		return
	}
	if err := o.mixer.Submit(seg, event.PriorityAnnouncement); err != nil {
		go audio.Drain(seg.Audio)
		slog.Warn("orchestrator: mixer rejected announcement",
			"cue", cue.String(), "err", err)
		o.metrics.RecordSkipped(ctx, "announcement")
		return
	}

	o.q.Commit(ev.ID)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		res := <-seg.Done()
		if res.Reason == audio.Drained || res.FramesPlayed > 0 {
			o.metrics.RecordPlayed(ctx, event.PriorityAnnouncement)
			slog.Debug("orchestrator: announcement spoken",
				"cue", cue.String(), "frames", res.FramesPlayed)
			return
		}
		slog.Warn("orchestrator: announcement lost before any audio played",
			"cue", cue.String(), "reason", res.Reason.String())
		o.metrics.RecordDropped(ctx)
	}()
}
