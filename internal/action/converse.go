package action

import (
	"context"
	"log/slog"

	"github.com/emberforge/wayfarer/internal/world"
)

// Conversation pacing. Each spoken turn costs a couple of in-game
// minutes on top of the approach.
const (
	conversationBaseMinutes = 4
	minutesPerTurn          = 2

	// exchangeRounds is how many times the protagonist and the NPC each
	// speak in an autonomously-run 1:1 conversation.
	exchangeRounds = 2
)

// converse runs a short 1:1 exchange with the targeted NPC: greeting,
// replies, and a close. The dialogue manager emits the turn events; quest
// detection and objective tracking hang off those.
func (e *Executor) converse(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	npc, err := e.resolveNPC(act.Target)
	if err != nil {
		return nil, err
	}

	turns := exchangeRounds * 2
	return &outcome{
		cost: conversationBaseMinutes + int64(turns)*minutesPerTurn,
		commit: func(ctx context.Context, frame int64) string {
			conv, err := e.dialogue.Start(frame, []string{hero.ID, npc.ID})
			if err != nil {
				slog.Error("conversation start failed", "npc", npc.ID, "error", err)
				return ""
			}
			for i := 0; i < exchangeRounds; i++ {
				if _, err := e.dialogue.GenerateReply(ctx, frame, conv.ID, npc.ID); err != nil {
					break
				}
				if _, err := e.dialogue.GenerateReply(ctx, frame, conv.ID, hero.ID); err != nil {
					break
				}
			}
			if err := e.dialogue.End(frame, conv.ID); err != nil {
				slog.Error("conversation end failed", "conversation", conv.ID, "error", err)
			}
			return "Spoke with " + npc.Name + "."
		},
	}, nil
}

// groupConverse gathers every living NPC at the protagonist's location
// into one conversation and runs two speaking rounds through the
// turn-ordering suggestions.
func (e *Executor) groupConverse(ctx context.Context, frame int64, act Action) (*outcome, error) {
	hero := e.world.Protagonist()
	participants := []string{hero.ID}
	for _, c := range e.world.CharactersAt(hero.CurrentLocation) {
		if c.Role == world.RoleNPC && !c.Dead {
			participants = append(participants, c.ID)
		}
	}
	if len(participants) < 3 {
		return nil, ErrNoAudience
	}

	turns := len(participants) * 2
	return &outcome{
		cost: conversationBaseMinutes + int64(turns)*minutesPerTurn,
		commit: func(ctx context.Context, frame int64) string {
			conv, err := e.dialogue.Start(frame, participants)
			if err != nil {
				slog.Error("group conversation start failed", "error", err)
				return ""
			}
			for i := 0; i < turns; i++ {
				speaker, err := e.dialogue.SuggestNextSpeaker(conv.ID)
				if err != nil {
					break
				}
				if _, err := e.dialogue.GenerateReply(ctx, frame, conv.ID, speaker); err != nil {
					break
				}
			}
			if err := e.dialogue.End(frame, conv.ID); err != nil {
				slog.Error("group conversation end failed", "conversation", conv.ID, "error", err)
			}
			return "Talked with the group."
		},
	}, nil
}
