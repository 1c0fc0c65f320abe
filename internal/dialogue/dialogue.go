// Package dialogue manages conversations between the protagonist and NPCs:
// 1:1 exchanges and group scenes with three or more participants. It
// assembles the prompt context for each NPC line, enforces round-robin
// fairness in groups, and settles relationship and memory effects when a
// conversation ends.
//
// The manager mutates conversation records it owns on behalf of the session
// and reports everything else through the emit hook; it never touches the
// event bus or the publisher directly.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emberforge/wayfarer/internal/clock"
	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/rng"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// Subsystem is the tag used in fallback entries and replay call records.
const Subsystem = "DialogueSubsystem"

// defaultHistoryWindow is how many recent turns go into a prompt.
const defaultHistoryWindow = 6

// maxConsecutiveTurns caps how often one participant may speak in a row in
// a group conversation.
const maxConsecutiveTurns = 2

var (
	ErrTooFewParticipants = errors.New("dialogue: conversation needs at least two participants")
	ErrNotActive          = errors.New("dialogue: conversation is not active")
	ErrNotParticipant     = errors.New("dialogue: speaker is not a participant")
)

// EmitFunc hands a finished occurrence to the session, which publishes it
// on the bus under the given tag.
type EmitFunc func(eventType, actor string, payload map[string]any)

// Manager runs all conversations of one session.
type Manager struct {
	world  *world.World
	clock  *clock.Clock
	client *llm.Client
	stream *rng.Stream
	emit   EmitFunc

	historyWindow int
	counter       int
}

// NewManager wires a dialogue manager. stream must be the session's
// dialogue sub-stream.
func NewManager(w *world.World, c *clock.Clock, client *llm.Client, stream *rng.Stream, emit EmitFunc) *Manager {
	return &Manager{
		world:         w,
		clock:         c,
		client:        client,
		stream:        stream,
		emit:          emit,
		historyWindow: defaultHistoryWindow,
	}
}

// Start opens a conversation between the given participants. Exactly one
// participant is rejected; three or more makes it a group conversation.
func (m *Manager) Start(frame int64, participantIDs []string) (*world.Conversation, error) {
	if len(participantIDs) < 2 {
		return nil, ErrTooFewParticipants
	}
	for _, id := range participantIDs {
		c, err := m.world.Character(id)
		if err != nil {
			return nil, err
		}
		if c.Dead {
			return nil, fmt.Errorf("dialogue: %s is dead", id)
		}
	}

	m.counter++
	conv := &world.Conversation{
		ID:           fmt.Sprintf("conv-%d", m.counter),
		Participants: append([]string(nil), participantIDs...),
		StartFrame:   frame,
		Active:       true,
		Group:        len(participantIDs) >= 3,
		TurnCounts:   make(map[string]int),
	}
	m.world.AddConversation(conv)

	m.emit(eventbus.EventDialogueStarted, participantIDs[0], map[string]any{
		"conversationId": conv.ID,
		"npcId":          m.primaryNPC(conv),
		"participants":   conv.Participants,
		"group":          conv.Group,
	})
	return conv, nil
}

// primaryNPC returns the first non-protagonist participant, the id
// observers care about in dialogue_started payloads.
func (m *Manager) primaryNPC(conv *world.Conversation) string {
	for _, id := range conv.Participants {
		if id != m.world.ProtagonistID {
			return id
		}
	}
	return ""
}

// AddTurn records an externally produced utterance (the protagonist's
// decider output, or a test feeding lines) and emits dialogue_turn.
func (m *Manager) AddTurn(frame int64, convID, speakerID, text string) error {
	conv, err := m.world.Conversation(convID)
	if err != nil {
		return err
	}
	if !conv.Active {
		return ErrNotActive
	}
	if !conv.Has(speakerID) {
		return fmt.Errorf("%w: %s in %s", ErrNotParticipant, speakerID, convID)
	}
	conv.AddTurn(speakerID, text, frame)
	m.emit(eventbus.EventDialogueTurn, speakerID, map[string]any{
		"conversationId": convID,
		"speakerId":      speakerID,
		"text":           text,
	})
	return nil
}

// GenerateReply produces the next line for speaker, an NPC participant.
// The text comes from the LLM when available and from the greeting/reply
// template otherwise; either way the turn is recorded and emitted. The
// conversation never aborts on LLM failure.
func (m *Manager) GenerateReply(ctx context.Context, frame int64, convID, speakerID string) (string, error) {
	conv, err := m.world.Conversation(convID)
	if err != nil {
		return "", err
	}
	if !conv.Active {
		return "", ErrNotActive
	}
	if !conv.Has(speakerID) {
		return "", fmt.Errorf("%w: %s in %s", ErrNotParticipant, speakerID, convID)
	}
	npc, err := m.world.Character(speakerID)
	if err != nil {
		return "", err
	}

	greeting := conv.TurnCounts[speakerID] == 0
	operation := "reply"
	if greeting {
		operation = "greeting"
	}

	res := m.client.Generate(ctx, llm.Request{
		Subsystem:    Subsystem,
		Operation:    operation,
		Frame:        frame,
		SystemPrompt: m.systemPrompt(npc, conv),
		Messages:     m.promptMessages(npc, conv),
		Temperature:  0.8,
		MaxTokens:    200,
		Fallback:     func() string { return m.fallbackLine(npc, greeting) },
		Context: map[string]any{
			"conversationId": convID,
			"npcId":          speakerID,
		},
	})

	conv.AddTurn(speakerID, res.Text, frame)
	m.emit(eventbus.EventDialogueTurn, speakerID, map[string]any{
		"conversationId": convID,
		"speakerId":      speakerID,
		"text":           res.Text,
		"fallback":       res.UsedFallback,
	})
	m.emit(eventbus.EventDialogueLine, speakerID, map[string]any{
		"conversationId": convID,
		"speakerId":      speakerID,
		"speakerName":    npc.Name,
		"text":           res.Text,
	})
	return res.Text, nil
}

// SuggestNextSpeaker picks who should speak next: the eligible participant
// with the fewest turns, ties broken by lowest participant index. A
// participant who just spoke twice in a row is ineligible. The caller may
// override the suggestion.
func (m *Manager) SuggestNextSpeaker(convID string) (string, error) {
	conv, err := m.world.Conversation(convID)
	if err != nil {
		return "", err
	}
	if !conv.Active {
		return "", ErrNotActive
	}

	best := ""
	bestCount := 0
	for _, id := range conv.Participants {
		if conv.ConsecutiveTurns(id) >= maxConsecutiveTurns {
			continue
		}
		n := conv.TurnCounts[id]
		if best == "" || n < bestCount {
			best = id
			bestCount = n
		}
	}
	if best == "" {
		// Everyone blocked can only happen with one participant; fall back
		// to the first.
		best = conv.Participants[0]
	}
	return best, nil
}

// End closes the conversation: emits dialogue_ended, settles relationship
// deltas, and writes a conversation memory into every participant.
//
// In a 1:1 both sides gain +1 affinity. In groups the half-point per
// exchange rounds down to +1 for participants who spoke at least twice and
// nothing for the rest.
func (m *Manager) End(frame int64, convID string) error {
	conv, err := m.world.Conversation(convID)
	if err != nil {
		return err
	}
	if !conv.Active {
		return ErrNotActive
	}
	conv.Active = false

	turns := len(conv.History)
	for _, id := range conv.Participants {
		c, err := m.world.Character(id)
		if err != nil {
			continue
		}
		for _, otherID := range conv.Participants {
			if otherID == id {
				continue
			}
			if m.relationshipDelta(conv, id) > 0 {
				c.AdjustRelationship(otherID, 1)
			}
		}
		importance := turns * 2
		if importance > 20 {
			importance = 20
		}
		c.AddMemory(world.Memory{
			Type:       world.MemoryConversation,
			Text:       m.memoryText(conv, id),
			Importance: importance,
			Frame:      frame,
		})
	}

	m.emit(eventbus.EventDialogueEnded, m.world.ProtagonistID, map[string]any{
		"conversationId": convID,
		"turns":          turns,
		"participants":   conv.Participants,
	})
	return nil
}

// relationshipDelta decides whether a participant's affinity moves at all.
func (m *Manager) relationshipDelta(conv *world.Conversation, id string) int {
	if !conv.Group {
		return 1
	}
	if conv.TurnCounts[id] >= 2 {
		return 1
	}
	return 0
}

func (m *Manager) memoryText(conv *world.Conversation, selfID string) string {
	var others []string
	for _, id := range conv.Participants {
		if id == selfID {
			continue
		}
		if c, err := m.world.Character(id); err == nil {
			others = append(others, c.Name)
		}
	}
	return "Spoke with " + strings.Join(others, ", ")
}

// ── Prompt assembly ──────────────────────────────────────────────────────────

// systemPrompt renders the NPC's identity, knowledge, quest context, and
// scene into the instruction block of the completion request.
func (m *Manager) systemPrompt(npc *world.Character, conv *world.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s in a fantasy world. Stay in character and answer in one or two sentences.\n",
		npc.Name, npc.Role)
	if npc.Backstory != "" {
		fmt.Fprintf(&b, "Backstory: %s\n", npc.Backstory)
	}
	fmt.Fprintf(&b, "Personality: openness %d, diligence %d, extraversion %d, agreeableness %d, courage %d, curiosity %d.\n",
		npc.Personality.Openness, npc.Personality.Diligence, npc.Personality.Extraversion,
		npc.Personality.Agreeableness, npc.Personality.Courage, npc.Personality.Curiosity)
	if npc.Mood != "" {
		fmt.Fprintf(&b, "Current mood: %s.\n", npc.Mood)
	}
	if npc.Concern != "" {
		fmt.Fprintf(&b, "Current concern: %s.\n", npc.Concern)
	}

	if k := m.knowledgeFor(npc, conv); k != "" {
		b.WriteString(k)
	}
	if q := m.questContextFor(npc); q != "" {
		b.WriteString(q)
	}
	if other := m.addressee(npc, conv); other != nil {
		fmt.Fprintf(&b, "Your relationship with %s: %d on a scale from -100 (hate) to 100 (devotion).\n",
			other.Name, npc.Relationship(other.ID))
	}
	if m.clock != nil {
		fmt.Fprintf(&b, "It is %s (%s), the weather is %s.\n",
			m.clock.TimeString(), m.clock.TimeOfDay(), m.clock.Weather())
	}
	return b.String()
}

// knowledgeFor filters the NPC's knowledge: specialties only when the NPC
// is a specialist for the current location or the topic came up; rumors
// always, they are what NPCs trade in.
func (m *Manager) knowledgeFor(npc *world.Character, conv *world.Conversation) string {
	var b strings.Builder
	loc, err := m.world.Location(npc.CurrentLocation)
	isSpecialistHere := err == nil && loc.HasSpecialist(npc.ID)
	if len(npc.Knowledge.Specialties) > 0 && (isSpecialistHere || m.topicMatchesSpecialty(npc, conv)) {
		fmt.Fprintf(&b, "You are knowledgeable about: %s.\n", strings.Join(npc.Knowledge.Specialties, ", "))
	}
	if len(npc.Knowledge.Rumors) > 0 {
		fmt.Fprintf(&b, "Rumors you have heard: %s.\n", strings.Join(npc.Knowledge.Rumors, "; "))
	}
	return b.String()
}

// topicMatchesSpecialty scans recent turns for any of the NPC's
// specialties, so expertise surfaces when the subject comes up anywhere.
func (m *Manager) topicMatchesSpecialty(npc *world.Character, conv *world.Conversation) bool {
	for _, turn := range conv.LastTurns(m.historyWindow) {
		lower := strings.ToLower(turn.Text)
		for _, s := range npc.Knowledge.Specialties {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
	}
	return false
}

// questContextFor lists active quests that reference the NPC.
func (m *Manager) questContextFor(npc *world.Character) string {
	var lines []string
	for _, q := range m.world.ActiveQuests() {
		if q.Mentions(npc.ID) {
			line := q.Title
			if obj := q.CurrentObjective(); obj != nil {
				line += " (current step: " + obj.Description + ")"
			}
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Quests involving you: " + strings.Join(lines, "; ") + ".\n"
}

// addressee returns the participant the NPC is talking to: the protagonist
// when present, otherwise the first other participant.
func (m *Manager) addressee(npc *world.Character, conv *world.Conversation) *world.Character {
	if conv.Has(m.world.ProtagonistID) && npc.ID != m.world.ProtagonistID {
		if c, err := m.world.Character(m.world.ProtagonistID); err == nil {
			return c
		}
	}
	for _, id := range conv.Participants {
		if id == npc.ID {
			continue
		}
		if c, err := m.world.Character(id); err == nil {
			return c
		}
	}
	return nil
}

// promptMessages renders the recent history into chat messages from the
// NPC's point of view.
func (m *Manager) promptMessages(npc *world.Character, conv *world.Conversation) []provider.Message {
	turns := conv.LastTurns(m.historyWindow)
	if len(turns) == 0 {
		return []provider.Message{{
			Role:    "user",
			Content: "Greet the person approaching you.",
		}}
	}
	msgs := make([]provider.Message, 0, len(turns))
	for _, t := range turns {
		role := "user"
		if t.SpeakerID == npc.ID {
			role = "assistant"
		}
		name := t.SpeakerID
		if c, err := m.world.Character(t.SpeakerID); err == nil {
			name = c.Name
		}
		msgs = append(msgs, provider.Message{Role: role, Content: t.Text, Name: name})
	}
	return msgs
}
