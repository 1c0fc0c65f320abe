package quest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emberforge/wayfarer/internal/eventbus"
	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// DetectionSubsystem tags detection calls in fallback entries and the
// replay log.
const DetectionSubsystem = "QuestDetection"

// confidenceThreshold is the minimum LLM confidence for a proposal to
// become a quest.
const confidenceThreshold = 60

// detectionKeywords is the cheap first-stage screen. Only turns containing
// one of these words reach the LLM.
var detectionKeywords = []string{
	"help", "problem", "trouble", "missing", "find", "rescue",
	"lost", "stolen", "danger", "reward", "please",
}

// proposal is the strict shape the detection call must return.
type proposal struct {
	Confidence  int    `json:"confidence"`
	Title       string `json:"title"`
	Description string `json:"description"`
	QuestType   string `json:"questType"`
	Objectives []struct {
		Type        string `json:"type"`
		Target      string `json:"target"`
		Description string `json:"description"`
	} `json:"objectives"`
	Rewards struct {
		Gold       int `json:"gold"`
		Experience int `json:"experience"`
	} `json:"rewards"`
}

// detectFromTurn runs the two-stage detection pipeline on one protagonist
// turn: keyword screen, then a structured LLM call. Low confidence and
// unparsable responses are discarded silently; detection must never derail
// a conversation.
func (t *Tracker) detectFromTurn(ctx context.Context, ev eventbus.Event) {
	if t.client == nil {
		return
	}
	if group, _ := ev.Payload["group"].(bool); group && !t.AutoDetectInGroups {
		return
	}
	text, _ := ev.Payload["text"].(string)
	if !screenKeywords(text) {
		return
	}

	npcID, _ := ev.Payload["npcId"].(string)
	if npcID == "" {
		npcID, _ = ev.Payload["addresseeId"].(string)
	}

	var parsed proposal
	res := t.client.Generate(ctx, llm.Request{
		Subsystem:    DetectionSubsystem,
		Operation:    "detect",
		Frame:        ev.Frame,
		SystemPrompt: detectionPrompt,
		Messages:     []provider.Message{{Role: "user", Content: text}},
		Temperature:  0.2,
		MaxTokens:    400,
		Validate: func(out string) error {
			return json.Unmarshal([]byte(extractJSON(out)), &parsed)
		},
		// No canned quest makes sense; the fallback is "nothing detected".
		Fallback: func() string { return "" },
		Context:  map[string]any{"npcId": npcID},
	})
	if res.UsedFallback || parsed.Confidence < confidenceThreshold || len(parsed.Objectives) == 0 {
		return
	}

	t.detectCounter++
	q := &world.Quest{
		ID:          fmt.Sprintf("quest-detected-%d", t.detectCounter),
		Title:       parsed.Title,
		Description: parsed.Description,
		GiverID:     npcID,
		Type:        parsed.QuestType,
		State:       world.QuestActive,
		Rewards: world.Rewards{
			Gold:       parsed.Rewards.Gold,
			Experience: parsed.Rewards.Experience,
		},
		Meta: world.QuestMeta{
			Confidence:   parsed.Confidence,
			DetectedFrom: npcID,
		},
	}
	for i, o := range parsed.Objectives {
		q.Objectives = append(q.Objectives, &world.Objective{
			ID:          fmt.Sprintf("%s-o%d", q.ID, i+1),
			Description: o.Description,
			Type:        world.ObjectiveType(o.Type),
			Target:      o.Target,
		})
	}
	if err := t.world.AddQuest(q); err != nil {
		return
	}
	t.emit(eventbus.EventQuestCreated, t.world.ProtagonistID, map[string]any{
		"questId":    q.ID,
		"title":      q.Title,
		"confidence": q.Meta.Confidence,
		"source":     "detection",
		"npcId":      npcID,
	})
}

const detectionPrompt = `You analyse a line of role-playing dialogue and decide whether it implies a new quest for the speaker.
Respond with a single JSON object and nothing else:
{"confidence":0-100,"title":"...","description":"...","questType":"...","objectives":[{"type":"talk|visit|learn|collect|defeat|escort|deliver","target":"id","description":"..."}],"rewards":{"gold":0,"experience":0}}
Use confidence 0 when no quest is implied.`

// screenKeywords is the stage-one filter.
func screenKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range detectionKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// extractJSON trims prose wrappers models like to add around JSON bodies.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
