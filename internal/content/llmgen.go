package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/emberforge/wayfarer/internal/llm"
	"github.com/emberforge/wayfarer/internal/world"
	provider "github.com/emberforge/wayfarer/pkg/provider/llm"
)

// Subsystem tags world-generation LLM calls.
const Subsystem = "ContentGenerator"

const generatePrompt = `Design a compact starting area for a role-playing world with the theme %q.
The player character is named %q.
Reply with one JSON object and nothing else:
{
  "startingTown": {"id","name","description"},
  "locations": [{"id","name","type","description","x","y","z","terrain":"flat|forest|mountain|swamp","danger":0..1,"safe":bool,"exits":{"direction":"locationId"}}],
  "npcs": [{"id","name","mood","concern","backstory","merchant":bool,"specialties":["..."],"rumors":["..."]}],
  "mainQuest": {"id","title","description","giverId","objectives":[{"id","description","type":"talk|visit|learn|collect|defeat","target"}],"rewards":{"gold","experience"}},
  "townRumors": ["..."]
}
Use 3 to 5 locations and 2 to 4 npcs. All npcs start in the town. Objective targets must reference the ids above.`

// LLMGenerator authors a themed world through the model, degrading to
// the builtin world when the model is unavailable or its output does not
// parse. Generation happens once at bootstrap, before frame counting
// starts.
type LLMGenerator struct {
	client *llm.Client
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator wraps the session's LLM client.
func NewLLMGenerator(client *llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// wire shapes for the generation reply.
type genReply struct {
	StartingTown struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"startingTown"`
	Locations []struct {
		ID          string            `json:"id"`
		Name        string            `json:"name"`
		Type        string            `json:"type"`
		Description string            `json:"description"`
		X           int               `json:"x"`
		Y           int               `json:"y"`
		Z           int               `json:"z"`
		Terrain     string            `json:"terrain"`
		Danger      float64           `json:"danger"`
		Safe        bool              `json:"safe"`
		Exits       map[string]string `json:"exits"`
	} `json:"locations"`
	NPCs []struct {
		ID          string   `json:"id"`
		Name        string   `json:"name"`
		Mood        string   `json:"mood"`
		Concern     string   `json:"concern"`
		Backstory   string   `json:"backstory"`
		Merchant    bool     `json:"merchant"`
		Specialties []string `json:"specialties"`
		Rumors      []string `json:"rumors"`
	} `json:"npcs"`
	MainQuest struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
		GiverID     string `json:"giverId"`
		Objectives  []struct {
			ID          string `json:"id"`
			Description string `json:"description"`
			Type        string `json:"type"`
			Target      string `json:"target"`
		} `json:"objectives"`
		Rewards struct {
			Gold       int `json:"gold"`
			Experience int `json:"experience"`
		} `json:"rewards"`
	} `json:"mainQuest"`
	TownRumors []string `json:"townRumors"`
}

// GenerateWorld asks the model for a themed starting area. Any failure
// falls back to the builtin world; bootstrap never hard-fails on
// content.
func (g *LLMGenerator) GenerateWorld(ctx context.Context, p Params) (*World, error) {
	var reply genReply
	res := g.client.Generate(ctx, llm.Request{
		Subsystem:    Subsystem,
		Operation:    "generate_world",
		Frame:        0,
		SystemPrompt: "You design role-playing game worlds as strict JSON.",
		Messages: []provider.Message{{
			Role:    "user",
			Content: fmt.Sprintf(generatePrompt, p.Theme, p.PlayerName),
		}},
		Temperature: 0.8,
		MaxTokens:   2000,
		Fallback:    func() string { return "" },
		Validate: func(out string) error {
			if err := json.Unmarshal([]byte(extractJSON(out)), &reply); err != nil {
				return err
			}
			if reply.StartingTown.ID == "" || len(reply.Locations) == 0 || len(reply.MainQuest.Objectives) == 0 {
				return fmt.Errorf("content: incomplete world")
			}
			return nil
		},
		Context: map[string]any{"theme": p.Theme},
	})
	if res.UsedFallback {
		slog.Warn("world generation fell back to builtin content", "theme", p.Theme, "reason", res.FallbackReason)
		return Builtin{}.GenerateWorld(ctx, p)
	}
	return g.assemble(ctx, p, &reply)
}

// assemble maps the wire reply onto entity records, borrowing the
// builtin protagonist so stats stay balanced regardless of theme.
func (g *LLMGenerator) assemble(ctx context.Context, p Params, reply *genReply) (*World, error) {
	base, err := Builtin{}.GenerateWorld(ctx, p)
	if err != nil {
		return nil, err
	}
	hero := base.Protagonist
	hero.CurrentLocation = reply.StartingTown.ID

	var locations []*world.Location
	for _, l := range reply.Locations {
		loc := &world.Location{
			ID: l.ID, Name: l.Name, Type: l.Type, Scale: world.ScaleArea,
			DescriptionSparse: l.Description,
			Coord:             world.Coord{X: l.X, Y: l.Y, Z: l.Z},
			Environment: world.Environment{
				Safe:    l.Safe,
				Danger:  l.Danger,
				Terrain: world.Terrain(l.Terrain),
			},
			Exits:      l.Exits,
			Discovered: true,
			Detail:     world.DetailSparse,
		}
		if loc.ID == reply.StartingTown.ID {
			loc.Scale = world.ScaleTown
			loc.Name = reply.StartingTown.Name
			if reply.StartingTown.Description != "" {
				loc.DescriptionSparse = reply.StartingTown.Description
			}
			loc.Visited = true
			loc.Environment.Safe = true
		}
		locations = append(locations, loc)
	}

	var npcs []*world.Character
	for _, n := range reply.NPCs {
		npc := &world.Character{
			ID: n.ID, Name: n.Name, Role: world.RoleNPC,
			Stats:           world.Stats{Level: 2, HP: 40, MaxHP: 40, Stamina: 30, MaxStamina: 30, Attack: 4, Defense: 1},
			Knowledge:       world.Knowledge{Specialties: n.Specialties, Rumors: n.Rumors},
			CurrentLocation: reply.StartingTown.ID,
			Mood:            n.Mood,
			Concern:         n.Concern,
			Backstory:       n.Backstory,
			IsMerchant:      n.Merchant,
		}
		if n.Merchant {
			npc.Greed = 0.2
			for _, b := range base.NPCs {
				if b.IsMerchant {
					npc.Inventory = b.Inventory
					break
				}
			}
		}
		npcs = append(npcs, npc)
	}

	q := &world.Quest{
		ID:          reply.MainQuest.ID,
		Title:       reply.MainQuest.Title,
		Description: reply.MainQuest.Description,
		GiverID:     reply.MainQuest.GiverID,
		State:       world.QuestActive,
		Rewards:     world.Rewards{Gold: reply.MainQuest.Rewards.Gold, Experience: reply.MainQuest.Rewards.Experience},
	}
	for _, o := range reply.MainQuest.Objectives {
		q.Objectives = append(q.Objectives, &world.Objective{
			ID: o.ID, Description: o.Description,
			Type: world.ObjectiveType(o.Type), Target: o.Target,
		})
	}
	q.RecomputeGuidance()

	return &World{
		StartingTown: reply.StartingTown.ID,
		Protagonist:  hero,
		NPCs:         npcs,
		Locations:    locations,
		MainQuest:    q,
		TownRumors:   reply.TownRumors,
	}, nil
}

// extractJSON trims a reply to its outermost JSON object.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
