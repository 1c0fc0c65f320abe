package world

// DistanceBand is the coarse combat range category.
type DistanceBand string

const (
	BandMelee  DistanceBand = "melee"
	BandClose  DistanceBand = "close"
	BandMedium DistanceBand = "medium"
	BandLong   DistanceBand = "long"
)

var bandOrder = []DistanceBand{BandMelee, BandClose, BandMedium, BandLong}

// rank orders bands from melee (0) outward.
func (b DistanceBand) rank() int {
	for i, o := range bandOrder {
		if o == b {
			return i
		}
	}
	return 1
}

// Closer returns the band one step nearer melee.
func (b DistanceBand) Closer() DistanceBand {
	if r := b.rank(); r > 0 {
		return bandOrder[r-1]
	}
	return b
}

// Further returns the band one step further out.
func (b DistanceBand) Further() DistanceBand {
	if r := b.rank(); r < len(bandOrder)-1 {
		return bandOrder[r+1]
	}
	return b
}

// Outcome is the terminal state of a combat encounter.
type Outcome string

const (
	OutcomeVictory Outcome = "victory"
	OutcomeDefeat  Outcome = "defeat"
	OutcomeFlee    Outcome = "flee"
	OutcomeTimeout Outcome = "timeout"
)

// Initiative pairs a combatant with its turn-order score.
type Initiative struct {
	CharacterID string `json:"characterId"`
	Score       int    `json:"score"`
}

// LootPayload is the reward attached to a combat_ended event. Zero on any
// non-victory outcome.
type LootPayload struct {
	Experience int     `json:"experience"`
	Gold       int     `json:"gold"`
	Items      []*Item `json:"items,omitempty"`
}

// Encounter is one combat instance owned by the session.
type Encounter struct {
	ID           string       `json:"id"`
	LocationID   string       `json:"locationId"`
	Participants []Initiative `json:"participants"`

	// Positions maps combatant ids to their distance band relative to
	// the protagonist.
	Positions map[string]DistanceBand `json:"positions"`

	Round     int      `json:"round"`
	MaxRounds int      `json:"maxRounds"`
	TurnOrder []string `json:"turnOrder"`
	Log       []string `json:"log,omitempty"`

	Resolved bool        `json:"resolved"`
	Outcome  Outcome     `json:"outcome,omitempty"`
	Reward   LootPayload `json:"reward"`
}
