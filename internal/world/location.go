package world

// Scale is the coarse size class of a location.
type Scale string

const (
	ScaleRoom     Scale = "room"
	ScaleBuilding Scale = "building"
	ScaleArea     Scale = "area"
	ScaleTown     Scale = "town"
	ScaleRegion   Scale = "region"
)

// DetailLevel gates how much generated text accompanies a location.
// Expansion is monotonic: sparse → partial → full, never downward.
type DetailLevel string

const (
	DetailSparse  DetailLevel = "sparse"
	DetailPartial DetailLevel = "partial"
	DetailFull    DetailLevel = "full"
)

// rank orders detail levels for the no-downgrade invariant.
func (d DetailLevel) rank() int {
	switch d {
	case DetailPartial:
		return 1
	case DetailFull:
		return 2
	default:
		return 0
	}
}

// Terrain affects travel time.
type Terrain string

const (
	TerrainFlat     Terrain = "flat"
	TerrainForest   Terrain = "forest"
	TerrainMountain Terrain = "mountain"
	TerrainSwamp    Terrain = "swamp"
)

// Modifier returns the travel-cost multiplier for the terrain.
func (t Terrain) Modifier() float64 {
	switch t {
	case TerrainForest:
		return 1.5
	case TerrainMountain:
		return 2.0
	case TerrainSwamp:
		return 2.5
	default:
		return 1.0
	}
}

// Coord is a coarse world coordinate used only for travel-time estimation.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Environment carries ambient flags for prompts and encounter rolls.
type Environment struct {
	Indoor      bool     `json:"indoor,omitempty"`
	Lit         bool     `json:"lit,omitempty"`
	Safe        bool     `json:"safe,omitempty"`
	Temperature string   `json:"temperature,omitempty"`
	Hazards     []string `json:"hazards,omitempty"`

	// Danger in [0,1] drives encounter probability and enemy positioning.
	Danger float64 `json:"danger,omitempty"`

	Terrain Terrain `json:"terrain,omitempty"`
}

// Rumor is a likelihood-weighted narrative snippet.
type Rumor struct {
	Text       string  `json:"text"`
	Likelihood float64 `json:"likelihood"`
}

// NarrativeFuel is the structured prompt material attached to a location.
type NarrativeFuel struct {
	CommonKnowledge []string `json:"commonKnowledge,omitempty"`
	Rumors          []Rumor  `json:"rumors,omitempty"`
	Specialists     []string `json:"specialists,omitempty"`
	QuestHooks      []string `json:"questHooks,omitempty"`
}

// Location is a plain record owned by the session. Links to other records
// are by id only; the session owns the id→record maps.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`

	// Descriptions by detail level; unexpanded levels are empty.
	DescriptionSparse  string `json:"descriptionSparse,omitempty"`
	DescriptionPartial string `json:"descriptionPartial,omitempty"`
	DescriptionFull    string `json:"descriptionFull,omitempty"`

	Coord  Coord `json:"coord"`
	Scale  Scale `json:"scale"`

	ParentID string   `json:"parentId,omitempty"`
	Children []string `json:"children,omitempty"`

	// Exits maps direction names to location ids.
	Exits map[string]string `json:"exits,omitempty"`

	Environment Environment   `json:"environment"`
	Fuel        NarrativeFuel `json:"fuel"`

	Discovered bool        `json:"discovered"`
	Visited    bool        `json:"visited"`
	Detail     DetailLevel `json:"detail"`

	GridWidth  int `json:"gridWidth,omitempty"`
	GridHeight int `json:"gridHeight,omitempty"`

	// Items lying in the location, available to search/investigate.
	Items []*Item `json:"items,omitempty"`

	// PointsOfInterest feed investigate/search narration and discoveries.
	PointsOfInterest []string `json:"pointsOfInterest,omitempty"`

	// Presence is the set of character ids currently here. Mirrors each
	// character's CurrentLocation.
	Presence map[string]bool `json:"presence,omitempty"`

	// Extra preserves unknown fields for forward compatibility.
	Extra map[string]any `json:"extra,omitempty"`
}

// Description returns the richest text available at the current detail level.
func (l *Location) Description() string {
	switch l.Detail {
	case DetailFull:
		if l.DescriptionFull != "" {
			return l.DescriptionFull
		}
		fallthrough
	case DetailPartial:
		if l.DescriptionPartial != "" {
			return l.DescriptionPartial
		}
		fallthrough
	default:
		return l.DescriptionSparse
	}
}

// ExpandDetail raises the detail level to d. Downgrades are ignored:
// expanding detail never loses text.
func (l *Location) ExpandDetail(d DetailLevel) bool {
	if d.rank() <= l.Detail.rank() {
		return false
	}
	l.Detail = d
	return true
}

// NextDetail returns the level after the current one, or the current level
// when already full. An unset level counts as sparse.
func (l *Location) NextDetail() DetailLevel {
	switch l.Detail {
	case DetailPartial, DetailFull:
		return DetailFull
	default:
		return DetailPartial
	}
}

// HasSpecialist reports whether npcID is flagged as a specialist here.
func (l *Location) HasSpecialist(npcID string) bool {
	for _, id := range l.Fuel.Specialists {
		if id == npcID {
			return true
		}
	}
	return false
}

// TakeItem removes and returns the item with the given id, or nil.
func (l *Location) TakeItem(itemID string) *Item {
	for i, it := range l.Items {
		if it.ID == itemID {
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return it
		}
	}
	return nil
}
