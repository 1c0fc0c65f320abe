package world

// QuestState is the lifecycle state of a quest.
type QuestState string

const (
	QuestActive    QuestState = "active"
	QuestCompleted QuestState = "completed"
	QuestFailed    QuestState = "failed"
)

// ObjectiveType declares how an objective is detected from events.
type ObjectiveType string

const (
	ObjectiveTalk    ObjectiveType = "talk"
	ObjectiveVisit   ObjectiveType = "visit"
	ObjectiveLearn   ObjectiveType = "learn"
	ObjectiveCollect ObjectiveType = "collect"
	ObjectiveDefeat  ObjectiveType = "defeat"
	ObjectiveEscort  ObjectiveType = "escort"
	ObjectiveDeliver ObjectiveType = "deliver"
)

// Objective is one ordered step of a quest.
type Objective struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Type        ObjectiveType `json:"type"`

	// Target is the id (npc, location, item) or enemy-type predicate the
	// objective matches against.
	Target string `json:"target,omitempty"`

	// Keywords are the case-insensitive topic words a learn objective
	// scans dialogue turns for.
	Keywords []string `json:"keywords,omitempty"`

	Completed bool `json:"completed"`
}

// Guidance points the decider at the next step of a quest.
type Guidance struct {
	// CurrentStep indexes the first incomplete objective, or equals the
	// objective count when all are done.
	CurrentStep int `json:"currentStep"`

	NextLocation string   `json:"nextLocation,omitempty"`
	NextNPC      string   `json:"nextNpc,omitempty"`
	Hints        []string `json:"hints,omitempty"`
}

// Rewards is granted to the protagonist when the quest completes.
type Rewards struct {
	Gold       int     `json:"gold,omitempty"`
	Experience int     `json:"experience,omitempty"`
	Items      []*Item `json:"items,omitempty"`
	Narrative  string  `json:"narrative,omitempty"`
}

// QuestMeta carries detection provenance and display hints.
type QuestMeta struct {
	Confidence int    `json:"confidence,omitempty"`
	Urgency    string `json:"urgency,omitempty"`
	Icon       string `json:"icon,omitempty"`

	// DetectedFrom is the NPC whose dialogue produced an auto-detected quest.
	DetectedFrom string `json:"detectedFrom,omitempty"`
}

// Quest is a plain record owned by the session.
type Quest struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	GiverID     string       `json:"giverId,omitempty"`
	Type        string       `json:"questType,omitempty"`
	Objectives  []*Objective `json:"objectives"`
	State       QuestState   `json:"state"`
	Guidance    Guidance     `json:"guidance"`
	Rewards     Rewards      `json:"rewards"`
	Meta        QuestMeta    `json:"meta"`

	// Extra preserves unknown fields for forward compatibility.
	Extra map[string]any `json:"extra,omitempty"`
}

// FirstIncomplete returns the index of the first incomplete objective, or
// len(Objectives) when all are done.
func (q *Quest) FirstIncomplete() int {
	for i, o := range q.Objectives {
		if !o.Completed {
			return i
		}
	}
	return len(q.Objectives)
}

// CurrentObjective returns the first incomplete objective, or nil.
func (q *Quest) CurrentObjective() *Objective {
	i := q.FirstIncomplete()
	if i >= len(q.Objectives) {
		return nil
	}
	return q.Objectives[i]
}

// RecomputeGuidance re-derives CurrentStep, the next-step pointers, and
// the completion state from the objective flags. CurrentStep always
// indexes the first incomplete objective; a quest whose objectives are
// all complete becomes completed.
func (q *Quest) RecomputeGuidance() {
	q.Guidance.CurrentStep = q.FirstIncomplete()

	q.Guidance.NextLocation = ""
	q.Guidance.NextNPC = ""
	if obj := q.CurrentObjective(); obj != nil {
		switch obj.Type {
		case ObjectiveVisit:
			q.Guidance.NextLocation = obj.Target
		case ObjectiveTalk, ObjectiveEscort, ObjectiveDeliver:
			q.Guidance.NextNPC = obj.Target
		}
	}

	if q.Guidance.CurrentStep >= len(q.Objectives) && len(q.Objectives) > 0 {
		if q.State == QuestActive {
			q.State = QuestCompleted
		}
	}
}

// Mentions reports whether the quest references npcID as giver, objective
// target, or guidance pointer. The dialogue subsystem uses this to pick
// which quests belong in an NPC's prompt context.
func (q *Quest) Mentions(npcID string) bool {
	if q.GiverID == npcID || q.Guidance.NextNPC == npcID {
		return true
	}
	for _, o := range q.Objectives {
		if o.Target == npcID {
			return true
		}
	}
	return false
}
