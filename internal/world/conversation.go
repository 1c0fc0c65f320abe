package world

// Turn is one utterance inside a conversation.
type Turn struct {
	SpeakerID string `json:"speakerId"`
	Text      string `json:"text"`
	Frame     int64  `json:"frame"`
}

// Conversation is a dialogue between two or more characters. Group
// conversations have three or more participants.
type Conversation struct {
	ID           string   `json:"id"`
	Participants []string `json:"participants"`
	StartFrame   int64    `json:"startFrame"`
	History      []Turn   `json:"history"`
	Active       bool     `json:"active"`
	Group        bool     `json:"group"`

	// TurnCounts tracks how often each participant has spoken, for the
	// round-robin fairness rule.
	TurnCounts map[string]int `json:"turnCounts,omitempty"`

	// Topics are hint strings accumulated while the dialogue runs.
	Topics []string `json:"topics,omitempty"`
}

// AddTurn records an utterance and bumps the speaker's turn count.
func (c *Conversation) AddTurn(speakerID, text string, frame int64) {
	c.History = append(c.History, Turn{SpeakerID: speakerID, Text: text, Frame: frame})
	if c.TurnCounts == nil {
		c.TurnCounts = make(map[string]int)
	}
	c.TurnCounts[speakerID]++
}

// LastTurns returns up to n most recent turns, oldest first.
func (c *Conversation) LastTurns(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}

// ConsecutiveTurns counts how many of the most recent turns belong to
// speakerID without interruption.
func (c *Conversation) ConsecutiveTurns(speakerID string) int {
	n := 0
	for i := len(c.History) - 1; i >= 0; i-- {
		if c.History[i].SpeakerID != speakerID {
			break
		}
		n++
	}
	return n
}

// Has reports whether id participates in the conversation.
func (c *Conversation) Has(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}
