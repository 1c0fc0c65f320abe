package eventbus

// Predefined event-type tags. These are the exact strings observers and the
// replay file see; do not alter spelling.
const (
	EventFrameUpdate             = "frame_update"
	EventActionExecuted          = "action_executed"
	EventDialogueStarted         = "dialogue_started"
	EventDialogueTurn            = "dialogue_turn"
	EventDialogueLine            = "dialogue_line"
	EventDialogueEnded           = "dialogue_ended"
	EventCombatStarted           = "combat_started"
	EventCombatTurn              = "combat_turn"
	EventCombatEnded             = "combat_ended"
	EventQuestCreated            = "quest_created"
	EventQuestUpdated            = "quest_updated"
	EventQuestObjectiveCompleted = "quest_objective_completed"
	EventQuestCompleted          = "quest_completed"
	EventLocationDiscovered      = "location_discovered"
	EventLocationChanged         = "location_changed"
	EventCharacterDied           = "character_died"
	EventPauseToggled            = "pause_toggled"
	EventGameStarted             = "game_started"
	EventGameEnded               = "game_ended"
	EventTimeChanged             = "time_changed"
	EventGoldChanged             = "gold_changed"
	EventLootObtained            = "loot_obtained"
	EventLevelUp                 = "level_up"
	EventFallbackUsed            = "fallback:used"
	EventError                   = "error"
)
