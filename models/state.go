package models

// GamePhase identifies which of the five mini-games (or a lobby/final frame)
// the room is currently in.
type GamePhase string

const (
	PhaseLobby  GamePhase = "lobby"
	PhaseBuzzer GamePhase = "buzzer"
	PhaseChoice GamePhase = "choice"
	PhaseTracks GamePhase = "tracks"
	PhaseRace   GamePhase = "race"
	PhaseMemory GamePhase = "memory"
	PhaseFinal  GamePhase = "final"
)

// PhaseStep is the generic within-round progression shared by all phases.
type PhaseStep string

const (
	StepIdle       PhaseStep = "idle"
	StepReading    PhaseStep = "reading"
	StepSelecting  PhaseStep = "selecting"
	StepMemorizing PhaseStep = "memorizing"
	StepAnswering  PhaseStep = "answering"
	StepResult     PhaseStep = "result"
)

// State is the phase-tagged union embedded in the Room. Only the sub-state
// matching Phase is live; everything else is stale leftovers from a previous
// phase and must not be read. Each sub-state carries the question index it
// belongs to so engines can reject data from an older round.
type State struct {
	Phase                GamePhase `json:"phase"`
	PhaseStep            PhaseStep `json:"phase_step"`
	CurrentQuestionIndex int       `json:"current_question_index"`
	RoundWinner          Team      `json:"round_winner"`

	Buzzer *BuzzerState `json:"buzzer,omitempty"`
	Choice *ChoiceState `json:"choice,omitempty"`
	Tracks *TracksState `json:"tracks,omitempty"`
	Race   *RaceState   `json:"race,omitempty"`
	Memory *MemoryState `json:"memory,omitempty"`
}

// BuzzerState is the per-round record for the buzzer race. Everything in it
// is reset when a new question starts.
type BuzzerState struct {
	QuestionIndex int `json:"question_index"`
	// Answers maps player id -> option index tried this round.
	Answers           map[string]int `json:"answers"`
	TriedWrongOptions []int          `json:"tried_wrong_options"`
	BlockedTeam       Team           `json:"blocked_team"`
	// ScoredPlayer is set exactly once, by the transaction that commits the
	// winning transition.
	ScoredPlayer string `json:"scored_player"`
}

// TeamChoice is a recorded first-answer for one team in the binary-choice
// phase.
type TeamChoice struct {
	Choice   string `json:"choice"`
	PlayerID string `json:"player_id"`
}

// ChoiceState is the per-item record for the simultaneous binary choice.
type ChoiceState struct {
	ItemIndex int                  `json:"item_index"`
	Answers   map[Team]*TeamChoice `json:"answers"`
	// Winners and ScoredPlayers are filled by the resolving transition.
	Winners       []Team   `json:"winners"`
	ScoredPlayers []string `json:"scored_players"`
}

// TrackProgress is one team's independent 5-step tracker. The two teams'
// trackers never block each other.
type TrackProgress struct {
	TopicID  string         `json:"topic_id"`
	Step     int            `json:"step"`
	Score    int            `json:"score"`
	Answered map[int]string `json:"answered"` // step -> player id
	Finished bool           `json:"finished"`
}

// TracksState is the state of the parallel-tracks phase, covering both the
// topic-selection handshake and the independent play that follows.
type TracksState struct {
	// PickOrder holds the alternating selection order, lower-scoring team
	// first. PickTurn indexes into it.
	PickOrder []Team                  `json:"pick_order"`
	PickTurn  int                     `json:"pick_turn"`
	Claimed   map[string]Team         `json:"claimed"` // topic id -> team
	Teams     map[Team]*TrackProgress `json:"teams"`
}

// RaceAnswer is one recorded submission in the speed race. AnsweredAt is the
// caller-supplied submission timestamp in unix milliseconds; ordering must
// reflect user action time, not server processing order.
type RaceAnswer struct {
	Text       string `json:"text"`
	AnsweredAt int64  `json:"answered_at"`
	Correct    bool   `json:"correct"`
}

// RaceState is the per-question record for the multi-team speed race.
type RaceState struct {
	QuestionIndex int                    `json:"question_index"`
	Answers       map[string]*RaceAnswer `json:"answers"` // player id -> answer
	WinnerID      string                 `json:"winner_id"`
}

// MemoryState drives the representative-selection memory duel.
type MemoryState struct {
	// Votes maps team -> voter id -> candidate id. VoteOrder remembers the
	// order candidates first received a vote, used as the majority tie-break.
	Votes           map[Team]map[string]string `json:"votes"`
	VoteOrder       map[Team][]string          `json:"vote_order"`
	Representatives map[Team]string            `json:"representatives"`
	MemorizeStarted int64                      `json:"memorize_started"` // unix ms
	RecallAnswers   map[Team][]string          `json:"recall_answers"`
	RecallCursor    map[Team]int               `json:"recall_cursor"`
	Scores          map[Team]int               `json:"scores"`
}
