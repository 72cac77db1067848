package models

// QuestionPack is the per-room content bag: the batches drawn from the
// question bank for each phase when that phase starts. It travels inside the
// Room document so that phase transactions can validate answers purely from
// the value they are handed.
type QuestionPack struct {
	Buzzer []BuzzerQuestion `json:"buzzer,omitempty"`
	Choice []ChoiceItem     `json:"choice,omitempty"`
	Topics []TrackTopic     `json:"topics,omitempty"`
	Race   []RaceQuestion   `json:"race,omitempty"`
	Memory []MemoryItem     `json:"memory,omitempty"`
}

// BuzzerQuestion is a multiple-choice question for the buzzer race.
type BuzzerQuestion struct {
	ID           uint     `json:"id"`
	Text         string   `json:"text"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
}

// ChoiceItem is a statement for the binary-choice phase. Answer is one of
// "spicy", "sweet" or "both". FunFact, when present, stretches the delay
// before the next item so players can read it.
type ChoiceItem struct {
	ID      uint   `json:"id"`
	Text    string `json:"text"`
	Answer  string `json:"answer"`
	FunFact string `json:"fun_fact,omitempty"`
}

// TrackTopic is a claimable topic with a fixed ladder of free-text steps for
// the parallel-tracks phase.
type TrackTopic struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Steps []string `json:"steps"`
}

// RaceQuestion is a free-text question for the speed race. AcceptedAnswers
// are compared case-insensitively after trimming.
type RaceQuestion struct {
	ID              uint     `json:"id"`
	Text            string   `json:"text"`
	AcceptedAnswers []string `json:"accepted_answers"`
}

// MemoryItem is one element of the sequence shown during the memorize step
// of the memory duel.
type MemoryItem struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}
