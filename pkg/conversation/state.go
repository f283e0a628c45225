package conversation

import (
	"time"

	"github.com/harun/supportdesk/pkg/llm"
	"github.com/harun/supportdesk/pkg/taskgraph"
)

// Phase is the router state of a conversation.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseDecomposing        Phase = "decomposing"
	PhaseDispatching        Phase = "dispatching"
	PhaseAwaitingHumanInput Phase = "awaiting_human_input"
	PhaseCompleted          Phase = "completed"
)

// State is everything one conversation owns. Messages are persisted as the
// conversation history; the rest is persisted as a snapshot.
type State struct {
	ConversationID string `json:"conversation_id"`
	Phase          Phase  `json:"phase"`
	Episode        int    `json:"episode"`

	Messages []llm.Message   `json:"-"`
	Graph    *taskgraph.Graph `json:"graph,omitempty"`

	// CurrentTask is set while a task is InProgress or Blocked.
	CurrentTask string `json:"current_task,omitempty"`

	AwaitingInput bool   `json:"awaiting_input"`
	Prompt        string `json:"prompt,omitempty"`

	Shared    *SharedContext `json:"shared"`
	Grounding string         `json:"grounding,omitempty"`

	AllTerminal   bool   `json:"all_terminal"`
	FinalResponse string `json:"final_response,omitempty"`

	// CasualTurns counts consecutive turns that produced no tasks.
	CasualTurns int `json:"casual_turns"`

	UpdatedAt time.Time `json:"updated_at"`
}

// New creates the idle state of a fresh conversation.
func New(conversationID string) *State {
	return &State{
		ConversationID: conversationID,
		Phase:          PhaseIdle,
		Shared:         NewSharedContext(),
	}
}

// BeginEpisode discards the task graph and per-episode context. History and
// the casual-turn counter survive.
func (s *State) BeginEpisode() {
	s.Episode++
	s.Graph = nil
	s.CurrentTask = ""
	s.AwaitingInput = false
	s.Prompt = ""
	s.Shared = NewSharedContext()
	s.Grounding = ""
	s.AllTerminal = false
	s.FinalResponse = ""
}

// Suspend records that the conversation waits for the customer.
func (s *State) Suspend(prompt string) {
	s.Phase = PhaseAwaitingHumanInput
	s.AwaitingInput = true
	s.Prompt = prompt
}

// Resume clears the pending-input flag.
func (s *State) Resume() {
	s.AwaitingInput = false
	s.Prompt = ""
}

// Complete marks the episode finished with a final response.
func (s *State) Complete(final string) {
	s.Phase = PhaseCompleted
	s.AwaitingInput = false
	s.Prompt = ""
	s.CurrentTask = ""
	s.FinalResponse = final
	s.AllTerminal = s.Graph == nil || s.Graph.AllTerminal()
}

// EpisodeLevelWait reports whether the conversation waits for input with no
// task to resume (a clarification before any task graph existed).
func (s *State) EpisodeLevelWait() bool {
	return s.Phase == PhaseAwaitingHumanInput && s.CurrentTask == ""
}

// Append adds a message to the in-memory transcript.
func (s *State) Append(msg llm.Message) {
	s.Messages = append(s.Messages, msg)
}
