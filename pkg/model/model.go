// Package model defines the shared data types for the playback engine.
package model

import (
	"time"

	"milgramgo/pkg/media"
)

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerProfessor   Speaker = "Professor"
	SpeakerLearner     Speaker = "Learner"
	SpeakerParticipant Speaker = "Participant"
	SpeakerShockDevice Speaker = "SHOCKING_DEVICE"
)

// ShockSentinel is the legacy text payload the backend emits for a shock
// event. It is normalized into TurnKindShock at enqueue time and never
// consulted afterwards.
const ShockSentinel = "ELECTRIC_SHOCK_IMAGE"

// TurnKind discriminates speech turns from non-speech shock events.
type TurnKind int

const (
	TurnKindSpeech TurnKind = iota
	TurnKindShock
)

func (k TurnKind) String() string {
	if k == TurnKindShock {
		return "shock"
	}
	return "speech"
}

// ClassifyTurn returns the kind for a raw speaker/text pair. This is the
// single place where the shock discriminant is decided.
func ClassifyTurn(speaker Speaker, text string) TurnKind {
	if speaker == SpeakerShockDevice || text == ShockSentinel {
		return TurnKindShock
	}
	return TurnKindSpeech
}

// Turn is one conversational utterance or event in the sync queue.
// The turn queue is the sole writer of Ready and the media handles;
// Ready is monotonic and the handles are immutable once set.
type Turn struct {
	ID      string
	Speaker Speaker
	Kind    TurnKind
	Text    string

	Audio *media.Handle
	Image *media.Handle
	Ready bool
}

// TurnSnapshot is the read-only queue view exposed to the transcript UI.
type TurnSnapshot struct {
	ID      string  `json:"id"`
	Speaker Speaker `json:"speaker"`
	Kind    string  `json:"kind"`
	Text    string  `json:"text"`
	Ready   bool    `json:"ready"`
	Current bool    `json:"current"`
}

// Message is a transcript log entry with its arrival time.
type Message struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationMessage is one stored turn of a historical conversation.
type ConversationMessage struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Conversation is a completed experiment run as delivered by the backend.
type Conversation struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	FinalVoltage int                   `json:"final_voltage"`
	Config       map[string]any        `json:"config"`
	Messages     []ConversationMessage `json:"messages"`
}

// ConversationSummary is the list view of a stored conversation.
type ConversationSummary struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	FinalVoltage int       `json:"final_voltage"`
	Turns        int       `json:"turns"`
}
