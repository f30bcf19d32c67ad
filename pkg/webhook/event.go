// Package webhook authenticates provider callbacks and drives meeting and
// agent state from them.
package webhook

import (
	"encoding/json"
	"strings"
)

type Kind string

const (
	KindSessionStarted         Kind = "session_started"
	KindSessionParticipantLeft Kind = "session_participant_left"
	KindSessionEnded           Kind = "session_ended"
	KindTranscriptionReady     Kind = "transcription_ready"
	KindRecordingReady         Kind = "recording_ready"
	KindMessageNew             Kind = "message.new"
	KindUnknown                Kind = "unknown"
)

// ParseKind maps the payload type onto a Kind. Call events arrive with a
// "call." prefix, which is optional here.
func ParseKind(eventType string) Kind {
	t := strings.TrimSpace(eventType)
	if t == string(KindMessageNew) {
		return KindMessageNew
	}
	switch Kind(strings.TrimPrefix(t, "call.")) {
	case KindSessionStarted:
		return KindSessionStarted
	case KindSessionParticipantLeft:
		return KindSessionParticipantLeft
	case KindSessionEnded:
		return KindSessionEnded
	case KindTranscriptionReady:
		return KindTranscriptionReady
	case KindRecordingReady:
		return KindRecordingReady
	default:
		return KindUnknown
	}
}

// Payload is the union of the fields read from any event kind.
type Payload struct {
	Type    string `json:"type"`
	CallCID string `json:"call_cid"`

	Call *struct {
		Custom map[string]json.RawMessage `json:"custom"`
	} `json:"call,omitempty"`

	CallTranscription *struct {
		URL string `json:"url"`
	} `json:"call_transcription,omitempty"`

	CallRecording *struct {
		URL string `json:"url"`
	} `json:"call_recording,omitempty"`

	User *struct {
		ID string `json:"id"`
	} `json:"user,omitempty"`
	ChannelID string `json:"channel_id"`
	Message   *struct {
		Text string `json:"text"`
	} `json:"message,omitempty"`
}

func (p Payload) Kind() Kind { return ParseKind(p.Type) }

// CustomMeetingID returns call.custom.meetingId when it is a non-empty string.
func (p Payload) CustomMeetingID() string {
	if p.Call == nil || p.Call.Custom == nil {
		return ""
	}
	raw, ok := p.Call.Custom["meetingId"]
	if !ok {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return ""
	}
	return strings.TrimSpace(id)
}

// SplitCallCID splits a "type:id" call cid. Either part may be empty.
func SplitCallCID(cid string) (callType, callID string) {
	callType, callID, ok := strings.Cut(cid, ":")
	if !ok {
		return "", ""
	}
	return strings.TrimSpace(callType), strings.TrimSpace(callID)
}

func (p Payload) UserID() string {
	if p.User == nil {
		return ""
	}
	return strings.TrimSpace(p.User.ID)
}

func (p Payload) MessageText() string {
	if p.Message == nil {
		return ""
	}
	return p.Message.Text
}
