package relay

import (
	"encoding/json"

	"graphrag-gateway/pkg/retrieval"
)

// Citation is announced to the client exactly as retrieval produced it.
type Citation = retrieval.Citation

type EventKind int

const (
	KindSources EventKind = iota
	KindToken
	KindDone
	KindError
)

func (k EventKind) String() string {
	switch k {
	case KindSources:
		return "sources"
	case KindToken:
		return "token"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one unit pushed to the client. Only the field matching Kind is used.
type Event struct {
	Kind    EventKind
	Sources []Citation
	Content string
	Message string
}

func SourcesEvent(sources []Citation) Event {
	if sources == nil {
		sources = []Citation{}
	}
	return Event{Kind: KindSources, Sources: sources}
}

func TokenEvent(content string) Event {
	return Event{Kind: KindToken, Content: content}
}

func ErrorEvent(message string) Event {
	return Event{Kind: KindError, Message: message}
}

func DoneEvent() Event {
	return Event{Kind: KindDone}
}

// MarshalJSON renders the body clients expect for each kind:
// {"sources":[...]}, {"content":"..."}, {"error":"..."} or {"done":true}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindSources:
		sources := e.Sources
		if sources == nil {
			sources = []Citation{}
		}
		return json.Marshal(struct {
			Sources []Citation `json:"sources"`
		}{sources})
	case KindToken:
		return json.Marshal(struct {
			Content string `json:"content"`
		}{e.Content})
	case KindError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{e.Message})
	default:
		return json.Marshal(struct {
			Done bool `json:"done"`
		}{true})
	}
}

// SSEFrame encodes the event as a single "data: <json>\n\n" frame.
func (e Event) SSEFrame() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, 0, len(body)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, body...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}
