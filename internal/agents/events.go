package agents

// EventType names a stream event
type EventType string

const (
	EventIterationStart EventType = "iteration_start"
	EventThinking       EventType = "thinking"
	EventToolStart      EventType = "tool_start"
	EventToolEnd        EventType = "tool_end"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is one item of the streaming protocol. done events carry the full
// response flattened into the same object.
type Event struct {
	Type      EventType `json:"type"`
	Iteration int       `json:"iteration,omitempty"`
	Message   string    `json:"message,omitempty"`
	Tool      string    `json:"tool,omitempty"`
	OK        *bool     `json:"ok,omitempty"`
	Ms        *int64    `json:"ms,omitempty"`
	Detail    string    `json:"detail,omitempty"`

	*ChatResponse
}

// Emitter receives events in order. It is called from the turn's goroutine only.
type Emitter func(Event)

// Terminal reports whether no event follows e
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func iterationStart(n int) Event {
	return Event{Type: EventIterationStart, Iteration: n}
}

func thinking(message string) Event {
	return Event{Type: EventThinking, Message: message}
}

func toolStart(tool string) Event {
	return Event{Type: EventToolStart, Tool: tool}
}

func toolEnd(row TraceRow, detail string) Event {
	ok, ms := row.OK, row.Ms
	return Event{Type: EventToolEnd, Tool: row.Tool, OK: &ok, Ms: &ms, Detail: detail}
}

func done(resp *ChatResponse) Event {
	return Event{Type: EventDone, ChatResponse: resp}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
