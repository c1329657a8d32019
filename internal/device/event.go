package device

import (
	"fmt"
)

// EventKind enumerates the abstract lighting intents
type EventKind int

const (
	EventOther EventKind = iota
	EventOn
	EventOff
	EventColor
	EventBrightness
)

func (k EventKind) String() string {
	switch k {
	case EventOn:
		return "on"
	case EventOff:
		return "off"
	case EventColor:
		return "color"
	case EventBrightness:
		return "brightness"
	default:
		return "other"
	}
}

// Event is an immutable lighting intent. Only the field matching Kind is meaningful.
type Event struct {
	kind       EventKind
	color      string
	brightness uint8
	other      *string
}

func On() Event { return Event{kind: EventOn} }

func Off() Event { return Event{kind: EventOff} }

// Color carries a "<marker><RRGGBB>" string, e.g. "#FF8000".
func Color(hex string) Event { return Event{kind: EventColor, color: hex} }

func Brightness(level uint8) Event { return Event{kind: EventBrightness, brightness: level} }

// Other carries an optional opaque payload for events no device understands.
func Other(payload *string) Event {
	if payload != nil {
		p := *payload
		payload = &p
	}
	return Event{kind: EventOther, other: payload}
}

func (e Event) Kind() EventKind { return e.kind }

func (e Event) ColorValue() string { return e.color }

func (e Event) BrightnessValue() uint8 { return e.brightness }

// OtherValue returns the opaque payload of an Other event and whether one was set.
func (e Event) OtherValue() (string, bool) {
	if e.other == nil {
		return "", false
	}
	return *e.other, true
}

func (e Event) String() string {
	switch e.kind {
	case EventOn, EventOff:
		return e.kind.String()
	case EventColor:
		return fmt.Sprintf("color(%s)", e.color)
	case EventBrightness:
		return fmt.Sprintf("brightness(%d)", e.brightness)
	default:
		if v, ok := e.OtherValue(); ok {
			return fmt.Sprintf("other(%s)", v)
		}
		return "other"
	}
}

// EventRequest is the external (JSON) representation of an Event
type EventRequest struct {
	EventType  string  `json:"event_type"`
	Color      *string `json:"color,omitempty"`
	Brightness *uint8  `json:"brightness,omitempty"`
	OtherEv    *string `json:"other_ev,omitempty"`
}

// Event converts the request. Unknown types and missing companion fields map to Other.
func (r EventRequest) Event() Event {
	switch r.EventType {
	case "on":
		return On()
	case "off":
		return Off()
	case "color":
		if r.Color != nil {
			return Color(*r.Color)
		}
	case "brightness":
		if r.Brightness != nil {
			return Brightness(*r.Brightness)
		}
	}
	return Other(r.OtherEv)
}
