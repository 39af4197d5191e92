// Package media defines the narrow contract the streamer needs from a media
// graph runtime: element construction, static and dynamic linking, state
// transitions and a per-pipeline message bus.
//
// The GStreamer implementation lives in media/gstreamer; media/mediatest
// provides a scriptable in-memory runtime for tests.
package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrBusClosed is returned by Bus.Next once the bus can no longer deliver messages.
var ErrBusClosed = errors.New("media: bus closed")

// State is the runtime state of a pipeline or element.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind is the media type carried by a pad.
type Kind int

const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// KindFromCaps classifies a caps description ("video/x-raw, width=...") by its
// media type prefix.
func KindFromCaps(caps string) Kind {
	caps = strings.TrimSpace(strings.ToLower(caps))
	switch {
	case strings.HasPrefix(caps, "video/"):
		return KindVideo
	case strings.HasPrefix(caps, "audio/"):
		return KindAudio
	default:
		return KindUnknown
	}
}

// MessageType classifies bus messages. Only EOS and Error are terminal.
type MessageType int

const (
	MessageOther MessageType = iota
	MessageEOS
	MessageError
	MessageStateChanged
)

func (t MessageType) String() string {
	switch t {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageStateChanged:
		return "state-changed"
	default:
		return "other"
	}
}

// Message is one bus message. Err and Debug are set for MessageError.
type Message struct {
	Type   MessageType
	Source string
	Err    error
	Debug  string
}

// Pad is a link point on an element.
type Pad interface {
	Name() string
	Kind() Kind
	IsLinked() bool
	Link(sink Pad) error
}

// Element is one processing node in a pipeline.
type Element interface {
	Name() string
	Factory() string
	SetProperty(name string, value any) error
	StaticPad(name string) (Pad, bool)
	Link(next Element) error
	// OnPadAdded registers fn to be called for every pad the element exposes
	// after construction (demultiplexers and decoders expose pads late).
	OnPadAdded(fn func(Pad)) error
}

// Bus delivers pipeline messages in order.
type Bus interface {
	// Next blocks until a message is available or ctx is done.
	Next(ctx context.Context) (Message, error)
}

// Pipeline is a top-level graph of elements sharing one clock and bus.
type Pipeline interface {
	Name() string
	Add(elements ...Element) error
	SetState(state State) error
	// Bus returns the pipeline's message bus, or false if it exposes none.
	Bus() (Bus, bool)
}

// Runtime constructs pipelines and elements.
type Runtime interface {
	NewPipeline(name string) (Pipeline, error)
	NewElement(factory, name string) (Element, error)
}

// LinkMany links elements in order: elements[0] -> elements[1] -> ...
func LinkMany(elements ...Element) error {
	for i := 1; i < len(elements); i++ {
		if err := elements[i-1].Link(elements[i]); err != nil {
			return fmt.Errorf("link %s -> %s: %w", elements[i-1].Name(), elements[i].Name(), err)
		}
	}
	return nil
}
