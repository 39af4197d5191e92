// Package gstreamer implements media.Runtime on top of GStreamer via go-gst.
package gstreamer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"live-streamer/internal/media"
)

// DefaultPollInterval bounds how long Bus.Next blocks inside GStreamer before
// re-checking its context.
const DefaultPollInterval = 100 * time.Millisecond

var initOnce sync.Once

// Runtime is a media.Runtime backed by GStreamer.
type Runtime struct {
	pollInterval time.Duration
}

// New initialises GStreamer (once per process) and returns a Runtime whose
// buses poll at pollInterval. A non-positive interval uses DefaultPollInterval.
func New(pollInterval time.Duration) *Runtime {
	initOnce.Do(func() { gst.Init(nil) })
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Runtime{pollInterval: pollInterval}
}

// NewPipeline implements media.Runtime.
func (r *Runtime) NewPipeline(name string) (media.Pipeline, error) {
	p, err := gst.NewPipeline(name)
	if err != nil {
		return nil, fmt.Errorf("create pipeline %q: %w", name, err)
	}
	return &pipeline{p: p, pollInterval: r.pollInterval}, nil
}

// NewElement implements media.Runtime. An empty name lets GStreamer pick one.
func (r *Runtime) NewElement(factory, name string) (media.Element, error) {
	var (
		e   *gst.Element
		err error
	)
	if name == "" {
		e, err = gst.NewElement(factory)
	} else {
		e, err = gst.NewElementWithName(factory, name)
	}
	if err != nil {
		return nil, fmt.Errorf("create element %s: %w", factory, err)
	}
	return &element{e: e, factory: factory}, nil
}

type pipeline struct {
	p            *gst.Pipeline
	pollInterval time.Duration
}

func (p *pipeline) Name() string { return p.p.GetName() }

func (p *pipeline) Add(elements ...media.Element) error {
	for _, el := range elements {
		ge, err := unwrapElement(el)
		if err != nil {
			return err
		}
		if err := p.p.Add(ge.e); err != nil {
			return fmt.Errorf("add %s to pipeline: %w", ge.Name(), err)
		}
	}
	return nil
}

func (p *pipeline) SetState(state media.State) error {
	return p.p.SetState(toGstState(state))
}

func (p *pipeline) Bus() (media.Bus, bool) {
	b := p.p.GetPipelineBus()
	if b == nil {
		return nil, false
	}
	return &bus{b: b, pollInterval: p.pollInterval}, true
}

type bus struct {
	b            *gst.Bus
	pollInterval time.Duration
}

// Next pops with a bounded timeout so cancellation is observed between polls.
func (b *bus) Next(ctx context.Context) (media.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return media.Message{}, err
		}
		msg := b.b.TimedPop(b.pollInterval)
		if msg == nil {
			continue
		}
		return convertMessage(msg), nil
	}
}

func convertMessage(msg *gst.Message) media.Message {
	out := media.Message{Source: msg.Source()}
	switch msg.Type() {
	case gst.MessageEOS:
		out.Type = media.MessageEOS
	case gst.MessageError:
		out.Type = media.MessageError
		if gerr := msg.ParseError(); gerr != nil {
			out.Err = fmt.Errorf("%s", gerr.Error())
			out.Debug = gerr.DebugString()
		} else {
			out.Err = fmt.Errorf("unknown pipeline error from %s", out.Source)
		}
	case gst.MessageStateChanged:
		out.Type = media.MessageStateChanged
	default:
		out.Type = media.MessageOther
	}
	return out
}

type element struct {
	e       *gst.Element
	factory string
}

func (e *element) Name() string    { return e.e.GetName() }
func (e *element) Factory() string { return e.factory }

// SetProperty converts string caps for capsfilter elements; every other value
// is handed to GObject unchanged.
func (e *element) SetProperty(name string, value any) error {
	if s, ok := value.(string); ok && name == "caps" {
		caps := gst.NewCapsFromString(s)
		if caps == nil {
			return fmt.Errorf("%s: invalid caps %q", e.Name(), s)
		}
		return e.e.SetProperty(name, caps)
	}
	if err := e.e.SetProperty(name, value); err != nil {
		return fmt.Errorf("%s: set %s: %w", e.Name(), name, err)
	}
	return nil
}

func (e *element) StaticPad(name string) (media.Pad, bool) {
	p := e.e.GetStaticPad(name)
	if p == nil {
		return nil, false
	}
	return &pad{p: p}, true
}

func (e *element) Link(next media.Element) error {
	ge, err := unwrapElement(next)
	if err != nil {
		return err
	}
	return e.e.Link(ge.e)
}

func (e *element) OnPadAdded(fn func(media.Pad)) error {
	_, err := e.e.Connect("pad-added", func(_ *gst.Element, p *gst.Pad) {
		fn(&pad{p: p})
	})
	if err != nil {
		return fmt.Errorf("%s: connect pad-added: %w", e.Name(), err)
	}
	return nil
}

type pad struct {
	p *gst.Pad
}

func (p *pad) Name() string   { return p.p.GetName() }
func (p *pad) IsLinked() bool { return p.p.IsLinked() }

// Kind reads the negotiated caps, falling back to a caps query for pads that
// have not negotiated yet.
func (p *pad) Kind() media.Kind {
	caps := p.p.GetCurrentCaps()
	if caps == nil {
		caps = p.p.QueryCaps(nil)
	}
	if caps == nil {
		return media.KindUnknown
	}
	return media.KindFromCaps(caps.String())
}

func (p *pad) Link(sink media.Pad) error {
	gp, ok := sink.(*pad)
	if !ok {
		return fmt.Errorf("link %s: sink pad %T is not a gstreamer pad", p.Name(), sink)
	}
	if ret := p.p.Link(gp.p); ret != gst.PadLinkOK {
		return fmt.Errorf("link %s -> %s: %v", p.Name(), gp.Name(), ret)
	}
	return nil
}

func unwrapElement(el media.Element) (*element, error) {
	ge, ok := el.(*element)
	if !ok {
		return nil, fmt.Errorf("element %T is not a gstreamer element", el)
	}
	return ge, nil
}

func toGstState(s media.State) gst.State {
	switch s {
	case media.StateReady:
		return gst.StateReady
	case media.StatePaused:
		return gst.StatePaused
	case media.StatePlaying:
		return gst.StatePlaying
	default:
		return gst.StateNull
	}
}
