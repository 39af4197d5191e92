// Package mediatest provides a scriptable in-memory media.Runtime for tests.
// Pipelines record their state transitions and links; tests drive them by
// emitting pads and posting bus messages.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"live-streamer/internal/media"
)

// ErrAlreadyLinked mirrors GStreamer refusing to link a pad twice.
var ErrAlreadyLinked = errors.New("mediatest: pad already linked")

// Runtime is a fake media.Runtime. The zero value is not usable; call NewRuntime.
type Runtime struct {
	mu           sync.Mutex
	failFactory  map[string]error
	failProperty func(factory, name string, value any) error
	failPlay     map[string]error
	noBus        bool
	pipelines    []*Pipeline
	elementSeq   int
}

// NewRuntime returns an empty fake runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		failFactory: make(map[string]error),
		failPlay:    make(map[string]error),
	}
}

// FailFactory makes every NewElement call for factory return err.
func (r *Runtime) FailFactory(factory string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failFactory[factory] = err
}

// FailProperty installs fn to veto SetProperty calls; a non-nil return fails the call.
func (r *Runtime) FailProperty(fn func(factory, name string, value any) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failProperty = fn
}

// FailPlay makes SetState(StatePlaying) on the named pipeline return err.
func (r *Runtime) FailPlay(pipelineName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failPlay[pipelineName] = err
}

// WithoutBus makes subsequently created pipelines expose no bus.
func (r *Runtime) WithoutBus() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noBus = true
}

// NewPipeline implements media.Runtime.
func (r *Runtime) NewPipeline(name string) (media.Pipeline, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Pipeline{
		name:    name,
		runtime: r,
		noBus:   r.noBus,
		bus:     &Bus{ch: make(chan media.Message, 16)},
	}
	r.pipelines = append(r.pipelines, p)
	return p, nil
}

// NewElement implements media.Runtime.
func (r *Runtime) NewElement(factory, name string) (media.Element, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFactory[factory]; err != nil {
		return nil, err
	}
	r.elementSeq++
	if name == "" {
		name = fmt.Sprintf("%s%d", factory, r.elementSeq)
	}
	e := &Element{
		name:    name,
		factory: factory,
		runtime: r,
		props:   make(map[string]any),
	}
	e.pads = map[string]*Pad{
		"sink": {name: "sink", owner: e},
		"src":  {name: "src", owner: e},
	}
	return e, nil
}

// Pipelines returns every pipeline created so far, in creation order.
func (r *Runtime) Pipelines() []*Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Pipeline(nil), r.pipelines...)
}

// Pipeline returns the most recently created pipeline with the given name.
func (r *Runtime) Pipeline(name string) (*Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.pipelines) - 1; i >= 0; i-- {
		if r.pipelines[i].name == name {
			return r.pipelines[i], true
		}
	}
	return nil, false
}

// Pipeline is a fake media.Pipeline.
type Pipeline struct {
	name    string
	runtime *Runtime
	noBus   bool
	bus     *Bus

	mu       sync.Mutex
	elements []*Element
	states   []media.State
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Add(elements ...media.Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range elements {
		fe, ok := el.(*Element)
		if !ok {
			return fmt.Errorf("mediatest: cannot add %T", el)
		}
		p.elements = append(p.elements, fe)
	}
	return nil
}

func (p *Pipeline) SetState(state media.State) error {
	if state == media.StatePlaying {
		p.runtime.mu.Lock()
		err := p.runtime.failPlay[p.name]
		p.runtime.mu.Unlock()
		if err != nil {
			return err
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, state)
	return nil
}

func (p *Pipeline) Bus() (media.Bus, bool) {
	if p.noBus {
		return nil, false
	}
	return p.bus, true
}

// Post delivers msg on the pipeline bus.
func (p *Pipeline) Post(msg media.Message) {
	p.bus.ch <- msg
}

// PostEOS posts an end-of-stream message.
func (p *Pipeline) PostEOS() {
	p.Post(media.Message{Type: media.MessageEOS, Source: p.name})
}

// PostError posts an error message carrying err.
func (p *Pipeline) PostError(err error) {
	p.Post(media.Message{Type: media.MessageError, Source: p.name, Err: err, Debug: "mediatest"})
}

// State returns the last state set, StateNull if none.
func (p *Pipeline) State() media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.states) == 0 {
		return media.StateNull
	}
	return p.states[len(p.states)-1]
}

// States returns every state transition requested, in order.
func (p *Pipeline) States() []media.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]media.State(nil), p.states...)
}

// Elements returns the elements added to the pipeline.
func (p *Pipeline) Elements() []*Element {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Element(nil), p.elements...)
}

// ElementsByFactory returns the added elements built from factory, in add order.
func (p *Pipeline) ElementsByFactory(factory string) []*Element {
	var out []*Element
	for _, e := range p.Elements() {
		if e.factory == factory {
			out = append(out, e)
		}
	}
	return out
}

// Bus is a fake media.Bus fed by Pipeline.Post.
type Bus struct {
	ch chan media.Message
}

func (b *Bus) Next(ctx context.Context) (media.Message, error) {
	select {
	case <-ctx.Done():
		return media.Message{}, ctx.Err()
	case msg, ok := <-b.ch:
		if !ok {
			return media.Message{}, media.ErrBusClosed
		}
		return msg, nil
	}
}

// Element is a fake media.Element.
type Element struct {
	name    string
	factory string
	runtime *Runtime
	pads    map[string]*Pad

	mu        sync.Mutex
	props     map[string]any
	links     []*Element
	onPadAdds []func(media.Pad)
}

func (e *Element) Name() string    { return e.name }
func (e *Element) Factory() string { return e.factory }

func (e *Element) SetProperty(name string, value any) error {
	e.runtime.mu.Lock()
	veto := e.runtime.failProperty
	e.runtime.mu.Unlock()
	if veto != nil {
		if err := veto(e.factory, name, value); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.props[name] = value
	return nil
}

// Property returns the value last set for name.
func (e *Element) Property(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

func (e *Element) StaticPad(name string) (media.Pad, bool) {
	p, ok := e.pads[name]
	if !ok {
		return nil, false
	}
	return p, true
}

func (e *Element) Link(next media.Element) error {
	fe, ok := next.(*Element)
	if !ok {
		return fmt.Errorf("mediatest: cannot link to %T", next)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.links = append(e.links, fe)
	return nil
}

// Downstream returns the elements e was statically linked to.
func (e *Element) Downstream() []*Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Element(nil), e.links...)
}

func (e *Element) OnPadAdded(fn func(media.Pad)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onPadAdds = append(e.onPadAdds, fn)
	return nil
}

// EmitPadAdded invokes every registered pad-added callback with pad.
func (e *Element) EmitPadAdded(pad *Pad) {
	e.mu.Lock()
	fns := append([](func(media.Pad)){}, e.onPadAdds...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(pad)
	}
}

// SinkPad returns the element's static sink pad.
func (e *Element) SinkPad() *Pad { return e.pads["sink"] }

// Pad is a fake media.Pad.
type Pad struct {
	name  string
	kind  media.Kind
	owner *Element

	mu        sync.Mutex
	peer      *Pad
	linkCalls int
}

// NewPad returns a free-standing source pad of the given kind, as a
// demultiplexer would expose it.
func NewPad(name string, kind media.Kind) *Pad {
	return &Pad{name: name, kind: kind}
}

func (p *Pad) Name() string     { return p.name }
func (p *Pad) Kind() media.Kind { return p.kind }

func (p *Pad) IsLinked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer != nil
}

func (p *Pad) Link(sink media.Pad) error {
	fp, ok := sink.(*Pad)
	if !ok {
		return fmt.Errorf("mediatest: cannot link to %T", sink)
	}
	p.mu.Lock()
	p.linkCalls++
	linked := p.peer != nil
	p.mu.Unlock()
	if linked || fp.IsLinked() {
		return ErrAlreadyLinked
	}

	p.mu.Lock()
	p.peer = fp
	p.mu.Unlock()
	fp.mu.Lock()
	fp.peer = p
	fp.mu.Unlock()
	return nil
}

// Peer returns the pad p is linked to, or nil.
func (p *Pad) Peer() *Pad {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peer
}

// LinkCalls returns how many times Link was attempted on p.
func (p *Pad) LinkCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linkCalls
}
