package streamer

import (
	"fmt"
	"log/slog"

	"live-streamer/internal/media"
)

// AudioBitrate is the fixed AAC bitrate (bit/s) used for every resolution.
const AudioBitrate = 128000

// GraphBuilder constructs the processing graph of one resolution of a stream.
type GraphBuilder interface {
	Build(desc *StreamDescriptor, r Resolution) (media.Pipeline, error)
}

// Builder assembles per-resolution pipelines:
//
//	filesrc ! decodebin
//	decodebin.video ! queue ! videoconvert ! videoscale ! capsfilter ! x264enc ! flvmux
//	decodebin.audio ! queue ! audioconvert ! audioresample ! capsfilter ! avenc_aac !
//	    capsfilter ! aacparse ! capsfilter ! flvmux
//	flvmux ! rtmpsink
//
// decodebin exposes its pads only after inspecting the source, so the two
// branches are attached from its pad-added callback.
type Builder struct {
	runtime media.Runtime
	dest    Destination
	log     *slog.Logger
}

// NewBuilder returns a Builder publishing to dest.
func NewBuilder(runtime media.Runtime, dest Destination, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{runtime: runtime, dest: dest, log: log}
}

// Build constructs, but does not start, the pipeline for desc at resolution r.
// On failure the partially built pipeline is disposed and a *GraphError is returned.
func (b *Builder) Build(desc *StreamDescriptor, r Resolution) (media.Pipeline, error) {
	if !r.Valid() {
		return nil, &GraphError{StreamID: desc.StreamID, Resolution: r, Element: "resolution", Err: ErrUnknownResolution}
	}

	p, err := b.runtime.NewPipeline(PipelineName(desc.StreamID, r))
	if err != nil {
		return nil, &GraphError{StreamID: desc.StreamID, Resolution: r, Element: "pipeline", Err: err}
	}

	a := &assembler{runtime: b.runtime, pipeline: p, streamID: desc.StreamID, resolution: r}
	width, height, bitrate := r.Parameters()

	source := a.element("filesrc", "", prop{"location", desc.SourcePath})
	demux := a.element("decodebin", "demux")

	videoQueue := a.element("queue", "")
	videoConvert := a.element("videoconvert", "")
	videoScale := a.element("videoscale", "")
	videoCaps := a.element("capsfilter", "", prop{"caps", fmt.Sprintf("video/x-raw, width=%d, height=%d", width, height)})
	videoEnc := a.element("x264enc", "", prop{"bitrate", uint(bitrate)})

	audioQueue := a.element("queue", "")
	audioConvert := a.element("audioconvert", "")
	audioResample := a.element("audioresample", "")
	audioRaw := a.element("capsfilter", "", prop{"caps", "audio/x-raw"})
	audioEnc := a.element("avenc_aac", "", prop{"bitrate", AudioBitrate})
	audioMpeg := a.element("capsfilter", "", prop{"caps", "audio/mpeg"})
	audioParse := a.element("aacparse", "")
	audioMpeg4 := a.element("capsfilter", "", prop{"caps", "audio/mpeg, mpegversion=4"})

	mux := a.element("flvmux", "mux", prop{"streamable", true})
	sink := a.element("rtmpsink", "", prop{"location", b.dest.For(desc.StreamID, r)})

	a.link(source, demux)
	a.link(videoQueue, videoConvert, videoScale, videoCaps, videoEnc, mux)
	a.link(audioQueue, audioConvert, audioResample, audioRaw, audioEnc, audioMpeg, audioParse, audioMpeg4, mux)
	a.link(mux, sink)

	if a.err == nil {
		router, err := newPadRouter(desc.StreamID, r, b.log, map[media.Kind]media.Element{
			media.KindVideo: videoQueue,
			media.KindAudio: audioQueue,
		})
		if err != nil {
			a.fail("decodebin", err)
		} else if err := demux.OnPadAdded(router.onPadAdded); err != nil {
			a.fail("decodebin", err)
		}
	}

	if a.err != nil {
		if err := p.SetState(media.StateNull); err != nil {
			b.log.Warn("dispose partial pipeline",
				slog.String("pipeline", p.Name()),
				slog.String("error", err.Error()))
		}
		return nil, a.err
	}
	return p, nil
}

type prop struct {
	name  string
	value any
}

// assembler records the first construction failure; later calls are no-ops.
type assembler struct {
	runtime    media.Runtime
	pipeline   media.Pipeline
	streamID   string
	resolution Resolution
	err        *GraphError
}

func (a *assembler) fail(element string, err error) {
	if a.err == nil {
		a.err = &GraphError{StreamID: a.streamID, Resolution: a.resolution, Element: element, Err: err}
	}
}

func (a *assembler) element(factory, name string, props ...prop) media.Element {
	if a.err != nil {
		return nil
	}
	el, err := a.runtime.NewElement(factory, name)
	if err != nil {
		a.fail(factory, err)
		return nil
	}
	for _, pr := range props {
		if err := el.SetProperty(pr.name, pr.value); err != nil {
			a.fail(factory, fmt.Errorf("set %s: %w", pr.name, err))
			return nil
		}
	}
	if err := a.pipeline.Add(el); err != nil {
		a.fail(factory, err)
		return nil
	}
	return el
}

func (a *assembler) link(elements ...media.Element) {
	if a.err != nil {
		return
	}
	if err := media.LinkMany(elements...); err != nil {
		a.fail(elements[0].Factory(), err)
	}
}
