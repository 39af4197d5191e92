package streamer

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"live-streamer/internal/media"
)

// branchLink is the link state of one downstream branch. linked is claimed
// with compare-and-swap before the pad link is attempted, so a branch is
// linked at most once however often pad-added fires.
type branchLink struct {
	kind   media.Kind
	sink   media.Pad
	linked atomic.Bool
}

// link attaches src to the branch. It reports false without error when src is
// already linked or the branch has been claimed by another pad.
func (b *branchLink) link(src media.Pad) (bool, error) {
	if src.IsLinked() {
		return false, nil
	}
	if !b.linked.CompareAndSwap(false, true) {
		return false, nil
	}
	if err := src.Link(b.sink); err != nil {
		b.linked.Store(false)
		return false, err
	}
	return true, nil
}

// padRouter routes demultiplexer pads to the branch matching their media kind.
type padRouter struct {
	log      *slog.Logger
	branches map[media.Kind]*branchLink
}

func newPadRouter(streamID string, r Resolution, log *slog.Logger, inputs map[media.Kind]media.Element) (*padRouter, error) {
	branches := make(map[media.Kind]*branchLink, len(inputs))
	for kind, el := range inputs {
		sink, ok := el.StaticPad("sink")
		if !ok {
			return nil, fmt.Errorf("%s branch input %s has no sink pad", kind, el.Name())
		}
		branches[kind] = &branchLink{kind: kind, sink: sink}
	}
	return &padRouter{
		log: log.With(
			slog.String("stream_id", streamID),
			slog.String("resolution", r.String()),
		),
		branches: branches,
	}, nil
}

func (pr *padRouter) onPadAdded(pad media.Pad) {
	kind := pad.Kind()
	branch, ok := pr.branches[kind]
	if !ok {
		pr.log.Debug("ignoring demuxer pad", slog.String("pad", pad.Name()), slog.String("kind", kind.String()))
		return
	}

	linked, err := branch.link(pad)
	switch {
	case err != nil:
		pr.log.Error("link demuxer pad",
			slog.String("pad", pad.Name()),
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()))
	case linked:
		pr.log.Debug("demuxer pad linked", slog.String("pad", pad.Name()), slog.String("kind", kind.String()))
	default:
		pr.log.Debug("demuxer pad skipped, branch already linked", slog.String("pad", pad.Name()), slog.String("kind", kind.String()))
	}
}
