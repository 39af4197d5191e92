package streamer

import (
	"log/slog"
	"sync"
	"testing"

	"live-streamer/internal/media"
	"live-streamer/internal/media/mediatest"
)

func newTestRouter(t *testing.T) (*padRouter, *mediatest.Element, *mediatest.Element) {
	t.Helper()
	rt := mediatest.NewRuntime()
	vq, _ := rt.NewElement("queue", "vq")
	aq, _ := rt.NewElement("queue", "aq")
	router, err := newPadRouter("7", P360, slog.Default(), map[media.Kind]media.Element{
		media.KindVideo: vq,
		media.KindAudio: aq,
	})
	if err != nil {
		t.Fatalf("newPadRouter: %v", err)
	}
	return router, vq.(*mediatest.Element), aq.(*mediatest.Element)
}

func TestPadRouter_routes_by_kind(t *testing.T) {
	for _, order := range [][]media.Kind{
		{media.KindVideo, media.KindAudio},
		{media.KindAudio, media.KindVideo},
	} {
		router, vq, aq := newTestRouter(t)
		pads := map[media.Kind]*mediatest.Pad{
			media.KindVideo: mediatest.NewPad("src_0", media.KindVideo),
			media.KindAudio: mediatest.NewPad("src_1", media.KindAudio),
		}
		for _, k := range order {
			router.onPadAdded(pads[k])
		}
		if vq.SinkPad().Peer() != pads[media.KindVideo] {
			t.Errorf("order %v: video pad not linked to video queue", order)
		}
		if aq.SinkPad().Peer() != pads[media.KindAudio] {
			t.Errorf("order %v: audio pad not linked to audio queue", order)
		}
	}
}

func TestPadRouter_links_branch_once(t *testing.T) {
	router, vq, _ := newTestRouter(t)
	first := mediatest.NewPad("src_0", media.KindVideo)
	second := mediatest.NewPad("src_2", media.KindVideo)

	router.onPadAdded(first)
	router.onPadAdded(first)
	router.onPadAdded(second)

	if vq.SinkPad().Peer() != first {
		t.Error("video branch should stay linked to the first pad")
	}
	if first.LinkCalls() != 1 {
		t.Errorf("first pad link attempts = %d, want 1", first.LinkCalls())
	}
	if second.LinkCalls() != 0 || second.IsLinked() {
		t.Error("second video pad should not be linked")
	}
}

func TestPadRouter_concurrent_pads_link_once(t *testing.T) {
	router, vq, _ := newTestRouter(t)
	pads := make([]*mediatest.Pad, 16)
	for i := range pads {
		pads[i] = mediatest.NewPad("src", media.KindVideo)
	}
	var wg sync.WaitGroup
	for _, p := range pads {
		wg.Add(1)
		go func(p *mediatest.Pad) {
			defer wg.Done()
			router.onPadAdded(p)
		}(p)
	}
	wg.Wait()

	linked := 0
	for _, p := range pads {
		if p.IsLinked() {
			linked++
		}
	}
	if linked != 1 || vq.SinkPad().Peer() == nil {
		t.Errorf("linked pads = %d, want exactly 1", linked)
	}
}

func TestPadRouter_ignores_unknown_kind(t *testing.T) {
	router, vq, aq := newTestRouter(t)
	router.onPadAdded(mediatest.NewPad("subtitle", media.KindUnknown))
	if vq.SinkPad().IsLinked() || aq.SinkPad().IsLinked() {
		t.Error("unknown pad kind should not be linked")
	}
}

func TestBranchLink_retries_after_failure(t *testing.T) {
	_, vq, _ := newTestRouter(t)
	sink := vq.SinkPad()
	// occupy the sink so the first attempt fails
	blocker := mediatest.NewPad("blocker", media.KindVideo)
	if err := blocker.Link(sink); err != nil {
		t.Fatalf("setup link: %v", err)
	}
	b := &branchLink{kind: media.KindVideo, sink: sink}
	if ok, err := b.link(mediatest.NewPad("src", media.KindVideo)); ok || err == nil {
		t.Fatalf("expected failed link, got ok=%v err=%v", ok, err)
	}
	if b.linked.Load() {
		t.Error("claim should be released after a failed link")
	}
}
