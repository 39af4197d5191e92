package stream

import (
	"fmt"
	"sort"

	"github.com/livepeer/m3u8"

	"live-streamer/internal/streamer"
)

// BuildMasterPlaylist renders an HLS master playlist with one variant per
// resolution, lowest first. Variant URIs are relative to the master playlist:
// "{prefix}-{streamKey}_{label}.m3u8".
func BuildMasterPlaylist(prefix, streamKey string, resolutions []streamer.Resolution) string {
	sorted := append([]streamer.Resolution(nil), resolutions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	master := m3u8.NewMasterPlaylist()
	for _, r := range sorted {
		if !r.Valid() {
			continue
		}
		width, height, kbps := r.Parameters()
		master.Append(fmt.Sprintf("%s-%s_%s.m3u8", prefix, streamKey, r.Label()), nil, m3u8.VariantParams{
			Bandwidth:  uint32(kbps*1000 + streamer.AudioBitrate),
			Resolution: fmt.Sprintf("%dx%d", width, height),
		})
	}
	return master.String()
}
