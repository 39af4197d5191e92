package media

import "testing"

func TestKindFromCaps(t *testing.T) {
	tests := []struct {
		caps string
		want Kind
	}{
		{"video/x-raw, format=I420, width=640", KindVideo},
		{"audio/x-raw, rate=48000", KindAudio},
		{"  Video/x-h264", KindVideo},
		{"application/x-rtp", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		if got := KindFromCaps(tt.caps); got != tt.want {
			t.Errorf("KindFromCaps(%q) = %v, want %v", tt.caps, got, tt.want)
		}
	}
}

func TestStateAndMessageStrings(t *testing.T) {
	if StatePlaying.String() != "playing" || StateNull.String() != "null" {
		t.Errorf("unexpected state strings: %s %s", StatePlaying, StateNull)
	}
	if MessageEOS.String() != "eos" || MessageError.String() != "error" {
		t.Errorf("unexpected message strings: %s %s", MessageEOS, MessageError)
	}
}
