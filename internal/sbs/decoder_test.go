package sbs

import (
	"reflect"
	"testing"
)

func TestDecoder_SingleFeed(t *testing.T) {
	d := &Decoder{}

	lines := d.Feed([]byte("MSG,1\r\nMSG,2\r\n"))

	want := []string{"MSG,1", "MSG,2"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
	if d.Pending() != 0 {
		t.Errorf("Expected empty buffer, got %d pending bytes", d.Pending())
	}
}

func TestDecoder_PartialLineBuffered(t *testing.T) {
	d := &Decoder{}

	if lines := d.Feed([]byte("MSG,3,1,1,7C79B7")); lines != nil {
		t.Errorf("Expected no lines from partial feed, got %v", lines)
	}
	if d.Pending() == 0 {
		t.Error("Expected partial line to remain buffered")
	}

	lines := d.Feed([]byte(",1\r\n"))
	want := []string{"MSG,3,1,1,7C79B7,1"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
}

func TestDecoder_DelimiterSplitAcrossFeeds(t *testing.T) {
	d := &Decoder{}

	if lines := d.Feed([]byte("MSG,1\r")); lines != nil {
		t.Errorf("Expected no lines with split delimiter, got %v", lines)
	}
	lines := d.Feed([]byte("\nMSG,2\r\n"))
	want := []string{"MSG,1", "MSG,2"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
}

func TestDecoder_HeartbeatsAbsorbed(t *testing.T) {
	d := &Decoder{}

	lines := d.Feed([]byte("\r\n\r\nMSG,1\r\n\r\n"))

	want := []string{"MSG,1"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
}

func TestDecoder_OnlyHeartbeats(t *testing.T) {
	d := &Decoder{}

	if lines := d.Feed([]byte("\r\n\r\n\r\n")); lines != nil {
		t.Errorf("Expected no lines from heartbeats, got %v", lines)
	}
	if d.Pending() != 0 {
		t.Errorf("Expected empty buffer after heartbeats, got %d bytes", d.Pending())
	}
}

// Feeding the same stream in every possible chunking must yield the same
// line sequence as feeding it whole.
func TestDecoder_ChunkBoundaryIndependence(t *testing.T) {
	stream := []byte("MSG,8,1,1,7C79B7,1\r\n\r\nSEL,,1,1,4CA4E8,1\r\nAIR,,1,1,3C6DD0,1\r\n")

	whole := (&Decoder{}).Feed(stream)

	for size := 1; size <= len(stream); size++ {
		d := &Decoder{}
		var lines []string
		for start := 0; start < len(stream); start += size {
			end := start + size
			if end > len(stream) {
				end = len(stream)
			}
			lines = append(lines, d.Feed(stream[start:end])...)
		}
		if !reflect.DeepEqual(lines, whole) {
			t.Fatalf("Chunk size %d produced %v, want %v", size, lines, whole)
		}
	}
}

func TestDecoder_TrailingBytesNeverSurface(t *testing.T) {
	d := &Decoder{}

	lines := d.Feed([]byte("MSG,1\r\nMSG,2,partial"))

	want := []string{"MSG,1"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("Feed() = %v, want %v", lines, want)
	}
	if d.Pending() != len("MSG,2,partial") {
		t.Errorf("Expected %d pending bytes, got %d", len("MSG,2,partial"), d.Pending())
	}
}
