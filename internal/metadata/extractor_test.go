package metadata

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"emysound/pkg/identity"
)

var testFormats = []string{".mp3", ".flac", ".wav", ".m4a"}

func TestIsAudioFile(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)

	testCases := []struct {
		filename string
		expected bool
	}{
		{"song.mp3", true},
		{"song.MP3", true},
		{"song.flac", true},
		{"song.FLAC", true},
		{"song.wav", true},
		{"song.m4a", true},
		{"song.txt", false},
		{"song.jpg", false},
		{"song", false},
		{"", false},
	}

	for _, tc := range testCases {
		result := extractor.IsAudioFile(tc.filename)
		if result != tc.expected {
			t.Errorf("IsAudioFile(%s): expected %v, got %v", tc.filename, tc.expected, result)
		}
	}
}

func TestExtractFromNonExistentFile(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	if _, err := extractor.Extract("/nonexistent/file.mp3"); err == nil {
		t.Error("Expected error when extracting from non-existent file")
	}
}

func TestExtractFallsBackToFilename(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	invalidFile := filepath.Join(t.TempDir(), "Blue in Green.mp3")
	if err := os.WriteFile(invalidFile, []byte("this is not an audio file"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := extractor.Extract(invalidFile)
	if err != nil {
		t.Fatalf("Extract should fall back instead of failing: %v", err)
	}

	if info.Title != "Blue in Green" {
		t.Errorf("Expected title from filename, got %s", info.Title)
	}
	if info.Artist != UnknownArtist {
		t.Errorf("Expected artist %q, got %s", UnknownArtist, info.Artist)
	}
	if info.Tagged {
		t.Error("Expected untagged file")
	}
}

// id3v1 builds a 128 byte ID3v1 trailer.
func id3v1(title, artist, album string) []byte {
	b := make([]byte, 128)
	copy(b[0:3], "TAG")
	copy(b[3:33], title)
	copy(b[33:63], artist)
	copy(b[63:93], album)
	copy(b[93:97], "1959")
	b[127] = 8 // jazz
	return b
}

func TestExtractReadsTags(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	path := filepath.Join(t.TempDir(), "track01.mp3")

	data := append(make([]byte, 512), id3v1("So What", "Miles Davis", "Kind of Blue")...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	info, err := extractor.Extract(path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !info.Tagged {
		t.Fatal("Expected tagged file")
	}
	if info.Title != "So What" || info.Artist != "Miles Davis" {
		t.Errorf("Unexpected tags %+v", info)
	}
}

// pcmWAV builds a canonical 44 byte header followed by silence.
func pcmWAV(sampleRate, channels, bitDepth, dataBytes int) []byte {
	blockAlign := channels * bitDepth / 8
	b := make([]byte, 44+dataBytes)
	copy(b[0:4], "RIFF")
	binary.LittleEndian.PutUint32(b[4:8], uint32(36+dataBytes))
	copy(b[8:12], "WAVE")
	copy(b[12:16], "fmt ")
	binary.LittleEndian.PutUint32(b[16:20], 16)
	binary.LittleEndian.PutUint16(b[20:22], 1)
	binary.LittleEndian.PutUint16(b[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(b[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(b[34:36], uint16(bitDepth))
	copy(b[36:40], "data")
	binary.LittleEndian.PutUint32(b[40:44], uint32(dataBytes))
	return b
}

// mp4 builds ftyp followed by moov holding a version 0 mvhd.
func mp4(timescale, units uint32) []byte {
	atom := func(name string, body []byte) []byte {
		b := make([]byte, 8, 8+len(body))
		binary.BigEndian.PutUint32(b[0:4], uint32(8+len(body)))
		copy(b[4:8], name)
		return append(b, body...)
	}
	mvhd := make([]byte, 100)
	binary.BigEndian.PutUint32(mvhd[12:16], timescale)
	binary.BigEndian.PutUint32(mvhd[16:20], units)

	out := atom("ftyp", []byte("M4A \x00\x00\x00\x00"))
	out = append(out, atom("moov", append(atom("udta", make([]byte, 4)), atom("mvhd", mvhd)...))...)
	return append(out, atom("mdat", make([]byte, 32))...)
}

func within(got, want, tolerance time.Duration) bool {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func TestDuration(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	dir := t.TempDir()

	tests := []struct {
		file string
		data []byte
		want time.Duration
	}{
		// one second of 8 kHz 16 bit mono
		{"one.wav", pcmWAV(8000, 1, 16, 16000), time.Second},
		{"stereo.wav", pcmWAV(44100, 2, 16, 44100*4*3), 3 * time.Second},
		{"clip.m4a", mp4(1000, 42500), 42500 * time.Millisecond},
		// undecodable mp3 is estimated at 192 kbps
		{"raw.mp3", make([]byte, 240000), 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}
			got, err := extractor.Duration(path)
			if err != nil {
				t.Fatalf("Duration failed: %v", err)
			}
			if !within(got, tt.want, 50*time.Millisecond) {
				t.Errorf("Expected about %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDurationErrors(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	dir := t.TempDir()

	write := func(name string, data []byte) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		return path
	}

	tests := []struct {
		name string
		path string
	}{
		{"unsupported", write("notes.txt", []byte("text"))},
		{"missing", filepath.Join(dir, "missing.wav")},
		{"not wav", write("fake.wav", []byte("this is not a riff file"))},
		{"not flac", write("fake.flac", []byte("this is not a flac file"))},
		{"no moov", write("fake.m4a", mp4(1000, 1)[:24])},
		{"empty mp3", write("empty.mp3", nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if d, err := extractor.Duration(tt.path); err == nil {
				t.Errorf("Expected error, got %v", d)
			}
		})
	}
}

func TestEstimateFromSize(t *testing.T) {
	d, err := estimateFromSize(240000, 192000)
	if err != nil {
		t.Fatalf("estimateFromSize failed: %v", err)
	}
	if d != 10*time.Second {
		t.Errorf("Expected 10s, got %v", d)
	}
	if _, err := estimateFromSize(240000, 0); err == nil {
		t.Error("Expected error for zero bitrate")
	}
}

func TestComplete(t *testing.T) {
	extractor := NewExtractor(testFormats, nil)
	path := filepath.Join(t.TempDir(), "track02.mp3")
	data := append(make([]byte, 256), id3v1("Freddie Freeloader", "Miles Davis", "")...)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	tests := []struct {
		name       string
		in         identity.Input
		wantArtist string
		wantTitle  string
	}{
		{"both missing", identity.Input{}, "Miles Davis", "Freddie Freeloader"},
		{"artist given", identity.Input{Artist: "Davis"}, "Davis", "Freddie Freeloader"},
		{"title given", identity.Input{Title: "Take 2", Extra: "1959"}, "Miles Davis", "Take 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractor.Complete(path, tt.in)
			if err != nil {
				t.Fatalf("Complete failed: %v", err)
			}
			if got.Artist != tt.wantArtist || got.Title != tt.wantTitle {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantArtist, tt.wantTitle, got.Artist, got.Title)
			}
			if got.Extra != tt.in.Extra {
				t.Errorf("Extra changed: %q", got.Extra)
			}
		})
	}

	// Fully specified input never touches the file
	in := identity.Input{Artist: "a", Title: "t"}
	got, err := extractor.Complete("/nonexistent/file.mp3", in)
	if err != nil || got != in {
		t.Errorf("Expected input unchanged, got %+v %v", got, err)
	}
	if _, err := extractor.Complete("/nonexistent/file.mp3", identity.Input{}); err == nil {
		t.Error("Expected error for missing file")
	}
}
