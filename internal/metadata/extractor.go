package metadata

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emysound/pkg/identity"
	"emysound/pkg/models"

	"github.com/dhowden/tag"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/sirupsen/logrus"
	"github.com/tcolgate/mp3"
)

// UnknownArtist is used when a file carries no artist tag.
const UnknownArtist = "Unknown Artist"

// Extractor reads tags and duration from local audio files
type Extractor struct {
	supportedFormats []string
	logger           logrus.FieldLogger
}

// NewExtractor creates a new metadata extractor
func NewExtractor(supportedFormats []string, logger logrus.FieldLogger) *Extractor {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Extractor{
		supportedFormats: supportedFormats,
		logger:           logger,
	}
}

// Extract reads tags from an audio file. Files without readable tags get
// the file name as title and UnknownArtist as artist.
func (e *Extractor) Extract(filePath string) (models.MediaInfo, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return models.MediaInfo{}, err
	}
	defer file.Close()

	info := models.MediaInfo{
		Title:  titleFromFilename(filePath),
		Artist: UnknownArtist,
	}

	tags, err := tag.ReadFrom(file)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"file_path": filePath,
			"error":     err.Error(),
		}).Debug("No readable tags, using filename")
		return info, nil
	}

	if title := strings.TrimSpace(tags.Title()); title != "" {
		info.Title = title
		info.Tagged = true
	}
	if artist := strings.TrimSpace(tags.Artist()); artist != "" {
		info.Artist = artist
		info.Tagged = true
	}

	e.logger.WithFields(logrus.Fields{
		"file_path":       filePath,
		"title":           info.Title,
		"artist":          info.Artist,
		"processing_time": time.Since(startTime),
	}).Debug("Extracted metadata")

	return info, nil
}

// Complete fills an empty artist or title in from the file's metadata.
// Values already set by the caller win.
func (e *Extractor) Complete(filePath string, in identity.Input) (identity.Input, error) {
	if in.Artist != "" && in.Title != "" {
		return in, nil
	}
	info, err := e.Extract(filePath)
	if err != nil {
		return in, err
	}
	if !info.Tagged {
		e.logger.WithField("file_path", filePath).Warn("No artist/title tags, using file name")
	}
	if in.Artist == "" {
		in.Artist = info.Artist
	}
	if in.Title == "" {
		in.Title = info.Title
	}
	return in, nil
}

func titleFromFilename(filePath string) string {
	name := filepath.Base(filePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// IsAudioFile checks if a file has a supported audio extension
func (e *Extractor) IsAudioFile(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	for _, format := range e.supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// durationFuncs measures one container format from an open file.
var durationFuncs = map[string]func(f *os.File) (time.Duration, error){
	".mp3":  durationMP3,
	".flac": durationFLAC,
	".wav":  durationWAV,
	".m4a":  durationM4A,
}

// Duration measures how long the audio in filePath plays. Formats without a
// reader return an error, as do files whose headers cannot be parsed.
func (e *Extractor) Duration(filePath string) (time.Duration, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	measure, ok := durationFuncs[ext]
	if !ok {
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d, err := measure(f)
	if err != nil {
		return 0, fmt.Errorf("measure %s: %w", filepath.Base(filePath), err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("measure %s: no audio found", filepath.Base(filePath))
	}

	e.logger.WithFields(logrus.Fields{
		"file_path": filePath,
		"duration":  d,
	}).Debug("Measured duration")
	return d, nil
}

// durationMP3 sums frame durations. A file with no decodable frame is
// estimated from its size at 192 kbps.
func durationMP3(f *os.File) (time.Duration, error) {
	dec := mp3.NewDecoder(f)
	var (
		total   time.Duration
		skipped int
		frames  int
		fr      mp3.Frame
	)
	for {
		if err := dec.Decode(&fr, &skipped); err != nil {
			if frames > 0 {
				break
			}
			st, serr := f.Stat()
			if serr != nil {
				return 0, serr
			}
			return estimateFromSize(st.Size(), 192000)
		}
		total += fr.Duration()
		frames++
	}
	return total, nil
}

// durationFLAC reads the sample count from STREAMINFO.
func durationFLAC(f *os.File) (time.Duration, error) {
	stream, err := flac.New(f)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples == 0 || si.SampleRate == 0 {
		return 0, errors.New("flac stream missing sample info")
	}
	return time.Duration(float64(si.NSamples) / float64(si.SampleRate) * float64(time.Second)), nil
}

func durationWAV(f *os.File) (time.Duration, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.New("invalid wav file")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	return wav.NewDecoder(f).Duration()
}

// durationM4A finds moov/mvhd and divides its duration by its timescale.
func durationM4A(f *os.File) (time.Duration, error) {
	moov, err := findAtom(f, "moov", -1)
	if err != nil {
		return 0, err
	}
	if _, err := findAtom(f, "mvhd", moov); err != nil {
		return 0, err
	}
	return readMVHD(f)
}

// findAtom advances r past the header of the first atom named want, scanning
// at most limit bytes (or to EOF when limit is negative). It returns the
// size of the atom's body.
func findAtom(r io.ReadSeeker, want string, limit int64) (int64, error) {
	head := make([]byte, 8)
	for read := int64(0); limit < 0 || read < limit; {
		if _, err := io.ReadFull(r, head); err != nil {
			return 0, fmt.Errorf("%s atom not found: %w", want, err)
		}
		size := int64(binary.BigEndian.Uint32(head[0:4]))
		if size < 8 {
			return 0, fmt.Errorf("invalid atom size %d", size)
		}
		if string(head[4:8]) == want {
			return size - 8, nil
		}
		if _, err := r.Seek(size-8, io.SeekCurrent); err != nil {
			return 0, err
		}
		read += size
	}
	return 0, fmt.Errorf("%s atom not found", want)
}

func readMVHD(r io.ReadSeeker) (time.Duration, error) {
	version := make([]byte, 1)
	if _, err := io.ReadFull(r, version); err != nil {
		return 0, err
	}
	// flags, then creation and modification times
	skip := int64(3 + 4 + 4)
	if version[0] == 1 {
		skip = 3 + 8 + 8
	}
	if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
		return 0, err
	}

	buf := make([]byte, 12)
	n := 8
	if version[0] == 1 {
		n = 12
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return 0, err
	}
	timescale := binary.BigEndian.Uint32(buf[0:4])
	if timescale == 0 {
		return 0, errors.New("invalid timescale")
	}
	var units uint64
	if version[0] == 1 {
		units = binary.BigEndian.Uint64(buf[4:12])
	} else {
		units = uint64(binary.BigEndian.Uint32(buf[4:8]))
	}
	return time.Duration(float64(units) / float64(timescale) * float64(time.Second)), nil
}

// estimateFromSize guesses a constant bitrate stream's length.
func estimateFromSize(size int64, bitrate int) (time.Duration, error) {
	if bitrate <= 0 {
		return 0, errors.New("invalid bitrate")
	}
	return time.Duration(float64(size*8) / float64(bitrate) * float64(time.Second)), nil
}
