package sound

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
)

// Track is a decoded mono track with samples normalized to [-1, 1].
type Track struct {
	Samples  []float64
	Rate     int
	Duration time.Duration
	Source   string
}

// Decode reads an MP3 or WAV track from a local file or an http(s) URL.
func Decode(ctx context.Context, u string) (*Track, error) {
	if IsRemote(u) {
		return DecodeURL(ctx, u)
	}
	return DecodeFile(u)
}

// DecodeFile reads an MP3 or WAV track from a local file.
func DecodeFile(name string) (*Track, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't read file: %w", err)
	}
	return DecodeBytes(name, b)
}

// DecodeURL downloads an MP3 or WAV track. Only http and https URLs are
// accepted.
func DecodeURL(ctx context.Context, u string) (*Track, error) {
	if !IsRemote(u) {
		return nil, fmt.Errorf("sound: not an http url: %s", u)
	}
	b, err := download(ctx, u)
	if err != nil {
		return nil, err
	}
	return DecodeBytes(u, b)
}

// IsRemote reports whether u is an absolute http or https URL.
func IsRemote(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Host != ""
}

// DecodeBytes decodes an MP3 or WAV track already in memory.
func DecodeBytes(src string, b []byte) (*Track, error) {
	var samples []float64
	var rate int
	var err error
	if isWAV(b) {
		samples, rate, err = decodeWAV(b)
	} else {
		samples, rate, err = decodeMP3(b)
	}
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("sound: invalid sample rate %d", rate)
	}
	duration := time.Duration(float64(len(samples)) / float64(rate) * float64(time.Second))
	return &Track{
		Samples:  samples,
		Rate:     rate,
		Duration: duration,
		Source:   src,
	}, nil
}

func isWAV(b []byte) bool {
	return len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WAVE"
}

func decodeMP3(b []byte) ([]float64, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(b))
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't read mp3 samples: %w", err)
	}
	// go-mp3 always outputs 16-bit little endian stereo
	mono := make([]float64, len(pcm)/4)
	for i := range mono {
		left := int16(uint16(pcm[i*4]) | uint16(pcm[i*4+1])<<8)
		right := int16(uint16(pcm[i*4+2]) | uint16(pcm[i*4+3])<<8)
		mono[i] = (float64(left) + float64(right)) / 2.0 / 32768.0
	}
	return mono, decoder.SampleRate(), nil
}

func decodeWAV(b []byte) ([]float64, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(b))
	if !decoder.IsValidFile() {
		return nil, 0, errors.New("sound: invalid wav file")
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("sound: couldn't decode wav: %w", err)
	}
	channels := int(decoder.NumChans)
	if channels == 0 {
		channels = 1
	}
	depth := int(decoder.BitDepth)
	if depth == 0 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))
	mono := make([]float64, len(buf.Data)/channels)
	for i := range mono {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		mono[i] = sum / float64(channels) / scale
	}
	return mono, int(decoder.SampleRate), nil
}

func download(ctx context.Context, u string) ([]byte, error) {
	client := &http.Client{
		Timeout: 2 * time.Minute,
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't download %s: %w", path.Base(u), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sound: couldn't download %s: status %d", path.Base(u), resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't read song: %w", err)
	}
	return b, nil
}

// Resample returns the min and max of each window.
func (t *Track) Resample(windowSize time.Duration) []float64 {
	windowLength := t.windowLength(windowSize)
	var resampled []float64
	for i := 0; i < len(t.Samples); i += windowLength {
		end := i + windowLength
		if end > len(t.Samples) {
			end = len(t.Samples)
		}
		var min, max float64
		for _, v := range t.Samples[i:end] {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		resampled = append(resampled, min, max)
	}
	return resampled
}

func (t *Track) RMS(windowSize time.Duration) []float64 {
	windowLength := t.windowLength(windowSize)
	var rms []float64
	for i := 0; i < len(t.Samples); i += windowLength {
		end := i + windowLength
		if end > len(t.Samples) {
			end = len(t.Samples)
		}
		rms = append(rms, calculateRMS(t.Samples[i:end]))
	}
	return rms
}

func (t *Track) windowLength(windowSize time.Duration) int {
	n := int(float64(t.Rate) * windowSize.Seconds())
	if n < 1 {
		n = 1
	}
	return n
}

func calculateRMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var squareSum float64
	for _, sample := range samples {
		squareSum += sample * sample
	}
	return math.Sqrt(squareSum / float64(len(samples)))
}
