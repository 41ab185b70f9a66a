package visualize

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTone(t *testing.T, name string, rate int, seconds float64) {
	t.Helper()
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := int(float64(rate) * seconds)
	data := make([]int, n)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "tone.wav")
	writeTone(t, input, 8000, 0.3)
	output := filepath.Join(dir, "frames")
	pcm := filepath.Join(dir, "out.pcm")

	err := Run(context.Background(), &Config{
		Input:  input,
		Output: output,
		Format: "png",
		Width:  128,
		Height: 32,
		FPS:    50,
		PCM:    pcm,
		Plot:   true,
	})
	if err != nil {
		t.Fatalf("Run() err = %v; want nil", err)
	}

	entries, err := os.ReadDir(output)
	if err != nil {
		t.Fatal(err)
	}
	var frames int
	plots := map[string]bool{}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "frame-") {
			frames++
			continue
		}
		plots[e.Name()] = true
	}
	if frames == 0 {
		t.Fatalf("no frames saved")
	}
	for _, name := range []string{"spectrum.png", "wave.png", "rms.png"} {
		if !plots[name] {
			t.Errorf("%s not found", name)
		}
	}

	info, err := os.Stat(pcm)
	if err != nil {
		t.Fatal(err)
	}
	// 2 bytes per sample
	if info.Size() < 2*2400 {
		t.Fatalf("pcm size = %d; want at least %d", info.Size(), 2*2400)
	}
}

func TestRunInvalid(t *testing.T) {
	if err := Run(context.Background(), &Config{}); err == nil {
		t.Fatalf("Run() err = nil; want error")
	}
	input := filepath.Join(t.TempDir(), "tone.wav")
	writeTone(t, input, 8000, 0.1)
	if err := Run(context.Background(), &Config{Input: input, Format: "gif"}); err == nil {
		t.Fatalf("Run() err = nil; want unsupported format error")
	}
}
