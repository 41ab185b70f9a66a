package visualize

import (
	"context"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/igolaizola/openmusic/pkg/gradio"
	imgx "github.com/igolaizola/openmusic/pkg/image"
	"github.com/igolaizola/openmusic/pkg/player"
	"github.com/igolaizola/openmusic/pkg/sound"
	"github.com/igolaizola/openmusic/pkg/visualizer"
)

type Config struct {
	Debug   bool
	BaseURL string

	Input  string
	Output string
	Format string
	Width  int
	Height int
	FPS    int
	Every  int
	Label  string
	PCM    string
	Plot   bool
}

// Run plays the input track in real time through the visualizer and stores
// the rendered frames.
func Run(ctx context.Context, cfg *Config) error {
	log.Println("visualize: started")
	defer log.Println("visualize: ended")

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	if cfg.Input == "" {
		return fmt.Errorf("visualize: input is required")
	}
	input := cfg.Input
	if _, err := os.Stat(input); err != nil {
		// Server relative results are resolved against the backend
		input = gradio.New(&gradio.Config{BaseURL: cfg.BaseURL}).Absolute(input)
	}
	track, err := sound.Decode(ctx, input)
	if err != nil {
		return fmt.Errorf("visualize: %w", err)
	}
	debug("visualize: decoded %s (%s, %d Hz)", track.Source, track.Duration, track.Rate)

	format := strings.TrimPrefix(strings.ToLower(cfg.Format), ".")
	if format == "" {
		format = "png"
	}
	if _, err := imgx.Encoder(format); err != nil {
		return fmt.Errorf("visualize: %w", err)
	}
	if cfg.Output != "" {
		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			return fmt.Errorf("visualize: couldn't create output directory: %w", err)
		}
	}

	sink, closeSink, err := newSink(cfg.PCM)
	if err != nil {
		return err
	}
	defer closeSink()

	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 128
	}
	interval := time.Second / 60
	if cfg.FPS > 0 {
		interval = time.Second / time.Duration(cfg.FPS)
	}
	every := cfg.Every
	if every <= 0 {
		every = 1
	}

	var frames, saved int
	sum := make([]float64, visualizer.FFTSize/2)
	onFrame := func(img image.Image, bins []byte) {
		frames++
		for i, v := range bins {
			sum[i] += float64(v)
		}
		if cfg.Output == "" || frames%every != 0 {
			return
		}
		name := filepath.Join(cfg.Output, fmt.Sprintf("frame-%06d.%s", frames, format))
		if err := imgx.Save(img, name); err != nil {
			debug("visualize: %v", err)
			return
		}
		saved++
	}

	p := player.New(track, sink)
	defer p.Close()
	engine := visualizer.New(&visualizer.Config{
		Surface:  image.NewRGBA(image.Rect(0, 0, width, height)),
		Interval: interval,
		Label:    cfg.Label,
		OnFrame:  onFrame,
		Debug:    cfg.Debug,
	})
	defer engine.Close()

	engine.Attach(ctx, p)
	p.Play()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errC := make(chan error, 1)
	go func() {
		errC <- p.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
	case <-p.Ended():
	case err := <-errC:
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("visualize: playback failed: %w", err)
		}
	}
	cancel()
	engine.Close()

	log.Printf("visualize: %s played %s, %d frames rendered, %d saved\n", track.Source, p.Position(), frames, saved)
	if track.FadesOut() {
		log.Println("visualize: track fades out")
	}

	if !cfg.Plot || cfg.Output == "" {
		return nil
	}
	if frames > 0 {
		for i := range sum {
			sum[i] /= float64(frames)
		}
	}
	b, err := sound.PlotSpectrum(sum, track.Rate, "png")
	if err != nil {
		return fmt.Errorf("visualize: couldn't plot spectrum: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Output, "spectrum.png"), b, 0644); err != nil {
		return fmt.Errorf("visualize: couldn't write spectrum: %w", err)
	}
	plots := []struct {
		name string
		fn   func(string) ([]byte, error)
	}{
		{"wave", track.PlotWave},
		{"rms", track.PlotRMS},
	}
	for _, pl := range plots {
		b, err := pl.fn("png")
		if err != nil {
			return fmt.Errorf("visualize: couldn't plot %s: %w", pl.name, err)
		}
		if err := os.WriteFile(filepath.Join(cfg.Output, pl.name+".png"), b, 0644); err != nil {
			return fmt.Errorf("visualize: couldn't write %s: %w", pl.name, err)
		}
	}
	return nil
}

// newSink returns where the played audio goes: nowhere, stdout with "-" or
// a raw PCM file.
func newSink(output string) (player.Sink, func(), error) {
	switch output {
	case "":
		return player.Discard, func() {}, nil
	case "-":
		return &player.PCMWriter{W: os.Stdout}, func() {}, nil
	}
	f, err := os.Create(output)
	if err != nil {
		return nil, nil, fmt.Errorf("visualize: couldn't create pcm output: %w", err)
	}
	return &player.PCMWriter{W: f}, func() { _ = f.Close() }, nil
}
