package visualizer

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"log"
	"sync"
	"time"

	imgx "github.com/igolaizola/openmusic/pkg/image"
	"github.com/igolaizola/openmusic/pkg/player"
)

type State int

const (
	Idle State = iota
	Attached
	Rendering
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Attached:
		return "attached"
	case Rendering:
		return "rendering"
	case TornDown:
		return "torn down"
	default:
		return "unknown"
	}
}

// Media is a playback handle whose audio output can be routed through an
// analysis node. The returned function removes the node again.
type Media interface {
	Route(n player.Node) (release func())
}

type Config struct {
	// Surface is where frames are drawn. Without it nothing is rendered.
	Surface    draw.Image
	Interval   time.Duration
	BarScale   float64
	Gap        int
	Color      color.Color
	Background color.Color
	Label      string
	// OnFrame is called on the render goroutine after each frame is drawn.
	// The image must not be retained after the call returns and the engine
	// must not be detached from within the callback.
	OnFrame func(img image.Image, bins []byte)
	Debug   bool
}

type Engine struct {
	surface    draw.Image
	interval   time.Duration
	barScale   float64
	gap        int
	color      color.Color
	background color.Color
	label      string
	onFrame    func(image.Image, []byte)
	debug      bool

	lck      sync.Mutex
	state    State
	analyser *Analyser
	release  func()
	stop     func() bool
	cancel   context.CancelFunc
	done     chan struct{}

	bufLck sync.Mutex
	buf    []byte
}

func New(cfg *Config) *Engine {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second / 60
	}
	barScale := cfg.BarScale
	if barScale <= 0 {
		barScale = 1.5
	}
	gap := cfg.Gap
	if gap <= 0 {
		gap = 1
	}
	c := cfg.Color
	if c == nil {
		c = DefaultColor
	}
	bg := cfg.Background
	if bg == nil {
		bg = DefaultBackground
	}
	return &Engine{
		surface:    cfg.Surface,
		interval:   interval,
		barScale:   barScale,
		gap:        gap,
		color:      c,
		background: bg,
		label:      cfg.Label,
		onFrame:    cfg.OnFrame,
		debug:      cfg.Debug,
		buf:        make([]byte, FFTSize/2),
	}
}

func (e *Engine) log(format string, args ...interface{}) {
	if e.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

// Attach wires the media output through a new analyser and starts rendering
// on the configured surface, which is returned. A previously attached media
// is torn down first. Without media the call does nothing and without a
// surface the engine stays attached but doesn't render; in both cases nil is
// returned. The engine is torn down when ctx is done.
//
// The returned surface is written by the render goroutine on every tick. It
// may only be read from OnFrame; use Frame to get a copy anywhere else.
func (e *Engine) Attach(ctx context.Context, m Media) draw.Image {
	if m == nil {
		e.log("visualizer: no media to attach")
		return nil
	}
	e.lck.Lock()
	defer e.lck.Unlock()
	e.teardown()

	analyser := NewAnalyser(FFTSize)
	e.release = m.Route(analyser)
	e.analyser = analyser
	e.state = Attached
	e.stop = context.AfterFunc(ctx, func() {
		e.lck.Lock()
		defer e.lck.Unlock()
		if e.analyser != analyser {
			return
		}
		e.log("visualizer: context done")
		e.teardown()
	})

	if e.surface == nil {
		e.log("visualizer: no surface, rendering disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.state = Rendering
	go e.loop(ctx, analyser, done)
	e.log("visualizer: rendering every %s", e.interval)
	return e.surface
}

func (e *Engine) loop(ctx context.Context, a *Analyser, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.render(a)
		}
	}
}

func (e *Engine) render(a *Analyser) {
	e.bufLck.Lock()
	a.ByteFrequencyData(e.buf)
	drawBars(e.surface, e.buf, e.color, e.background, e.barScale, e.gap)
	if e.label != "" {
		imgx.DrawLabel(e.surface, e.label, e.color)
	}
	var bins []byte
	if e.onFrame != nil {
		bins = append([]byte(nil), e.buf...)
	}
	e.bufLck.Unlock()

	if e.onFrame != nil {
		e.onFrame(e.surface, bins)
	}
}

// Detach stops the render loop and releases the analysis graph.
func (e *Engine) Detach() {
	e.lck.Lock()
	defer e.lck.Unlock()
	e.teardown()
}

func (e *Engine) Close() error {
	e.Detach()
	return nil
}

func (e *Engine) teardown() {
	if e.state == Idle || e.state == TornDown {
		return
	}
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
	if e.cancel != nil {
		e.cancel()
		<-e.done
		e.cancel = nil
		e.done = nil
	}
	if e.release != nil {
		e.release()
		e.release = nil
	}
	if e.analyser != nil {
		e.analyser.Close()
		e.analyser = nil
	}
	e.state = TornDown
	e.log("visualizer: torn down")
}

func (e *Engine) State() State {
	e.lck.Lock()
	defer e.lck.Unlock()
	return e.state
}

// FrequencyBinCount is the number of bars drawn per frame.
func (e *Engine) FrequencyBinCount() int {
	return FFTSize / 2
}

// Snapshot returns a copy of the last frequency data drawn.
func (e *Engine) Snapshot() []byte {
	e.bufLck.Lock()
	defer e.bufLck.Unlock()
	return append([]byte(nil), e.buf...)
}

// Frame returns a copy of the last rendered frame or nil without a surface.
func (e *Engine) Frame() *image.RGBA {
	e.lck.Lock()
	surface := e.surface
	e.lck.Unlock()
	if surface == nil {
		return nil
	}
	e.bufLck.Lock()
	defer e.bufLck.Unlock()
	bounds := surface.Bounds()
	frame := image.NewRGBA(bounds)
	draw.Draw(frame, bounds, surface, bounds.Min, draw.Src)
	return frame
}
