package player

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/igolaizola/openmusic/pkg/sound"
)

// FrameDuration is the amount of audio processed on each tick.
const FrameDuration = 20 * time.Millisecond

// Node is an audio processing node inserted between the player source and
// its sink.
type Node interface {
	Process(frame []float64) []float64
}

// Sink receives the audio that leaves the graph.
type Sink interface {
	Write(frame []float64) error
}

// Discard is a sink that drops every frame.
var Discard Sink = discard{}

type discard struct{}

func (discard) Write([]float64) error { return nil }

// PCMWriter writes frames as signed 16-bit little endian samples.
type PCMWriter struct {
	W io.Writer
}

func (p *PCMWriter) Write(frame []float64) error {
	buf := make([]byte, len(frame)*2)
	for i, v := range frame {
		v = math.Max(-1, math.Min(1, v))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*32767)))
	}
	_, err := p.W.Write(buf)
	return err
}

type route struct {
	node Node
}

// Player plays a track in real time and routes its output through a graph
// of nodes to a sink.
type Player struct {
	track     *sound.Track
	sink      Sink
	frameSize int

	lck     sync.Mutex
	pos     int
	playing bool
	closed  bool
	routes  []*route
	ended   chan struct{}
	once    sync.Once
}

func New(track *sound.Track, sink Sink) *Player {
	if sink == nil {
		sink = Discard
	}
	frameSize := int(float64(track.Rate) * FrameDuration.Seconds())
	if frameSize < 1 {
		frameSize = 1
	}
	return &Player{
		track:     track,
		sink:      sink,
		frameSize: frameSize,
		ended:     make(chan struct{}),
	}
}

func (p *Player) Track() *sound.Track {
	return p.track
}

// Route inserts a node in the graph. The returned function removes it.
func (p *Player) Route(n Node) func() {
	r := &route{node: n}
	p.lck.Lock()
	p.routes = append(p.routes, r)
	p.lck.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lck.Lock()
			defer p.lck.Unlock()
			for i, candidate := range p.routes {
				if candidate == r {
					p.routes = append(p.routes[:i], p.routes[i+1:]...)
					return
				}
			}
		})
	}
}

func (p *Player) Play() {
	p.lck.Lock()
	defer p.lck.Unlock()
	if p.closed {
		return
	}
	if p.pos >= len(p.track.Samples) {
		p.pos = 0
	}
	p.playing = true
}

func (p *Player) Pause() {
	p.lck.Lock()
	defer p.lck.Unlock()
	p.playing = false
}

func (p *Player) Seek(d time.Duration) {
	p.lck.Lock()
	defer p.lck.Unlock()
	pos := int(d.Seconds() * float64(p.track.Rate))
	if pos < 0 {
		pos = 0
	}
	if pos > len(p.track.Samples) {
		pos = len(p.track.Samples)
	}
	p.pos = pos
}

func (p *Player) Playing() bool {
	p.lck.Lock()
	defer p.lck.Unlock()
	return p.playing
}

func (p *Player) Position() time.Duration {
	p.lck.Lock()
	defer p.lck.Unlock()
	return time.Duration(float64(p.pos) / float64(p.track.Rate) * float64(time.Second))
}

// Ended is closed the first time the track reaches its end or when the
// player is closed.
func (p *Player) Ended() <-chan struct{} {
	return p.ended
}

// Close stops the player. Routed nodes stop receiving frames.
func (p *Player) Close() error {
	p.lck.Lock()
	p.closed = true
	p.playing = false
	p.routes = nil
	p.lck.Unlock()
	p.once.Do(func() { close(p.ended) })
	return nil
}

// Tick processes one frame: the next chunk of the track while playing or
// silence while paused. It returns false once the player is closed.
func (p *Player) Tick() (bool, error) {
	p.lck.Lock()
	if p.closed {
		p.lck.Unlock()
		return false, nil
	}
	frame := make([]float64, p.frameSize)
	var finished bool
	if p.playing {
		end := p.pos + p.frameSize
		if end > len(p.track.Samples) {
			end = len(p.track.Samples)
		}
		copy(frame, p.track.Samples[p.pos:end])
		p.pos = end
		if p.pos >= len(p.track.Samples) {
			p.playing = false
			finished = true
		}
	}
	nodes := make([]Node, len(p.routes))
	for i, r := range p.routes {
		nodes[i] = r.node
	}
	p.lck.Unlock()

	for _, n := range nodes {
		frame = n.Process(frame)
	}
	if finished {
		p.once.Do(func() { close(p.ended) })
	}
	return true, p.sink.Write(frame)
}

// Run ticks in real time until the context is done or the player is closed.
func (p *Player) Run(ctx context.Context) error {
	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			alive, err := p.Tick()
			if err != nil {
				return err
			}
			if !alive {
				return nil
			}
		}
	}
}
