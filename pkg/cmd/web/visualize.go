package web

import (
	"bytes"
	"context"
	"image"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/igolaizola/openmusic/pkg/gradio"
	imgx "github.com/igolaizola/openmusic/pkg/image"
	"github.com/igolaizola/openmusic/pkg/player"
	"github.com/igolaizola/openmusic/pkg/sound"
	"github.com/igolaizola/openmusic/pkg/visualizer"
)

// The zero CheckOrigin only accepts same origin requests.
var upgrader = websocket.Upgrader{}

// controlMessage mirrors the events of the browser audio element.
type controlMessage struct {
	Type     string  `json:"type"`
	Position float64 `json:"position,omitempty"`
}

type eventMessage struct {
	Type     string  `json:"type"`
	Duration float64 `json:"duration,omitempty"`
	Position float64 `json:"position,omitempty"`
	Bins     int     `json:"bins,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// visualizeHandler streams visualizer frames of a track over a websocket.
// Playback on the server is silent and follows the control messages sent by
// the client.
type visualizeHandler struct {
	ctx    context.Context
	client *gradio.Client
	width  int
	height int
	fps    int
	format string
	debug  bool
}

func (h *visualizeHandler) log(format string, args ...interface{}) {
	if h.debug {
		format += "\n"
		log.Printf(format, args...)
	}
}

func (h *visualizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u := r.URL.Query().Get("url")
	if u == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	format := h.format
	if format == "" {
		format = "jpg"
	}
	encode, err := imgx.Encoder(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("web: couldn't upgrade connection:", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	// Unblock the reader when the server shuts down
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	// Only remote media is played, never files local to the server
	track, err := sound.DecodeURL(ctx, h.client.Absolute(u))
	if err != nil {
		log.Println("web:", err)
		_ = conn.WriteJSON(&eventMessage{Type: "error", Error: err.Error()})
		return
	}
	h.log("web: visualizing %s (%s)", track.Source, track.Duration)

	width, height := h.width, h.height
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 128
	}
	interval := time.Second / 30
	if h.fps > 0 {
		interval = time.Second / time.Duration(h.fps)
	}

	frames := make(chan []byte, 1)
	events := make(chan *eventMessage, 8)

	p := player.New(track, nil)
	defer p.Close()
	engine := visualizer.New(&visualizer.Config{
		Surface:  image.NewRGBA(image.Rect(0, 0, width, height)),
		Interval: interval,
		Debug:    h.debug,
		OnFrame: func(img image.Image, _ []byte) {
			var buf bytes.Buffer
			if err := encode(&buf, img); err != nil {
				h.log("web: couldn't encode frame: %v", err)
				return
			}
			// Drop frames while the client is busy
			select {
			case frames <- buf.Bytes():
			default:
			}
		},
	})
	defer engine.Close()
	engine.Attach(ctx, p)

	go func() {
		_ = p.Run(ctx)
	}()

	events <- &eventMessage{
		Type:     "ready",
		Duration: track.Duration.Seconds(),
		Bins:     engine.FrequencyBinCount(),
	}
	send := func(m *eventMessage) {
		select {
		case events <- m:
		default:
		}
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		ended := p.Ended()
		for {
			var err error
			select {
			case <-ctx.Done():
				return
			case b := <-frames:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err = conn.WriteMessage(websocket.BinaryMessage, b)
			case m := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err = conn.WriteJSON(m)
			case <-ended:
				ended = nil
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				err = conn.WriteJSON(&eventMessage{Type: "ended", Position: p.Position().Seconds()})
			}
			if err != nil {
				h.log("web: couldn't write message: %v", err)
				return
			}
		}
	}()

	for {
		var msg controlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "play":
			p.Play()
		case "pause":
			p.Pause()
		case "seek":
			p.Seek(time.Duration(msg.Position * float64(time.Second)))
		case "position":
			send(&eventMessage{Type: "position", Position: p.Position().Seconds()})
		default:
			send(&eventMessage{Type: "error", Error: "unknown message type " + msg.Type})
		}
	}
	cancel()
	<-writerDone
}
