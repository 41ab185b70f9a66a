package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gorilla/websocket"
	"github.com/igolaizola/openmusic/pkg/gradio"
)

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	tone := filepath.Join(t.TempDir(), "tone.wav")
	writeTone(t, tone)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/config":
			fmt.Fprint(w, `{"api_prefix":"/gradio_api"}`)
		case strings.HasPrefix(r.URL.Path, "/gradio_api/run/"):
			var req struct {
				Data []any `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			switch req.Data[0] {
			case "":
				fmt.Fprint(w, `{"data":[null,"Please enter a music description"]}`)
			case "broken":
				http.Error(w, "boom", http.StatusInternalServerError)
			default:
				fmt.Fprint(w, `{"data":[{"url":"http://cdn.example.com/a.wav","orig_name":"a.wav"},"✅ done"]}`)
			}
		case r.URL.Path == "/tone.wav":
			http.ServeFile(w, r, tone)
		default:
			http.NotFound(w, r)
		}
	}))
}

func writeTone(t *testing.T, name string) {
	t.Helper()
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	const rate = 8000
	data := make([]int, rate)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/rate))
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

func newServer(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &Config{BaseURL: backendURL, FPS: 50, Width: 64, Height: 32, Format: "png"}
	client := gradio.New(&gradio.Config{BaseURL: backendURL})
	handler, err := newHandler(ctx, cfg, client)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestStyles(t *testing.T) {
	srv := newServer(t, "http://127.0.0.1:1")
	resp, err := http.Get(srv.URL + "/api/styles")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var styles []string
	if err := json.NewDecoder(resp.Body).Decode(&styles); err != nil {
		t.Fatal(err)
	}
	if len(styles) != len(gradio.Styles) || styles[0] != "balanced" {
		t.Fatalf("styles = %v; want %v", styles, gradio.Styles)
	}
}

func TestIndex(t *testing.T) {
	srv := newServer(t, "http://127.0.0.1:1")
	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestGenerate(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newServer(t, backend.URL)

	tests := []struct {
		description string
		status      int
	}{
		{"calm piano", http.StatusOK},
		{"", http.StatusUnprocessableEntity},
		{"broken", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			body := fmt.Sprintf(`{"description":%q,"duration":30,"style":"Jazz"}`, tt.description)
			resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader(body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d; want %d", resp.StatusCode, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var res generateResponse
			if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
				t.Fatal(err)
			}
			if res.URL != "http://cdn.example.com/a.wav" || res.Name != "a.wav" || res.Status != "✅ done" {
				t.Fatalf("response = %+v", res)
			}
		})
	}
}

func TestGenerateBackendDown(t *testing.T) {
	srv := newServer(t, "http://127.0.0.1:1")
	resp, err := http.Post(srv.URL+"/api/generate", "application/json", strings.NewReader(`{"description":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&gradio.RejectedError{Status: "no"}, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", gradio.ErrConfigUnavailable), http.StatusServiceUnavailable},
		{&gradio.RequestError{Status: 500}, http.StatusBadGateway},
		{gradio.ErrUnexpectedResponseFormat, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusCode(tt.err); got != tt.want {
			t.Errorf("statusCode(%v) = %d; want %d", tt.err, got, tt.want)
		}
	}
}

func TestVisualize(t *testing.T) {
	backend := newBackend(t)
	defer backend.Close()
	srv := newServer(t, backend.URL)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/visualize?url=/tone.wav"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("Dial() err = %v; want nil", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready eventMessage
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatal(err)
	}
	if ready.Type != "ready" || ready.Bins != 128 || ready.Duration != 1 {
		t.Fatalf("ready = %+v; want ready with 128 bins and 1s", ready)
	}

	if err := conn.WriteJSON(&controlMessage{Type: "play"}); err != nil {
		t.Fatal(err)
	}
	for {
		typ, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() err = %v; want frame", err)
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		if !bytes.HasPrefix(b, []byte("\x89PNG")) {
			t.Fatalf("frame isn't a png")
		}
		break
	}
}

func TestVisualizeMissingURL(t *testing.T) {
	srv := newServer(t, "http://127.0.0.1:1")
	resp, err := http.Get(srv.URL + "/api/visualize")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d; want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestVisualizeLocalFile(t *testing.T) {
	// A tone next to the server that the backend never served
	dir := t.TempDir()
	writeTone(t, filepath.Join(dir, "secret.wav"))
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	srv := newServer(t, "http://127.0.0.1:1")
	tests := []string{
		"secret.wav",
		"./secret.wav",
		"file://" + filepath.Join(dir, "secret.wav"),
		"httpsecret.wav",
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/visualize?url=" + url.QueryEscape(input)
			conn, _, err := websocket.DefaultDialer.Dial(u, nil)
			if err != nil {
				t.Fatalf("Dial() err = %v; want nil", err)
			}
			defer conn.Close()
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var msg eventMessage
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatal(err)
			}
			if msg.Type != "error" {
				t.Fatalf("message = %+v; want error", msg)
			}
		})
	}
}

func TestVisualizeCrossOrigin(t *testing.T) {
	srv := newServer(t, "http://127.0.0.1:1")
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/visualize?url=/tone.wav"
	header := http.Header{"Origin": []string{"http://evil.example.com"}}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	if err == nil {
		conn.Close()
		t.Fatalf("Dial() err = nil; want handshake error")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %v; want status %d", resp, http.StatusForbidden)
	}
}
