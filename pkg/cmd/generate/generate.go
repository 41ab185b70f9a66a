package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/igolaizola/openmusic/pkg/gradio"
	"github.com/oklog/ulid/v2"
)

type Config struct {
	Debug       bool
	BaseURL     string
	Route       string
	Proxy       string
	Timeout     time.Duration
	Concurrency int

	Description string
	Duration    time.Duration
	Style       string
	Input       string
	Output      string
}

type item struct {
	Description string  `json:"description" csv:"description"`
	Duration    float64 `json:"duration" csv:"duration"`
	Style       string  `json:"style" csv:"style"`
}

// Run generates a song for the description or for each item of the input
// file and downloads the results into the output directory.
func Run(ctx context.Context, cfg *Config) error {
	var count int
	log.Println("generate: process started")
	defer func() {
		log.Printf("generate: process ended (%d)\n", count)
	}()

	debug := func(format string, args ...interface{}) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}

	items, err := load(cfg)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return errors.New("generate: nothing to generate, set a description or an input file")
	}
	if cfg.Output != "" {
		if err := os.MkdirAll(cfg.Output, 0755); err != nil {
			return fmt.Errorf("generate: couldn't create output directory: %w", err)
		}
	}

	httpClient, err := newHTTPClient(cfg.Timeout, cfg.Proxy)
	if err != nil {
		return err
	}
	client := gradio.New(&gradio.Config{
		BaseURL: cfg.BaseURL,
		Route:   cfg.Route,
		Debug:   cfg.Debug,
		Client:  httpClient,
	})

	// Fail fast if the backend isn't reachable
	if _, err := client.Config(ctx); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	// Print time stats
	start := time.Now()
	defer func() {
		if count == 0 {
			return
		}
		total := time.Since(start)
		log.Printf("generate: total time %s, average time %s\n", total, total/time.Duration(count))
	}()

	// Concurrency settings
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	errC := make(chan error, concurrency)
	for i := 0; i < concurrency; i++ {
		errC <- nil
	}
	var wg sync.WaitGroup
	var lck sync.Mutex
	var errs []error

	for _, it := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return fmt.Errorf("generate: %w", ctx.Err())
		case <-errC:
		}
		it := it
		wg.Add(1)
		go func() {
			defer wg.Done()
			debug("generate: start %s", it)
			err := generate(ctx, client, it, cfg.Output)
			lck.Lock()
			if err != nil {
				log.Println(err)
				errs = append(errs, err)
			} else {
				count++
			}
			lck.Unlock()
			debug("generate: end %s", it)
			errC <- err
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func generate(ctx context.Context, client *gradio.Client, it *item, output string) error {
	res, err := client.Generate(ctx, &gradio.Request{
		Description: it.Description,
		Duration:    time.Duration(it.Duration * float64(time.Second)),
		Style:       it.Style,
	})
	if err != nil {
		return fmt.Errorf("generate: couldn't generate %s: %w", it, err)
	}
	log.Printf("generate: %s %s\n", res.Name, res.URL)
	if res.Status != "" {
		log.Printf("generate: %s\n", res.Status)
	}
	if output == "" {
		return nil
	}
	name := filepath.Join(output, ulid.Make().String()+extension(res.URL))
	if err := client.Download(ctx, res.URL, name); err != nil {
		return fmt.Errorf("generate: couldn't download %s: %w", res.URL, err)
	}
	log.Printf("generate: saved %s\n", name)
	return nil
}

func load(cfg *Config) ([]*item, error) {
	var items []*item
	if cfg.Description != "" {
		items = append(items, &item{
			Description: cfg.Description,
			Duration:    cfg.Duration.Seconds(),
			Style:       cfg.Style,
		})
	}
	if cfg.Input == "" {
		return items, nil
	}

	b, err := os.ReadFile(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("generate: couldn't read input file: %w", err)
	}
	ext := filepath.Ext(cfg.Input)
	var unmarshal func([]byte) ([]*item, error)
	switch ext {
	case ".json":
		unmarshal = func(b []byte) ([]*item, error) {
			var is []*item
			if err := json.Unmarshal(b, &is); err != nil {
				return nil, fmt.Errorf("couldn't unmarshal items: %w", err)
			}
			return is, nil
		}
	case ".csv":
		unmarshal = func(b []byte) ([]*item, error) {
			var is []*item
			if err := gocsv.UnmarshalBytes(b, &is); err != nil {
				return nil, fmt.Errorf("couldn't unmarshal items: %w", err)
			}
			return is, nil
		}
	default:
		return nil, fmt.Errorf("generate: unsupported input format: %s", ext)
	}
	is, err := unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("generate: couldn't unmarshal input: %w", err)
	}

	// Empty fields take the command values
	for _, it := range is {
		if it.Duration == 0 {
			it.Duration = cfg.Duration.Seconds()
		}
		if it.Style == "" {
			it.Style = cfg.Style
		}
	}
	return append(items, is...), nil
}

func (i *item) String() string {
	return fmt.Sprintf("{%q, %.fs, %s}", i.Description, i.Duration, i.Style)
}

func newHTTPClient(timeout time.Duration, proxy string) (*http.Client, error) {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	httpClient := &http.Client{
		Timeout: timeout,
	}
	if proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("generate: invalid proxy URL: %w", err)
		}
		httpClient.Transport = &http.Transport{
			Proxy: http.ProxyURL(u),
		}
	}
	return httpClient, nil
}

// extension guesses the file extension from the result URL.
func extension(u string) string {
	if parsed, err := url.Parse(u); err == nil {
		u = parsed.Path
	}
	ext := strings.ToLower(filepath.Ext(u))
	switch ext {
	case ".mp3", ".wav", ".flac", ".ogg":
		return ext
	default:
		return ".wav"
	}
}
