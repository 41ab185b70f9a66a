package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/openmusic/pkg/cmd/generate"
	"github.com/igolaizola/openmusic/pkg/cmd/visualize"
	"github.com/igolaizola/openmusic/pkg/cmd/web"
	"github.com/igolaizola/openmusic/pkg/gradio"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

const (
	envPrefix       = "OPENMUSIC"
	defaultDuration = 30 * time.Second
)

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("openmusic", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "openmusic [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newGenerateCommand(),
			newVisualizeCommand(),
			newWebCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "openmusic version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func newGenerateCommand() *ffcli.Command {
	cmd := "generate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &generate.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.BaseURL, "base-url", gradio.DefaultBaseURL, "music backend base url")
	fs.StringVar(&cfg.Route, "route", gradio.DefaultRoute, "music backend generation route")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "timeout for each request (0 means default)")
	fs.IntVar(&cfg.Concurrency, "concurrency", 1, "number of concurrent generations")

	fs.StringVar(&cfg.Description, "description", "", "description of the music to generate")
	fs.DurationVar(&cfg.Duration, "duration", defaultDuration, "duration of the music")
	fs.StringVar(&cfg.Style, "style", gradio.Styles[0], fmt.Sprintf("style of the music (%s)", strings.Join(gradio.Styles, ", ")))
	fs.StringVar(&cfg.Input, "input", "", "csv or json with generations (fields: description,duration,style)")
	fs.StringVar(&cfg.Output, "output", "", "output folder to download results (optional)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("openmusic %s [flags] <key> <value data...>", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix(envPrefix),
		},
		ShortHelp: fmt.Sprintf("openmusic %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return generate.Run(ctx, cfg)
		},
	}
}

func newVisualizeCommand() *ffcli.Command {
	cmd := "visualize"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &visualize.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.BaseURL, "base-url", gradio.DefaultBaseURL, "music backend base url to resolve relative inputs")

	fs.StringVar(&cfg.Input, "input", "", "mp3 or wav file or url")
	fs.StringVar(&cfg.Output, "output", "", "output folder for frames and plots (optional)")
	fs.StringVar(&cfg.Format, "format", "png", "frame format (png, jpg)")
	fs.IntVar(&cfg.Width, "width", 512, "frame width")
	fs.IntVar(&cfg.Height, "height", 128, "frame height")
	fs.IntVar(&cfg.FPS, "fps", 60, "frames per second")
	fs.IntVar(&cfg.Every, "every", 1, "save one of every n frames")
	fs.StringVar(&cfg.Label, "label", "", "label drawn on each frame")
	fs.StringVar(&cfg.PCM, "pcm", "", "raw s16le output of the played audio (- for stdout)")
	fs.BoolVar(&cfg.Plot, "plot", false, "plot spectrum, wave and rms into the output folder")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("openmusic %s [flags] <key> <value data...>", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix(envPrefix),
		},
		ShortHelp: fmt.Sprintf("openmusic %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return visualize.Run(ctx, cfg)
		},
	}
}

func newWebCommand() *ffcli.Command {
	cmd := "web"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.BaseURL, "base-url", gradio.DefaultBaseURL, "music backend base url")
	fs.StringVar(&cfg.Route, "route", gradio.DefaultRoute, "music backend generation route")
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "timeout for each backend request (0 means default)")

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (semicolon separated) Example: user1:pass1;user2:pass2")
	fs.BoolVar(&cfg.Open, "open", false, "open the browser")

	fs.IntVar(&cfg.Width, "width", 512, "visualizer width")
	fs.IntVar(&cfg.Height, "height", 128, "visualizer height")
	fs.IntVar(&cfg.FPS, "fps", 30, "visualizer frames per second")
	fs.StringVar(&cfg.Format, "format", "jpg", "visualizer frame format (png, jpg)")

	return &ffcli.Command{
		Name:       cmd,
		ShortUsage: fmt.Sprintf("openmusic %s [flags] <key> <value data...>", cmd),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix(envPrefix),
		},
		ShortHelp: fmt.Sprintf("openmusic %s action", cmd),
		FlagSet:   fs,
		Exec: func(ctx context.Context, args []string) error {
			return web.Serve(ctx, cfg)
		},
	}
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ";")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
