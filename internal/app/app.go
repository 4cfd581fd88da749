// Package app runs the demo host loop: a fixed-rate synthetic frame loop
// whose stages are wrapped in profiler scopes, with keyboard control for
// forcing dumps and toggling the profiler at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/guidoenr/scopeprof/internal/profiler"
)

// Config configures the demo host.
type Config struct {
	TargetFPS     float64
	ShowStatusBar bool
	Profiler      *profiler.Profiler
	Log           zerolog.Logger
}

type inputEvent int

const (
	inputEventForceDump inputEvent = iota
	inputEventToggle
	inputEventQuit
)

// App ties the synthetic workload to the profiler and drives both from one
// frame loop.
type App struct {
	cfg         Config
	prof        *profiler.Profiler
	work        *workload
	handles     []profiler.Handle // one per workload stage, cached at init
	frame       profiler.Handle
	last        time.Time
	frames      uint64
	width       int
	inputEvents chan inputEvent
	log         zerolog.Logger
}

// New constructs the host. Scope handles are looked up once here so the
// frame loop never pays for name lookups.
func New(cfg Config) (*App, error) {
	if cfg.Profiler == nil {
		return nil, errors.New("app: profiler is required")
	}
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}

	a := &App{
		cfg:   cfg,
		prof:  cfg.Profiler,
		work:  newWorkload(),
		width: 80,
		log:   cfg.Log,
	}

	names := stageNames()
	a.prof.Precreate(names...)
	for _, name := range names {
		a.handles = append(a.handles, a.prof.Scope(name))
	}
	a.frame = a.prof.Scope("host.frame")
	a.last = time.Now()
	return a, nil
}

// Run drives the frame loop until context cancellation or a quit key.
func (a *App) Run(ctx context.Context) error {
	frameDuration := time.Duration(float64(time.Second) / a.cfg.TargetFPS)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	a.startInputListener(inputCtx)

	a.log.Info().Float64("fps", a.cfg.TargetFPS).Msg("host loop started (d=dump, e=toggle, q=quit)")

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return ctx.Err()
		case evt, ok := <-a.inputEvents:
			if !ok {
				a.inputEvents = nil
				continue
			}
			switch evt {
			case inputEventForceDump:
				if err := a.prof.ForceDump(); err != nil {
					a.log.Warn().Err(err).Msg("forced dump failed")
				} else {
					a.log.Info().Msg("forced dump written")
				}
			case inputEventToggle:
				enabled := !a.prof.Enabled()
				a.prof.SetEnabled(enabled)
				a.log.Info().Bool("enabled", enabled).Msg("profiler toggled")
			case inputEventQuit:
				fmt.Println()
				return nil
			}
		case <-ticker.C:
			a.step()
		}
	}
}

// Close flushes the final dump and tears the profiler down.
func (a *App) Close() error {
	return a.prof.Shutdown()
}

func (a *App) step() {
	now := time.Now()
	delta := now.Sub(a.last).Seconds()
	if delta <= 0 {
		delta = 1.0 / a.cfg.TargetFPS
	}
	a.last = now

	frame := a.prof.StartScope(a.frame)
	a.work.advance(delta)
	for i, h := range a.handles {
		t := a.prof.StartScope(h)
		a.work.run(i)
		t.Stop()
	}
	frame.Stop()

	a.prof.Tick()

	a.frames++
	if a.cfg.ShowStatusBar && a.frames%30 == 0 {
		a.printStatus(delta)
	}
}

func (a *App) printStatus(delta float64) {
	a.ensureWidth()

	state := "on"
	if !a.prof.Enabled() {
		state = "off"
	}
	text := fmt.Sprintf("fps=%.1f profiler=%s", 1.0/delta, state)
	for _, rec := range a.prof.Top(2) {
		text += fmt.Sprintf(" | %s avg=%.2fms %.1f%%", rec.Scope, rec.AvgMS, rec.PctTotal)
	}
	fmt.Printf("\r%s", statusBar(text, a.width))
}

func (a *App) ensureWidth() {
	fd := int(os.Stdout.Fd())
	if fd < 0 {
		return
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		a.width = w
	}
}

func (a *App) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		a.log.Warn().Err(err).Msg("keyboard input disabled")
		a.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	a.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() {
			_ = keyboard.Close()
		})
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() {
			_ = keyboard.Close()
		})
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				events <- inputEventQuit
				return
			case char == 'q' || char == 'Q':
				events <- inputEventQuit
				return
			case char == 'd' || char == 'D':
				select {
				case events <- inputEventForceDump:
				default:
				}
			case char == 'e' || char == 'E':
				select {
				case events <- inputEventToggle:
				default:
				}
			}
		}
	}()
}

func statusBar(text string, width int) string {
	if width <= 0 {
		return text
	}
	if len(text) >= width {
		return text[:width]
	}
	return text + strings.Repeat(" ", width-len(text))
}
