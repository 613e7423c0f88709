package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/blestream/internal/groutine"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// progressPrinter keeps one status line with the current phase and elapsed seconds.
// Phases in stopPhases end the display. Stop must be called to release the goroutine.
type progressPrinter struct {
	out        io.Writer
	prefix     string
	phase      atomic.Value
	stopPhases map[string]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func newProgressPrinter(out io.Writer, prefix, phase string, stopPhases ...string) *progressPrinter {
	p := &progressPrinter{
		out:        out,
		prefix:     prefix,
		stopPhases: make(map[string]struct{}, len(stopPhases)),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, s := range stopPhases {
		p.stopPhases[s] = struct{}{}
	}
	p.phase.Store(phase)
	return p
}

// Start draws the line and refreshes it until Stop or a stop phase
func (p *progressPrinter) Start() {
	start := time.Now()
	p.draw(p.phase.Load().(string), 0)

	groutine.Go(context.Background(), "progress", func(context.Context) {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				phase := p.phase.Load().(string)
				if _, ok := p.stopPhases[phase]; ok {
					return
				}
				p.draw(phase, int(time.Since(start).Seconds()))
			}
		}
	})
}

// SetPhase switches the displayed phase; a stop phase stops the printer
func (p *progressPrinter) SetPhase(phase string) {
	p.phase.Store(phase)
	if _, ok := p.stopPhases[phase]; ok {
		p.Stop()
	}
}

// Stop clears the line. Safe to call more than once; Start must have been called.
func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
		<-p.done
		_, _ = fmt.Fprint(p.out, clearLineSequence)
	})
}

func (p *progressPrinter) draw(phase string, seconds int) {
	if seconds > 0 {
		_, _ = fmt.Fprintf(p.out, "\r%s (%s %ds)   ", p.prefix, phase, seconds)
		return
	}
	_, _ = fmt.Fprintf(p.out, "\r%s (%s...)   ", p.prefix, phase)
}

// phaseFunc reports setup progress; a nil progressPrinter makes it a no-op
type phaseFunc func(phase string)

func (p *progressPrinter) phaseFunc() phaseFunc {
	if p == nil {
		return func(string) {}
	}
	return p.SetPhase
}
