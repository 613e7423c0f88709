package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/blestream/pkg/stream"
	"golang.org/x/term"
)

const (
	formatText = "text"
	formatJSON = "json"

	sourceResponses = "responses"
)

// eventRecord is the json form of one printed line
type eventRecord struct {
	Source     string `json:"source"`
	Event      string `json:"event"`
	Peripheral string `json:"peripheral,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Value      string `json:"value,omitempty"`
	RSSI       *int   `json:"rssi,omitempty"`
	Error      string `json:"error,omitempty"`
}

// eventPrinter writes responses and characteristic changes from several goroutines
// as whole lines, either plain text or one JSON object per line.
type eventPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	format string

	source  *color.Color
	ok      *color.Color
	failure *color.Color
	closed  *color.Color
}

func newEventPrinter(out io.Writer, format string, colored bool) *eventPrinter {
	p := &eventPrinter{
		out:     out,
		format:  format,
		source:  color.New(color.FgCyan),
		ok:      color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		closed:  color.New(color.FgYellow, color.Bold),
	}
	for _, c := range []*color.Color{p.source, p.ok, p.failure, p.closed} {
		if colored && format == formatText {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Response prints one completion from the response stream
func (p *eventPrinter) Response(r stream.Response) {
	rec := eventRecord{
		Source:     sourceResponses,
		Event:      r.Kind().String(),
		Peripheral: string(r.PeripheralID()),
		Subject:    stream.Subject(r),
	}
	if rssi, ok := r.(stream.RssiRead); ok {
		rec.RSSI = &rssi.RSSI
	}
	if err := r.Cause(); err != nil {
		rec.Error = err.Error()
	}
	p.write(rec)
}

// ResponsesEnded prints why the response stream finished
func (p *eventPrinter) ResponsesEnded(err error) {
	rec := eventRecord{Source: sourceResponses, Event: "end"}
	if err != nil {
		rec.Error = err.Error()
	}
	p.write(rec)
}

// Change prints one characteristic change seen by the named observer
func (p *eventPrinter) Change(source string, change stream.CharacteristicChange) {
	rec := eventRecord{Source: source}
	switch c := change.(type) {
	case stream.CharacteristicData:
		rec.Event = "data"
		rec.Subject = c.Characteristic.String()
		rec.Value = hex.EncodeToString(c.Value)
	case stream.CharacteristicError:
		rec.Event = "error"
		rec.Subject = c.Characteristic.String()
		rec.Error = errorText(c.Err)
	case stream.Closed:
		rec.Event = "closed"
	default:
		rec.Event = fmt.Sprintf("%T", change)
	}
	p.write(rec)
}

// Notice prints a free-form line attributed to source
func (p *eventPrinter) Notice(source, text string) {
	p.write(eventRecord{Source: source, Event: "notice", Value: text})
}

func (p *eventPrinter) write(rec eventRecord) {
	var line string
	if p.format == formatJSON {
		raw, err := json.Marshal(rec)
		if err != nil {
			return
		}
		line = string(raw)
	} else {
		line = p.text(rec)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.out, line)
}

func (p *eventPrinter) text(rec eventRecord) string {
	var b strings.Builder
	b.WriteString(p.source.Sprintf("[%s]", rec.Source))
	b.WriteByte(' ')

	switch {
	case rec.Event == "closed":
		b.WriteString(p.closed.Sprint(rec.Event))
	case rec.Error != "":
		b.WriteString(p.failure.Sprint(rec.Event))
	default:
		b.WriteString(p.ok.Sprint(rec.Event))
	}

	if rec.Subject != "" {
		b.WriteString(" " + rec.Subject)
	}
	if rec.Value != "" {
		b.WriteString(" " + rec.Value)
	}
	if rec.RSSI != nil {
		fmt.Fprintf(&b, " rssi=%d", *rec.RSSI)
	}
	if rec.Peripheral != "" {
		b.WriteString(" peripheral=" + rec.Peripheral)
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, " error=%q", rec.Error)
	}
	return b.String()
}

// errorText renders contract violations by their reason only
func errorText(err error) string {
	if err == nil {
		return ""
	}
	var violation *stream.ContractViolationError
	if errors.As(err, &violation) {
		return "contract violation: " + errorText(violation.Reason)
	}
	return err.Error()
}
