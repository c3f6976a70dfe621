// Package main provides UI utilities for the offer extractor CLI.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/spherical/offer-extractor/internal/domain"
)

// UI provides user-friendly output utilities.
type UI struct {
	noColor  bool
	jsonMode bool
}

// NewUI creates a new UI instance.
func NewUI(jsonMode, noColor bool) *UI {
	if noColor {
		color.NoColor = true
	}
	return &UI{noColor: noColor, jsonMode: jsonMode}
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.line(color.FgGreen, "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
	} else {
		color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
	}
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.line(color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.line(color.FgCyan, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.line(color.FgBlue, "→", format, args...)
}

func (ui *UI) line(attr color.Attribute, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Printf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	} else {
		color.New(attr).Printf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	}
}

// JSON writes v to stdout as indented JSON.
func (ui *UI) JSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table prints a formatted table.
func (ui *UI) Table(headers []string, rows [][]string) {
	if ui.jsonMode || len(headers) == 0 {
		return
	}

	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len([]rune(header))
	}
	for _, row := range rows {
		for i, cell := range row {
			if n := len([]rune(cell)); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	border := func(left, mid, right string) {
		var b strings.Builder
		b.WriteString(left)
		for i, w := range widths {
			b.WriteString(strings.Repeat("─", w+2))
			if i < len(widths)-1 {
				b.WriteString(mid)
			}
		}
		b.WriteString(right)
		color.New(color.FgCyan, color.Bold).Println(b.String())
	}
	printRow := func(cells []string) {
		var b strings.Builder
		b.WriteString("│")
		for i, w := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(" " + cell + strings.Repeat(" ", w-len([]rune(cell))) + " │")
		}
		fmt.Println(b.String())
	}

	border("┌", "┬", "┐")
	printRow(headers)
	border("├", "┼", "┤")
	for _, row := range rows {
		printRow(row)
	}
	border("└", "┴", "┘")
}

// KeyValue prints a key-value pair.
func (ui *UI) KeyValue(key string, value interface{}) {
	if ui.jsonMode {
		return
	}
	if ui.noColor {
		fmt.Printf("  %s: %v\n", key, value)
	} else {
		color.New(color.FgYellow).Printf("  %s: ", key)
		fmt.Printf("%v\n", value)
	}
}

// Spinner wraps an indeterminate progress indicator.
type Spinner struct {
	spinner *spinner.Spinner
}

// NewSpinner creates a spinner writing to stderr; it is inert in JSON mode
// or when stderr is not a terminal.
func (ui *UI) NewSpinner(message string) *Spinner {
	if ui.jsonMode || !IsTerminal() {
		return &Spinner{}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + message
	return &Spinner{spinner: s}
}

// Start starts the spinner.
func (s *Spinner) Start() {
	if s.spinner != nil {
		s.spinner.Start()
	}
}

// Stop stops the spinner.
func (s *Spinner) Stop() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// pageProgress shows a per-page progress bar for one document. It
// implements extract.Observer.
type pageProgress struct {
	name     string
	spinner  *Spinner
	progress *mpb.Progress

	mu     sync.Mutex
	bar    *mpb.Bar
	failed int
}

func (ui *UI) newPageProgress(name string) *pageProgress {
	p := &pageProgress{
		name:    name,
		spinner: ui.NewSpinner("Splitting " + name),
	}
	if !ui.jsonMode && IsTerminal() {
		p.progress = mpb.New(mpb.WithWidth(48), mpb.WithOutput(os.Stderr))
	}
	p.spinner.Start()
	return p
}

// ChunksPlanned creates the bar once the page total is known.
func (p *pageProgress) ChunksPlanned(chunks []domain.ChunkUnit) {
	p.spinner.Stop()
	if p.progress == nil {
		return
	}

	total := 0
	for _, c := range chunks {
		total += c.PageCount
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = p.progress.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(p.name, decor.WC{W: len(p.name) + 1, C: decor.DSyncSpaceR}),
			decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 5}),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 12}),
		),
	)
}

// ImageDone advances the bar.
func (p *pageProgress) ImageDone(img domain.PageImage, offers int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.failed++
	}
	if p.bar != nil {
		p.bar.Increment()
	}
}

// Close stops all indicators. Bars of aborted runs are dropped.
func (p *pageProgress) Close() {
	p.spinner.Stop()
	if p.progress == nil {
		return
	}
	p.mu.Lock()
	if p.bar != nil && !p.bar.Completed() {
		p.bar.Abort(false)
	}
	p.mu.Unlock()
	p.progress.Wait()
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// IsTerminal checks if stderr is a terminal.
func IsTerminal() bool {
	fileInfo, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}
