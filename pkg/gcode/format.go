package gcode

import (
	"io"
	"math"
	"strconv"
	"strings"
)

// FormatCoord formats an X/Y coordinate rounded to 3 decimals.
func FormatCoord(v float64) string {
	return formatRounded(v, 1e3)
}

// FormatExtrusion formats an extrusion length rounded to 5 decimals.
func FormatExtrusion(v float64) string {
	return formatRounded(v, 1e5)
}

// FormatFeed formats a feed rate truncated toward zero.
func FormatFeed(v float64) string {
	return strconv.FormatInt(int64(math.Trunc(v)), 10)
}

func formatRounded(v, scale float64) string {
	r := math.Round(v*scale) / scale
	if r == 0 {
		r = 0 // drop the sign of -0
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// TextWriter is satisfied by strings.Builder, bufio.Writer and
// pool.ByteBuffer.
type TextWriter interface {
	io.StringWriter
	io.ByteWriter
}

// WriteText writes the line with single spaces between words.
func (l *Line) WriteText(w TextWriter) {
	n := len(l.Command)
	w.WriteString(l.Command)
	for _, wd := range l.Words {
		w.WriteByte(' ')
		w.WriteString(wd.Raw)
		n++
	}
	if l.Comment != "" {
		if n > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(l.Comment)
	}
}

// String reassembles the line with single spaces between words.
func (l *Line) String() string {
	var sb strings.Builder
	l.WriteText(&sb)
	return sb.String()
}

// Set replaces the text of the first word with letter, or appends one.
// Value is left untouched.
func (l *Line) Set(letter byte, raw string) {
	for i := range l.Words {
		if l.Words[i].Letter == letter {
			l.Words[i].Raw = string(letter) + raw
			return
		}
	}
	l.Words = append(l.Words, Word{Letter: letter, Raw: string(letter) + raw})
}
