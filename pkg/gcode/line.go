// G-code line tokenizer
//
// Copyright (C) 2026  Gradient Infill Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package gcode tokenizes and classifies the lines of slicer output.
package gcode

import (
	"math"
	"strconv"
	"strings"

	gerrors "gradient-infill-go/pkg/errors"
)

// Word is one whitespace separated token after the command, e.g. "X10.5".
type Word struct {
	Letter byte
	Raw    string

	// Value is only set for the axis and feed letters of a move command.
	Value   float64
	Numeric bool
}

// Line is a tokenized G-code line without its line ending.
type Line struct {
	Command string
	Words   []Word
	Comment string // from ';' to end of line, empty if none
}

// moveLetters must carry a number on a G0/G1 line.
const moveLetters = "XYZEF"

// decimalChars limits move values to plain decimal notation, so NaN, Inf
// and hex floats are rejected.
const decimalChars = "0123456789+-.eE"

// IsMove reports whether the command is G0 or G1.
func (l *Line) IsMove() bool {
	return isMoveCommand(l.Command)
}

func isMoveCommand(cmd string) bool {
	switch strings.ToUpper(cmd) {
	case "G0", "G1", "G00", "G01":
		return true
	}
	return false
}

// Get returns the numeric value of the first word with the given letter.
func (l *Line) Get(letter byte) (float64, bool) {
	for i := range l.Words {
		if l.Words[i].Letter == letter && l.Words[i].Numeric {
			return l.Words[i].Value, true
		}
	}
	return 0, false
}

// Has reports whether a numeric word with the given letter is present.
func (l *Line) Has(letter byte) bool {
	_, ok := l.Get(letter)
	return ok
}

// Tokenize splits a line (without line ending) into command, words and
// comment. Move letters on G0/G1 lines are parsed as numbers; a move word
// without a valid number is a parse error. Everything else stays verbatim.
func Tokenize(raw string) (*Line, error) {
	code, comment := raw, ""
	if idx := strings.IndexByte(raw, ';'); idx >= 0 {
		code, comment = raw[:idx], raw[idx:]
	}

	fields := strings.Fields(code)
	l := &Line{Comment: comment}
	if len(fields) == 0 {
		return l, nil
	}
	l.Command = fields[0]
	move := isMoveCommand(l.Command)

	l.Words = make([]Word, 0, len(fields)-1)
	for _, f := range fields[1:] {
		w := Word{Letter: f[0], Raw: f}
		if move && strings.IndexByte(moveLetters, w.Letter) >= 0 {
			num := f[1:]
			if strings.Trim(num, decimalChars) != "" {
				return nil, gerrors.ParseError(raw, "invalid "+string(w.Letter)+" value")
			}
			v, err := strconv.ParseFloat(num, 64)
			if err != nil || math.IsInf(v, 0) {
				return nil, gerrors.ParseError(raw, "invalid "+string(w.Letter)+" value")
			}
			w.Value = v
			w.Numeric = true
		}
		l.Words = append(l.Words, w)
	}
	return l, nil
}
