// Package segment splits loosely structured markdown into independently embeddable units.
package segment

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

const (
	fenceMarker    = "```"
	metadataMarker = "---"
	headingMarker  = "#"
)

type state int

const (
	stateIdle state = iota
	stateCodeBlock
	stateMetadata
	stateProse
)

// Segment walks text line by line and returns its prose paragraphs and fenced code blocks
// in source order. Headings, empty lines, and metadata blocks delimited by "---" lines are
// skipped. A prose paragraph or code block still open at end of input is dropped: a
// paragraph is only emitted once an empty line terminates it, and a code block only once its
// closing fence is seen.
func Segment(text string) []models.Unit {
	var (
		units   []models.Unit
		current strings.Builder
		st      = stateIdle
	)
	start := func(line string) {
		current.Reset()
		current.WriteString(line)
		current.WriteByte('\n')
	}
	seal := func(kind models.UnitKind) {
		units = append(units, models.Unit{Text: current.String(), Kind: kind})
		current.Reset()
		st = stateIdle
	}

	for _, line := range lines(text) {
		switch st {
		case stateIdle:
			switch {
			case strings.HasPrefix(line, fenceMarker):
				start(line)
				st = stateCodeBlock
			case strings.HasPrefix(line, metadataMarker):
				st = stateMetadata
			case line == "", strings.HasPrefix(line, headingMarker):
			default:
				start(line)
				st = stateProse
			}

		case stateCodeBlock:
			current.WriteString(line)
			current.WriteByte('\n')
			if strings.HasPrefix(line, fenceMarker) {
				seal(models.CodeBlock)
			}

		case stateMetadata:
			if strings.HasPrefix(line, metadataMarker) {
				st = stateIdle
			}

		case stateProse:
			if line == "" {
				seal(models.Prose)
				continue
			}
			current.WriteString(line)
			current.WriteByte('\n')
		}
	}
	return units
}

// lines splits text on '\n', strips one trailing '\r' per line, and does not yield an
// empty final line for text ending in a newline.
func lines(text string) []string {
	if text == "" {
		return nil
	}
	out := strings.Split(text, "\n")
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	for i, l := range out {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}
