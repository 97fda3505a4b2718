// Package parser recognizes agent status, context-level and waiting cues in
// raw output chunks. It is a pure, stateless predicate set: it never holds a
// terminal emulator or any other memory of prior chunks, so the same chunk
// always yields the same recognitions. Cues are matched per line within a
// chunk; a cue split across two chunks is not recognized.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agentfleet/agentfleetd/internal/process"
)

// Side identifies which stream a chunk came from; several cues are only
// meaningful on one side.
type Side string

const (
	Stdout Side = "stdout"
	Stderr Side = "stderr"
)

// Kind names the sort of recognition produced from a chunk.
type Kind string

const (
	KindStatus  Kind = "status"
	KindContext Kind = "context"
	KindWaiting Kind = "waiting"
)

// Recognition is one cue found in a chunk.
type Recognition struct {
	Kind    Kind
	Status  process.Status // KindStatus
	Context int            // KindContext, clamped 0..100
}

var (
	contextPattern = regexp.MustCompile(`(?i)context[^0-9]{0,10}(\d{1,3})\s*%`)

	waitingForInputPattern = regexp.MustCompile(`(?i)waiting for input`)
	promptOnlyPattern      = regexp.MustCompile(`^\s*>\s*$`)
	endsInQuestionPattern  = regexp.MustCompile(`\?\s*$`)
	pleasePattern          = regexp.MustCompile(`(?i)please\s+(provide|enter|confirm)`)
	humanTurnPattern       = regexp.MustCompile(`(?i)human turn`)

	errorPattern = regexp.MustCompile(`(?i)(error:|failed:|exception:|fatal:|permission denied|rate limit)`)

	thinkingVerbPattern = regexp.MustCompile(`(?i)\b(thinking|processing|analyzing|reading|writing|executing)\b`)
)

const thinkingGlyph = "❯"

// Parse examines a chunk of raw output from the given side and returns every
// cue it recognizes, walking the chunk line by line so that when a chunk
// carries more than one cue the recognitions come out in the order they
// actually appear in the text — callers fold status recognitions by simply
// keeping the last one.
func Parse(side Side, chunk string) []Recognition {
	var out []Recognition

	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimRight(line, "\r")

		switch side {
		case Stderr:
			for _, m := range contextPattern.FindAllStringSubmatch(line, -1) {
				if level, err := strconv.Atoi(m[1]); err == nil {
					out = append(out, Recognition{Kind: KindContext, Context: clamp(level, 0, 100)})
				}
			}
			switch {
			case isWaitingLine(line):
				out = append(out, Recognition{Kind: KindStatus, Status: process.StatusWaiting})
				out = append(out, Recognition{Kind: KindWaiting})
			case errorPattern.MatchString(line):
				out = append(out, Recognition{Kind: KindStatus, Status: process.StatusError})
			}
		case Stdout:
			if isThinkingLine(line) {
				out = append(out, Recognition{Kind: KindStatus, Status: process.StatusRunning})
			}
		}
	}

	return out
}

// LastStatus returns the status the chunk ultimately implies, or ("", false)
// if no status cue was recognized. Multiple status recognitions in one
// chunk resolve to the last one.
func LastStatus(recognitions []Recognition) (process.Status, bool) {
	var last process.Status
	found := false
	for _, r := range recognitions {
		if r.Kind == KindStatus {
			last = r.Status
			found = true
		}
	}
	return last, found
}

func isWaitingLine(line string) bool {
	return waitingForInputPattern.MatchString(line) ||
		promptOnlyPattern.MatchString(line) ||
		endsInQuestionPattern.MatchString(line) ||
		pleasePattern.MatchString(line) ||
		humanTurnPattern.MatchString(line)
}

func isThinkingLine(line string) bool {
	return strings.Contains(line, thinkingGlyph) || thinkingVerbPattern.MatchString(line)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
