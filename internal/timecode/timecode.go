// Package timecode implements C6, the time-code rewriter: it finds
// H:MM:SS tokens in a UTF-8 text and rewrites them to the retimed
// position on the new timeline.
package timecode

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/retime/retime/internal/timeline"
)

var tokenPattern = regexp.MustCompile(`(\d+):(\d\d):(\d\d)`)

// Rewrite replaces every H:MM:SS token in text with its retimed value,
// per spec §4.6. A token whose value falls outside every segment is
// left unchanged — best-effort, not an error (spec §7).
func Rewrite(text string, segments []timeline.Segment) string {
	type match struct {
		token    string
		oldValue int
		newValue int
	}

	// current_position(s): running sum of new durations of preceding segments.
	positions := make([]float64, len(segments))
	var running float64
	for i, seg := range segments {
		positions[i] = running
		running += seg.NewDur
	}

	replacements := map[string]int{}
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		token := text[m[0]:m[1]]
		value := parseTimecode(text, m)

		for i, seg := range segments {
			if float64(value) >= seg.T0 && float64(value) < seg.T1 {
				dur := seg.Dur()
				var newValue float64
				if dur > 0 {
					newValue = positions[i] + (float64(value)-seg.T0)/dur*seg.NewDur
				} else {
					newValue = positions[i]
				}
				rounded := int(newValue + 0.5)
				replacements[token] = rounded
				break
			}
		}
	}

	if len(replacements) == 0 {
		return text
	}

	tokens := make([]string, 0, len(replacements))
	for t := range replacements {
		tokens = append(tokens, t)
	}
	// Apply replacements in descending order of new value, to avoid
	// collisions when two old tokens map to the same new string.
	sort.Slice(tokens, func(i, j int) bool { return replacements[tokens[i]] > replacements[tokens[j]] })

	out := text
	for _, token := range tokens {
		out = strings.ReplaceAll(out, token, formatTimecode(replacements[token]))
	}
	return out
}

func parseTimecode(text string, m []int) int {
	h, _ := strconv.Atoi(text[m[2]:m[3]])
	mi, _ := strconv.Atoi(text[m[4]:m[5]])
	s, _ := strconv.Atoi(text[m[6]:m[7]])
	return h*3600 + mi*60 + s
}

func formatTimecode(totalSeconds int) string {
	h := totalSeconds / 3600
	m := (totalSeconds / 60) % 60
	s := totalSeconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// ResultPath derives the sibling output path for a rewritten
// description file, inserting "_result" before the extension (spec §6).
func ResultPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return base + "_result" + ext
}
