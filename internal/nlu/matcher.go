package nlu

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"furnivox/internal/command"
	"furnivox/internal/inventory"
)

const matcherHelp = "I can spawn, delete, recolor and resize furniture. Try \"spawn a blue chair\" or \"make it bigger\"."

var (
	wordRe   = regexp.MustCompile(`[a-z]+|\d+(?:\.\d+)?`)
	factorRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:x|times)\b|\bby\s+(\d+(?:\.\d+)?)`)

	numberWords = map[string]int{
		"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
		"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
		"a": 1, "an": 1, "another": 1, "couple": 2, "few": 3,
	}

	plurals = map[string]string{
		"chairs": "chair", "tables": "table", "sofas": "sofa", "couches": "couch",
		"lamps": "lamp", "beds": "bed", "desks": "desk", "shelves": "shelf",
		"benches": "bench", "stools": "stool",
	}

	deleteVerbs = []string{"delete", "remove", "erase", "destroy"}
	spawnVerbs  = []string{"spawn", "create", "add", "place", "put", "give", "build", "make", "want", "need"}
	growWords   = []string{"bigger", "larger", "grow", "enlarge", "up"}
	shrinkWords = []string{"smaller", "shrink", "tinier", "down"}
	sizeWords   = []string{"scale", "resize", "double", "twice", "half"}
)

// Matcher is a keyword based Reasoner for running without an LLM. It picks
// the first inventory model of the requested object type when spawning.
type Matcher struct {
	index *inventory.Index
}

func NewMatcher(idx *inventory.Index) *Matcher {
	if idx == nil {
		idx = inventory.Empty()
	}
	return &Matcher{index: idx}
}

func (m *Matcher) Name() string { return "pattern" }

func (m *Matcher) Decide(_ context.Context, p Prompt) (command.Decision, error) {
	text := strings.ToLower(p.Message)
	words := wordRe.FindAllString(text, -1)

	object := findObject(words)
	color := findColor(words)

	switch {
	case hasAny(words, deleteVerbs...) || strings.Contains(text, "get rid of"):
		args := map[string]any{}
		if object != "" {
			args["objectName"] = object
		}
		if color != "" {
			args["color"] = color
		}
		return command.ToolDecision(command.ToolDelete, args), nil

	// "make" is a spawn verb only when no size word follows it.
	case isResize(words):
		return command.ToolDecision(command.ToolScale, map[string]any{
			"scaleFactor": scaleFactor(text, words),
		}), nil

	case object != "" && (hasAny(words, spawnVerbs...) || color == ""):
		return m.spawn(text, words, object, color)

	case color != "":
		return command.ToolDecision(command.ToolModify, map[string]any{"color": color}), nil
	}

	return command.TextDecision(matcherHelp), nil
}

func (m *Matcher) spawn(text string, words []string, object, color string) (command.Decision, error) {
	recs := m.index.Records(object)
	if len(recs) == 0 {
		return command.TextDecision(fmt.Sprintf("I don't have any %s models in the inventory.", object)), nil
	}

	args := map[string]any{
		"objectName": object,
		"modelId":    recs[0].ID,
	}
	if color != "" {
		args["color"] = color
	}
	if n := findQuantity(words); n > 1 {
		args["quantity"] = n
	}
	if pos := findPosition(text, words); pos != "" {
		args["relativePosition"] = pos
	}

	return command.ToolDecision(command.ToolSpawn, args), nil
}

func isResize(words []string) bool {
	if !hasAny(words, growWords...) && !hasAny(words, shrinkWords...) && !hasAny(words, sizeWords...) {
		return false
	}
	for _, w := range words {
		if w != "make" && slices.Contains(spawnVerbs, w) {
			return false
		}
	}
	return true
}

func hasAny(words []string, want ...string) bool {
	for _, w := range words {
		if slices.Contains(want, w) {
			return true
		}
	}
	return false
}

func findObject(words []string) string {
	for _, w := range words {
		if slices.Contains(command.ObjectNames, w) {
			return w
		}
		if s, ok := plurals[w]; ok {
			return s
		}
	}
	return ""
}

func findColor(words []string) string {
	for i, w := range words {
		if w == "grey" {
			w = "gray"
		}
		if !slices.Contains(command.BaseColors, w) {
			continue
		}
		if i > 0 {
			switch words[i-1] {
			case "light", "pale", "bright":
				return "light_" + w
			case "dark", "deep":
				return "dark_" + w
			}
		}
		return w
	}
	return ""
}

func findQuantity(words []string) int {
	for i, w := range words {
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			return n
		}
		if n, ok := numberWords[w]; ok {
			// "a couple of chairs"
			if w == "a" && i+1 < len(words) && words[i+1] == "couple" {
				continue
			}
			return n
		}
	}
	return 1
}

func findPosition(text string, words []string) string {
	switch {
	case strings.Contains(text, "in front"), strings.Contains(text, "ahead"):
		return "front"
	case hasAny(words, "behind"):
		return "behind"
	case hasAny(words, "left"):
		return "left"
	case hasAny(words, "right"):
		return "right"
	}
	return ""
}

func scaleFactor(text string, words []string) float64 {
	factor := 1.2
	switch {
	case hasAny(words, "double", "twice"):
		factor = 2.0
	case hasAny(words, "half"):
		factor = 0.5
	case hasAny(words, shrinkWords...):
		factor = 0.8
	}

	if m := factorRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			factor = f
		}
	}

	return min(max(factor, command.MinScaleFactor), command.MaxScaleFactor)
}
