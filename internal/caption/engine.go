package caption

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var (
	cycleRe       = regexp.MustCompile(`\[re\s*\((.*?)\)\]`)
	counterRe     = regexp.MustCompile(`\[\s*(\(?\d+\)?)\s*\]`)
	conditionalRe = regexp.MustCompile(`\[([a-zA-Z0-9\s]+)\s*\((.*?)\)\]`)
	nonDigitRe    = regexp.MustCompile(`[^0-9]`)
)

// counterState tracks one counter placeholder across expansions. Seeding
// happens exactly once, on the first expansion after the template is set; the
// zero-pad width is fixed to the literal's original digit count.
type counterState struct {
	value    int
	width    int
	hasParen bool
}

type ownerState struct {
	mu       sync.Mutex
	template string
	uploads  int
	counters map[string]*counterState
	cycleLen int
}

// Engine expands caption templates while maintaining per-owner counter and
// cycle state. Expansions for one owner are strictly serialized.
type Engine struct {
	mu     sync.Mutex
	owners map[int64]*ownerState
}

// NewEngine returns an Engine with no stored templates.
func NewEngine() *Engine {
	return &Engine{owners: make(map[int64]*ownerState)}
}

func (e *Engine) owner(ownerID int64) *ownerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.owners[ownerID]
	if !ok {
		state = &ownerState{counters: make(map[string]*counterState)}
		e.owners[ownerID] = state
	}
	return state
}

// SetTemplate replaces the owner's template wholesale and clears all counter
// and cycle state. This is the sole reset trigger.
func (e *Engine) SetTemplate(ownerID int64, template string) {
	state := e.owner(ownerID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.template = template
	state.uploads = 0
	state.counters = make(map[string]*counterState)
	state.cycleLen = 0
}

// Template returns the owner's stored template, if any.
func (e *Engine) Template(ownerID int64) (string, bool) {
	state := e.owner(ownerID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.template, state.template != ""
}

// DeleteTemplate removes the owner's template and all associated state.
func (e *Engine) DeleteTemplate(ownerID int64) {
	state := e.owner(ownerID)
	state.mu.Lock()
	defer state.mu.Unlock()
	state.template = ""
	state.uploads = 0
	state.counters = make(map[string]*counterState)
	state.cycleLen = 0
}

// Expand renders the template with the owner's current counter state and
// advances that state by one upload. The rendered text is wrapped as an
// emphasized Markdown block.
func (e *Engine) Expand(ownerID int64, template string) string {
	state := e.owner(ownerID)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.uploads++
	text := template

	// Cycle replacement and the lap rule for counter advancement. With a
	// cycle present, counters advance once per full lap; without one they
	// advance on every expansion after the first. The lap length is fixed
	// at first sighting and survives later edits to the option list.
	if loc := cycleRe.FindStringSubmatchIndex(text); loc != nil {
		options := splitOptions(text[loc[2]:loc[3]])
		if len(options) > 0 {
			if state.cycleLen == 0 {
				state.cycleLen = len(options)
			}
			lap := (state.uploads - 1) % state.cycleLen
			text = text[:loc[0]] + options[lap%len(options)] + text[loc[1]:]
			if lap == 0 && state.uploads > 1 {
				state.advanceCounters()
			}
		}
	} else if state.uploads > 1 {
		state.advanceCounters()
	}

	// Seed counters from the literal text exactly once.
	if state.uploads == 1 {
		for _, match := range counterRe.FindAllStringSubmatch(text, -1) {
			literal := match[1]
			digits := strings.Trim(literal, "()")
			value, err := strconv.Atoi(digits)
			if err != nil {
				continue
			}
			state.counters[literal] = &counterState{
				value:    value,
				width:    len(digits),
				hasParen: strings.HasPrefix(literal, "("),
			}
		}
	}

	for literal, counter := range state.counters {
		rendered := fmt.Sprintf("%0*d", counter.width, counter.value)
		if counter.hasParen {
			rendered = "(" + rendered + ")"
		}
		text = strings.ReplaceAll(text, "["+literal+"]", rendered)
	}

	text = renderConditionals(text, state.episode())

	return emphasize(text)
}

func (s *ownerState) advanceCounters() {
	for _, counter := range s.counters {
		counter.value++
	}
}

// episode is the minimum of all counter values, or 0 when no counters exist.
func (s *ownerState) episode() int {
	episode := 0
	first := true
	for _, counter := range s.counters {
		if first || counter.value < episode {
			episode = counter.value
			first = false
		}
	}
	return episode
}

// renderConditionals substitutes each "[TEXT (M)]" with TEXT when the current
// episode equals M, otherwise with the empty string. M is parsed by stripping
// non-digits; an unparsable M never matches.
func renderConditionals(text string, episode int) string {
	return conditionalRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := conditionalRe.FindStringSubmatch(match)
		digits := nonDigitRe.ReplaceAllString(parts[2], "")
		target, err := strconv.Atoi(digits)
		if err != nil {
			return ""
		}
		if episode == target {
			return strings.TrimSpace(parts[1])
		}
		return ""
	})
}

func splitOptions(raw string) []string {
	parts := strings.Split(raw, ",")
	options := make([]string, 0, len(parts))
	for _, part := range parts {
		options = append(options, strings.TrimSpace(part))
	}
	return options
}

func emphasize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return "**" + text + "**"
}
