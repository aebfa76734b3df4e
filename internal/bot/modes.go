package bot

import (
	"strconv"
	"strings"
	"sync"
)

// ownerState tracks per-owner toggles and thumbnail settings. Everything
// here is process-lifetime state, matching the counter store's lifecycle.
type ownerState struct {
	mu             sync.Mutex
	editCaption    map[int64]bool
	audioChange    map[int64]bool
	pendingCaption map[int64]bool
	thumbPaths     map[int64]string
	thumbSeconds   map[int64]int
}

func newOwnerState() *ownerState {
	return &ownerState{
		editCaption:    make(map[int64]bool),
		audioChange:    make(map[int64]bool),
		pendingCaption: make(map[int64]bool),
		thumbPaths:     make(map[int64]string),
		thumbSeconds:   make(map[int64]int),
	}
}

// toggleEditCaption flips caption-only mode and reports the new state.
func (s *ownerState) toggleEditCaption(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editCaption[ownerID] = !s.editCaption[ownerID]
	return s.editCaption[ownerID]
}

func (s *ownerState) editCaptionOn(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editCaption[ownerID]
}

// toggleAudioChange flips track-change mode and reports the new state.
func (s *ownerState) toggleAudioChange(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioChange[ownerID] = !s.audioChange[ownerID]
	return s.audioChange[ownerID]
}

func (s *ownerState) audioChangeOn(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioChange[ownerID]
}

func (s *ownerState) expectCaption(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCaption[ownerID] = true
}

// takeCaptionRequest consumes a pending /set_caption request.
func (s *ownerState) takeCaptionRequest(ownerID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pendingCaption[ownerID] {
		return false
	}
	delete(s.pendingCaption, ownerID)
	return true
}

func (s *ownerState) setThumbPath(ownerID int64, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbPaths[ownerID] = path
	delete(s.thumbSeconds, ownerID)
}

func (s *ownerState) thumbPath(ownerID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thumbPaths[ownerID]
}

func (s *ownerState) setThumbSeconds(ownerID int64, seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thumbSeconds[ownerID] = seconds
}

func (s *ownerState) thumbSecondsFor(ownerID int64) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seconds, ok := s.thumbSeconds[ownerID]
	return seconds, ok
}

// clearThumb drops both the custom image and the timestamp override,
// returning the old image path so the caller can delete the file.
func (s *ownerState) clearThumb(ownerID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.thumbPaths[ownerID]
	delete(s.thumbPaths, ownerID)
	delete(s.thumbSeconds, ownerID)
	return path
}

// parseTimeSpec sums whitespace-separated duration parts of the form "5s",
// "1m", "2h". The second result is false when nothing parseable was found.
func parseTimeSpec(spec string) (int, bool) {
	total := 0
	valid := false
	for _, part := range strings.Fields(strings.ToLower(spec)) {
		if len(part) < 2 {
			continue
		}
		value, err := strconv.Atoi(part[:len(part)-1])
		if err != nil {
			continue
		}
		switch part[len(part)-1] {
		case 's':
			total += value
		case 'm':
			total += value * 60
		case 'h':
			total += value * 3600
		default:
			continue
		}
		valid = true
	}
	return total, valid
}
