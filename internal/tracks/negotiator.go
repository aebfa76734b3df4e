// Package tracks negotiates interactive audio-track selection. A media file
// arriving while track-change mode is active is probed; when more than one
// audio track exists the owner is shown a numbered list and the file is held
// until they reply, cancel, or switch the mode off.
package tracks

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"skiff/internal/config"
	"skiff/internal/logging"
	"skiff/internal/media/probe"
	"skiff/internal/services"
)

// AudioLister enumerates a file's audio tracks in container order.
type AudioLister interface {
	ListAudioTracks(ctx context.Context, path string) ([]probe.Track, error)
}

// Decision is the outcome of probing an incoming file.
type Decision struct {
	// Auto is set when exactly one track exists and no prompt is needed.
	Auto      bool
	Selection []int
	// Tracks is set when the owner must choose; render with Listing.
	Tracks []probe.Track
}

// Pending is one held file awaiting an owner reply, keyed by the id of the
// prompt message that listed its tracks.
type Pending struct {
	OwnerID   int64
	InputPath string
	Tracks    []probe.Track
}

// Commitment is a validated selection, ready for the remux executor.
type Commitment struct {
	OwnerID   int64
	InputPath string
	// Selection holds source stream indices in the owner's reply order.
	Selection []int
}

// Negotiator runs the selection state machine for every owner at once.
type Negotiator struct {
	lister    AudioLister
	minSubset int
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[int64]*Pending
}

// NewNegotiator builds a Negotiator using the configured subset threshold.
func NewNegotiator(lister AudioLister, cfg *config.Config, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Negotiator{
		lister:    lister,
		minSubset: cfg.Tracks.SubsetMinTracks,
		logger:    logger.With(logging.String(logging.FieldComponent, "tracks")),
		pending:   make(map[int64]*Pending),
	}
}

// Begin probes the file and decides whether a prompt is needed. Zero audio
// tracks is terminal for the operation. Exactly one track commits itself.
func (n *Negotiator) Begin(ctx context.Context, ownerID int64, path string) (*Decision, error) {
	tracks, err := n.lister.ListAudioTracks(ctx, path)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "tracks", "begin", "listing audio tracks", err)
	}
	switch len(tracks) {
	case 0:
		return nil, services.Wrap(services.ErrNoAudio, "tracks", "begin", path, nil)
	case 1:
		n.logger.Debug("single audio track, auto-committing",
			logging.Int64(logging.FieldOwner, ownerID))
		return &Decision{Auto: true, Selection: []int{tracks[0].SourceIndex}}, nil
	default:
		return &Decision{Tracks: tracks}, nil
	}
}

// Hold registers a pending selection once the prompt has been delivered and
// its message id is known.
func (n *Negotiator) Hold(promptID int64, ownerID int64, path string, tracks []probe.Track) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending[promptID] = &Pending{OwnerID: ownerID, InputPath: path, Tracks: tracks}
}

// Commit parses an owner reply against the pending selection for promptID.
// A nil Commitment with nil error means the prompt id is unknown, stale, or
// held by a different owner, and the reply should be ignored. Validation
// failures leave the pending entry in place so the owner can answer again.
func (n *Negotiator) Commit(promptID, ownerID int64, reply string) (*Commitment, error) {
	n.mu.Lock()
	entry, ok := n.pending[promptID]
	n.mu.Unlock()
	if !ok || entry.OwnerID != ownerID {
		return nil, nil
	}

	picks, err := parseReply(reply, len(entry.Tracks), n.minSubset)
	if err != nil {
		return nil, err
	}

	selection := make([]int, len(picks))
	for i, pick := range picks {
		selection[i] = entry.Tracks[pick-1].SourceIndex
	}

	n.mu.Lock()
	delete(n.pending, promptID)
	n.mu.Unlock()

	n.logger.Info("track selection committed",
		logging.Int64(logging.FieldOwner, entry.OwnerID),
		logging.Int64(logging.FieldPrompt, promptID),
		logging.Int("tracks", len(selection)))
	return &Commitment{OwnerID: entry.OwnerID, InputPath: entry.InputPath, Selection: selection}, nil
}

// Cancel discards one pending selection and returns it so the caller can
// release the held file. The second result is false for unknown prompt ids.
func (n *Negotiator) Cancel(promptID int64) (*Pending, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	entry, ok := n.pending[promptID]
	if !ok {
		return nil, false
	}
	delete(n.pending, promptID)
	return entry, true
}

// CancelOwner discards every pending selection the owner holds, for mode
// toggle-off, and returns them so held files can be released.
func (n *Negotiator) CancelOwner(ownerID int64) []*Pending {
	n.mu.Lock()
	defer n.mu.Unlock()
	var released []*Pending
	for id, entry := range n.pending {
		if entry.OwnerID == ownerID {
			released = append(released, entry)
			delete(n.pending, id)
		}
	}
	return released
}

// PendingCount reports how many prompts are outstanding across all owners.
func (n *Negotiator) PendingCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.pending)
}

// Listing renders the 1-based numbered track list shown in the prompt.
func Listing(tracks []probe.Track) string {
	var b strings.Builder
	for i, track := range tracks {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, languageName(track.Language))
		if title := strings.TrimSpace(track.Title); title != "" {
			fmt.Fprintf(&b, " (%s)", title)
		}
	}
	return b.String()
}

func languageName(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || code == "und" {
		return "Unknown"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return cases.Title(language.Und).String(code)
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return cases.Title(language.Und).String(code)
}

func parseReply(reply string, trackCount, minSubset int) ([]int, error) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return nil, services.Wrap(services.ErrValidation, "tracks", "commit", "empty selection reply", nil)
	}

	fields := strings.Split(trimmed, ",")
	picks := make([]int, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		value, err := strconv.Atoi(field)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "tracks", "commit",
				fmt.Sprintf("%q is not a track number", field), nil)
		}
		if value < 1 || value > trackCount {
			return nil, services.Wrap(services.ErrValidation, "tracks", "commit",
				fmt.Sprintf("track %d out of range 1-%d", value, trackCount), nil)
		}
		picks = append(picks, value)
	}

	// Below the threshold every track must be accounted for; at or above it
	// a subset is treated as a deliberate keep/drop filter.
	if trackCount < minSubset && len(picks) != trackCount {
		return nil, services.Wrap(services.ErrValidation, "tracks", "commit",
			fmt.Sprintf("expected exactly %d tracks", trackCount), nil)
	}
	return picks, nil
}
