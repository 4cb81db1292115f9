package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/scan"
)

// YouTubePackage is the package routed to the Shorts classifier
const YouTubePackage = "com.google.android.youtube"

const (
	shortsMinHeight      = 400
	shortsMinWidth       = 300
	shortsMinCoverage    = 0.85
	shortsMinAspect      = 1.5
	shortsControlBudget  = 80
	shortsFastPathBudget = 120
	shortsMinDescLength  = 15
)

var (
	// Root identifiers that mark feed tiles rather than the player
	shortsRootExclusions = []string{"shelf", "grid", "chip", "thumbnail", "preview"}

	shortsRootPlayerIDs = []string{"shorts_player", "reel_player", "shorts_video", "reel_video_player"}

	shortsControlIDs = []string{
		"player_control", "play_pause", "progress", "seek", "seekbar",
		"video_surface", "exo_player", "media_controller",
	}

	// Nodes under these containers never count as player controls
	shortsControlExclusions = []string{
		"shelf", "grid", "chip", "tab", "thumbnail", "preview", "feed", "recycler",
	}

	shortsNodePlayerIDs = []string{"shorts_player", "reel_player", "shorts_video"}

	playbackStateWords = []string{"playing", "paused"}
	contentTypeWords   = []string{"video", "short", "reel"}
)

// Shorts detects the full-screen vertical player of the YouTube app.
//
// The root must fill most of the screen in portrait orientation and either
// carry a player identifier itself or contain player controls.
type Shorts struct {
	// FastPath accepts any tree containing a reel progress bar without
	// checking geometry. Cheaper, and less precise.
	FastPath bool
}

func (s *Shorts) TargetPackage() string {
	return YouTubePackage
}

func (s *Shorts) Classify(_ a11y.Event, root a11y.Node, metrics a11y.ScreenMetrics) bool {
	if root == nil {
		return false
	}

	if s.FastPath && hasReelProgressBar(root) {
		return true
	}

	bounds := root.Bounds()
	if bounds.Height() < shortsMinHeight || bounds.Width() < shortsMinWidth {
		return false
	}

	id := lowerID(root)
	if containsAny(id, shortsRootExclusions) {
		return false
	}
	playerIndicator := containsAny(id, shortsRootPlayerIDs)

	if !isFullScreenPortrait(bounds, metrics) {
		return false
	}
	if playerIndicator {
		return true
	}

	return scan.Accumulate(root, shortsControlBudget, weighShortsControl).Matched
}

// isFullScreenPortrait applies the coverage and aspect thresholds
func isFullScreenPortrait(bounds a11y.Rect, metrics a11y.ScreenMetrics) bool {
	var coverage, aspect float64
	if metrics.Height > 0 {
		coverage = float64(bounds.Height()) / float64(metrics.Height)
	}
	if bounds.Width() > 0 {
		aspect = float64(bounds.Height()) / float64(bounds.Width())
	}
	return coverage >= shortsMinCoverage && aspect > shortsMinAspect
}

// weighShortsControl scores one node as a player indicator
func weighShortsControl(n a11y.Node) int {
	id := lowerID(n)

	if containsAny(id, shortsControlIDs) && !containsAny(id, shortsControlExclusions) {
		return 1
	}
	if containsAny(id, shortsNodePlayerIDs) {
		return 1
	}
	if describesPlayback(n.ContentDescription()) {
		return 1
	}
	return 0
}

// describesPlayback matches descriptions like "Video paused, double tap to play"
func describesPlayback(desc string) bool {
	if utf8.RuneCountInString(desc) <= shortsMinDescLength {
		return false
	}
	d := strings.ToLower(desc)
	return containsAny(d, playbackStateWords) && containsAny(d, contentTypeWords)
}

func hasReelProgressBar(root a11y.Node) bool {
	return scan.First(root, shortsFastPathBudget, func(n a11y.Node) bool {
		return strings.Contains(lowerID(n), "reel_progress_bar")
	}).Matched
}
