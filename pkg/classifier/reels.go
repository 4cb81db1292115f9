package classifier

import (
	"strings"

	"github.com/reelguard/reelguard/pkg/a11y"
	"github.com/reelguard/reelguard/pkg/scan"
)

// InstagramPackage is the package routed to the Reels classifier
const InstagramPackage = "com.instagram.android"

const (
	reelsTabBudget       = 150
	reelsContainerBudget = 100
	reelsPlaybackBudget  = 100
	reelsMinIndicators   = 2

	reelsPagerMinHeight   = 800
	reelsSurfaceMinHeight = 500
	reelsSurfaceMinWidth  = 300
)

var (
	reelsTabMarkers = []string{"clips_tab", "reels_tab", "tab_button", "navigation_bar_item"}

	reelsContainerIDs = []string{
		"clips_fragment_container", "clips_tab_container", "clips_viewer_fragment_container",
	}

	reelsEventClassHints = []string{"Clips", "Reel"}

	reelsVideoIDs = []string{
		"clips_video_player", "clips_viewer_video", "video_player_container",
		"reel_video_player", "clips_media_view", "video_view", "texture_view", "surface_view",
	}

	reelsPagerIDs = []string{"clips_viewer_pager", "clips_viewer_view_pager"}

	videoSurfaceClasses = []string{"VideoView", "TextureView", "SurfaceView"}
)

// Reels detects an actively playing Reels feed in the Instagram app.
//
// The user must be inside the Reels section (selected tab, Reels fragment
// container, or a Reels activity), and the tree must carry at least two
// playback indicators.
type Reels struct{}

func (r *Reels) TargetPackage() string {
	return InstagramPackage
}

func (r *Reels) Classify(ev a11y.Event, root a11y.Node, _ a11y.ScreenMetrics) bool {
	if root == nil {
		return false
	}
	if !inReelsSection(ev, root) {
		return false
	}
	return scan.Accumulate(root, reelsPlaybackBudget, weighReelsPlayback).Score >= reelsMinIndicators
}

// inReelsSection checks the cheapest signal first
func inReelsSection(ev a11y.Event, root a11y.Node) bool {
	for _, hint := range reelsEventClassHints {
		if strings.Contains(ev.ClassName, hint) {
			return true
		}
	}

	if scan.First(root, reelsTabBudget, isSelectedReelsTab).Matched {
		return true
	}

	return scan.First(root, reelsContainerBudget, func(n a11y.Node) bool {
		return containsAny(lowerID(n), reelsContainerIDs)
	}).Matched
}

func isSelectedReelsTab(n a11y.Node) bool {
	if !n.IsSelected() && !n.IsChecked() {
		return false
	}
	if !containsAny(lowerID(n), reelsTabMarkers) {
		return false
	}
	return strings.EqualFold(n.Text(), "Reels") ||
		strings.Contains(strings.ToLower(n.ContentDescription()), "reels")
}

// weighReelsPlayback scores one node; the first matching rule wins
func weighReelsPlayback(n a11y.Node) int {
	id := lowerID(n)
	bounds := n.Bounds()

	if containsAny(id, reelsVideoIDs) {
		return 1
	}
	if containsAny(id, reelsPagerIDs) && bounds.Height() > reelsPagerMinHeight {
		return 2
	}
	if classContainsAny(n.ClassName(), videoSurfaceClasses) &&
		bounds.Height() > reelsSurfaceMinHeight && bounds.Width() > reelsSurfaceMinWidth {
		return 1
	}
	return 0
}

func classContainsAny(class string, names []string) bool {
	for _, name := range names {
		if strings.Contains(class, name) {
			return true
		}
	}
	return false
}
