package dashboard

import (
	"time"

	"vkads-report/screenshot"
)

const (
	TabOverview   = "overview"
	TabDemography = "demography"
	TabGeo        = "geo"
)

// DefaultTabs are the statistics tabs captured when none are configured
var DefaultTabs = []string{TabOverview, TabDemography, TabGeo}

// Suffix is the file name suffix a tab's capture is saved under
func Suffix(tab string) string {
	if tab == TabOverview {
		return "overview_funnel"
	}
	return tab
}

// mapRefreshScript forces map canvases to repaint before capture
const mapRefreshScript = `(() => {
	document.querySelectorAll('canvas, [class*="map"], [class*="Map"]').forEach(el => {
		if (el.style) el.style.display = 'none';
		setTimeout(() => { if (el.style) el.style.display = ''; }, 100);
	});
	window.dispatchEvent(new Event('resize'));
	return true;
})()`

// Zooms are the per-region zoom factors
type Zooms struct {
	Demography float64
	Geo        float64
}

// TargetFor returns the capture target for tab and the file name suffix it is
// saved under. group is the upper-cased campaign name.
func TargetFor(group, tab string, zooms Zooms) (screenshot.CaptureTarget, string) {
	switch tab {
	case TabOverview:
		return screenshot.CaptureTarget{
			Name: "overview_funnel",
			Anchors: []screenshot.Anchor{
				{Name: "funnel caption", Candidates: funnelCaption},
				{Name: "funnel chart", Candidates: funnelCharts},
			},
		}, Suffix(tab)

	case TabDemography:
		return screenshot.CaptureTarget{
			Name: TabDemography,
			Anchors: []screenshot.Anchor{
				{Name: "campaign title", Candidates: campaignTitles(group)},
				{Name: "statistics block", Candidates: demographyBlocks, Pick: screenshot.PickLast},
			},
			Padding:     20,
			Zoom:        zooms.Demography,
			ScrollToTop: true,
			SettleDelay: 2 * time.Second,
		}, Suffix(tab)

	case TabGeo:
		return screenshot.CaptureTarget{
			Name:                TabGeo,
			Element:             &screenshot.Anchor{Name: "geo container", Candidates: viewPointsContainers},
			Padding:             10,
			Zoom:                zooms.Geo,
			ScrollToTop:         true,
			RequiresNetworkIdle: true,
			NetworkIdleTimeout:  6 * time.Second,
			WaitFor:             &screenshot.Poll{Markers: mapMarkers, Policy: screenshot.MapLoadPolicy},
			SettleDelay:         3 * time.Second,
			Refresh:             mapRefreshScript,
			RefreshDelay:        2 * time.Second,
		}, Suffix(tab)
	}

	return screenshot.CaptureTarget{
		Name:           tab,
		ScrollToBottom: true,
	}, Suffix(tab)
}
