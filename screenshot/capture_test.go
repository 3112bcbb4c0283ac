package screenshot_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkads-report/screenshot"
	"vkads-report/screenshot/screenshottest"
)

var (
	captionSel = screenshot.Text("Воронка конверсий")
	chartSel   = screenshot.CSS("div[class*='ConversionsChart'][class*='wrap']")
	chartAlt   = screenshot.CSS("div[class^='ConversionsChart_wrap']")
	containerA = screenshot.CSS("div[class*='ViewPoints'][class*='layout']")
	containerB = screenshot.CSS("div[class^='ViewPoints_main']")
)

func newCapturer(s *screenshottest.Surface) (*screenshot.Capturer, *logtest.Hook) {
	log, hook := logtest.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return screenshot.NewCapturer(s, log, screenshot.WithSleep(screenshottest.NoSleep)), hook
}

func funnelTarget() screenshot.CaptureTarget {
	return screenshot.CaptureTarget{
		Name: "overview_funnel",
		Anchors: []screenshot.Anchor{
			{Name: "caption", Candidates: []screenshot.Selector{captionSel}},
			{Name: "chart", Candidates: []screenshot.Selector{chartSel, chartAlt}},
		},
	}
}

func geoTarget() screenshot.CaptureTarget {
	return screenshot.CaptureTarget{
		Name:    "geo",
		Element: &screenshot.Anchor{Name: "container", Candidates: []screenshot.Selector{containerA, containerB}},
		Padding: 10,
		Zoom:    0.7,
	}
}

func demographyTarget() screenshot.CaptureTarget {
	return screenshot.CaptureTarget{
		Name:    "demography",
		Padding: 20,
		Zoom:    0.6,
		Anchors: []screenshot.Anchor{
			{Name: "title", Candidates: []screenshot.Selector{screenshot.CSS("span[class*='TopLine'][class*='title']")}},
			{Name: "statistics", Candidates: []screenshot.Selector{screenshot.CSS("div[class*='Compare'][class*='layout']")}, Pick: screenshot.PickLast},
		},
	}
}

func countPNGs(t *testing.T, dir string) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	return len(matches)
}

func TestCapture_UnionClip(t *testing.T) {
	s := screenshottest.New()
	s.Add(captionSel, screenshottest.Node{Box: box(10, 20, 100, 50)})
	s.Add(chartAlt, screenshottest.Node{Box: box(200, 20, 50, 80)})
	c, _ := newCapturer(s)

	dir := t.TempDir()
	path := filepath.Join(dir, "G_overview_funnel.png")
	res, err := c.Capture(context.Background(), funnelTarget(), path)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, screenshot.TierUnionClip, res.Tier)
	assert.Equal(t, path, res.OutputPath)
	require.Len(t, s.Captures, 1)
	assert.Equal(t, screenshot.ClipRegion{X: 10, Y: 20, Width: 240, Height: 80}, s.Captures[0].Clip)
	assert.FileExists(t, path)
	assert.Equal(t, 1, countPNGs(t, dir))
}

func TestCapture_ElementTierWithPaddingAndZoomRestore(t *testing.T) {
	s := screenshottest.New()
	s.ZoomValue = "0.8"
	s.Add(containerB, screenshottest.Node{Box: box(5, 100, 600, 400)})
	c, _ := newCapturer(s)

	path := filepath.Join(t.TempDir(), "G_geo.png")
	res, err := c.Capture(context.Background(), geoTarget(), path)
	require.NoError(t, err)

	assert.Equal(t, screenshot.TierElement, res.Tier)
	require.Len(t, s.Captures, 1)
	assert.Equal(t, screenshot.ClipRegion{X: 0, Y: 90, Width: 615, Height: 420}, s.Captures[0].Clip)
	assert.Equal(t, []string{"0.7", "0.8"}, s.ZoomHistory)
	assert.Equal(t, "0.8", s.ZoomValue)
}

func TestCapture_DemographyMissingAnchorsFallsBackToFullPage(t *testing.T) {
	s := screenshottest.New()
	c, hook := newCapturer(s)

	dir := t.TempDir()
	path := filepath.Join(dir, "G_demography.png")
	res, err := c.Capture(context.Background(), demographyTarget(), path)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, screenshot.TierFullPage, res.Tier)
	require.Len(t, s.Captures, 1)
	assert.Equal(t, "full_page", s.Captures[0].Kind)
	assert.Equal(t, 1, countPNGs(t, dir))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["target"] == "demography" {
			if missing, ok := e.Data["missing_anchors"].([]string); ok {
				assert.Equal(t, []string{"title", "statistics"}, missing)
				warned = true
			}
		}
	}
	assert.True(t, warned, "expected a warning naming the missing anchors")
	assert.Equal(t, "", s.ZoomValue)
}

func TestCapture_PartialAnchorsFallBack(t *testing.T) {
	s := screenshottest.New()
	s.Add(chartSel, screenshottest.Node{Box: box(200, 20, 50, 80)})
	c, _ := newCapturer(s)

	res, err := c.Capture(context.Background(), funnelTarget(), filepath.Join(t.TempDir(), "f.png"))
	require.NoError(t, err)
	assert.Equal(t, screenshot.TierFullPage, res.Tier)
}

func TestCapture_ElementWithoutBoxUsesNextTier(t *testing.T) {
	s := screenshottest.New()
	s.Add(containerA, screenshottest.Node{NoBox: true})
	s.Add(captionSel, screenshottest.Node{Box: box(0, 0, 10, 10)})

	target := geoTarget()
	target.Anchors = []screenshot.Anchor{{Name: "caption", Candidates: []screenshot.Selector{captionSel}}}
	c, _ := newCapturer(s)

	dir := t.TempDir()
	res, err := c.Capture(context.Background(), target, filepath.Join(dir, "g.png"))
	require.NoError(t, err)
	assert.Equal(t, screenshot.TierUnionClip, res.Tier)
	assert.Len(t, s.Captures, 1)
	assert.Equal(t, 1, countPNGs(t, dir))
}

func TestCapture_ClipErrorResolvedByFullPage(t *testing.T) {
	s := screenshottest.New()
	s.ClipErr = errors.New("target closed")
	s.Add(containerA, screenshottest.Node{Box: box(0, 0, 100, 100)})
	s.Add(captionSel, screenshottest.Node{Box: box(0, 0, 10, 10)})

	target := geoTarget()
	target.Anchors = []screenshot.Anchor{{Name: "caption", Candidates: []screenshot.Selector{captionSel}}}
	c, hook := newCapturer(s)

	dir := t.TempDir()
	res, err := c.Capture(context.Background(), target, filepath.Join(dir, "g.png"))
	require.NoError(t, err)
	assert.Equal(t, screenshot.TierFullPage, res.Tier)
	require.Len(t, s.Captures, 1)
	assert.Equal(t, "full_page", s.Captures[0].Kind)
	assert.Equal(t, 1, countPNGs(t, dir))
	assert.Equal(t, logrus.ErrorLevel, findLevel(hook, "capture failed, falling back to full page"))
}

func TestCapture_FullPageFailureRestoresZoom(t *testing.T) {
	s := screenshottest.New()
	s.ZoomValue = "0.8"
	s.ClipErr = errors.New("boom")
	s.FullPageErr = errors.New("boom")
	s.Add(containerA, screenshottest.Node{Box: box(0, 0, 100, 100)})
	c, _ := newCapturer(s)

	dir := t.TempDir()
	path := filepath.Join(dir, "g.png")
	res, err := c.Capture(context.Background(), geoTarget(), path)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "0.8", s.ZoomValue)
	assert.NoFileExists(t, path)
}

func TestCapture_ZoomRestoredOnCancel(t *testing.T) {
	s := screenshottest.New()
	s.ZoomValue = "1"
	c := screenshot.NewCapturer(s, logrus.New(), screenshot.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}))

	_, err := c.Capture(context.Background(), geoTarget(), filepath.Join(t.TempDir(), "g.png"))
	require.Error(t, err)
	assert.Equal(t, "1", s.ZoomValue)
}

func TestCapture_NoAnchorsIsFullPage(t *testing.T) {
	s := screenshottest.New()
	c, _ := newCapturer(s)

	target := screenshot.CaptureTarget{Name: "other", ScrollToBottom: true}
	res, err := c.Capture(context.Background(), target, filepath.Join(t.TempDir(), "o.png"))
	require.NoError(t, err)
	assert.Equal(t, screenshot.TierFullPage, res.Tier)
	assert.Len(t, s.Scripts, 1)
	assert.Empty(t, s.ZoomHistory)
}

func TestCapture_PrepareSteps(t *testing.T) {
	s := screenshottest.New()
	s.IdleErr = screenshot.ErrSettleTimeout
	marker := screenshot.CSS("canvas.mmrgl-canvas")
	s.Add(marker, screenshottest.Node{Box: box(0, 0, 10, 10)})
	c, hook := newCapturer(s)

	target := screenshot.CaptureTarget{
		Name:                "geo",
		ScrollToTop:         true,
		RequiresNetworkIdle: true,
		NetworkIdleTimeout:  time.Second,
		WaitFor:             &screenshot.Poll{Markers: []screenshot.Selector{marker}, Policy: screenshot.MapLoadPolicy},
		Refresh:             "window.dispatchEvent(new Event('resize'))",
	}
	_, err := c.Capture(context.Background(), target, filepath.Join(t.TempDir(), "g.png"))
	require.NoError(t, err)

	assert.Equal(t, []string{"window.scrollTo(0, 0)", "window.dispatchEvent(new Event('resize'))"}, s.Scripts)
	assert.Equal(t, logrus.WarnLevel, findLevel(hook, "network did not go idle, continuing"))
	assert.Equal(t, logrus.InfoLevel, findLevel(hook, "marker appeared"))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "element", screenshot.TierElement.String())
	assert.Equal(t, "union_clip", screenshot.TierUnionClip.String())
	assert.Equal(t, "full_page", screenshot.TierFullPage.String())
	assert.Equal(t, "none", screenshot.Tier(0).String())
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "ЦР25_A_B", screenshot.SanitizeFilename(" ЦР25_A B "))
	assert.Equal(t, "a_b_c", screenshot.SanitizeFilename("a/b:c"))
	long := screenshot.SanitizeFilename(strings.Repeat("Ж", 150))
	assert.Len(t, []rune(long), 100)
}

func findLevel(hook *logtest.Hook, msg string) logrus.Level {
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			return e.Level
		}
	}
	return logrus.PanicLevel
}

func TestCapture_RecreatesOutputDir(t *testing.T) {
	s := screenshottest.New()
	c, _ := newCapturer(s)

	path := filepath.Join(t.TempDir(), "gone", "x.png")
	_, err := c.Capture(context.Background(), screenshot.CaptureTarget{Name: "x"}, path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.CaptureBytes, data)
}
