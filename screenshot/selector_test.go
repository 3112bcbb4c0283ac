package screenshot_test

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkads-report/screenshot"
	"vkads-report/screenshot/screenshottest"
)

func TestSelectorString(t *testing.T) {
	assert.Equal(t, "a", screenshot.CSS("a").String())
	assert.Equal(t, "text=Гео", screenshot.Text("Гео").String())
	assert.Equal(t, `button:has-text("Статистика")`, screenshot.HasText("button", "Статистика").String())
	assert.Equal(t, "tr >> a[data-testid='stats']", screenshot.CSS("a[data-testid='stats']").In("tr").String())
}

func TestResolve_FirstMatchingCandidateWins(t *testing.T) {
	s := screenshottest.New()
	first := screenshot.CSS("div.primary")
	second := screenshot.CSS("div.secondary")
	third := screenshot.CSS("div.tertiary")
	secondRefs := s.Add(second, screenshottest.Node{}, screenshottest.Node{})
	s.Add(third, screenshottest.Node{})

	el, ok, err := screenshot.Resolve(context.Background(), s, []screenshot.Selector{first, second, third}, screenshot.PickFirst)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secondRefs[0], el.Ref)
	assert.Equal(t, second, el.Selector)

	el, ok, err = screenshot.Resolve(context.Background(), s, []screenshot.Selector{first, second, third}, screenshot.PickLast)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, secondRefs[1], el.Ref)
}

func TestResolve_NotFound(t *testing.T) {
	s := screenshottest.New()
	_, ok, err := screenshot.Resolve(context.Background(), s, []screenshot.Selector{screenshot.CSS("x")}, screenshot.PickFirst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolve_FindError(t *testing.T) {
	s := screenshottest.New()
	s.FindErr = errors.New("detached")
	_, ok, err := screenshot.Resolve(context.Background(), s, []screenshot.Selector{screenshot.CSS("x")}, screenshot.PickFirst)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestElementQuery(t *testing.T) {
	assert.Equal(t, `[data-vkads-ref="7"]`, screenshot.Element{Ref: "7"}.Query())
}

func TestSettler_PollExhausts(t *testing.T) {
	s := screenshottest.New()
	log, hook := logtest.NewNullLogger()
	var slept int
	w := screenshot.NewSettler(s, log, func(ctx context.Context, d time.Duration) error {
		slept++
		assert.Equal(t, 10*time.Millisecond, d)
		return nil
	})

	_, ok, err := w.Poll(context.Background(), []screenshot.Selector{screenshot.CSS("canvas")}, screenshot.PollPolicy{Attempts: 3, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, slept)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "marker did not appear, continuing", hook.LastEntry().Message)
}

func TestSettler_PollFindsLateMarker(t *testing.T) {
	s := screenshottest.New()
	log, _ := logtest.NewNullLogger()
	marker := screenshot.CSS("canvas.mmrgl-canvas")
	var slept int
	w := screenshot.NewSettler(s, log, func(ctx context.Context, d time.Duration) error {
		slept++
		if slept == 2 {
			s.Add(marker, screenshottest.Node{})
		}
		return nil
	})

	got, ok, err := w.Poll(context.Background(), []screenshot.Selector{screenshot.CSS("div.map"), marker}, screenshot.MapLoadPolicy)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, marker, got)
	assert.Equal(t, 2, slept)
}

func TestSettler_PollCancelled(t *testing.T) {
	s := screenshottest.New()
	log, _ := logtest.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := screenshot.NewSettler(s, log, screenshottest.NoSleep)

	_, _, err := w.Poll(ctx, []screenshot.Selector{screenshot.CSS("canvas")}, screenshot.MapLoadPolicy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSettler_NetworkIdle(t *testing.T) {
	s := screenshottest.New()
	log, hook := logtest.NewNullLogger()
	w := screenshot.NewSettler(s, log, screenshottest.NoSleep)

	idle, err := w.NetworkIdle(context.Background(), time.Second)
	require.NoError(t, err)
	assert.True(t, idle)

	s.IdleErr = errors.New("cdp gone")
	idle, err = w.NetworkIdle(context.Background(), time.Second)
	require.NoError(t, err)
	assert.False(t, idle)
	assert.Equal(t, "network idle wait failed, continuing", hook.LastEntry().Message)
}

func TestSleep(t *testing.T) {
	assert.NoError(t, screenshot.Sleep(context.Background(), 0))
	assert.NoError(t, screenshot.Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, screenshot.Sleep(ctx, time.Hour), context.Canceled)
}
