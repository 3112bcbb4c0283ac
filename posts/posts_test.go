package posts

import (
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"vkads-report/screenshot"
	"vkads-report/screenshot/screenshottest"
)

func writeWorkbook(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "posts.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoad(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Про Измайлово", "https://vk.com/wall-1_10 ЦР25_Измайлово", "https://vk.com/wall-1_11  ", "не ссылка"},
		{"", "https://vk.com/wall-1_12", "цр25_богородское"},
		{"Про Богородское", "", "https://ok.ru/group/1"},
		{"Про Роговское", "https://vk.com/wall-2_1, ЦР25_РОГ"},
	})

	got, err := Load(path, LoadOptions{URLPattern: "vk.com/wall"})
	require.NoError(t, err)
	assert.Equal(t, []Post{
		{Campaign: "Про Измайлово", URL: "https://vk.com/wall-1_10", Group: "ЦР25_ИЗМАЙЛОВО"},
		{Campaign: "Про Измайлово", URL: "https://vk.com/wall-1_11"},
		{Campaign: "Про Измайлово", URL: "https://vk.com/wall-1_12", Group: "ЦР25_БОГОРОДСКОЕ"},
		{Campaign: "Про Роговское", URL: "https://vk.com/wall-2_1", Group: "ЦР25_РОГ"},
	}, got)

	assert.Equal(t, []string{"ЦР25_ИЗМАЙЛОВО", "ЦР25_БОГОРОДСКОЕ", "ЦР25_РОГ"}, Groups(got))
}

func TestLoad_NoLinks(t *testing.T) {
	path := writeWorkbook(t, [][]any{{"Про Измайлово", "https://ok.ru/1"}})
	_, err := Load(path, LoadOptions{})
	assert.ErrorIs(t, err, ErrNoPosts)
}

func TestLoad_MissingFileAndSheet(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), LoadOptions{})
	assert.Error(t, err)

	path := writeWorkbook(t, [][]any{{"A", "https://vk.com/wall-1_1"}})
	_, err = Load(path, LoadOptions{Sheet: "Missing"})
	assert.Error(t, err)
}

func TestGroups_Dedup(t *testing.T) {
	assert.Equal(t, []string{"A_B"}, Groups([]Post{{Group: "A_B"}, {Group: ""}, {Group: "A_B"}}))
	assert.Empty(t, Groups(nil))
}

func TestCaptureAll(t *testing.T) {
	s := screenshottest.New()
	s.OnNavigate = func(s *screenshottest.Surface, url string) {
		s.Clear()
		if url == "https://vk.com/wall-1_1" {
			s.Add(screenshot.CSS(".wall_post_text"), screenshottest.Node{Box: screenshot.BoundingBox{X: 100, Y: 50, Width: 150, Height: 80}})
		}
	}
	log, _ := logtest.NewNullLogger()
	c := NewCapturer(s, screenshot.NewCapturer(s, log, screenshot.WithSleep(screenshottest.NoSleep)), log, CaptureOptions{BrowserBar: true})

	posts := []Post{{URL: "https://vk.com/wall-1_1"}, {URL: "https://vk.com/wall-1_2"}}
	dir := t.TempDir()
	failures := c.CaptureAll(context.Background(), posts, dir)
	require.Empty(t, failures)

	assert.Equal(t, filepath.Join(dir, "post_1.png"), posts[0].Screenshot)
	assert.Equal(t, filepath.Join(dir, "post_2.png"), posts[1].Screenshot)
	require.Len(t, s.Captures, 2)
	assert.Equal(t, "clip", s.Captures[0].Kind)
	assert.Equal(t, "full_page", s.Captures[1].Kind)

	f, err := os.Open(posts[0].Screenshot)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 148, cfg.Height, "browser bar adds 48px on top")
}

func TestCaptureAll_FailureContinues(t *testing.T) {
	s := screenshottest.New()
	s.OnNavigate = func(s *screenshottest.Surface, url string) {
		if url == "https://vk.com/wall-1_1" {
			s.FullPageErr = errors.New("page crashed")
		} else {
			s.FullPageErr = nil
		}
	}
	log, _ := logtest.NewNullLogger()
	c := NewCapturer(s, screenshot.NewCapturer(s, log, screenshot.WithSleep(screenshottest.NoSleep)), log, CaptureOptions{})

	posts := []Post{{URL: "https://vk.com/wall-1_1"}, {URL: "https://vk.com/wall-1_2"}}
	failures := c.CaptureAll(context.Background(), posts, t.TempDir())
	require.Len(t, failures, 1)
	assert.Equal(t, 0, failures[0].Index)
	assert.Empty(t, posts[0].Screenshot)
	assert.NotEmpty(t, posts[1].Screenshot)
}
