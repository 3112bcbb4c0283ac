// Package report assembles post and statistics screenshots into a Word
// document.
package report

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/common/units"
	"github.com/sirupsen/logrus"

	"vkads-report/dashboard"
	"vkads-report/posts"
)

var separator = strings.Repeat("\u2014", 40)

// Options control the generated document
type Options struct {
	Path      string
	Title     string
	AssetsDir string
	// Tabs are the statistics tabs whose captures are included, in order
	Tabs []string
	// ImageWidth is the rendered picture width in inches
	ImageWidth float64
}

// Generate writes a document with one section per campaign. Every post gets
// its group as a numbered subtitle, its link, its screenshot and all
// statistics images saved for its group.
func Generate(items []posts.Post, opts Options, log logrus.FieldLogger) error {
	if opts.ImageWidth <= 0 {
		opts.ImageWidth = 5
	}
	if len(opts.Tabs) == 0 {
		opts.Tabs = dashboard.DefaultTabs
	}
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	if _, err := doc.AddHeading(opts.Title, 0); err != nil {
		return fmt.Errorf("add title: %w", err)
	}

	var images int
	addPicture := func(path string) {
		w, h, err := pictureSize(path, opts.ImageWidth)
		if err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping image")
			return
		}
		if _, err := doc.AddPicture(path, w, h); err != nil {
			log.WithError(err).WithField("path", path).Warn("skipping image")
			return
		}
		images++
	}

	for _, campaign := range byCampaign(items) {
		if _, err := doc.AddHeading(campaign.name, 1); err != nil {
			return fmt.Errorf("add heading %s: %w", campaign.name, err)
		}
		for i, p := range campaign.posts {
			subtitle := p.Group
			if subtitle == "" {
				subtitle = p.URL
			}
			if _, err := doc.AddHeading(fmt.Sprintf("%d. %s", i+1, subtitle), 2); err != nil {
				return fmt.Errorf("add heading %s: %w", subtitle, err)
			}
			doc.AddParagraph(p.URL)

			if p.Screenshot != "" {
				if _, err := os.Stat(p.Screenshot); err == nil {
					addPicture(p.Screenshot)
				}
			}
			stats, err := statsImages(opts.AssetsDir, p.Group, opts.Tabs)
			if err != nil {
				log.WithError(err).WithField("group", p.Group).Warn("could not list statistics images")
			}
			for _, path := range stats {
				addPicture(path)
			}
			doc.AddParagraph(separator)
		}
	}

	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if err := doc.SaveTo(opts.Path); err != nil {
		return fmt.Errorf("save %s: %w", opts.Path, err)
	}
	log.WithFields(logrus.Fields{"path": opts.Path, "images": images}).Info("report saved")
	return nil
}

type campaign struct {
	name  string
	posts []posts.Post
}

// byCampaign groups posts by campaign in first-seen order
func byCampaign(items []posts.Post) []campaign {
	var out []campaign
	index := map[string]int{}
	for _, p := range items {
		i, ok := index[p.Campaign]
		if !ok {
			i = len(out)
			index[p.Campaign] = i
			out = append(out, campaign{name: p.Campaign})
		}
		out[i].posts = append(out[i].posts, p)
	}
	return out
}

// statsImages lists the statistics captures of group found in dir, in tab
// order. Names are compared ignoring case; captures of groups that merely
// share the prefix, such as ЦР25_A_B for ЦР25_A, are not included.
func statsImages(dir, group string, tabs []string) ([]string, error) {
	if group == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files[strings.ToLower(e.Name())] = e.Name()
		}
	}
	var out []string
	for _, tab := range tabs {
		want := strings.ToLower(dashboard.FileName(group, dashboard.Suffix(tab)))
		if name, ok := files[want]; ok {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}

// pictureSize scales the image at path to width inches, keeping its aspect
func pictureSize(path string, width float64) (units.Inch, units.Inch, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if cfg.Width == 0 {
		return 0, 0, fmt.Errorf("%s has zero width", path)
	}
	height := width * float64(cfg.Height) / float64(cfg.Width)
	return units.Inch(width), units.Inch(height), nil
}
