// Package posts reads the post spreadsheet and captures each post page.
package posts

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrNoPosts is returned when the spreadsheet holds no post links
var ErrNoPosts = errors.New("no post links found")

// groupToken matches campaign group identifiers such as ЦР25_ИЗМАЙЛОВО
var groupToken = regexp.MustCompile(`^[\p{L}\p{N}]+(?:_[\p{L}\p{N}]+)+$`)

// Post is one promoted post
type Post struct {
	Campaign   string
	URL        string
	Group      string
	Screenshot string
}

// LoadOptions select the sheet and what counts as a post link
type LoadOptions struct {
	Sheet      string
	URLPattern string
}

// Load reads posts from an xlsx workbook. The first column names the
// campaign; every later cell containing URLPattern is a post link,
// optionally followed by its group identifier in the same or the next cell.
func Load(path string, opts LoadOptions) ([]Post, error) {
	if opts.URLPattern == "" {
		opts.URLPattern = "vk.com/wall"
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%s: %w", path, ErrNoPosts)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}

	var (
		posts    []Post
		campaign string
	)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		// merged campaign cells only carry the value in their first row
		if title := strings.TrimSpace(row[0]); title != "" {
			campaign = title
		}
		for i := 1; i < len(row); i++ {
			cell := row[i]
			if !strings.Contains(cell, opts.URLPattern) {
				continue
			}
			link, rest := splitLink(cell, opts.URLPattern)
			group := findGroup(rest)
			if group == "" && i+1 < len(row) && !strings.Contains(row[i+1], opts.URLPattern) {
				group = findGroup(strings.Fields(row[i+1]))
			}
			posts = append(posts, Post{Campaign: campaign, URL: link, Group: group})
		}
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoPosts)
	}
	return posts, nil
}

// splitLink returns the first token carrying pattern and the tokens after it
func splitLink(cell, pattern string) (string, []string) {
	fields := strings.Fields(cell)
	for i, f := range fields {
		if strings.Contains(f, pattern) {
			return strings.TrimRight(f, ",;"), fields[i+1:]
		}
	}
	return strings.TrimSpace(cell), nil
}

func findGroup(tokens []string) string {
	for _, tok := range tokens {
		tok = strings.Trim(tok, " ,;()[]\"'«»")
		if groupToken.MatchString(tok) {
			return strings.ToUpper(tok)
		}
	}
	return ""
}

// Groups returns the distinct group identifiers in first-seen order
func Groups(posts []Post) []string {
	seen := map[string]struct{}{}
	var groups []string
	for _, p := range posts {
		if p.Group == "" {
			continue
		}
		if _, ok := seen[p.Group]; ok {
			continue
		}
		seen[p.Group] = struct{}{}
		groups = append(groups, p.Group)
	}
	return groups
}
