package dashboard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"vkads-report/screenshot"
)

// GroupFailure records why a group produced no statistics
type GroupFailure struct {
	Group string
	Err   error
}

// Summary is the outcome of a batch
type Summary struct {
	Succeeded []string
	Failed    []GroupFailure
	Captures  []screenshot.CaptureResult
}

// FileName returns the output name for a group's capture
func FileName(group, suffix string) string {
	return screenshot.SanitizeFilename(strings.ToUpper(group)) + "_" + suffix + ".png"
}

// CaptureGroup opens the statistics of one group and captures every
// configured tab. Missing tabs are skipped; a failing capture is recorded
// and the remaining tabs still run.
func (d *Driver) CaptureGroup(ctx context.Context, group string) ([]screenshot.CaptureResult, error) {
	name := strings.ToUpper(group)
	if err := d.OpenDashboard(ctx); err != nil {
		return nil, err
	}
	if _, err := d.Search(ctx, name); err != nil {
		return nil, err
	}
	if err := d.settler.Pause(ctx, d.opts.Timings.AfterSearch); err != nil {
		return nil, err
	}
	if err := d.OpenDetailView(ctx, name); err != nil {
		return nil, err
	}

	var (
		results []screenshot.CaptureResult
		errs    []error
	)
	for _, tab := range d.opts.Tabs {
		ok, err := d.SwitchTab(ctx, tab)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}

		target, suffix := TargetFor(name, tab, d.opts.Zooms)
		path := filepath.Join(d.opts.OutputDir, FileName(name, suffix))
		res, err := d.capturer.Capture(ctx, target, path)
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			d.log.WithError(err).WithFields(logrus.Fields{"group": name, "tab": tab}).Error("tab capture failed")
			errs = append(errs, fmt.Errorf("tab %s: %w", tab, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// CaptureGroups processes groups strictly one after another. A failing group
// is logged and recorded; only cancellation stops the batch.
func (d *Driver) CaptureGroups(ctx context.Context, groups []string) Summary {
	var sum Summary
	base := d.log
	defer func() { d.log = base }()

	for i, group := range groups {
		if ctx.Err() != nil {
			for _, g := range groups[i:] {
				sum.Failed = append(sum.Failed, GroupFailure{Group: g, Err: ctx.Err()})
			}
			break
		}
		d.log = base.WithField("group", group)
		d.log.WithField("progress", fmt.Sprintf("%d/%d", i+1, len(groups))).Info("capturing group statistics")

		results, err := d.CaptureGroup(ctx, group)
		sum.Captures = append(sum.Captures, results...)
		if err != nil {
			d.log.WithError(err).Error("group failed")
			sum.Failed = append(sum.Failed, GroupFailure{Group: group, Err: err})
			continue
		}
		sum.Succeeded = append(sum.Succeeded, group)
	}

	base.WithFields(logrus.Fields{
		"succeeded": len(sum.Succeeded),
		"failed":    len(sum.Failed),
	}).Info("statistics batch finished")
	return sum
}
