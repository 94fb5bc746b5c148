// Package changedetect decides whether a freshly built target differs from its last release.
package changedetect

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/variantdev/packrel/pkg/content"
	"k8s.io/klog/v2"
)

// PreviousState returns the outcome recorded for target by its last release, or nil if there is none.
type PreviousState interface {
	Previous(ctx context.Context, target string) (*content.InstallationOutcome, error)
}

type Detector struct {
	previous PreviousState

	Logger logr.Logger
}

func New(previous PreviousState, logger logr.Logger) *Detector {
	if logger.GetSink() == nil {
		logger = klog.NewKlogr()
	}
	return &Detector{previous: previous, Logger: logger}
}

// NeedsUpdate reports whether outcome differs structurally from the outcome of target's last
// release. A target without a recorded outcome always needs an update.
func (d *Detector) NeedsUpdate(ctx context.Context, target string, outcome *content.InstallationOutcome) (bool, error) {
	prev, err := d.previous.Previous(ctx, target)
	if err != nil {
		return false, fmt.Errorf("reading previous installation state of %s: %w", target, err)
	}

	if prev == nil {
		d.Logger.V(1).Info("no previous installation state", "target", target)
		return true, nil
	}

	diff := cmp.Diff(prev.Normalized(), outcome.Normalized(), cmpopts.EquateEmpty())
	if diff == "" {
		return false, nil
	}

	d.Logger.V(1).Info("installation state changed", "target", target, "diff", diff)

	return true, nil
}
