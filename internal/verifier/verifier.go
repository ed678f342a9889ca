package verifier

import (
	"fmt"
	"log/slog"
	"strings"

	"ledsign/internal/logging"
	"ledsign/internal/timeline"
)

// Conflict describes one overlap. Earlier is nil when Later starts before the
// timeline origin.
type Conflict struct {
	Earlier *timeline.Keypoint
	Later   *timeline.Keypoint
	// Frames is the length of the overlap.
	Frames int64
}

func (c Conflict) String() string {
	earlier := "<timeline start>"
	if c.Earlier != nil {
		earlier = c.Earlier.Label()
	}
	return fmt.Sprintf("keypoint overlap (%.3fs): %s and %s",
		timeline.Seconds(c.Frames), earlier, c.Later.Label())
}

// Report collects the conflicts found in one pass.
type Report struct {
	Conflicts []Conflict
}

// HasErrors reports whether any conflict was found.
func (r Report) HasErrors() bool {
	return len(r.Conflicts) > 0
}

// Involves reports whether kp takes part in any conflict.
func (r Report) Involves(kp *timeline.Keypoint) bool {
	for _, c := range r.Conflicts {
		if c.Earlier == kp || c.Later == kp {
			return true
		}
	}
	return false
}

func (r Report) String() string {
	if !r.HasErrors() {
		return "no conflicts"
	}
	lines := make([]string, len(r.Conflicts))
	for i, c := range r.Conflicts {
		lines[i] = c.String()
	}
	return strings.Join(lines, "\n")
}

// Verify walks tl once in key order. For every keypoint it scans backwards
// over keypoints sharing a pixel until it reaches one that ends at or before
// the ramp start.
func Verify(tl *timeline.Timeline, logger *slog.Logger) Report {
	logger = logging.NewComponentLogger(logger, "verifier")
	var report Report
	all := tl.Pixels()
	for kp := range tl.All(all) {
		start := kp.Start()
		if start < 0 {
			report.add(logger, Conflict{Later: kp, Frames: -start})
		}
		if kp.Key() == 0 {
			continue
		}
		for e := tl.Predecessor(kp.Key()-1, kp.Pixels); e != nil && int64(e.End) > start; {
			report.add(logger, Conflict{Earlier: e, Later: kp, Frames: int64(e.End) - start})
			if e.Key() == 0 {
				break
			}
			e = tl.Predecessor(e.Key()-1, kp.Pixels)
		}
	}
	return report
}

func (r *Report) add(logger *slog.Logger, c Conflict) {
	r.Conflicts = append(r.Conflicts, c)
	earlier := "<timeline start>"
	if c.Earlier != nil {
		earlier = c.Earlier.Label()
	}
	logging.WarnWithContext(logger, "keypoint overlap", "keypoint_overlap",
		logging.Float64("overlap_seconds", timeline.Seconds(c.Frames)),
		logging.String("earlier", earlier),
		logging.String("later", c.Later.Label()),
		logging.String(logging.FieldErrorHint, "shorten the later ramp or move it after the earlier keypoint"),
		logging.String(logging.FieldImpact, "program will be rejected unless verification is bypassed"),
	)
}
