package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

// CurrentSegment is the canonical file name of the active segment. Rotated
// segments carry a timestamp and are strictly older than the current one.
const CurrentSegment = "events.jsonl"

const rotatedStampLayout = "2006-01-02_15-04-05"

var rotatedPattern = regexp.MustCompile(`^events_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}-\d{6}\.jsonl$`)

// IsRotatedSegment reports whether name matches the rotated-segment naming
// pattern events_<date>_<time>-<microseconds>.jsonl.
func IsRotatedSegment(name string) bool {
	return rotatedPattern.MatchString(name)
}

// IsSegment reports whether name is the current segment or a rotated one.
func IsSegment(name string) bool {
	return name == CurrentSegment || IsRotatedSegment(name)
}

// rotate renames the current segment to a timestamped name and resets state
// so the next write opens a fresh canonical file. Called with w.mu held.
// The event that breached the threshold stays in the rotated file: the size
// check runs after the write.
func (w *Writer) rotate() {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			w.logger.Warn("closing segment before rotation", "error", err)
		}
		w.file = nil
	}

	current := filepath.Join(w.dir, CurrentSegment)
	rotated := w.rotatedPath(w.clock().UTC())
	if err := os.Rename(current, rotated); err != nil {
		// Keep appending to the oversized segment; the next write
		// re-opens it and retries rotation.
		w.metrics.WriteErrors.Inc()
		w.logger.Error("segment rotation failed", "error", err)
		return
	}
	w.size = 0
	w.metrics.Rotations.Inc()
	w.logger.Debug("segment rotated", "segment", filepath.Base(rotated))
	if w.onRotate != nil {
		w.onRotate(rotated)
	}
}

// rotatedPath builds a microsecond-stamped segment path. Microsecond
// precision keeps names unique across rapid successive rotations; if a name
// is somehow taken the microsecond field is bumped rather than letting
// os.Rename overwrite an older segment.
func (w *Writer) rotatedPath(ts time.Time) string {
	micros := ts.Nanosecond() / int(time.Microsecond)
	for {
		name := fmt.Sprintf("events_%s-%06d.jsonl", ts.Format(rotatedStampLayout), micros)
		p := filepath.Join(w.dir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return p
		}
		micros++
		if micros >= int(time.Second/time.Microsecond) {
			ts = ts.Add(time.Second)
			micros = 0
		}
	}
}
