package himd

import (
	"fmt"
)

var generationFiles = []string{"ATDATA", "MCLIST", "TRKIDX"}

// advanceGeneration rotates the three core files from currentGen's data
// slot to newGen's, per spec.md §4.7. Any file already occupying the
// destination slot is shunted aside to a fresh ".HJS" name first, so a
// stale or half-written generation never collides with the new one.
func advanceGeneration(fs Filesystem, newGen, currentGen uint32) error {
	newDataNum := newGen % 16
	currentDataNum := currentGen % 16
	if newDataNum == currentDataNum {
		return nil
	}

	for _, name := range generationFiles {
		dst := generationPath(name, newDataNum)
		if _, err := fs.GetSize(dst); err == nil {
			if err := quarantine(fs, dst); err != nil {
				return err
			}
		}
		src := generationPath(name, currentDataNum)
		if err := fs.Rename(src, dst); err != nil {
			return fmt.Errorf("himd: rotate %s: %w", name, err)
		}
	}
	return nil
}

// quarantine renames path to a fresh monotonically increasing
// "/HMDHIFI/########.HJS" basename, per spec.md §4.7's collision handling.
func quarantine(fs Filesystem, path string) error {
	entries, err := fs.List("/HMDHIFI")
	if err != nil {
		return fmt.Errorf("himd: list /HMDHIFI: %w", err)
	}
	next := nextHJSBasename(entries)
	dst := fmt.Sprintf("/HMDHIFI/%08d.HJS", next)
	if err := fs.Rename(path, dst); err != nil {
		return fmt.Errorf("himd: quarantine %s: %w", path, err)
	}
	return nil
}

// nextHJSBasename returns one past the largest existing "########.HJS"
// numeric basename among entries, or 0 if none exist.
func nextHJSBasename(entries []string) int {
	max := -1
	for _, e := range entries {
		var n int
		if _, err := fmt.Sscanf(e, "%08d.HJS", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
