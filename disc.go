package himd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Logger is an optional sink for the one place spec.md §4.2 calls for
// diagnostic output: choosing among multiple ATDATA generations at boot.
// A nil Logger is a no-op.
type Logger func(format string, args ...any)

func (l Logger) logf(format string, args ...any) {
	if l != nil {
		l(format, args...)
	}
}

// Disc is one open HiMD disc handle: the loaded TIF object store plus the
// filesystem, device transport and generation bookkeeping needed to read
// and mutate it (spec.md §4.2's boot contract, composed with §4.6's
// session machinery).
type Disc struct {
	fs        Filesystem
	transport DeviceTransport
	log       Logger

	tif        *TIF
	generation uint32
	discID     [16]byte

	atdataPath string
	mclistPath string
	trkidxPath string
}

// OpenDisc boots a disc: locates the highest-numbered ATDATA/MCLIST/TRKIDX
// generation under /HMDHIFI (case-insensitively), loads the TIF image,
// verifies its magic and length, and reads the disc id out of MCLIST
// (spec.md §4.2).
func OpenDisc(fs Filesystem, transport DeviceTransport, log Logger) (*Disc, error) {
	entries, err := fs.List("/HMDHIFI")
	if err != nil {
		return nil, fmt.Errorf("himd: list /HMDHIFI: %w", err)
	}

	gen, err := highestGeneration(entries, "ATDATA", log)
	if err != nil {
		return nil, err
	}

	d := &Disc{fs: fs, transport: transport, log: log, generation: gen}
	// entries are bare names, so match on the base name and re-root it.
	resolve := func(name string) string {
		base := strings.TrimPrefix(generationPath(name, gen), "/HMDHIFI/")
		return "/HMDHIFI/" + resolveCaseInsensitive(entries, base)
	}
	d.atdataPath = resolve("ATDATA")
	d.mclistPath = resolve("MCLIST")
	d.trkidxPath = resolve("TRKIDX")

	trkidx, err := fs.Open(d.trkidxPath, ModeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTrackIndex, err)
	}
	defer trkidx.Close()

	image := make([]byte, TifImageSize)
	if _, err := io.ReadFull(trkidx, image); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrackIndex, err)
	}
	tif, err := newTIF(image)
	if err != nil {
		return nil, err
	}
	d.tif = tif

	mclist, err := fs.Open(d.mclistPath, ModeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("himd: open %s: %w", d.mclistPath, err)
	}
	defer mclist.Close()
	discIDBuf := make([]byte, 16)
	if _, err := mclist.Seek(mclistDiscIDOffset, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(mclist, discIDBuf); err != nil {
		return nil, fmt.Errorf("himd: read disc id: %w", err)
	}
	copy(d.discID[:], discIDBuf)

	return d, nil
}

// highestGeneration picks the largest "<name><NN>.HMA" data number found
// among entries, logging when more than one candidate exists (spec.md
// §4.2's "if more than one atdata is present, select the highest and
// log").
func highestGeneration(entries []string, name string, log Logger) (uint32, error) {
	var found []uint32
	prefix := strings.ToUpper(name)
	for _, e := range entries {
		u := strings.ToUpper(e)
		if !strings.HasPrefix(u, prefix) || !strings.HasSuffix(u, ".HMA") {
			continue
		}
		numStr := u[len(prefix) : len(u)-len(".HMA")]
		n, err := strconv.ParseUint(numStr, 16, 32)
		if err != nil {
			continue
		}
		found = append(found, uint32(n))
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("%w: no %s*.HMA under /HMDHIFI", ErrNoTrackIndex, name)
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	if len(found) > 1 {
		log.logf("himd: multiple %s generations present (%v), selecting %d", name, found, found[len(found)-1])
	}
	return found[len(found)-1], nil
}

// TIF exposes the loaded object store for callers that need direct access
// beyond the orchestrator's high-level operations.
func (d *Disc) TIF() *TIF { return d.tif }

// DiscID returns the 16-byte disc identifier read from MCLIST at boot.
func (d *Disc) DiscID() [16]byte { return d.discID }

// Generation returns the disc's current generation: the two-hex-digit data
// slot it was booted at, or the generation FinalizeSession last moved it to.
func (d *Disc) Generation() uint32 { return d.generation }

// openATDATA opens the current generation's ATDATA file.
func (d *Disc) openATDATA(mode OpenMode) (FileHandle, error) {
	f, err := d.fs.Open(d.atdataPath, mode)
	if err != nil {
		return nil, fmt.Errorf("himd: open %s: %w", d.atdataPath, err)
	}
	return f, nil
}

// readMclist reads the current generation's raw MCLIST bytes, for feeding
// into OpenSession.
func (d *Disc) readMclist() ([]byte, error) {
	f, err := d.fs.Open(d.mclistPath, ModeReadOnly)
	if err != nil {
		return nil, fmt.Errorf("himd: open %s: %w", d.mclistPath, err)
	}
	defer f.Close()
	n, err := f.Length()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("himd: read %s: %w", d.mclistPath, err)
	}
	return buf, nil
}

// OpenSession authenticates with the attached device transport (if any)
// and loads the maclist, ready for signing new tracks (spec.md §4.6).
func (d *Disc) OpenSession(ctx context.Context) (*Session, error) {
	mclist, err := d.readMclist()
	if err != nil {
		return nil, err
	}
	return OpenSession(ctx, d.transport, d.discID, mclist)
}

// FinalizeSession flushes any pending TIF mutations, then delegates to
// sess.FinalizeSession to re-sign the maclist, rotate the on-disc
// generation and (if a device is attached) push the new ICV (spec.md
// §4.6). It updates the Disc's own cached generation and file paths to
// match the rotation, since advanceGeneration renames the files out from
// under whatever paths were cached at boot; callers must go through this
// method rather than calling sess.FinalizeSession directly on an open Disc.
func (d *Disc) FinalizeSession(ctx context.Context, sess *Session) error {
	if err := d.Flush(); err != nil {
		return err
	}
	newGen := d.generation + 1
	if sess.hasDevice {
		newGen = sess.generation
	}
	if err := sess.FinalizeSession(ctx, d.fs, d.generation); err != nil {
		return err
	}
	d.generation = newGen
	newDataNum := newGen % 16
	d.atdataPath = generationPath("ATDATA", newDataNum)
	d.mclistPath = generationPath("MCLIST", newDataNum)
	d.trkidxPath = generationPath("TRKIDX", newDataNum)
	return nil
}

// Flush writes the TIF image back to the current generation's TRKIDX file
// if it has unflushed mutations.
func (d *Disc) Flush() error {
	if !d.tif.Dirty() {
		return nil
	}
	f, err := d.fs.Open(d.trkidxPath, ModeReadWrite)
	if err != nil {
		return fmt.Errorf("himd: open %s: %w", d.trkidxPath, err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := f.Write(d.tif.Bytes()); err != nil {
		return fmt.Errorf("himd: write %s: %w", d.trkidxPath, err)
	}
	d.tif.dirty = false
	return nil
}
