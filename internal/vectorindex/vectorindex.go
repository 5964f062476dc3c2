// Package vectorindex implements the Vector-Index Support collaborator
// (spec.md §6) and the delete-row bitmap it maintains per index segment.
// DeleteBitmap is adapted from the retrieval pack's only row-id bitmap over
// a vector index, hupe1980-vecgo/metadata/bitmap.go's LocalBitmap: same
// thin wrapper shape around github.com/RoaringBitmap/roaring/v2, retargeted
// from core.LocalID to the uint64 old-row-offset domain the row-id-map
// builder works in.
package vectorindex

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/graintree/graintree/internal/parts"
)

// DeleteBitmap tracks old row offsets deleted from one (source part, index)
// segment by a merge, so a decoupled index's stale postings can be masked
// without a rebuild.
type DeleteBitmap struct {
	rb *roaring.Bitmap
}

// NewDeleteBitmap returns an empty bitmap.
func NewDeleteBitmap() *DeleteBitmap {
	return &DeleteBitmap{rb: roaring.New()}
}

// Add marks oldOffset deleted. oldOffset must fit in 32 bits, matching the
// roaring.Bitmap domain; part row counts in this engine are expected to.
func (b *DeleteBitmap) Add(oldOffset uint64) {
	b.rb.Add(uint32(oldOffset))
}

// Contains reports whether oldOffset was marked deleted.
func (b *DeleteBitmap) Contains(oldOffset uint64) bool {
	return b.rb.Contains(uint32(oldOffset))
}

// Cardinality returns the number of deleted offsets tracked.
func (b *DeleteBitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// Clone returns a deep copy of b.
func (b *DeleteBitmap) Clone() *DeleteBitmap {
	return &DeleteBitmap{rb: b.rb.Clone()}
}

// Segment identifies one source part's named vector index within a merge.
type Segment struct {
	SourceID   int
	SourceName string
	IndexName  string
}

// Checksums is a named index segment's file checksums, produced by
// moveVectorIndexFiles and persisted by DumpCheckSums.
type Checksums map[string]uint64

// Support is the Vector-Index Support collaborator interface spec.md §6
// names: `moveVectorIndexFiles`, `updateBitMap`, `loadDecoupleCache`,
// `dumpCheckSums`.
type Support interface {
	// MoveVectorIndexFiles moves or copies seg's index files from the
	// source part into the new part's directory — a "merged-<i>-<name>"
	// naming convention when decouple is true, "merged-0-<name>" for the
	// single-VPart case — and returns their checksums.
	MoveVectorIndexFiles(decouple bool, seg Segment, sourcePart parts.SourcePart, newPartDir string) (Checksums, error)

	// UpdateBitMap applies deleteRowIDs (old offsets that did not survive
	// the merge) to seg's delete bitmap.
	UpdateBitMap(seg Segment, deleteRowIDs []uint64) error

	// LoadDecoupleCache primes the in-memory decoupled-cache entry for seg
	// after its files and checksums have been written.
	LoadDecoupleCache(seg Segment) error

	// DumpCheckSums writes a per-index checksums file for the decoupled or
	// single-VPart finalize path.
	DumpCheckSums(newPartDir string, indexName string, sums Checksums) error
}

// FileMover abstracts the part-storage file copy MoveVectorIndexFiles needs,
// decoupled from any concrete filesystem so tests can fake it.
type FileMover interface {
	CopyFile(srcDir, dstDir, srcName, dstName string) (bytesWritten uint64, err error)
}

// LocalSupport is the default Support backed by a FileMover and an
// in-memory map of segment -> DeleteBitmap.
type LocalSupport struct {
	mover   FileMover
	bitmaps map[string]*DeleteBitmap
	cache   map[string]bool
	sums    map[string]Checksums
}

// NewLocalSupport returns a Support that moves files through mover and
// keeps bitmaps, decouple-cache flags, and checksums in memory.
func NewLocalSupport(mover FileMover) *LocalSupport {
	return &LocalSupport{
		mover:   mover,
		bitmaps: make(map[string]*DeleteBitmap),
		cache:   make(map[string]bool),
		sums:    make(map[string]Checksums),
	}
}

func segKey(seg Segment) string {
	return fmt.Sprintf("%d/%s/%s", seg.SourceID, seg.SourceName, seg.IndexName)
}

// MoveVectorIndexFiles copies seg's index file through the FileMover. The
// Checksums it returns hold the copied byte count for the file, not a hash
// of its contents.
func (s *LocalSupport) MoveVectorIndexFiles(decouple bool, seg Segment, sourcePart parts.SourcePart, newPartDir string) (Checksums, error) {
	prefix := "merged-0-" + seg.SourceName
	if decouple {
		prefix = fmt.Sprintf("merged-%d-%s", seg.SourceID, seg.SourceName)
	}
	fileName := seg.IndexName + ".idx"
	dstName := prefix + "-" + fileName
	n, err := s.mover.CopyFile(sourcePart.Dir, newPartDir, fileName, dstName)
	if err != nil {
		return nil, fmt.Errorf("cannot move vector index files for %s: %w", segKey(seg), err)
	}
	sums := Checksums{dstName: n}
	s.sums[segKey(seg)] = sums
	return sums, nil
}

func (s *LocalSupport) UpdateBitMap(seg Segment, deleteRowIDs []uint64) error {
	bm, ok := s.bitmaps[segKey(seg)]
	if !ok {
		bm = NewDeleteBitmap()
		s.bitmaps[segKey(seg)] = bm
	}
	for _, old := range deleteRowIDs {
		bm.Add(old)
	}
	return nil
}

func (s *LocalSupport) LoadDecoupleCache(seg Segment) error {
	s.cache[segKey(seg)] = true
	return nil
}

func (s *LocalSupport) DumpCheckSums(newPartDir string, indexName string, sums Checksums) error {
	// LocalSupport writes no checksums file, and the part footer written by
	// internal/finalize does not include these sums; this only records the
	// sums this support instance has seen, in memory, for diagnostics and
	// tests.
	s.sums[newPartDir+"/"+indexName] = sums
	return nil
}

// Bitmap returns seg's delete bitmap, or nil if none was ever updated.
func (s *LocalSupport) Bitmap(seg Segment) *DeleteBitmap {
	return s.bitmaps[segKey(seg)]
}
