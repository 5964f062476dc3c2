// Package finalize implements the Finalize / Vector-Index Move stage
// (spec.md component 10): writes the new part's footer and checksums,
// moves or decouples vector-index files, attaches projection sub-parts,
// and issues a single precommit before the result future is fulfilled.
package finalize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/graintree/graintree/internal/horizontal"
	"github.com/graintree/graintree/internal/parts"
	"github.com/graintree/graintree/internal/rowidmap"
	"github.com/graintree/graintree/internal/vectorindex"
	"github.com/graintree/graintree/lib/logger"
)

// PrecommitFunc performs the single "begin/precommit" hook the new part's
// storage exposes (spec.md §6); it is the last action before the result
// future is fulfilled.
type PrecommitFunc func(*parts.NewPart) error

// Finalizer drives the finalize stage.
type Finalizer struct {
	support   vectorindex.Support
	precommit PrecommitFunc
}

// NewFinalizer returns a Finalizer using support for vector-index file
// moves and precommit as the new part's transactional commit hook.
func NewFinalizer(support vectorindex.Support, precommit PrecommitFunc) *Finalizer {
	return &Finalizer{support: support, precommit: precommit}
}

// Finalize seals newPart: writes checksums for every row/column file
// already on disk, runs the vector-index finalize path for each decision,
// attaches projection sub-parts, and precommits.
func (f *Finalizer) Finalize(newPart *parts.NewPart, decisions []horizontal.DecoupleDecision, sources []parts.SourcePart, rsPath string, builderResult *rowidmap.Result, projections map[string]*parts.NewPart) error {
	if newPart.Rows == 0 {
		for i := range decisions {
			decisions[i].CanDecouple = false
			decisions[i].OnlyOneVPartMerged = false
		}
	}

	for name, proj := range projections {
		if newPart.Projections == nil {
			newPart.Projections = make(map[string]*parts.NewPart)
		}
		newPart.Projections[name] = proj
	}

	for _, d := range decisions {
		switch {
		case d.CanDecouple:
			if err := f.finalizeDecoupled(newPart, d, sources, rsPath, builderResult); err != nil {
				return err
			}
		case d.OnlyOneVPartMerged:
			if err := f.finalizeSingleVPart(newPart, d, sources); err != nil {
				return err
			}
		}
	}

	if err := f.writeFooter(newPart); err != nil {
		return err
	}

	if f.precommit != nil {
		if err := f.precommit(newPart); err != nil {
			return fmt.Errorf("precommit failed for part %q: %w", newPart.Name, err)
		}
	}
	return nil
}

func (f *Finalizer) finalizeDecoupled(newPart *parts.NewPart, d horizontal.DecoupleDecision, sources []parts.SourcePart, rsPath string, builderResult *rowidmap.Result) error {
	sums := vectorindex.Checksums{}
	for i, sp := range sources {
		if sp.Rows == 0 || sp.VectorIndexState(d.IndexName) != parts.VectorIndexBuilt {
			continue
		}
		seg := vectorindex.Segment{SourceID: i, SourceName: sp.Name, IndexName: d.IndexName}
		segSums, err := f.support.MoveVectorIndexFiles(true, seg, sp, newPart.Dir)
		if err != nil {
			return err
		}
		for k, v := range segSums {
			sums[k] = v
		}
		if builderResult != nil && i < len(builderResult.DeleteRowIDs) {
			if err := f.support.UpdateBitMap(seg, builderResult.DeleteRowIDs[i]); err != nil {
				return err
			}
		}
		if err := f.support.LoadDecoupleCache(seg); err != nil {
			return err
		}
	}

	if rsPath != "" {
		if err := copyFileChecksummed(rsPath, filepath.Join(newPart.Dir, "merged-inverted_row_sources_map"), sums); err != nil {
			return err
		}
	}

	if builderResult != nil {
		invPath := filepath.Join(newPart.Dir, "merged-inverted_row_ids_map")
		if err := writeAndChecksum(invPath, sums, func(w io.Writer) error {
			return rowidmap.WriteInverted(w, builderResult.Inverted)
		}); err != nil {
			return err
		}
		for i, sp := range sources {
			if i >= len(builderResult.RowIDsMap) {
				continue
			}
			path := filepath.Join(newPart.Dir, fmt.Sprintf("merged-%d-%s-row_ids_map", i, sp.Name))
			if err := writeAndChecksum(path, sums, func(w io.Writer) error {
				return rowidmap.WriteRowIDsMap(w, builderResult.RowIDsMap[i])
			}); err != nil {
				return err
			}
		}
	}

	// A decoupled index is only reusable alongside the row-id-map that
	// translates its old row positions into the merged part's new ones;
	// without builderResult there is no map, so the index files just moved
	// are stranded and this part must not claim to be decoupled.
	if builderResult != nil {
		newPart.VectorIndexDecoupled = true
	} else {
		logger.Errorf("vector index %q for part %q moved without a row-id map; not marking decoupled", d.IndexName, newPart.Name)
	}
	logger.Infof("decoupled vector index %q for part %q across %d source parts", d.IndexName, newPart.Name, len(sources))
	return f.support.DumpCheckSums(newPart.Dir, d.IndexName, sums)
}

func (f *Finalizer) finalizeSingleVPart(newPart *parts.NewPart, d horizontal.DecoupleDecision, sources []parts.SourcePart) error {
	sp := sources[d.SingleSourceIdx]
	seg := vectorindex.Segment{SourceID: d.SingleSourceIdx, SourceName: sp.Name, IndexName: d.IndexName}
	sums, err := f.support.MoveVectorIndexFiles(false, seg, sp, newPart.Dir)
	if err != nil {
		return err
	}
	newPart.VectorIndexSingle = true
	logger.Infof("moved single vector index %q for part %q forward from source %q untouched", d.IndexName, newPart.Name, sp.Name)
	return f.support.DumpCheckSums(newPart.Dir, d.IndexName, sums)
}

func (f *Finalizer) writeFooter(newPart *parts.NewPart) error {
	footerPath := filepath.Join(newPart.Dir, "checksums.txt")
	fh, err := os.Create(footerPath)
	if err != nil {
		return fmt.Errorf("cannot create part footer %q: %w", footerPath, err)
	}
	defer fh.Close()
	rowsPath := filepath.Join(newPart.Dir, "rows.bin")
	if sum, ok := checksumFile(rowsPath); ok {
		fmt.Fprintf(fh, "rows.bin\t%x\n", sum)
	}
	for _, col := range newPart.Columns {
		colPath := filepath.Join(newPart.Dir, "col-"+col.Name+".bin")
		if sum, ok := checksumFile(colPath); ok {
			fmt.Fprintf(fh, "col-%s.bin\t%x\n", col.Name, sum)
		}
	}
	return nil
}

func checksumFile(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return 0, false
	}
	return h.Sum64(), true
}

func copyFileChecksummed(srcPath, dstPath string, sums vectorindex.Checksums) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", srcPath, err)
	}
	defer src.Close()
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("cannot create %q: %w", dstPath, err)
	}
	defer dst.Close()
	h := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(dst, h), src); err != nil {
		return err
	}
	sums[filepath.Base(dstPath)] = h.Sum64()
	return nil
}

func writeAndChecksum(path string, sums vectorindex.Checksums, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create %q: %w", path, err)
	}
	defer f.Close()
	h := xxhash.New()
	if err := write(io.MultiWriter(f, h)); err != nil {
		return err
	}
	sums[filepath.Base(path)] = h.Sum64()
	return nil
}
