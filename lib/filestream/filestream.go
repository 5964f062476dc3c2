// Package filestream provides file reading and writing primitives that
// advise the OS kernel to drop recently read/written blocks from the page
// cache, so sequential scans of large merge parts don't evict hotter pages.
package filestream

import (
	"bufio"
	"fmt"
	"os"

	"github.com/graintree/graintree/lib/logger"
)

// bufferSize is the buffer size used for reading/writing files.
const bufferSize = 64 * 1024

// dontNeedBlockSize is the block size fadvise(DONTNEED) is applied to.
const dontNeedBlockSize = 4 * 1024 * 1024

// ReadCloser is a file-like reader tracked by path for error messages.
type ReadCloser interface {
	// Path returns the path to the file being read.
	Path() string

	Read(p []byte) (int, error)

	// MustClose closes the reader, panicking on failure.
	MustClose()
}

// WriteCloser is a file-like writer tracked by path for error messages.
type WriteCloser interface {
	// Path returns the path to the file being written.
	Path() string

	Write(p []byte) (int, error)

	// MustClose flushes, syncs and closes the writer, panicking on failure.
	MustClose()
}

// streamTracker accumulates bytes read or written through a streamTracker.fd
// and periodically issues fadvise(DONTNEED) so a full sequential scan of a
// merge part doesn't push hotter pages out of the OS cache.
type streamTracker struct {
	fd     uintptr
	offset uint64
	length uint64
}

type reader struct {
	path string
	f    *os.File
	br   *bufio.Reader
	st   streamTracker
}

// MustOpen opens path for reading, panicking on failure. nocache requests
// fadvise(DONTNEED) advisory hints as the file is read.
func MustOpen(path string, nocache bool) ReadCloser {
	r, err := Open(path, nocache)
	if err != nil {
		logger.Panicf("FATAL: %s", err)
	}
	return r
}

// Open opens path for reading.
func Open(path string, nocache bool) (ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open file %q: %w", path, err)
	}
	r := &reader{
		path: path,
		f:    f,
		br:   bufio.NewReaderSize(f, bufferSize),
	}
	if nocache {
		r.st.fd = f.Fd()
	}
	return r, nil
}

func (r *reader) Path() string {
	return r.path
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	if r.st.fd != 0 {
		if advErr := r.st.adviseDontNeed(n, false); advErr != nil {
			logger.Errorf("cannot advise dontneed for %q: %s", r.path, advErr)
		}
	}
	return n, err
}

func (r *reader) MustClose() {
	if err := r.st.close(); err != nil {
		logger.Errorf("cannot finalize page cache advice for %q: %s", r.path, err)
	}
	if err := r.f.Close(); err != nil {
		logger.Panicf("FATAL: cannot close file %q: %s", r.path, err)
	}
}

type writer struct {
	path string
	f    *os.File
	bw   *bufio.Writer
	st   streamTracker
}

// MustCreate creates path for writing, panicking on failure. nocache
// requests fadvise(DONTNEED) advisory hints as the file is written.
func MustCreate(path string, nocache bool) WriteCloser {
	w, err := Create(path, nocache)
	if err != nil {
		logger.Panicf("FATAL: %s", err)
	}
	return w
}

// Create creates path for writing, truncating it if it already exists.
func Create(path string, nocache bool) (WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create file %q: %w", path, err)
	}
	w := &writer{
		path: path,
		f:    f,
		bw:   bufio.NewWriterSize(f, bufferSize),
	}
	if nocache {
		w.st.fd = f.Fd()
	}
	return w, nil
}

func (w *writer) Path() string {
	return w.path
}

func (w *writer) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	if w.st.fd != 0 {
		if advErr := w.st.adviseDontNeed(n, true); advErr != nil {
			logger.Errorf("cannot advise dontneed for %q: %s", w.path, advErr)
		}
	}
	return n, err
}

func (w *writer) MustClose() {
	if err := w.bw.Flush(); err != nil {
		logger.Panicf("FATAL: cannot flush buffered data to file %q: %s", w.path, err)
	}
	if err := w.f.Sync(); err != nil {
		logger.Panicf("FATAL: cannot sync file %q: %s", w.path, err)
	}
	if err := w.st.close(); err != nil {
		logger.Errorf("cannot finalize page cache advice for %q: %s", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		logger.Panicf("FATAL: cannot close file %q: %s", w.path, err)
	}
}
