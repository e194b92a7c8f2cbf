// Package segments implements SegmentsReader and SegmentsWriter, the layer
// that turns a Locations index plus a Cryptor into
// random-access plaintext: reading batches and parallelizes segment opens
// the way gocryptfs's contentenc dispatches whole-file decryption across
// sequential/batch/parallel paths depending on how many blocks are in
// play.
package segments

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/3nsoft/xsp-files-sub000/internal/cryptocore"
	"github.com/3nsoft/xsp-files-sub000/internal/header"
	"github.com/3nsoft/xsp-files-sub000/internal/locations"
	"github.com/3nsoft/xsp-files-sub000/internal/memprotect"
	"github.com/3nsoft/xsp-files-sub000/internal/tlog"
	"github.com/3nsoft/xsp-files-sub000/internal/xspconfig"
	"github.com/3nsoft/xsp-files-sub000/internal/xsperrors"
)

// PackedReadChunkLen is the largest span of adjacent packed segments
// SegmentsReader will fetch from src in a single ReadAt call before
// splitting the rest into a further batch.
const PackedReadChunkLen = 256 * 1024

// workLabel identifies this reader's Open calls to the Cryptor's work
// budget, distinct from any writer sharing the same Cryptor.
const workLabel = 1

// ByteSource is the packed-byte stream a SegmentsReader decrypts from. Any
// io.ReaderAt (an *os.File, a bytes.Reader, a network range-fetcher)
// satisfies it.
type ByteSource interface {
	io.ReaderAt
}

// SegmentsReader gives random-access, chain-aware decryption over a packed
// byte stream described by a header.SegsInfo.
type SegmentsReader struct {
	loc     *locations.Locations
	key     []byte
	cryptor cryptocore.Cryptor
	src     ByteSource
	si      header.SegsInfo
	cfg     xspconfig.Config
}

// NewReader builds a SegmentsReader over src, whose layout is described by
// si, to be opened with key under cryptor, using xspconfig.Default's
// read-batching and concurrency knobs.
func NewReader(si header.SegsInfo, key []byte, cryptor cryptocore.Cryptor, src ByteSource) *SegmentsReader {
	return NewReaderWithConfig(si, key, cryptor, src, xspconfig.Default())
}

// NewReaderWithConfig is NewReader with an explicit Config, letting a
// caller size PackedReadChunkLen's read batching or cap MaxConcurrency's
// segment-open fan-out for this reader specifically.
func NewReaderWithConfig(si header.SegsInfo, key []byte, cryptor cryptocore.Cryptor, src ByteSource, cfg xspconfig.Config) *SegmentsReader {
	return &SegmentsReader{
		loc:     locations.New(si.SegSize, cryptocore.Poly, si.SegChains),
		key:     key,
		cryptor: cryptor,
		src:     src,
		si:      si,
		cfg:     cfg,
	}
}

// FormatVersion returns the header format this reader was built from.
func (r *SegmentsReader) FormatVersion() int { return r.si.FormatVersion }

// PayloadFormatVersion returns the caller-defined payload format tag.
func (r *SegmentsReader) PayloadFormatVersion() int { return r.si.PayloadFormatVersion }

// IsEndlessFile reports whether the trailing chain is unbounded.
func (r *SegmentsReader) IsEndlessFile() bool {
	n := len(r.si.SegChains)
	return n > 0 && r.si.SegChains[n-1].IsEndless
}

// ContentLength returns the total plaintext length, and false if the file
// is endless.
func (r *SegmentsReader) ContentLength() (int64, bool) { return r.loc.ContentLength() }

// SegmentsLength returns the total packed length, and false if the file is
// endless.
func (r *SegmentsReader) SegmentsLength() (int64, bool) { return r.loc.SegmentsLength() }

// LocateContentOfs finds the (chain, segment, offset) containing plaintext
// position p.
func (r *SegmentsReader) LocateContentOfs(p int64) (locations.Pos, error) {
	return r.loc.LocateContentOfs(p)
}

// LocateSegsOfs finds the (chain, segment, offset) containing packed
// position p.
func (r *SegmentsReader) LocateSegsOfs(p int64) (locations.Pos, error) {
	return r.loc.LocateSegsOfs(p)
}

// SegmentInfo returns one segment's geometry.
func (r *SegmentsReader) SegmentInfo(chain, seg int) (locations.SegmentInfo, error) {
	return r.loc.SegmentInfo(chain, seg)
}

// SegmentInfos returns an iterator over this reader's segments starting at
// from (nil for the beginning).
func (r *SegmentsReader) SegmentInfos(from *locations.Pos) *locations.Iterator {
	return r.loc.SegmentInfos(from)
}

// OpenSeg reads and decrypts one segment, returning its plaintext.
func (r *SegmentsReader) OpenSeg(chain, seg int) ([]byte, error) {
	info, err := r.loc.SegmentInfo(chain, seg)
	if err != nil {
		return nil, err
	}
	return r.openAt(info)
}

func (r *SegmentsReader) openAt(info locations.SegmentInfo) ([]byte, error) {
	ct := make([]byte, info.PackedLen)
	if _, err := r.src.ReadAt(ct, info.PackedOfs); err != nil && err != io.EOF {
		return nil, xsperrors.Wrap(xsperrors.InputParsing, "segments: reading packed bytes", err)
	}
	return r.openFromCT(info, ct)
}

// openFromCT decrypts info's segment out of an already-fetched ciphertext
// slice, letting openMany batch the underlying ReadAt across several
// segments instead of issuing one per segment.
func (r *SegmentsReader) openFromCT(info locations.SegmentInfo, ct []byte) ([]byte, error) {
	n, err := r.loc.SegmentNonce(info.Chain, info.Seg)
	if err != nil {
		return nil, err
	}
	pt, err := r.cryptor.Open(ct, n.Bytes(), r.key)
	if err != nil {
		return nil, err
	}
	return pt, nil
}

// readBatch is a run of infos contiguous in packed space, short enough to
// fetch with one ReadAt.
type readBatch struct {
	ofs   int64
	infos []locations.SegmentInfo
}

// batchSegmentReads groups infos (already in packed-ascending order) into
// readBatches: consecutive entries merge into the same batch as long as
// they sit back-to-back in packed space and the batch's total span does
// not exceed chunkLen.
func batchSegmentReads(infos []locations.SegmentInfo, chunkLen int) []readBatch {
	var batches []readBatch
	for _, info := range infos {
		if len(batches) > 0 {
			b := &batches[len(batches)-1]
			last := b.infos[len(b.infos)-1]
			contiguous := info.PackedOfs == last.PackedOfs+last.PackedLen
			span := info.PackedOfs + info.PackedLen - b.ofs
			if contiguous && (chunkLen <= 0 || span <= int64(chunkLen)) {
				b.infos = append(b.infos, info)
				continue
			}
		}
		batches = append(batches, readBatch{ofs: info.PackedOfs, infos: []locations.SegmentInfo{info}})
	}
	return batches
}

// ReadAt decrypts exactly len(p) plaintext bytes starting at content
// offset off, batching and parallelizing the underlying segment opens.
// It satisfies io.ReaderAt's contract except for the finite/endless EOF
// case, which callers discover through ContentLength instead.
func (r *SegmentsReader) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	first, err := r.loc.LocateContentOfs(off)
	if err != nil {
		return 0, err
	}
	last, err := r.loc.LocateContentOfs(off + int64(len(p)) - 1)
	if err != nil {
		return 0, err
	}

	var infos []locations.SegmentInfo
	it := r.loc.SegmentInfos(&first)
	for {
		info, ok, err := it.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		infos = append(infos, info)
		if info.Chain == last.Chain && info.Seg == last.Seg {
			break
		}
	}

	plains, err := r.openMany(ctx, infos)
	if err != nil {
		return 0, err
	}

	n := 0
	written := 0
	for i, info := range infos {
		lo := int64(0)
		if i == 0 {
			lo = first.PosInSeg
		}
		hi := info.ContentLen
		if i == len(infos)-1 {
			remaining := int64(len(p)) - int64(written)
			if lo+remaining < hi {
				hi = lo + remaining
			}
		}
		chunk := plains[i][lo:hi]
		copy(p[written:], chunk)
		written += len(chunk)
		n = written
	}
	return n, nil
}

// openMany fetches and decrypts infos, batching adjacent-in-packed-space
// reads up to PackedReadChunkLen and bounding concurrency through the
// Cryptor's own work budget, the way parallelcrypto bounds gocryptfs's
// block decryption fan-out.
func (r *SegmentsReader) openMany(ctx context.Context, infos []locations.SegmentInfo) ([][]byte, error) {
	if len(infos) == 0 {
		return nil, nil
	}
	if len(infos) == 1 {
		pt, err := r.openAt(infos[0])
		if err != nil {
			return nil, err
		}
		return [][]byte{pt}, nil
	}

	r.cryptor.AddToWorkQueue(workLabel)
	defer r.cryptor.RemoveFromWorkQueue(workLabel)
	maxPar := r.cryptor.CanStartUnderWorkLabel(workLabel)
	if maxPar < 1 {
		maxPar = 1
	}
	if r.cfg.MaxConcurrency > 0 && maxPar > r.cfg.MaxConcurrency {
		maxPar = r.cfg.MaxConcurrency
	}

	chunkLen := r.cfg.PackedReadChunkLen
	if chunkLen <= 0 {
		chunkLen = PackedReadChunkLen
	}
	batches := batchSegmentReads(infos, chunkLen)

	out := make([][]byte, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxPar)
	start := 0
	for _, b := range batches {
		b, batchStart := b, start
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			last := b.infos[len(b.infos)-1]
			span := last.PackedOfs + last.PackedLen - b.ofs
			ct := make([]byte, span)
			if _, err := r.src.ReadAt(ct, b.ofs); err != nil && err != io.EOF {
				return xsperrors.Wrap(xsperrors.InputParsing, "segments: reading packed bytes", err)
			}
			for i, info := range b.infos {
				lo := info.PackedOfs - b.ofs
				pt, err := r.openFromCT(info, ct[lo:lo+info.PackedLen])
				if err != nil {
					return err
				}
				out[batchStart+i] = pt
			}
			return nil
		})
		start += len(b.infos)
	}
	if err := g.Wait(); err != nil {
		tlog.Debug.Printf("segments: openMany failed: %v", err)
		return nil, err
	}
	return out, nil
}

// Destroy zeroes this reader's key and releases its held references; it
// does not close src.
func (r *SegmentsReader) Destroy() {
	memprotect.Wipe(r.key)
	r.loc = nil
	r.key = nil
}
