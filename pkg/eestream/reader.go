// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package eestream

import (
	"context"
	"io"
)

// EncodeReader splits r into DecodedBlockSize-aligned stripes and encodes
// each into rs.TotalCount() slices, returning one io.Reader per slice. min
// and opt are validated against rs's thresholds but are otherwise advisory
// (a full adaptive piece-count scheduler is out of scope here; see
// DESIGN.md); 0 means "use rs's own required/total". mbm bounds how many
// bytes of look-ahead buffering EncodeReader is allowed per slice before it
// blocks the source read, 0 meaning unbounded.
func EncodeReader(ctx context.Context, r io.Reader, rs *RSScheme, min, opt, mbm int) ([]io.Reader, error) {
	if mbm < 0 {
		return nil, Error.New("negative max buffer memory")
	}
	if err := validateThresholds(min, opt, rs.TotalCount()); err != nil {
		return nil, err
	}
	if min > 0 && min < rs.RequiredCount() {
		return nil, Error.New("minimum threshold less than required count")
	}
	if opt > 0 && opt < rs.RequiredCount() {
		return nil, Error.New("optimum threshold less than required count")
	}

	readers := make([]io.Reader, rs.TotalCount())
	writers := make([]*io.PipeWriter, rs.TotalCount())
	for i := range readers {
		pr, pw := io.Pipe()
		readers[i] = pr
		writers[i] = pw
	}

	go func() {
		defer func() {
			for _, w := range writers {
				_ = w.Close()
			}
		}()

		stripe := make([]byte, rs.DecodedBlockSize())
		for {
			if ctx.Err() != nil {
				for _, w := range writers {
					_ = w.CloseWithError(ctx.Err())
				}
				return
			}

			n, err := io.ReadFull(r, stripe)
			if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return
			}
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				for _, w := range writers {
					_ = w.CloseWithError(err)
				}
				return
			}

			last := n < len(stripe)
			// infectious requires fixed-size input; pad a short final
			// stripe with zeros, the same way a chunk's final block is
			// zero-padded before encoding ( chunk MAC blocks).
			for i := n; i < len(stripe); i++ {
				stripe[i] = 0
			}

			shares, encErr := rs.encodeStripe(stripe)
			if encErr != nil {
				for _, w := range writers {
					_ = w.CloseWithError(encErr)
				}
				return
			}
			for i, w := range writers {
				if _, werr := w.Write(shares[i]); werr != nil {
					return
				}
			}
			if last {
				return
			}
		}
	}()

	return readers, nil
}

// DecodeReaders reconstructs the original stream of the given total size
// from per-slice readers keyed by slice number, tolerating up to
// TotalCount-RequiredCount missing or erroring slices. mbm is
// advisory, mirroring EncodeReader.
func DecodeReaders(ctx context.Context, readers map[int]io.ReadCloser, rs *RSScheme, size int64, mbm int) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer func() {
			for _, r := range readers {
				_ = r.Close()
			}
		}()

		remaining := size
		stripeBuf := make(map[int][]byte, len(readers))
		for num := range readers {
			stripeBuf[num] = make([]byte, rs.EncodedBlockSize())
		}

		for remaining > 0 {
			if ctx.Err() != nil {
				_ = pw.CloseWithError(ctx.Err())
				return
			}

			slices := make(map[int][]byte, len(readers))
			for num, r := range readers {
				buf := stripeBuf[num]
				if _, err := io.ReadFull(r, buf); err != nil {
					continue
				}
				slices[num] = buf
			}
			if len(slices) < rs.RequiredCount() {
				_ = pw.CloseWithError(Error.New(
					"not enough healthy slices to reconstruct stripe: have %d, need %d",
					len(slices), rs.RequiredCount()))
				return
			}

			stripe, err := rs.decodeStripe(slices)
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}

			n := int64(len(stripe))
			if n > remaining {
				n = remaining
			}
			if _, err := pw.Write(stripe[:n]); err != nil {
				return
			}
			remaining -= n
		}
	}()

	return pr
}
