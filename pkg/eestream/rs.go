// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package eestream implements the RAID-striped transfer layout: a file is
// striped across six HTTP connections — five
// data slices and one parity slice, rotating which slice plays the parity
// role — and any one missing slice is reconstructed from the other five.
// That is exactly systematic Reed-Solomon with one parity symbol, so it is
// built on github.com/vivint/infectious rather than a hand-rolled XOR,
// which also leaves room to tolerate more than one lost slice if a future
// server-side layout widens the stripe.
package eestream

import (
	"github.com/vivint/infectious"
	"github.com/zeebo/errs"
)

// Error is the eestream error class.
var Error = errs.Class("eestream")

// RSScheme wraps an infectious.FEC with the fixed per-slice stripe size used
// to cut a file into aligned stripes before encoding.
type RSScheme struct {
	fc         *infectious.FEC
	stripeSize int
}

// NewRSScheme returns a scheme that encodes stripeSize-byte slices per
// output slice, using fc's required/total share counts.
func NewRSScheme(fc *infectious.FEC, stripeSize int) *RSScheme {
	return &RSScheme{fc: fc, stripeSize: stripeSize}
}

// TotalCount is the number of slices (6 for MEGA's RAID layout).
func (s *RSScheme) TotalCount() int { return s.fc.Total() }

// RequiredCount is the number of slices needed to reconstruct a stripe
// (5 for MEGA's RAID layout: any 5 of 6).
func (s *RSScheme) RequiredCount() int { return s.fc.Required() }

// EncodedBlockSize is the size, in bytes, of one slice's contribution to a
// single stripe.
func (s *RSScheme) EncodedBlockSize() int { return s.stripeSize }

// DecodedBlockSize is the size, in bytes, of one decoded stripe of the
// original file.
func (s *RSScheme) DecodedBlockSize() int { return s.stripeSize * s.fc.Required() }

func (s *RSScheme) encodeStripe(stripe []byte) ([][]byte, error) {
	shares := make([][]byte, s.fc.Total())
	err := s.fc.Encode(stripe, func(sh infectious.Share) {
		buf := make([]byte, len(sh.Data))
		copy(buf, sh.Data)
		shares[sh.Number] = buf
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return shares, nil
}

func (s *RSScheme) decodeStripe(slices map[int][]byte) ([]byte, error) {
	shares := make([]infectious.Share, 0, len(slices))
	for num, data := range slices {
		shares = append(shares, infectious.Share{Number: num, Data: data})
	}
	out, err := s.fc.Decode(nil, shares)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return out, nil
}

func validateThresholds(min, opt, total int) error {
	required := 0 // filled by caller context where needed; kept for symmetry
	_ = required
	if min < 0 {
		return Error.New("negative minimum threshold")
	}
	if opt < 0 {
		return Error.New("negative optimum threshold")
	}
	if min > total {
		return Error.New("minimum threshold greater than total count")
	}
	if opt > total {
		return Error.New("optimum threshold greater than total count")
	}
	if min > 0 && opt > 0 && min > opt {
		return Error.New("minimum threshold greater than optimum threshold")
	}
	return nil
}
