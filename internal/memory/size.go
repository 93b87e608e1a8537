// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

// Package memory implements human-readable byte-size values used in
// configuration flags and transfer-engine size thresholds throughout the
// core.
package memory

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a number of bytes that knows how to parse and format itself using
// standard single/double-letter suffixes (B, KB, MB, GB, TB).
type Size int64

// byte size constants.
const (
	B   Size = 1
	KiB Size = 1 << (10 * iota)
	MiB
	GiB
	TiB
)

// Int64 returns the size as an int64.
func (s Size) Int64() int64 { return int64(s) }

// Int32 returns the size as an int32, truncating on overflow.
func (s Size) Int32() int32 { return int32(s) }

// Int returns the size as an int.
func (s Size) Int() int { return int(s) }

var suffixes = []struct {
	suffix string
	scale  float64
}{
	{"TB", float64(TiB)},
	{"GB", float64(GiB)},
	{"MB", float64(MiB)},
	{"KB", float64(KiB)},
}

// String implements fmt.Stringer, matching the host's human-readable display
// convention (e.g. "1.0 TB", "500 B", "0").
func (s Size) String() string {
	if s == 0 {
		return "0"
	}
	v := float64(s)
	for _, x := range suffixes {
		if v >= x.scale || -v >= x.scale {
			return fmt.Sprintf("%.1f %s", v/x.scale, x.suffix)
		}
	}
	return fmt.Sprintf("%d B", int64(s))
}

// Set implements flag.Value / pflag.Value, parsing strings like "1.00TB",
// "256MB", "1.0 kb", or a bare number of bytes.
func (s *Size) Set(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("memory: empty size")
	}

	upper := strings.ToUpper(text)
	scale := float64(1)
	numeric := upper

	switch {
	case strings.HasSuffix(upper, "TB"):
		scale, numeric = float64(TiB), strings.TrimSuffix(upper, "TB")
	case strings.HasSuffix(upper, "GB"):
		scale, numeric = float64(GiB), strings.TrimSuffix(upper, "GB")
	case strings.HasSuffix(upper, "MB"):
		scale, numeric = float64(MiB), strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "KB"):
		scale, numeric = float64(KiB), strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "T"):
		scale, numeric = float64(TiB), strings.TrimSuffix(upper, "T")
	case strings.HasSuffix(upper, "G"):
		scale, numeric = float64(GiB), strings.TrimSuffix(upper, "G")
	case strings.HasSuffix(upper, "M"):
		scale, numeric = float64(MiB), strings.TrimSuffix(upper, "M")
	case strings.HasSuffix(upper, "K"):
		scale, numeric = float64(KiB), strings.TrimSuffix(upper, "K")
	case strings.HasSuffix(upper, "B"):
		scale, numeric = 1, strings.TrimSuffix(upper, "B")
	}

	numeric = strings.TrimSpace(numeric)
	value, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return fmt.Errorf("memory: invalid size %q: %w", text, err)
	}

	*s = Size(value * scale)
	return nil
}

// Type implements pflag.Value.
func (Size) Type() string { return "memory.Size" }
