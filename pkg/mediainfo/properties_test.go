// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package mediainfo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/pkg/mediainfo"
)

var testKey = [4]uint32{0x01020304, 0x05060708, 0x090a0b0c, 0x0d0e0f10}

func TestEncodeDecodeRoundTripInRangeGrid(t *testing.T) {
	widths := []uint32{0, 1, 100, 4096, 16383}
	heights := []uint32{0, 1, 240, 1080, 16383}
	fpss := []uint32{0, 1, 24, 60, 127}
	playtimes := []uint32{0, 100, 5000, 131071}

	for _, w := range widths {
		for _, h := range heights {
			for _, fps := range fpss {
				for _, pt := range playtimes {
					p := mediainfo.Properties{
						ShortFormat: 5,
						Width:       w,
						Height:      h,
						FPS:         fps,
						Playtime:    pt,
					}
					attr8, attr9 := mediainfo.Encode(p, testKey)
					assert.Nil(t, attr9)

					got := mediainfo.Decode(attr8, nil, testKey)
					assert.Equal(t, p.ShortFormat, got.ShortFormat)
					assert.Equal(t, w, got.Width)
					assert.Equal(t, h, got.Height)
					assert.Equal(t, fps, got.FPS)
					assert.Equal(t, pt, got.Playtime)
				}
			}
		}
	}
}

func TestEncodeDecodeExoticCombinationUsesAttribute9(t *testing.T) {
	p := mediainfo.Properties{
		ShortFormat:  0,
		Width:        1920,
		Height:       1080,
		FPS:          30,
		Playtime:     600,
		ContainerID:  17,
		VideoCodecID: 300,
		AudioCodecID: 9,
	}

	attr8, attr9 := mediainfo.Encode(p, testKey)
	if assert.NotNil(t, attr9) {
		got := mediainfo.Decode(attr8, attr9, testKey)
		assert.Equal(t, byte(0), got.ShortFormat)
		assert.Equal(t, p.Width, got.Width)
		assert.Equal(t, p.ContainerID, got.ContainerID)
		assert.Equal(t, p.VideoCodecID, got.VideoCodecID)
		assert.Equal(t, p.AudioCodecID, got.AudioCodecID)
	}
}

func TestDecodeWithoutExtensionLeavesCodecIDsZero(t *testing.T) {
	p := mediainfo.Properties{ShortFormat: 0, Width: 640, Height: 480}
	attr8, _ := mediainfo.Encode(p, testKey)

	got := mediainfo.Decode(attr8, nil, testKey)
	assert.Equal(t, byte(0), got.ShortFormat)
	assert.Equal(t, uint32(0), got.ContainerID)
}

func TestIsPopulatedAndIsIdentified(t *testing.T) {
	assert.False(t, mediainfo.Properties{ShortFormat: mediainfo.ShortFormatUnknown}.IsPopulated())
	assert.True(t, mediainfo.Properties{ShortFormat: mediainfo.ShortFormatNotIdentified}.IsPopulated())
	assert.False(t, mediainfo.Properties{ShortFormat: mediainfo.ShortFormatNotIdentified}.IsIdentified())
	assert.True(t, mediainfo.Properties{ShortFormat: 1}.IsIdentified())
}
