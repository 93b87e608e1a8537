// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package mediainfo

// Unknown/not-identified sentinel shortformat values, fixed by the wire
// format.
const (
	ShortFormatUnknown       = 0xff
	ShortFormatNotIdentified = 0xfe
)

// Properties is the in-memory form of the media attributes attached to a
// file node: (shortformat, width, height, fps, playtime) plus, when
// shortformat is the "exotic" sentinel 0, the raw (container, video codec,
// audio codec) ids carried in the attribute-9 extension blob.
type Properties struct {
	ShortFormat  byte
	Width        uint32
	Height       uint32
	FPS          uint32
	Playtime     uint32
	ContainerID  uint32
	VideoCodecID uint32
	AudioCodecID uint32
}

// IsPopulated reports whether the properties carry any information at all.
func (p Properties) IsPopulated() bool { return p.ShortFormat != ShortFormatUnknown }

// IsIdentified reports whether the container/codec could be identified.
func (p Properties) IsIdentified() bool {
	return p.IsPopulated() && p.ShortFormat != ShortFormatNotIdentified
}

// quantize applies the attribute blob's non-linear range compression:
// double the value, then once it would overflow the available bit width,
// re-quantize by right-shifting the excess and setting the low bit as a
// "scaled" flag.
func quantize(v, ceiling, shift uint32) uint32 {
	v <<= 1
	if v >= ceiling {
		v = ((v - ceiling) >> shift) | 1
	}
	if v >= ceiling {
		v = ceiling - 1
	}
	return v
}

// quantizePlaytime applies the playtime-specific compression, whose
// offset and divisor differ from the other fields.
func quantizePlaytime(v uint32) uint32 {
	v <<= 1
	if v >= 262144 {
		v = ((v - 262200) / 60) | 1
	}
	if v >= 262144 {
		v = 262143
	}
	return v
}

// Encode packs p into the 8-byte attribute-8 blob and encrypts it with
// XXTEA under key (the file-attribute key, derived from the file's node
// key nonce). If p.ShortFormat is the "exotic combination" sentinel 0, a
// second attribute-9 blob is also returned carrying the raw codec ids.
func Encode(p Properties, key [4]uint32) (attr8 [8]byte, attr9 *[8]byte) {
	width := quantize(p.Width, 32768, 3)
	height := quantize(p.Height, 32768, 3)
	playtime := quantizePlaytime(p.Playtime)
	fps := quantize(p.FPS, 256, 3)

	var v [8]byte
	v[7] = p.ShortFormat
	v[6] = byte(playtime >> 10)
	v[5] = byte((playtime >> 2) & 255)
	v[4] = byte(((playtime & 3) << 6) + (fps >> 2))
	v[3] = byte(((fps & 3) << 6) + ((height >> 9) & 63))
	v[2] = byte((height >> 1) & 255)
	v[1] = byte(((width >> 8) & 127) + ((height & 1) << 7))
	v[0] = byte(width & 255)

	words := bytesToWords(v[:])
	xxteaEncrypt(words, key, EndianSwapKey)
	copy(attr8[:], wordsToBytes(words))

	if p.ShortFormat != 0 {
		return attr8, nil
	}

	var ext [8]byte
	ext[3] = byte((p.AudioCodecID >> 4) & 255)
	ext[2] = byte(((p.VideoCodecID >> 8) & 15) + ((p.AudioCodecID & 15) << 4))
	ext[1] = byte(p.VideoCodecID & 255)
	ext[0] = byte(p.ContainerID)

	extWords := bytesToWords(ext[:])
	xxteaEncrypt(extWords, key, EndianSwapKey)
	var out [8]byte
	copy(out[:], wordsToBytes(extWords))
	return attr8, &out
}

// Decode reverses Encode. ext should be nil unless the decoded
// ShortFormat is 0, in which case it supplies the attribute-9 blob.
func Decode(attr8 [8]byte, ext *[8]byte, key [4]uint32) Properties {
	words := bytesToWords(attr8[:])
	xxteaDecrypt(words, key, EndianSwapKey)
	v := wordsToBytes(words)

	var p Properties
	p.Width = uint32(v[0]>>1) + uint32(v[1]&127)<<7
	if v[0]&1 != 0 {
		p.Width = (p.Width << 3) + 16384
	}

	p.Height = uint32(v[2]) + uint32(v[3]&63)<<8
	if v[1]&128 != 0 {
		p.Height = (p.Height << 3) + 16384
	}

	p.FPS = uint32(v[3]>>7) + uint32(v[4]&63)<<1
	if v[3]&64 != 0 {
		p.FPS = (p.FPS << 3) + 128
	}

	p.Playtime = uint32(v[4]>>7) + uint32(v[5])<<1 + uint32(v[6])<<9
	if v[4]&64 != 0 {
		p.Playtime = p.Playtime*60 + 131100
	}

	p.ShortFormat = v[7]

	if p.ShortFormat == 0 && ext != nil {
		extWords := bytesToWords(ext[:])
		xxteaDecrypt(extWords, key, EndianSwapKey)
		e := wordsToBytes(extWords)
		p.ContainerID = uint32(e[0])
		p.VideoCodecID = uint32(e[1]) + uint32(e[2]&15)<<8
		p.AudioCodecID = uint32(e[2]>>4) + uint32(e[3])<<4
	}

	return p
}
