package sounds

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var errNotWAV = errors.New("not a PCM16 WAV stream")

type wavInfo struct {
	sampleRate int
	channels   int
	dataStart  int
	dataLen    int
}

// parseWAVPCM16LE walks the RIFF chunks of a WAV file and locates the PCM16
// sample data. Only uncompressed 16-bit audio is accepted; earcons in other
// formats are rejected at load time rather than at playback.
func parseWAVPCM16LE(data []byte) (wavInfo, error) {
	var info wavInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, errNotWAV
	}

	sawFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			return info, fmt.Errorf("%w: truncated %q chunk", errNotWAV, id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return info, fmt.Errorf("%w: short fmt chunk", errNotWAV)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body : body+2])
			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate := binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if audioFormat != 1 || bitsPerSample != 16 {
				return info, fmt.Errorf("%w: format=%d bits=%d", errNotWAV, audioFormat, bitsPerSample)
			}
			info.sampleRate = int(sampleRate)
			info.channels = int(channels)
			sawFmt = true
		case "data":
			info.dataStart = body
			info.dataLen = size
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !sawFmt || info.dataLen == 0 {
		return info, fmt.Errorf("%w: missing fmt or data chunk", errNotWAV)
	}
	return info, nil
}

// scaleWAVPCM16LE returns a copy of the WAV stream with its samples scaled
// by volume in [0,1]. Volume 1 returns the input unchanged.
func scaleWAVPCM16LE(data []byte, volume float64) []byte {
	if volume >= 1 {
		return data
	}
	if volume < 0 {
		volume = 0
	}

	info, err := parseWAVPCM16LE(data)
	if err != nil {
		return data
	}

	out := make([]byte, len(data))
	copy(out, data)
	end := info.dataStart + info.dataLen
	for i := info.dataStart; i+1 < end; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(out[i : i+2]))
		scaled := int16(float64(sample) * volume)
		binary.LittleEndian.PutUint16(out[i:i+2], uint16(scaled))
	}
	return out
}
