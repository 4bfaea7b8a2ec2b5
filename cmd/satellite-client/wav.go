package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var errNotWAV = errors.New("not a RIFF/WAVE file")

// wavInfo is the subset of a WAVE fmt chunk the client needs
type wavInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// readWAV returns the PCM payload of the data chunk and the fmt chunk
func readWAV(data []byte) ([]byte, wavInfo, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, wavInfo{}, errNotWAV
	}

	var info wavInfo
	var haveFmt bool
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, wavInfo{}, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 {
				return nil, wavInfo{}, fmt.Errorf("unsupported WAVE format %d, want PCM", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, wavInfo{}, errors.New("data chunk before fmt chunk")
			}
			return data[body : body+size], info, nil
		}

		// chunks are word aligned
		offset = body + size + size%2
	}
	return nil, wavInfo{}, errors.New("no data chunk")
}

// writeWAV writes pcm_s16le samples as a canonical 44-byte header WAVE file
func writeWAV(w io.Writer, pcm []byte, sampleRate, channels int) error {
	var header bytes.Buffer
	blockAlign := channels * 2
	header.WriteString("RIFF")
	binary.Write(&header, binary.LittleEndian, uint32(36+len(pcm)))
	header.WriteString("WAVEfmt ")
	binary.Write(&header, binary.LittleEndian, uint32(16))
	binary.Write(&header, binary.LittleEndian, uint16(1))
	binary.Write(&header, binary.LittleEndian, uint16(channels))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&header, binary.LittleEndian, uint32(sampleRate*blockAlign))
	binary.Write(&header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&header, binary.LittleEndian, uint16(16))
	header.WriteString("data")
	binary.Write(&header, binary.LittleEndian, uint32(len(pcm)))

	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}
