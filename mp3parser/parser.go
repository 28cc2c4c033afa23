package mp3parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	tagHeaderSize   = 10
	frameHeaderSize = 10
	id3v1Size       = 128
)

var errInvalidSync = errors.New("invalid sync word")

// read syncsafe int for ID3v2 size
func syncSafeToInt(b []byte) int {
	return int(b[0]&0x7F)<<21 |
		int(b[1]&0x7F)<<14 |
		int(b[2]&0x7F)<<7 |
		int(b[3]&0x7F)
}

// ReadID3v2 reads the tag header and skips the tag body. When the stream does
// not start with a tag, the reader is rewound and a nil header is returned.
func ReadID3v2(r io.ReadSeeker) (*ID3v2Header, error) {
	buf := make([]byte, tagHeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			_, err = r.Seek(int64(-n), io.SeekCurrent)
			return nil, err
		}
		return nil, err
	}
	if string(buf[:3]) != "ID3" {
		// no ID3v2, seek back
		if _, err := r.Seek(-tagHeaderSize, io.SeekCurrent); err != nil {
			return nil, err
		}
		return nil, nil
	}
	h := &ID3v2Header{
		Version: [2]byte{buf[3], buf[4]},
		Flags:   buf[5],
		Size:    syncSafeToInt(buf[6:10]),
	}

	if _, err := r.Seek(int64(h.TotalSize()-tagHeaderSize), io.SeekCurrent); err != nil {
		return nil, fmt.Errorf("skip ID3v2 body: %w", err)
	}
	return h, nil
}

var (
	bitrateTableV1 = [16]int{
		0, 32, 40, 48, 56, 64, 80, 96,
		112, 128, 160, 192, 224, 256, 320, 0,
	}
	bitrateTableV2 = [16]int{
		0, 8, 16, 24, 32, 40, 48, 56,
		64, 80, 96, 112, 128, 144, 160, 0,
	}
	sampleRateTable = map[int][4]int{
		3: {44100, 48000, 32000, 0}, // MPEG-1
		2: {22050, 24000, 16000, 0}, // MPEG-2
		0: {11025, 12000, 8000, 0},  // MPEG-2.5
	}
)

// ParseFrameHeader decodes a 4-byte MPEG audio frame header. Only Layer III
// is supported.
func ParseFrameHeader(b []byte) (*MP3FrameHeader, error) {
	if len(b) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	header := binary.BigEndian.Uint32(b)

	// check sync
	if (header & 0xFFE00000) != 0xFFE00000 {
		return nil, fmt.Errorf("%w: 0x%08X", errInvalidSync, header)
	}

	versionID := int((header >> 19) & 0x3)
	layer := int((header >> 17) & 0x3)
	prot := ((header >> 16) & 0x1) == 0
	bitrateIdx := int((header >> 12) & 0xF)
	sampleRateIdx := int((header >> 10) & 0x3)
	padding := ((header >> 9) & 0x1) == 1
	channelMode := int((header >> 6) & 0x3)

	rates, ok := sampleRateTable[versionID]
	if !ok || layer != 1 {
		return nil, fmt.Errorf("unsupported version %d or layer %d", versionID, layer)
	}

	mpeg1 := versionID == 3
	bitrate := bitrateTableV2[bitrateIdx] * 1000
	if mpeg1 {
		bitrate = bitrateTableV1[bitrateIdx] * 1000
	}
	sampleRate := rates[sampleRateIdx]

	if bitrate == 0 || sampleRate == 0 {
		return nil, fmt.Errorf("unsupported bitrate or samplerate")
	}

	coefficient, samples := 72, 576
	if mpeg1 {
		coefficient, samples = 144, 1152
	}

	return &MP3FrameHeader{
		VersionID:     versionID,
		Layer:         layer,
		ProtectionBit: prot,
		Bitrate:       bitrate,
		SampleRate:    sampleRate,
		Padding:       padding,
		ChannelMode:   channelMode,
		FrameLength:   (coefficient*bitrate)/sampleRate + btoi(padding),
		Samples:       samples,
	}, nil
}

// ReadFrameHeader reads one frame header and skips past its payload.
func ReadFrameHeader(r io.ReadSeeker) (*MP3FrameHeader, error) {
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, err
	}
	h, err := ParseFrameHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(int64(h.FrameLength-4), io.SeekCurrent); err != nil {
		return nil, err
	}
	return h, nil
}

// ReadID3v1 reads the trailing 128-byte tag. The reader position is restored.
func ReadID3v1(r io.ReadSeeker) (tag *ID3v1Tag, err error) {
	currentPos, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	defer func() {
		if _, seekErr := r.Seek(currentPos, io.SeekStart); seekErr != nil && err == nil {
			tag, err = nil, fmt.Errorf("restore reader position: %w", seekErr)
		}
	}()

	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if size < id3v1Size {
		return nil, nil
	}
	if _, err := r.Seek(-id3v1Size, io.SeekEnd); err != nil {
		return nil, err
	}
	buf := make([]byte, id3v1Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	if string(buf[:3]) != "TAG" {
		return nil, nil
	}
	return &ID3v1Tag{
		Title:   trimField(buf[3:33]),
		Artist:  trimField(buf[33:63]),
		Album:   trimField(buf[63:93]),
		Year:    trimField(buf[93:97]),
		Comment: trimField(buf[97:127]),
		Genre:   buf[127],
	}, nil
}

// ParseMP3File walks the audio frames of an in-memory MP3 file. Bytes that do
// not form a valid frame header are skipped one at a time until sync is found
// again.
func ParseMP3File(data []byte) (*MP3File, error) {
	reader := bytes.NewReader(data)

	mp3File := &MP3File{}

	id3v2, err := ReadID3v2(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read ID3v2: %w", err)
	}
	mp3File.ID3v2 = id3v2

	audioEnd := int64(len(data))
	if len(data) >= id3v1Size && string(data[len(data)-id3v1Size:len(data)-id3v1Size+3]) == "TAG" {
		audioEnd -= id3v1Size
	}

	for {
		pos, _ := reader.Seek(0, io.SeekCurrent)
		if pos+4 > audioEnd {
			break
		}
		frameHeader, err := ReadFrameHeader(reader)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if _, err := reader.Seek(pos+1, io.SeekStart); err != nil {
				return nil, err
			}
			continue
		}
		if pos+int64(frameHeader.FrameLength) > audioEnd {
			break
		}
		mp3File.Frames = append(mp3File.Frames, frameHeader)
	}

	return mp3File, nil
}

func trimField(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
