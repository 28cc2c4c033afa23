// Package mp3parser reads the parts of an MP3 file the locker cares about:
// the ID3v2 header, the attached picture and the MPEG audio frame headers.
package mp3parser

import "time"

// ID3v2Header represents ID3v2 tag header
type ID3v2Header struct {
	Version [2]byte
	Flags   byte
	Size    int // tag body length, header excluded
}

// HasFooter reports whether a 10-byte footer follows the tag body (v2.4 only).
func (h *ID3v2Header) HasFooter() bool {
	return h.Version[0] == 4 && h.Flags&0x10 != 0
}

// TotalSize is the number of bytes the tag occupies at the start of the file.
func (h *ID3v2Header) TotalSize() int {
	size := tagHeaderSize + h.Size
	if h.HasFooter() {
		size += tagHeaderSize
	}
	return size
}

// MP3FrameHeader represents an MP3 frame header
type MP3FrameHeader struct {
	VersionID     int
	Layer         int
	ProtectionBit bool
	Bitrate       int
	SampleRate    int
	Padding       bool
	ChannelMode   int
	FrameLength   int
	Samples       int // PCM samples per channel carried by the frame
}

// Duration of audio carried by a single frame.
func (h *MP3FrameHeader) Duration() time.Duration {
	if h.SampleRate == 0 {
		return 0
	}
	return time.Duration(h.Samples) * time.Second / time.Duration(h.SampleRate)
}

// ID3v1Tag represents ID3v1 tag (128 bytes at end of file)
type ID3v1Tag struct {
	Title   string
	Artist  string
	Album   string
	Year    string
	Comment string
	Genre   byte
}

// MP3File represents the structure of an MP3 file
type MP3File struct {
	ID3v2  *ID3v2Header
	Frames []*MP3FrameHeader
}

// Duration sums the playback time of every audio frame found.
func (f *MP3File) Duration() time.Duration {
	var d time.Duration
	for _, frame := range f.Frames {
		d += frame.Duration()
	}
	return d
}

// AverageBitrate in bits per second, zero when no frames were found.
func (f *MP3File) AverageBitrate() int {
	if len(f.Frames) == 0 {
		return 0
	}
	total := 0
	for _, frame := range f.Frames {
		total += frame.Bitrate
	}
	return total / len(f.Frames)
}

// CoverArt is the picture pulled out of an APIC frame.
type CoverArt struct {
	MIMEType    string
	PictureType byte
	Description string
	Offset      int // position of Data[0] in the scanned file
	Data        []byte
}
