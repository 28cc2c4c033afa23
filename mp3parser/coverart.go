package mp3parser

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	ErrNoTag     = errors.New("no ID3v2 tag")
	ErrNoPicture = errors.New("no attached picture frame")
	ErrNoImage   = errors.New("no image data in picture frame")
)

const (
	mimeJPEG        = "image/jpeg"
	jpegStartMarker = 0xFF
)

var (
	tagSignature   = []byte("ID3")
	pictureFrameID = []byte("APIC")
)

var imageMIMETypes = map[string]string{
	"image/jpeg":  mimeJPEG,
	"image/jpg":   mimeJPEG,
	"image/pjpeg": mimeJPEG,
	"jpg":         mimeJPEG,
	"jpeg":        mimeJPEG,
	"image/png":   "image/png",
	"png":         "image/png",
	"image/gif":   "image/gif",
	"image/webp":  "image/webp",
	"image/bmp":   "image/bmp",
}

var imageExtensions = map[string]string{
	mimeJPEG:     ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

// ExtractCoverArt finds the first APIC frame inside a leading ID3v2 tag and
// copies its picture out of data.
//
// The frame is located by sliding over the tag one byte at a time, not by
// walking frames. Marker offsets are bounded by the declared tag size, so a
// marker at or past it is never considered even when the file holds one. The
// JPEG start byte must appear before offset+frameSize; the copied range runs to
// the end of the frame, offset+10+frameSize. Every failure is reported as
// ErrNoTag, ErrNoPicture or ErrNoImage.
func ExtractCoverArt(data []byte) (*CoverArt, error) {
	if len(data) < tagHeaderSize || !bytes.Equal(data[:3], tagSignature) {
		return nil, ErrNoTag
	}

	scanEnd := min(syncSafeToInt(data[6:10]), len(data)-len(pictureFrameID)+1)

	frameStart := -1
	for i := tagHeaderSize; i < scanEnd; i++ {
		if bytes.Equal(data[i:i+len(pictureFrameID)], pictureFrameID) {
			frameStart = i
			break
		}
	}
	if frameStart < 0 {
		return nil, ErrNoPicture
	}
	if frameStart+frameHeaderSize > len(data) {
		return nil, fmt.Errorf("%w: truncated frame header at %d", ErrNoPicture, frameStart)
	}

	frameSize := int(min(uint64(binary.BigEndian.Uint32(data[frameStart+4:frameStart+8])), uint64(len(data))))
	probeEnd := min(frameStart+frameSize, len(data))
	payloadStart := frameStart + frameHeaderSize
	payloadEnd := min(payloadStart+frameSize, len(data))

	art := &CoverArt{}
	imageStart := payloadStart
	hdr, ok := parsePictureHeader(data[payloadStart:payloadEnd])
	if ok {
		imageStart += hdr.size
		art.PictureType = hdr.pictureType
		art.Description = hdr.description
		art.MIMEType = imageMIMETypes[strings.ToLower(strings.TrimSpace(hdr.mimeType))]
		if art.MIMEType == "" && imageStart < payloadEnd {
			art.MIMEType = sniffImage(data[imageStart:payloadEnd])
		}
	}

	if art.MIMEType == "" || art.MIMEType == mimeJPEG {
		art.MIMEType = mimeJPEG
		for imageStart < probeEnd && data[imageStart] != jpegStartMarker {
			imageStart++
		}
	}
	if imageStart >= probeEnd {
		return nil, ErrNoImage
	}

	art.Offset = imageStart
	art.Data = bytes.Clone(data[imageStart:payloadEnd])
	return art, nil
}

// Extension returns a file extension, with the dot, for the picture format.
func (c *CoverArt) Extension() string {
	if ext, ok := imageExtensions[c.MIMEType]; ok {
		return ext
	}
	return ".jpg"
}

type pictureHeader struct {
	mimeType    string
	pictureType byte
	description string
	size        int
}

// parsePictureHeader reads the fields that precede the picture inside an APIC
// payload: text encoding, MIME type, picture type and description.
func parsePictureHeader(p []byte) (pictureHeader, bool) {
	var hdr pictureHeader
	if len(p) < 1 {
		return hdr, false
	}
	enc := p[0]

	end := bytes.IndexByte(p[1:], 0)
	if end < 0 {
		return hdr, false
	}
	hdr.mimeType = string(p[1 : 1+end])
	pos := 1 + end + 1

	if pos >= len(p) {
		return hdr, false
	}
	hdr.pictureType = p[pos]
	pos++

	var descEnd, termLen int
	switch enc {
	case 0, 3:
		descEnd, termLen = bytes.IndexByte(p[pos:], 0), 1
	case 1, 2:
		descEnd, termLen = indexDoubleNul(p[pos:]), 2
	default:
		return hdr, false
	}
	if descEnd < 0 {
		return hdr, false
	}
	hdr.description = decodeText(enc, p[pos:pos+descEnd])
	hdr.size = pos + descEnd + termLen
	return hdr, true
}

// indexDoubleNul finds a UTF-16 NUL code unit on a 2-byte boundary.
func indexDoubleNul(b []byte) int {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return i
		}
	}
	return -1
}

func decodeText(enc byte, b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var dec *encoding.Decoder
	switch enc {
	case 0:
		dec = charmap.ISO8859_1.NewDecoder()
	case 1:
		dec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	case 2:
		dec = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	default:
		return string(b)
	}
	s, err := dec.Bytes(b)
	if err != nil {
		return ""
	}
	return string(s)
}

func sniffImage(b []byte) string {
	detected := mimetype.Detect(b).String()
	if mt, ok := imageMIMETypes[detected]; ok {
		return mt
	}
	return ""
}
