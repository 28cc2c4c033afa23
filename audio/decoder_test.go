package audio

import (
	"bytes"
	"testing"
	"time"

	"musiclocker-backend/models"

	"github.com/bogem/id3v2/v2"
	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

func silence(samples int) []byte {
	return make([]byte, samples*2)
}

func TestFormatDuration(t *testing.T) {
	c := qt.New(t)
	c.Assert(FormatDuration(0), qt.Equals, "0:00")
	c.Assert(FormatDuration(9*time.Second+900*time.Millisecond), qt.Equals, "0:09")
	c.Assert(FormatDuration(61*time.Second), qt.Equals, "1:01")
	c.Assert(FormatDuration(75*time.Minute), qt.Equals, "75:00")
	c.Assert(FormatDuration(-time.Second), qt.Equals, "0:00")
}

func TestEncodePCMToWAV(t *testing.T) {
	c := qt.New(t)

	wavData, err := EncodePCMToWAV(silence(8000), 8000, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(string(wavData[:4]), qt.Equals, "RIFF")
	c.Assert(string(wavData[8:12]), qt.Equals, "WAVE")

	_, err = EncodePCMToWAV([]byte{1, 2, 3}, 8000, 1)
	c.Assert(err, qt.ErrorMatches, "PCM data length must be even.*")
}

func TestInspectWAV(t *testing.T) {
	c := qt.New(t)

	wavData, err := EncodePCMToWAV(silence(2*8000), 8000, 2)
	c.Assert(err, qt.IsNil)

	c.Assert(IsWAV("audio/x-wav", nil), qt.IsTrue)
	c.Assert(IsWAV("audio/mpeg", wavData), qt.IsTrue)
	c.Assert(IsWAV("audio/mpeg", []byte("ID3")), qt.IsFalse)

	info := NewAudioDecoder().Inspect("audio/wav", wavData)
	c.Assert(info.SampleRate, qt.Equals, 8000)
	c.Assert(info.Channels, qt.Equals, 2)
	c.Assert(info.Bitrate, qt.Equals, 8000*2*2*8)
	c.Assert(info.Duration > 0.99 && info.Duration < 1.01, qt.IsTrue, qt.Commentf("duration %v", info.Duration))
	c.Assert(info.Length, qt.Equals, "0:01")
}

func TestReadTags(t *testing.T) {
	c := qt.New(t)

	tag := id3v2.NewEmptyTag()
	tag.SetVersion(3)
	tag.SetTitle("Sunrise")
	tag.SetArtist("Someone")
	tag.SetAlbum("Mornings")
	tag.SetYear("2001")
	var buf bytes.Buffer
	_, err := tag.WriteTo(&buf)
	c.Assert(err, qt.IsNil)

	info := &models.TrackInfo{}
	NewAudioDecoder().readTags(buf.Bytes(), info)

	want := &models.TrackInfo{Title: "Sunrise", Artist: "Someone", Album: "Mornings", Year: "2001"}
	if diff := cmp.Diff(want, info); diff != "" {
		t.Fatalf("unexpected tags (-want +got):\n%s", diff)
	}
}

func TestReadTagsFallsBackToID3v1(t *testing.T) {
	c := qt.New(t)

	v1 := make([]byte, 128)
	copy(v1, "TAG")
	copy(v1[3:], "Old Song")
	copy(v1[33:], "Old Band")
	data := append(make([]byte, 64), v1...)

	info := &models.TrackInfo{}
	NewAudioDecoder().readTags(data, info)
	c.Assert(info.Title, qt.Equals, "Old Song")
	c.Assert(info.Artist, qt.Equals, "Old Band")
}

func TestCountFrames(t *testing.T) {
	c := qt.New(t)

	// MPEG-1 Layer III, 128 kbit/s, 44.1 kHz, mono: 417 bytes per frame.
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0xC0})
	data := bytes.Repeat(frame, 100)

	info := &models.TrackInfo{}
	NewAudioDecoder().countFrames(data, info)
	c.Assert(info.SampleRate, qt.Equals, 44100)
	c.Assert(info.Channels, qt.Equals, 1)
	c.Assert(info.Bitrate, qt.Equals, 128000)
	c.Assert(info.Duration > 2.6 && info.Duration < 2.62, qt.IsTrue, qt.Commentf("duration %v", info.Duration))
}
