// Package audio inspects uploaded tracks and converts them for export
package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"musiclocker-backend/models"
	"musiclocker-backend/mp3parser"

	"github.com/bogem/id3v2/v2"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tosone/minimp3"
)

const BitDepth = 16

var wavContentTypes = map[string]bool{
	"audio/wav":      true,
	"audio/x-wav":    true,
	"audio/wave":     true,
	"audio/vnd.wave": true,
}

type AudioDecoder struct{}

func NewAudioDecoder() *AudioDecoder {
	return &AudioDecoder{}
}

// Inspect gathers what the player shows about a track. It never fails: fields
// that cannot be determined are left empty.
func (ad *AudioDecoder) Inspect(contentType string, data []byte) *models.TrackInfo {
	info := &models.TrackInfo{}
	if len(data) == 0 {
		info.Length = FormatDuration(0)
		return info
	}

	if IsWAV(contentType, data) {
		if err := ad.probeWAV(data, info); err != nil {
			slog.Debug("wav probe failed", "err", err)
		}
	} else {
		ad.readTags(data, info)
		if err := ad.probeMP3(data, info); err != nil {
			slog.Debug("mp3 decode failed, counting frames", "err", err)
			ad.countFrames(data, info)
		}
	}

	info.Length = FormatDuration(time.Duration(info.Duration * float64(time.Second)))
	return info
}

// IsWAV reports whether the declared type or the RIFF header says WAV.
func IsWAV(contentType string, data []byte) bool {
	if wavContentTypes[strings.ToLower(contentType)] {
		return true
	}
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func (ad *AudioDecoder) readTags(data []byte, info *models.TrackInfo) {
	tag, err := id3v2.ParseReader(bytes.NewReader(data), id3v2.Options{Parse: true})
	if err != nil {
		slog.Debug("could not parse ID3v2 tag", "err", err)
	} else {
		info.Title = tag.Title()
		info.Artist = tag.Artist()
		info.Album = tag.Album()
		info.Year = tag.Year()
		info.Genre = tag.Genre()
	}

	if info.Title != "" || info.Artist != "" {
		return
	}
	v1, err := mp3parser.ReadID3v1(bytes.NewReader(data))
	if err != nil || v1 == nil {
		return
	}
	info.Title = v1.Title
	info.Artist = v1.Artist
	info.Album = v1.Album
	info.Year = v1.Year
}

func (ad *AudioDecoder) probeMP3(data []byte, info *models.TrackInfo) error {
	decoder, pcm, err := minimp3.DecodeFull(data)
	if err != nil {
		return fmt.Errorf("failed to decode MP3: %w", err)
	}
	defer decoder.Close()

	if decoder.Channels == 0 || decoder.SampleRate == 0 {
		return fmt.Errorf("no audio frames decoded")
	}

	samplesPerChannel := len(pcm) / 2 / decoder.Channels // 2 bytes per 16-bit sample
	info.SampleRate = decoder.SampleRate
	info.Channels = decoder.Channels
	info.Bitrate = decoder.Kbps * 1000
	info.Duration = float64(samplesPerChannel) / float64(decoder.SampleRate)
	return nil
}

func (ad *AudioDecoder) countFrames(data []byte, info *models.TrackInfo) {
	mp3File, err := mp3parser.ParseMP3File(data)
	if err != nil || len(mp3File.Frames) == 0 {
		return
	}
	first := mp3File.Frames[0]
	info.SampleRate = first.SampleRate
	info.Channels = 2
	if first.ChannelMode == 3 { // Mono
		info.Channels = 1
	}
	info.Bitrate = mp3File.AverageBitrate()
	info.Duration = mp3File.Duration().Seconds()
}

func (ad *AudioDecoder) probeWAV(data []byte, info *models.TrackInfo) error {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return fmt.Errorf("invalid WAV file")
	}
	duration, err := decoder.Duration()
	if err != nil {
		return fmt.Errorf("failed to read WAV duration: %w", err)
	}
	info.SampleRate = int(decoder.SampleRate)
	info.Channels = int(decoder.NumChans)
	info.Bitrate = int(decoder.AvgBytesPerSec) * 8
	info.Duration = duration.Seconds()
	return nil
}

// ExportWAV decodes an MP3 track and re-encodes it as 16-bit PCM WAV.
func (ad *AudioDecoder) ExportWAV(mp3Data []byte) ([]byte, error) {
	if len(mp3Data) == 0 {
		return nil, fmt.Errorf("empty MP3 data")
	}
	decoder, pcmData, err := minimp3.DecodeFull(mp3Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	defer decoder.Close()

	if decoder.Channels == 0 || decoder.SampleRate == 0 {
		return nil, fmt.Errorf("no audio frames decoded")
	}
	return EncodePCMToWAV(pcmData, decoder.SampleRate, decoder.Channels)
}

// EncodePCMToWAV wraps little-endian 16-bit PCM in a WAV container.
func EncodePCMToWAV(pcmData []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even for 16-bit samples")
	}

	sampleCount := len(pcmData) / 2
	samples := make([]int, sampleCount)
	for i := 0; i < sampleCount; i++ {
		samples[i] = int(int16(uint16(pcmData[i*2]) | uint16(pcmData[i*2+1])<<8))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           samples,
		SourceBitDepth: BitDepth,
	}

	// wav.NewEncoder needs a WriteSeeker
	tempFile, err := os.CreateTemp("", "export_*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	encoder := wav.NewEncoder(tempFile, sampleRate, BitDepth, channels, 1)
	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to close WAV encoder: %w", err)
	}

	if _, err := tempFile.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	wavData, err := io.ReadAll(tempFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV data: %w", err)
	}
	return wavData, nil
}

// FormatDuration renders m:ss the way the player labels elapsed and total time.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
