// Package audioconv decodes audio files into mono pcm buffers and writes
// captured buffers back out as WAV.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"moodvox/pkg/pcm"
)

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	// SampleRate resamples the decoded audio when > 0; otherwise the native
	// rate of the file is kept.
	SampleRate int
	MaxSamples int
}

// Decode reads a wav, mp3, ogg/vorbis or ogg/opus file into a mono buffer.
func Decode(ctx context.Context, path string, opt Options) (pcm.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return pcm.Buffer{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return pcm.Buffer{}, err
	}
	defer f.Close()

	x, sr, err := decode(f, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return pcm.Buffer{}, fmt.Errorf("decode %s: %w", path, err)
	}

	if opt.SampleRate > 0 && opt.SampleRate != sr {
		x = pcm.ResampleLinear(x, sr, opt.SampleRate)
		sr = opt.SampleRate
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return pcm.FromFloat32(x, sr), nil
}

// DecodeMP3 decodes an in-memory mp3 stream, as returned by a TTS service.
func DecodeMP3(data []byte) (pcm.Buffer, error) {
	x, sr, err := decodeMP3(bytes.NewReader(data))
	if err != nil {
		return pcm.Buffer{}, err
	}
	return pcm.FromFloat32(x, sr), nil
}

func decode(f *os.File, ext string) ([]float32, int, error) {
	switch ext {
	case ".wav":
		return decodeWAV(f)
	case ".mp3":
		return decodeMP3(f)
	case ".ogg", ".oga", ".opus":
		return decodeOgg(f)
	}

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(f)
	case "OggS":
		return decodeOgg(f)
	}
	if len(magic) >= 3 && string(magic[:3]) == "ID3" {
		return decodeMP3(f)
	}
	return nil, 0, fmt.Errorf("%w: %q (supported: wav/mp3/ogg-vorbis/ogg-opus)", ErrUnsupported, ext)
}

func decodeOgg(f *os.File) ([]float32, int, error) {
	x, sr, err := decodeOggVorbis(f)
	if err == nil {
		return x, sr, nil
	}
	if _, e2 := f.Seek(0, io.SeekStart); e2 != nil {
		return nil, 0, e2
	}
	x, sr, e3 := decodeOggOpus(f)
	if e3 != nil {
		return nil, 0, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus (%w)", err, e3)
	}
	return x, sr, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, 0, err
	}

	x := pcm.FromInts(pb.Data, int(dec.BitDepth))

	ch := 1
	sr := 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return pcm.Downmix(x, ch), sr, nil
}

func decodeMP3(r io.Reader) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, 0, err
	}
	// go-mp3 always emits interleaved stereo
	x := pcm.Downmix(pcm.Int16ToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return x, sr, nil
}

func decodeOggVorbis(r io.Reader) ([]float32, int, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	return pcm.Downmix(data, format.Channels), format.SampleRate, nil
}

// WriteWAV stores b as 16-bit mono PCM.
func WriteWAV(path string, b pcm.Buffer) error {
	if b.SampleRate <= 0 {
		return fmt.Errorf("write wav: invalid sample rate %d", b.SampleRate)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write wav: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, b.SampleRate, 16, 1, 1)
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		data[i] = int(s)
	}
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: b.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}
