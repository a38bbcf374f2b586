//go:build opus

package audioconv

import (
	"errors"
	"io"

	popus "github.com/pekim/opus"

	"moodvox/pkg/pcm"
)

func decodeOggOpus(rs io.ReadSeeker) ([]float32, int, error) {
	const opusRate = 48000

	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		out []float32
		buf = make([]int16, opusRate*ch/2)
	)
	for {
		// n is samples per channel
		n, err := dec.Read(buf)
		if n > 0 {
			out = append(out, pcm.Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	if len(out) == 0 {
		return nil, 0, errors.New("empty opus stream")
	}
	return pcm.Downmix(out, ch), opusRate, nil
}
