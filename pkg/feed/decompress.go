package feed

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
)

// Decompress inflates a Push Port frame body. The feed has shipped
// both gzip and raw zlib streams over the years, so the container is
// sniffed from the first two bytes.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("frame body too short (%d bytes)", len(data))
	}

	var (
		reader io.ReadCloser
		err    error
	)
	if data[0] == 0x1f && data[1] == 0x8b {
		reader, err = gzip.NewReader(bytes.NewReader(data))
	} else {
		reader, err = zlib.NewReader(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("opening compressed frame: %w", err)
	}
	defer reader.Close()

	inflated, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("inflating frame: %w", err)
	}
	return inflated, nil
}
