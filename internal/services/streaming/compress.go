package streamingsvc

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// zstdEncoder and zstdDecoder are reused across calls to avoid repeated
// initialization overhead. Both are safe for concurrent use with
// EncodeAll/DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("streaming: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("streaming: zstd decoder initialization failed: " + err.Error())
	}
}

// CompressionManager conditionally compresses outgoing payloads. Small
// payloads and payloads that do not shrink enough pass through unchanged,
// so CPU is never spent producing a result the wire barely benefits from.
// The zero thresholds fall back to 1024 bytes and a 0.2 savings ratio.
// Stateless and safe for concurrent use.
type CompressionManager struct {
	minBytes   int
	minSavings float64
}

func NewCompressionManager(minBytes int, minSavings float64) *CompressionManager {
	if minBytes <= 0 {
		minBytes = 1024
	}
	if minSavings <= 0 || minSavings >= 1 {
		minSavings = 0.2
	}
	return &CompressionManager{minBytes: minBytes, minSavings: minSavings}
}

// Compress returns the bytes to put on the wire and whether they are
// compressed. The caller picks the binary transport path when compressed
// is true and the text path otherwise.
func (c *CompressionManager) Compress(payload []byte) ([]byte, bool) {
	if len(payload) < c.minBytes {
		return payload, false
	}
	compressed := zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)))
	if float64(len(compressed)) > float64(len(payload))*(1-c.minSavings) {
		return payload, false
	}
	return compressed, true
}

// Decompress reverses Compress for payloads that took the binary path.
func (c *CompressionManager) Decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
