//go:build !cgo
// +build !cgo

package compression

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

// decoderPool provides thread-safe access to zstd decoders
var decoderPool = sync.Pool{
	New: func() interface{} {
		d, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		return d
	},
}

func getDecoder() *zstd.Decoder {
	return decoderPool.Get().(*zstd.Decoder)
}

func putDecoder(d *zstd.Decoder) {
	decoderPool.Put(d)
}

func ZstdCompressLevel(dst, src []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, dst[:0]), nil
}

func ZstdDecompress(dst, src []byte) ([]byte, error) {
	dec := getDecoder()
	defer putDecoder(dec)
	return dec.DecodeAll(src, dst[:0])
}
