package contentstore

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// selectCompressionType implements the spec's size/use-case ladder
// when a caller does not name a tier explicitly.
func selectCompressionType(size int64, useCase UseCase) string {
	switch {
	case size < 1024:
		return "none"
	case size < 10*1024:
		if useCase == UseCaseArchival {
			return "brotli-6"
		}
		return "deflate-6"
	case size < 100*1024:
		switch useCase {
		case UseCaseArchival:
			return "brotli-11"
		case UseCaseHigh:
			return "brotli-9"
		case UseCaseStandard:
			return "brotli-6"
		default:
			return "deflate-3"
		}
	default:
		switch useCase {
		case UseCaseArchival:
			return "brotli-11"
		case UseCaseHigh:
			return "brotli-10"
		case UseCaseStandard:
			return "brotli-9"
		default:
			return "deflate-1"
		}
	}
}

// compress encodes data with ct's algorithm and level.
func compress(data []byte, ct CompressionType) ([]byte, error) {
	var buf bytes.Buffer

	switch ct.Algorithm {
	case AlgoNone:
		return data, nil

	case AlgoDeflate:
		w, err := flate.NewWriter(&buf, ct.Level)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case AlgoBrotli:
		w := brotli.NewWriterLevel(&buf, ct.Level)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	case AlgoZstd:
		w, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstdLevelFor(ct.Level)))
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

	default:
		return data, nil
	}

	return buf.Bytes(), nil
}

// decompress reverses compress for the given algorithm.
func decompress(data []byte, algo CompressionAlgorithm) ([]byte, error) {
	switch algo {
	case AlgoNone:
		return data, nil

	case AlgoDeflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)

	case AlgoBrotli:
		r := brotli.NewReader(bytes.NewReader(data))
		return io.ReadAll(r)

	case AlgoZstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)

	default:
		return data, nil
	}
}

func zstdLevelFor(level int) zstd.EncoderLevel {
	switch {
	case level >= 19:
		return zstd.SpeedBestCompression
	case level >= 9:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedDefault
	}
}
