// Package gguf - Kodierung der Tensor-Daten
package gguf

import (
	"encoding/binary"
	"fmt"
	"math"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// encodeTensor kodiert float32-Werte im Zieltyp (little endian)
func encodeTensor(t TensorType, values []float32) ([]byte, error) {
	switch t {
	case TensorTypeF32:
		bts := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(bts[4*i:], math.Float32bits(v))
		}
		return bts, nil
	case TensorTypeF16:
		bts := make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(bts[2*i:], float16.Fromfloat32(v).Bits())
		}
		return bts, nil
	case TensorTypeBF16:
		return bfloat16.EncodeFloat32(values), nil
	default:
		return nil, fmt.Errorf("%w tensor type %v", ErrUnsupported, t)
	}
}

// decodeTensor dekodiert n Werte vom Typ t nach float32
func decodeTensor(t TensorType, bts []byte, n int) ([]float32, error) {
	if uint64(len(bts)) != uint64(n)*t.typeSize() || t.typeSize() == 0 {
		return nil, fmt.Errorf("%w: %d bytes for %d values of %v", ErrUnsupported, len(bts), n, t)
	}

	switch t {
	case TensorTypeF32:
		values := make([]float32, n)
		for i := range values {
			values[i] = math.Float32frombits(binary.LittleEndian.Uint32(bts[4*i:]))
		}
		return values, nil
	case TensorTypeF16:
		values := make([]float32, n)
		for i := range values {
			values[i] = float16.Frombits(binary.LittleEndian.Uint16(bts[2*i:])).Float32()
		}
		return values, nil
	case TensorTypeBF16:
		return bfloat16.DecodeFloat32(bts), nil
	default:
		return nil, fmt.Errorf("%w tensor type %v", ErrUnsupported, t)
	}
}
