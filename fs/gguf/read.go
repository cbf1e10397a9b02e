// Package gguf - GGUF Lese-Funktionen
//
// Dieses Modul enthaelt:
// - Open/Decode: Header, Metadaten, Tensor-Infos und Datenbereich lesen
// - read[T]: Generische Funktion zum Lesen typisierter Werte
// - readString / readArray: Strings und Arrays deserialisieren
package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"slices"
)

// Obergrenzen gegen beschaedigte Dateien
const (
	maxStringLength = 1 << 20
	maxCount        = 1 << 24
)

// reader zaehlt die gelesenen Bytes fuer die Ausrichtung des Datenbereichs
type reader struct {
	r      io.Reader
	offset int64
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	r.offset += int64(n)
	return n, err
}

// Open liest eine GGUF-Datei vollstaendig ein
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	file, err := Decode(bufio.NewReaderSize(f, 32<<10))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Decode liest eine GGUF-Datei aus r
func Decode(rd io.Reader) (*File, error) {
	r := &reader{r: rd}

	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if string(magic[:]) != Magic {
		return nil, fmt.Errorf("%w file type %q", ErrUnsupported, magic[:])
	}

	f := &File{}
	if err := binary.Read(r, binary.LittleEndian, &f.Version); err != nil {
		return nil, err
	}
	if f.Version < 2 || f.Version > Version {
		return nil, fmt.Errorf("%w version %d", ErrUnsupported, f.Version)
	}

	numTensors, err := read[uint64](r)
	if err != nil {
		return nil, err
	}
	numKV, err := read[uint64](r)
	if err != nil {
		return nil, err
	}
	if numTensors > maxCount || numKV > maxCount {
		return nil, fmt.Errorf("%w: %d tensors, %d key values", ErrUnsupported, numTensors, numKV)
	}

	f.KeyValues = make([]KeyValue, 0, numKV)
	for range numKV {
		kv, err := readKeyValue(r)
		if err != nil {
			return nil, err
		}
		f.KeyValues = append(f.KeyValues, kv)
	}

	f.Tensors = make([]TensorInfo, 0, numTensors)
	for range numTensors {
		ti, err := readTensorInfo(r)
		if err != nil {
			return nil, err
		}
		f.Tensors = append(f.Tensors, ti)
	}

	alignment := int64(f.Uint("general.alignment", DefaultAlignment))
	if alignment <= 0 {
		return nil, fmt.Errorf("%w alignment %d", ErrUnsupported, alignment)
	}
	if _, err := io.CopyN(io.Discard, r, padding(r.offset, alignment)); err != nil && len(f.Tensors) > 0 {
		return nil, err
	}

	f.data, err = io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	for _, ti := range f.Tensors {
		if ti.Type.typeSize() == 0 {
			return nil, fmt.Errorf("tensor %q: %w tensor type %v", ti.Name, ErrUnsupported, ti.Type)
		}
		if ti.Offset+ti.Size() > uint64(len(f.data)) {
			return nil, fmt.Errorf("tensor %q: data truncated", ti.Name)
		}
	}

	return f, nil
}

// readTensorInfo liest die Metadaten eines einzelnen Tensors
func readTensorInfo(r io.Reader) (TensorInfo, error) {
	name, err := readString(r)
	if err != nil {
		return TensorInfo{}, err
	}

	dims, err := read[uint32](r)
	if err != nil {
		return TensorInfo{}, err
	}
	if dims == 0 || dims > 8 {
		return TensorInfo{}, fmt.Errorf("tensor %q: %w rank %d", name, ErrUnsupported, dims)
	}

	shape := make([]uint64, dims)
	for i := range dims {
		shape[i], err = read[uint64](r)
		if err != nil {
			return TensorInfo{}, err
		}
	}
	slices.Reverse(shape)

	kind, err := read[uint32](r)
	if err != nil {
		return TensorInfo{}, err
	}

	offset, err := read[uint64](r)
	if err != nil {
		return TensorInfo{}, err
	}

	return TensorInfo{
		Name:   name,
		Shape:  shape,
		Type:   TensorType(kind),
		Offset: offset,
	}, nil
}

// readKeyValue liest ein einzelnes Key-Value Paar
func readKeyValue(r io.Reader) (KeyValue, error) {
	key, err := readString(r)
	if err != nil {
		return KeyValue{}, err
	}

	t, err := read[uint32](r)
	if err != nil {
		return KeyValue{}, err
	}

	var value any
	if t == typeArray {
		value, err = readArray(r)
	} else {
		value, err = readValue(r, t)
	}
	if err != nil {
		return KeyValue{}, fmt.Errorf("key %q: %w", key, err)
	}

	return KeyValue{Key: key, Value: value}, nil
}

// readValue liest einen skalaren Wert vom Typ t
func readValue(r io.Reader, t uint32) (any, error) {
	switch t {
	case typeUint8:
		return read[uint8](r)
	case typeInt8:
		return read[int8](r)
	case typeUint16:
		return read[uint16](r)
	case typeInt16:
		return read[int16](r)
	case typeUint32:
		return read[uint32](r)
	case typeInt32:
		return read[int32](r)
	case typeUint64:
		return read[uint64](r)
	case typeInt64:
		return read[int64](r)
	case typeFloat32:
		return read[float32](r)
	case typeFloat64:
		return read[float64](r)
	case typeBool:
		return read[bool](r)
	case typeString:
		return readString(r)
	default:
		return nil, fmt.Errorf("%w type %d", ErrUnsupported, t)
	}
}

// read liest einen typisierten Wert aus dem Reader
func read[T any](r io.Reader) (t T, err error) {
	err = binary.Read(r, binary.LittleEndian, &t)
	return t, err
}

// readString liest einen String aus dem Reader
func readString(r io.Reader) (string, error) {
	n, err := read[uint64](r)
	if err != nil {
		return "", err
	}
	if n > maxStringLength {
		return "", fmt.Errorf("%w string length %d", ErrUnsupported, n)
	}

	bts := make([]byte, n)
	if _, err := io.ReadFull(r, bts); err != nil {
		return "", err
	}
	return string(bts), nil
}

// readArray liest ein typisiertes Array aus dem Reader
func readArray(r io.Reader) (any, error) {
	t, err := read[uint32](r)
	if err != nil {
		return nil, err
	}

	n, err := read[uint64](r)
	if err != nil {
		return nil, err
	}
	if n > maxCount {
		return nil, fmt.Errorf("%w array length %d", ErrUnsupported, n)
	}

	switch t {
	case typeUint8:
		return readArrayData[uint8](r, n)
	case typeInt8:
		return readArrayData[int8](r, n)
	case typeUint16:
		return readArrayData[uint16](r, n)
	case typeInt16:
		return readArrayData[int16](r, n)
	case typeUint32:
		return readArrayData[uint32](r, n)
	case typeInt32:
		return readArrayData[int32](r, n)
	case typeUint64:
		return readArrayData[uint64](r, n)
	case typeInt64:
		return readArrayData[int64](r, n)
	case typeFloat32:
		return readArrayData[float32](r, n)
	case typeFloat64:
		return readArrayData[float64](r, n)
	case typeBool:
		return readArrayData[bool](r, n)
	case typeString:
		s := make([]string, n)
		for i := range s {
			if s[i], err = readString(r); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w array type %d", ErrUnsupported, t)
	}
}

// readArrayData liest n Werte eines festen Typs
func readArrayData[T any](r io.Reader, n uint64) ([]T, error) {
	s := make([]T, n)
	if err := binary.Read(r, binary.LittleEndian, s); err != nil {
		return nil, err
	}
	return s, nil
}

// padding gibt die Anzahl der Fuellbytes bis zur naechsten Ausrichtung zurueck
func padding(offset, align int64) int64 {
	return (align - offset%align) % align
}
