// Package gguf - GGUF v3 Container fuer Generator-Gewichte
//
// Dieses Modul enthaelt die gemeinsamen Typen fuer Lesen und Schreiben:
// - TensorType: F32, F16 und BF16 (ggml-Typnummern)
// - KeyValue / TensorInfo: Metadaten aus dem Header
// - File: vollstaendig geladene GGUF-Datei mit Zugriffsmethoden
//
// Dimensionen liegen auf der Platte in ggml-Reihenfolge (innerste zuerst)
// und werden beim Lesen in die PyTorch-Reihenfolge umgedreht.
package gguf

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Magic und Version der geschriebenen Dateien
const (
	Magic            = "GGUF"
	Version          = 3
	DefaultAlignment = 32
)

// Type-Konstanten fuer GGUF-Datentypen
const (
	typeUint8 uint32 = iota
	typeInt8
	typeUint16
	typeInt16
	typeUint32
	typeInt32
	typeFloat32
	typeBool
	typeString
	typeArray
	typeUint64
	typeInt64
	typeFloat64
)

// ErrUnsupported wird bei nicht unterstuetzten Formaten oder Versionen zurueckgegeben
var ErrUnsupported = errors.New("unsupported")

// =============================================================================
// Tensor-Typen
// =============================================================================

// TensorType ist der ggml-Typ eines Tensors
type TensorType uint32

const (
	TensorTypeF32  TensorType = 0
	TensorTypeF16  TensorType = 1
	TensorTypeBF16 TensorType = 30
)

// ParseTensorType wandelt "f32", "f16" oder "bf16" in einen TensorType um
func ParseTensorType(s string) (TensorType, error) {
	switch strings.ToLower(s) {
	case "f32", "float32", "":
		return TensorTypeF32, nil
	case "f16", "float16":
		return TensorTypeF16, nil
	case "bf16", "bfloat16":
		return TensorTypeBF16, nil
	default:
		return 0, fmt.Errorf("%w tensor type %q", ErrUnsupported, s)
	}
}

func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeBF16:
		return "BF16"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// typeSize gibt die Bytes pro Element zurueck, 0 fuer unbekannte Typen
func (t TensorType) typeSize() uint64 {
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16, TensorTypeBF16:
		return 2
	default:
		return 0
	}
}

// FileType leitet general.file_type aus dem ueberwiegenden Tensor-Typ ab
func (t TensorType) FileType() uint32 {
	switch t {
	case TensorTypeF16:
		return 1
	case TensorTypeBF16:
		return 32
	default:
		return 0
	}
}

// =============================================================================
// Metadaten
// =============================================================================

// KeyValue ist ein Metadaten-Eintrag des Headers
type KeyValue struct {
	Key   string
	Value any
}

// TensorInfo beschreibt einen Tensor. Shape ist in PyTorch-Reihenfolge.
type TensorInfo struct {
	Name   string
	Shape  []uint64
	Type   TensorType
	Offset uint64
}

// NumElements gibt die Anzahl der Elemente zurueck
func (ti TensorInfo) NumElements() uint64 {
	n := uint64(1)
	for _, d := range ti.Shape {
		n *= d
	}
	return n
}

// Size gibt die Groesse der Tensor-Daten in Bytes zurueck
func (ti TensorInfo) Size() uint64 {
	return ti.NumElements() * ti.Type.typeSize()
}

// IntShape gibt die Form als []int zurueck
func (ti TensorInfo) IntShape() []int {
	shape := make([]int, len(ti.Shape))
	for i, d := range ti.Shape {
		shape[i] = int(d)
	}
	return shape
}

// =============================================================================
// File
// =============================================================================

// File ist eine vollstaendig gelesene GGUF-Datei
type File struct {
	Version   uint32
	KeyValues []KeyValue
	Tensors   []TensorInfo

	data []byte
}

// KeyValue sucht einen Metadaten-Eintrag nach Name
func (f *File) KeyValue(key string) (any, bool) {
	if i := slices.IndexFunc(f.KeyValues, func(kv KeyValue) bool { return kv.Key == key }); i >= 0 {
		return f.KeyValues[i].Value, true
	}
	return nil, false
}

// String gibt einen String-Eintrag zurueck oder "" wenn er fehlt
func (f *File) String(key string) string {
	v, _ := f.KeyValue(key)
	s, _ := v.(string)
	return s
}

// Strings gibt einen String-Array-Eintrag zurueck
func (f *File) Strings(key string) []string {
	v, _ := f.KeyValue(key)
	s, _ := v.([]string)
	return s
}

// Uint gibt einen ganzzahligen Eintrag zurueck, sonst defaultValue
func (f *File) Uint(key string, defaultValue uint64) uint64 {
	v, ok := f.KeyValue(key)
	if !ok {
		return defaultValue
	}
	switch n := v.(type) {
	case uint8:
		return uint64(n)
	case uint16:
		return uint64(n)
	case uint32:
		return uint64(n)
	case uint64:
		return n
	case int32:
		if n >= 0 {
			return uint64(n)
		}
	case int64:
		if n >= 0 {
			return uint64(n)
		}
	}
	return defaultValue
}

// TensorInfo sucht Tensor-Info nach Name
func (f *File) TensorInfo(name string) (TensorInfo, bool) {
	if i := slices.IndexFunc(f.Tensors, func(t TensorInfo) bool { return t.Name == name }); i >= 0 {
		return f.Tensors[i], true
	}
	return TensorInfo{}, false
}

// Float32 dekodiert die Daten eines Tensors nach float32
func (f *File) Float32(name string) ([]float32, error) {
	ti, ok := f.TensorInfo(name)
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}
	end := ti.Offset + ti.Size()
	if end > uint64(len(f.data)) {
		return nil, fmt.Errorf("tensor %q: data [%d, %d) exceeds file (%d bytes)", name, ti.Offset, end, len(f.data))
	}
	return decodeTensor(ti.Type, f.data[ti.Offset:end], int(ti.NumElements()))
}
