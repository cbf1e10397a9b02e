// Package gguf - GGUF Write Operations
//
// Dieses Modul enthaelt Funktionen zum Schreiben von GGUF-Dateien:
// - Write/WriteFile: Schreibt komplettes GGUF-File mit KV und Tensors (V3)
// - writeValue: Key-Value Paar Serialisierung
// - writeTensorInfo: Tensor-Metadaten Serialisierung
package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Tensor ist ein zu schreibender Tensor. Shape ist in PyTorch-Reihenfolge.
type Tensor struct {
	Name   string
	Shape  []uint64
	Type   TensorType
	Values []float32
}

// WriteFile schreibt eine GGUF-Datei nach path. Bei einem Fehler wird die
// unvollstaendige Datei wieder entfernt.
func WriteFile(path string, kvs []KeyValue, ts []Tensor) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(path)
		}
	}()

	w := bufio.NewWriterSize(f, 1<<20)
	if err := Write(w, kvs, ts); err != nil {
		return err
	}
	return w.Flush()
}

// Write schreibt eine GGUF-Datei mit Metadaten kvs und Tensoren ts nach w.
// Schluessel werden sortiert, Tensoren behalten ihre Reihenfolge.
func Write(w io.Writer, kvs []KeyValue, ts []Tensor) error {
	kvs = slices.Clone(kvs)
	slices.SortStableFunc(kvs, func(a, b KeyValue) int {
		return strings.Compare(a.Key, b.Key)
	})

	// Tensor-Daten parallel kodieren
	encoded := make([][]byte, len(ts))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range ts {
		g.Go(func() error {
			var n uint64 = 1
			for _, d := range t.Shape {
				n *= d
			}
			if n != uint64(len(t.Values)) {
				return fmt.Errorf("tensor %q: shape %v needs %d values, got %d", t.Name, t.Shape, n, len(t.Values))
			}
			bts, err := encodeTensor(t.Type, t.Values)
			if err != nil {
				return fmt.Errorf("tensor %q: %w", t.Name, err)
			}
			encoded[i] = bts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cw := &countingWriter{w: w}

	// Magic: "GGUF"
	if err := binary.Write(cw, binary.LittleEndian, []byte(Magic)); err != nil {
		return err
	}

	// Version: 3
	if err := binary.Write(cw, binary.LittleEndian, uint32(Version)); err != nil {
		return err
	}

	// Tensor Count
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(ts))); err != nil {
		return err
	}

	// KV Count
	if err := binary.Write(cw, binary.LittleEndian, uint64(len(kvs))); err != nil {
		return err
	}

	alignment := int64(DefaultAlignment)
	for _, kv := range kvs {
		if kv.Key == "general.alignment" {
			if a, ok := kv.Value.(uint32); ok && a > 0 {
				alignment = int64(a)
			}
		}
		if err := writeKeyValue(cw, kv); err != nil {
			return err
		}
	}

	// Offsets berechnen und Tensor-Infos schreiben
	var offset uint64
	for i, t := range ts {
		if err := writeTensorInfo(cw, t, offset); err != nil {
			return err
		}
		offset += uint64(len(encoded[i]))
		offset += uint64(padding(int64(offset), alignment))
	}

	if err := writePadding(cw, alignment); err != nil {
		return err
	}

	for _, bts := range encoded {
		if _, err := cw.Write(bts); err != nil {
			return err
		}
		if err := writePadding(cw, alignment); err != nil {
			return err
		}
	}

	return nil
}

// countingWriter zaehlt geschriebene Bytes fuer die Ausrichtung
type countingWriter struct {
	w      io.Writer
	offset int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.offset += int64(n)
	return n, err
}

func writePadding(cw *countingWriter, alignment int64) error {
	if n := padding(cw.offset, alignment); n > 0 {
		_, err := cw.Write(make([]byte, n))
		return err
	}
	return nil
}

// writeTyped schreibt einen typisierten Wert mit Typ-Prefix
func writeTyped[V any](w io.Writer, t uint32, v V) error {
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, v)
}

// writeString schreibt einen String mit Laenge (ohne Typ-Prefix)
func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

// writeArray schreibt ein Array mit Typ-Prefix
func writeArray[S ~[]E, E any](w io.Writer, t uint32, s S) error {
	if err := binary.Write(w, binary.LittleEndian, typeArray); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, t); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s))); err != nil {
		return err
	}

	// Strings muessen einzeln geschrieben werden
	if t == typeString {
		for _, e := range any(s).([]string) {
			if err := writeString(w, e); err != nil {
				return err
			}
		}
		return nil
	}

	return binary.Write(w, binary.LittleEndian, s)
}

// writeKeyValue schreibt ein Key-Value Paar
func writeKeyValue(w io.Writer, kv KeyValue) error {
	slog.Debug(kv.Key, "type", fmt.Sprintf("%T", kv.Value))

	if err := writeString(w, kv.Key); err != nil {
		return err
	}

	switch v := kv.Value.(type) {
	case uint8:
		return writeTyped(w, typeUint8, v)
	case int32:
		return writeTyped(w, typeInt32, v)
	case int64:
		return writeTyped(w, typeInt64, v)
	case uint32:
		return writeTyped(w, typeUint32, v)
	case uint64:
		return writeTyped(w, typeUint64, v)
	case float32:
		return writeTyped(w, typeFloat32, v)
	case float64:
		return writeTyped(w, typeFloat64, v)
	case bool:
		return writeTyped(w, typeBool, v)
	case string:
		if err := binary.Write(w, binary.LittleEndian, typeString); err != nil {
			return err
		}
		return writeString(w, v)
	case []int32:
		return writeArray(w, typeInt32, v)
	case []uint32:
		return writeArray(w, typeUint32, v)
	case []uint64:
		return writeArray(w, typeUint64, v)
	case []float32:
		return writeArray(w, typeFloat32, v)
	case []string:
		return writeArray(w, typeString, v)
	default:
		return fmt.Errorf("improper type %T for '%s'", kv.Value, kv.Key)
	}
}

// writeTensorInfo schreibt die Tensor-Metadaten
func writeTensorInfo(w io.Writer, t Tensor, offset uint64) error {
	slog.Debug(t.Name, "type", t.Type, "shape", t.Shape, "offset", offset)

	if err := writeString(w, t.Name); err != nil {
		return err
	}

	// Dimensionen in ggml-Reihenfolge
	if err := binary.Write(w, binary.LittleEndian, uint32(len(t.Shape))); err != nil {
		return err
	}
	for _, d := range slices.Backward(t.Shape) {
		if err := binary.Write(w, binary.LittleEndian, d); err != nil {
			return err
		}
	}

	if err := binary.Write(w, binary.LittleEndian, uint32(t.Type)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, offset)
}
