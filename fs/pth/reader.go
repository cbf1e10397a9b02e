// Package pth liest PyTorch-Checkpoints (torch.save, zip oder legacy pickle).
//
// Dieses Modul enthaelt:
// - Load: Checkpoint-Datei lesen und in Sektionen zerlegen
// - FromObject: entpickeltes Objekt in einen fs.Checkpoint umwandeln
// - toTensor: PyTorch-Tensor (mit Strides) in einen dichten ml.Tensor kopieren
package pth

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/ml"
)

// ErrNoTensors wird zurueckgegeben, wenn die Datei keine Tensoren enthaelt
var ErrNoTensors = errors.New("checkpoint contains no tensors")

// Load liest einen PyTorch-Checkpoint von path
func Load(path string) (*fs.Checkpoint, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unpickle %s: %w", path, err)
	}
	return FromObject(path, obj)
}

// FromObject wandelt ein entpickeltes Objekt in einen Checkpoint um.
// Ein Mapping aus Tensoren wird zur Sektion fs.RootSection, ein Mapping aus
// Mappings ergibt eine Sektion pro Eintrag. Eintraege ohne Tensoren
// (Epoche, Optimizer-Zustand, ...) werden uebersprungen.
func FromObject(path string, obj any) (*fs.Checkpoint, error) {
	ckpt := fs.NewCheckpoint(fs.FormatPyTorch, path)

	entries, ok := mapping(obj)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected top-level object %T", path, obj)
	}

	if sd, err := stateDict(entries); err == nil && sd.Len() > 0 && sd.Len() == len(entries) {
		ckpt.AddSection(fs.RootSection, sd)
		return ckpt, nil
	}

	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}

		inner, ok := mapping(e.value)
		if !ok {
			slog.Debug("skipping checkpoint entry", "key", name, "type", fmt.Sprintf("%T", e.value))
			continue
		}

		sd, err := stateDict(inner)
		if err != nil {
			return nil, fmt.Errorf("%s: section %q: %w", path, name, err)
		}
		if sd.Len() == 0 {
			slog.Debug("skipping checkpoint entry without tensors", "key", name)
			continue
		}
		ckpt.AddSection(name, sd)
	}

	if len(ckpt.Sections()) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTensors)
	}
	return ckpt, nil
}

type entry struct {
	key, value any
}

// mapping liefert die Eintraege eines dict oder OrderedDict in Dateireihenfolge
func mapping(obj any) ([]entry, bool) {
	switch d := obj.(type) {
	case *types.Dict:
		keys := d.Keys()
		entries := make([]entry, 0, len(keys))
		for _, k := range keys {
			v, _ := d.Get(k)
			entries = append(entries, entry{k, v})
		}
		return entries, true
	case *types.OrderedDict:
		entries := make([]entry, 0, d.Len())
		for e := d.List.Front(); e != nil; e = e.Next() {
			if oe, ok := e.Value.(*types.OrderedDictEntry); ok {
				entries = append(entries, entry{oe.Key, oe.Value})
			}
		}
		return entries, true
	default:
		return nil, false
	}
}

// stateDict sammelt alle Tensor-Eintraege eines Mappings
func stateDict(entries []entry) (*fs.StateDict, error) {
	sd := fs.NewStateDict()
	for _, e := range entries {
		name, ok := e.key.(string)
		if !ok {
			continue
		}
		pt, ok := e.value.(*pytorch.Tensor)
		if !ok {
			continue
		}
		t, err := toTensor(pt)
		if err != nil {
			return nil, fmt.Errorf("tensor %q: %w", name, err)
		}
		sd.Set(name, t)
	}
	return sd, nil
}

// toTensor kopiert einen PyTorch-Tensor unter Beachtung von Offset und
// Strides in einen dichten, zeilenweise angeordneten ml.Tensor
func toTensor(pt *pytorch.Tensor) (*ml.Tensor, error) {
	var data []float32
	switch s := pt.Source.(type) {
	case *pytorch.FloatStorage:
		data = s.Data
	case *pytorch.HalfStorage:
		data = s.Data
	case *pytorch.BFloat16Storage:
		data = s.Data
	case *pytorch.DoubleStorage:
		data = make([]float32, len(s.Data))
		for i, v := range s.Data {
			data[i] = float32(v)
		}
	default:
		return nil, fmt.Errorf("unsupported storage %T", pt.Source)
	}

	shape := pt.Size
	stride := pt.Stride
	if len(shape) == 0 {
		shape, stride = []int{1}, []int{1}
	}
	if len(stride) != len(shape) {
		return nil, fmt.Errorf("stride %v does not match size %v", stride, shape)
	}

	n := 1
	for _, d := range shape {
		n *= d
	}

	out := make([]float32, n)
	idx := make([]int, len(shape))
	for i := range out {
		src := pt.StorageOffset
		for d, v := range idx {
			src += v * stride[d]
		}
		if src < 0 || src >= len(data) {
			return nil, fmt.Errorf("storage index %d out of range (%d values)", src, len(data))
		}
		out[i] = data[src]

		// Mehrdimensionalen Index weiterzaehlen, letzte Achse zuerst
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}

	return ml.New(shape, out)
}
