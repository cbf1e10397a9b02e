package modeltest

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sketchgan/sketchgan/fs"
	"github.com/sketchgan/sketchgan/model"
)

// Pickle-Opcodes (Protokoll 2), wie torch.save sie schreibt
const (
	opProto      = 0x80
	opEmptyDict  = '}'
	opEmptyTuple = ')'
	opMark       = '('
	opTuple      = 't'
	opSetItems   = 'u'
	opGlobal     = 'c'
	opReduce     = 'R'
	opBinInt     = 'J'
	opBinUnicode = 'X'
	opBinPersID  = 'Q'
	opNewFalse   = 0x89
	opStop       = '.'
)

// pickler schreibt den Teil des Pickle-Formats, den torch.save fuer
// State-Dicts erzeugt
type pickler struct {
	buf      bytes.Buffer
	storages [][]float32
}

func (p *pickler) op(b byte) { p.buf.WriteByte(b) }

func (p *pickler) global(module, name string) {
	p.op(opGlobal)
	p.buf.WriteString(module + "\n" + name + "\n")
}

func (p *pickler) str(s string) {
	p.op(opBinUnicode)
	binary.Write(&p.buf, binary.LittleEndian, uint32(len(s))) //nolint:errcheck
	p.buf.WriteString(s)
}

func (p *pickler) int(v int) {
	p.op(opBinInt)
	binary.Write(&p.buf, binary.LittleEndian, int32(v)) //nolint:errcheck
}

func (p *pickler) ints(vs []int) {
	p.op(opMark)
	for _, v := range vs {
		p.int(v)
	}
	p.op(opTuple)
}

func (p *pickler) orderedDict() {
	p.global("collections", "OrderedDict")
	p.op(opEmptyTuple)
	p.op(opReduce)
}

// tensor schreibt einen zusammenhaengenden float32-Tensor mit eigenem Storage
func (p *pickler) tensor(shape []int, data []float32) {
	key := strconv.Itoa(len(p.storages))
	p.storages = append(p.storages, data)

	p.global("torch._utils", "_rebuild_tensor_v2")
	p.op(opMark)

	p.op(opMark)
	p.str("storage")
	p.global("torch", "FloatStorage")
	p.str(key)
	p.str("cpu")
	p.int(len(data))
	p.op(opTuple)
	p.op(opBinPersID)

	p.int(0)
	p.ints(shape)
	stride := make([]int, len(shape))
	n := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = n
		n *= shape[i]
	}
	p.ints(stride)
	p.op(opNewFalse)
	p.orderedDict()

	p.op(opTuple)
	p.op(opReduce)
}

// WritePTH schreibt ckpt als torch.save-Zip nach dir, zusammen mit einer
// Epoche und einem Optimizer-Zustand wie in einem Trainings-Checkpoint
func WritePTH(tb testing.TB, dir string, ckpt *fs.Checkpoint) string {
	tb.Helper()

	var p pickler
	p.op(opProto)
	p.op(2)
	p.op(opEmptyDict)
	p.op(opMark)

	for _, name := range ckpt.Sections() {
		sd, err := ckpt.Section(name)
		if err != nil {
			tb.Fatal(err)
		}

		p.str(name)
		p.orderedDict()
		p.op(opMark)
		for _, key := range sd.Keys() {
			t, _ := sd.Get(key)
			p.str(key)
			p.tensor(t.Shape(), t.Data())
		}
		p.op(opSetItems)
	}

	p.str("epoch")
	p.int(100)

	p.str("optimizer_G")
	p.op(opEmptyDict)
	p.op(opMark)
	p.str("state")
	p.op(opEmptyDict)
	p.str("step")
	p.int(100)
	p.op(opSetItems)

	p.op(opSetItems)
	p.op(opStop)

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	write := func(name string, data []byte) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			tb.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatal(err)
		}
	}

	write("archive/data.pkl", p.buf.Bytes())
	for i, data := range p.storages {
		raw := make([]byte, 4*len(data))
		for j, v := range data {
			binary.LittleEndian.PutUint32(raw[4*j:], math.Float32bits(v))
		}
		write("archive/data/"+strconv.Itoa(i), raw)
	}
	write("archive/version", []byte("3\n"))
	if err := zw.Close(); err != nil {
		tb.Fatal(err)
	}

	path := filepath.Join(dir, "tiny.pth")
	if err := os.WriteFile(path, archive.Bytes(), 0o644); err != nil {
		tb.Fatalf("tiny pth: %v", err)
	}
	return path
}

// TrainingCheckpoint enthaelt beide Generatoren eines Trainingslaufs
func TrainingCheckpoint(cfg model.Config, seed uint64) *fs.Checkpoint {
	ckpt := Checkpoint(cfg, seed)
	ckpt.AddSection("G_real_to_sketch", StateDict(cfg, seed+1))
	return ckpt
}
