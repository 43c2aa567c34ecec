package model

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"hash/crc32"
	"io"
	"io/ioutil"
	"math"

	"github.com/ulikunitz/xz"
	"go-ml.dev/pkg/iokit"
	"go-ml.dev/pkg/zorros"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/mat"
)

/*
Both artifact formats are xz streams. The payload starts with a four byte
magic choosing the decoder: standard networks are gob records, traced
networks are a little-endian op list followed by CRC32 of the op list.
*/
var (
	sequentialMagic = [4]byte{'C', 'N', 'S', 'Q'}
	tracedMagic     = [4]byte{'C', 'N', 'T', 'R'}
)

const tracedVersion uint16 = 1

// code, act, rows and cols of every traced op
const opHeaderSize = 1 + 1 + 4 + 4

const (
	// StandardExt is the file extension of mutable-layer networks
	StandardExt = ".nn"
	// TracedExt is the file extension of traced networks
	TracedExt = ".nnt"
)

/*
Input is a source of a model artifact, iokit.File satisfies it
*/
type Input interface {
	Open() (io.ReadCloser, error)
}

type layerRecord struct {
	Kind  uint8
	In    int
	Out   int
	W     []byte // float32 little-endian
	Q     []byte // int8
	Scale float64
	B     []byte // float32 little-endian
	Act   string // activation name
}

type sequentialRecord struct {
	Layers []layerRecord
}

const (
	recLinear uint8 = iota + 1
	recQuantized
	recActivation
	recSqueeze
)

func to32(a []float64) []float32 {
	r := make([]float32, len(a))
	for i, x := range a {
		r[i] = float32(x)
	}
	return r
}

func to64(a []float32) []float64 {
	r := make([]float64, len(a))
	for i, x := range a {
		r[i] = float64(x)
	}
	return r
}

func pack32(a []float64) []byte {
	r := make([]byte, 4*len(a))
	for i, x := range a {
		binary.LittleEndian.PutUint32(r[4*i:], math.Float32bits(float32(x)))
	}
	return r
}

func unpack32(b []byte) []float64 {
	r := make([]float64, len(b)/4)
	for i := range r {
		r[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return r
}

func packInt8(q []int8) []byte {
	r := make([]byte, len(q))
	for i, x := range q {
		r[i] = byte(x)
	}
	return r
}

func unpackInt8(b []byte) []int8 {
	r := make([]int8, len(b))
	for i, x := range b {
		r[i] = int8(x)
	}
	return r
}

/*
Encode writes network in the format matching its kind
*/
func Encode(net Network, w io.Writer) (err error) {
	zw, err := xz.NewWriter(w)
	if err != nil {
		return zorros.Trace(err)
	}
	switch n := net.(type) {
	case *Sequential:
		err = encodeSequential(n, zw)
	case *Traced:
		err = encodeTraced(n, zw)
	default:
		err = zorros.Errorf("can't encode network of type %T", net)
	}
	if err != nil {
		return
	}
	if err = zw.Close(); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

func encodeSequential(s *Sequential, w io.Writer) error {
	rec := sequentialRecord{Layers: make([]layerRecord, len(s.layers))}
	for i, l := range s.layers {
		switch q := l.(type) {
		case *Linear:
			rec.Layers[i] = layerRecord{Kind: recLinear, In: q.In(), Out: q.Out(), W: pack32(q.Weights()), B: pack32(q.B)}
		case *QuantizedLinear:
			rec.Layers[i] = layerRecord{Kind: recQuantized, In: q.Cols, Out: q.Rows, Q: packInt8(q.Q), Scale: q.Scale, B: pack32(q.B)}
		case *Activation:
			rec.Layers[i] = layerRecord{Kind: recActivation, Act: q.Kind.String()}
		case *Squeeze:
			rec.Layers[i] = layerRecord{Kind: recSqueeze}
		}
	}
	if _, err := w.Write(sequentialMagic[:]); err != nil {
		return zorros.Trace(err)
	}
	if err := gob.NewEncoder(w).Encode(rec); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

func encodeTraced(t *Traced, w io.Writer) error {
	body := &bytes.Buffer{}
	put := func(v interface{}) { _ = binary.Write(body, binary.LittleEndian, v) }
	put(uint32(t.in))
	put(uint32(len(t.ops)))
	for _, o := range t.ops {
		put(uint8(o.code))
		put(o.act)
		put(uint32(o.rows))
		put(uint32(o.cols))
		switch o.code {
		case opLinear:
			put(to32(fromDense(o.w).Data))
			put(to32(o.b))
		case opQuantized:
			put(o.scale)
			put(o.q)
			put(to32(o.b))
		}
	}
	hdr := &bytes.Buffer{}
	hdr.Write(tracedMagic[:])
	_ = binary.Write(hdr, binary.LittleEndian, tracedVersion)
	if _, err := w.Write(hdr.Bytes()); err != nil {
		return zorros.Trace(err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return zorros.Trace(err)
	}
	if err := binary.Write(w, binary.LittleEndian, crc32.ChecksumIEEE(body.Bytes())); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

/*
Decode reads network of any known format
*/
func Decode(r io.Reader) (Network, error) {
	zr, err := xz.NewReader(r)
	if err != nil {
		return nil, zorros.Wrapf(err, "not a model artifact: %v", err.Error())
	}
	data, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, zorros.Trace(err)
	}
	if len(data) < 4 {
		return nil, zorros.Errorf("model artifact is too short")
	}
	var magic [4]byte
	copy(magic[:], data)
	switch magic {
	case sequentialMagic:
		return decodeSequential(data[4:])
	case tracedMagic:
		return decodeTraced(data[4:])
	}
	return nil, zorros.Errorf("unknown model artifact magic %q", magic[:])
}

func decodeSequential(data []byte) (*Sequential, error) {
	rec := sequentialRecord{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return nil, zorros.Wrapf(err, "failed to decode sequential network: %v", err.Error())
	}
	layers := make([]Layer, len(rec.Layers))
	for i, lr := range rec.Layers {
		switch lr.Kind {
		case recLinear:
			l, err := NewLinear(lr.In, lr.Out, unpack32(lr.W), unpack32(lr.B))
			if err != nil {
				return nil, err
			}
			layers[i] = l
		case recQuantized:
			if lr.In <= 0 || lr.Out <= 0 || len(lr.Q) != lr.In*lr.Out || len(lr.B) != 4*lr.Out {
				return nil, xerrors.Errorf("quantized layer %d is corrupted: %w", i, ErrShape)
			}
			layers[i] = &QuantizedLinear{Q: unpackInt8(lr.Q), Scale: lr.Scale, Rows: lr.Out, Cols: lr.In, B: unpack32(lr.B)}
		case recActivation:
			k, err := ParseActivation(lr.Act)
			if err != nil {
				return nil, xerrors.Errorf("layer %d: %w", i, err)
			}
			layers[i] = &Activation{Kind: k}
		case recSqueeze:
			layers[i] = &Squeeze{}
		default:
			return nil, zorros.Errorf("unknown layer record kind %d", lr.Kind)
		}
	}
	return NewSequential(layers...)
}

func decodeTraced(data []byte) (*Traced, error) {
	if len(data) < 2+4 {
		return nil, zorros.Errorf("traced artifact is too short")
	}
	if v := binary.LittleEndian.Uint16(data); v != tracedVersion {
		return nil, zorros.Errorf("unsupported traced artifact version %d", v)
	}
	body, sum := data[2:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, zorros.Errorf("traced artifact is corrupted")
	}
	rd := bytes.NewReader(body)
	get := func(v interface{}) error { return binary.Read(rd, binary.LittleEndian, v) }
	var in, count uint32
	if err := get(&in); err != nil {
		return nil, zorros.Trace(err)
	}
	if err := get(&count); err != nil {
		return nil, zorros.Trace(err)
	}
	if uint64(count)*opHeaderSize > uint64(rd.Len()) {
		return nil, zorros.Errorf("traced artifact declares %d ops in %d bytes", count, rd.Len())
	}
	t := &Traced{in: int(in), ops: make([]op, count)}
	for i := range t.ops {
		var code, act uint8
		var rows, cols uint32
		for _, v := range []interface{}{&code, &act, &rows, &cols} {
			if err := get(v); err != nil {
				return nil, zorros.Trace(err)
			}
		}
		if act != noActivation && !ActivationKind(act).valid() {
			return nil, zorros.Errorf("traced op %d has unknown activation %d", i, act)
		}
		o := op{code: opCode(code), act: act, rows: int(rows), cols: int(cols)}
		switch o.code {
		case opLinear, opQuantized:
			n := uint64(rows) * uint64(cols)
			if n == 0 || n > uint64(rd.Len()) {
				return nil, xerrors.Errorf("traced op %d is corrupted: %w", i, ErrShape)
			}
		case opActivation:
			if act == noActivation {
				return nil, zorros.Errorf("traced op %d has no activation kind", i)
			}
		case opSqueeze:
		default:
			return nil, zorros.Errorf("unknown traced op code %d", code)
		}
		switch o.code {
		case opLinear:
			w, b := make([]float32, o.rows*o.cols), make([]float32, o.rows)
			if err := get(w); err != nil {
				return nil, zorros.Trace(err)
			}
			if err := get(b); err != nil {
				return nil, zorros.Trace(err)
			}
			o.w, o.b = mat.NewDense(o.rows, o.cols, to64(w)), to64(b)
		case opQuantized:
			q, b := make([]int8, o.rows*o.cols), make([]float32, o.rows)
			for _, v := range []interface{}{&o.scale, q, b} {
				if err := get(v); err != nil {
					return nil, zorros.Trace(err)
				}
			}
			o.q, o.b = q, to64(b)
		}
		t.ops[i] = o
	}
	return t, nil
}

/*
Save writes network to the output committing it only when encoding succeeded
*/
func Save(net Network, output iokit.Output) error {
	wh, err := output.Create()
	if err != nil {
		return zorros.Trace(err)
	}
	defer wh.End()
	if err = Encode(net, wh); err != nil {
		return err
	}
	if err = wh.Commit(); err != nil {
		return zorros.Trace(err)
	}
	return nil
}

/*
Load reads network from the input
*/
func Load(input Input) (Network, error) {
	rd, err := input.Open()
	if err != nil {
		return nil, zorros.Trace(err)
	}
	defer rd.Close()
	return Decode(rd)
}

/*
LoadFile reads network from the local file
*/
func LoadFile(path string) (Network, error) {
	net, err := Load(iokit.File(path))
	if err != nil {
		return nil, zorros.Wrapf(err, "failed to load model %v: %v", path, err.Error())
	}
	return net, nil
}

/*
Ext returns artifact file extension for the network kind
*/
func Ext(net Network) string {
	if net.Kind() == KindTraced {
		return TracedExt
	}
	return StandardExt
}
