package cache

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/roach88/capsule/internal/job"
	"github.com/roach88/capsule/internal/tree"
)

// payloadVersion prefixes every encoded payload. Bump it when the wire
// structs change incompatibly; old payloads then fail to decode and are
// treated as misses.
const payloadVersion byte = 1

var errPayloadVersion = errors.New("cache: unsupported payload version")

type wireNode struct {
	Kind      uint16     `cbor:"1,keyasint"`
	Value     string     `cbor:"2,keyasint,omitempty"`
	Aux       string     `cbor:"3,keyasint,omitempty"`
	Span      tree.Span  `cbor:"4,keyasint,omitempty"`
	Synthetic bool       `cbor:"5,keyasint,omitempty"`
	Invalid   bool       `cbor:"6,keyasint,omitempty"`
	Children  []wireNode `cbor:"7,keyasint,omitempty"`
}

type wireTarget struct {
	Placeholder string `cbor:"1,keyasint"`
	Attribute   string `cbor:"2,keyasint,omitempty"`
}

type wireJob struct {
	ContentType uint8       `cbor:"1,keyasint"`
	Origin      string      `cbor:"2,keyasint,omitempty"`
	Target      *wireTarget `cbor:"3,keyasint,omitempty"`
	File        string      `cbor:"4,keyasint,omitempty"`
	Root        *wireNode   `cbor:"5,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("cache: CBOR decoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// EncodeJobs serializes a job list to the persistent payload format.
func EncodeJobs(jobs []*job.Job) ([]byte, error) {
	wire := make([]wireJob, len(jobs))
	for i, j := range jobs {
		wire[i] = toWireJob(j)
	}
	raw, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode jobs: %w", err)
	}
	out := make([]byte, 1, 1+len(raw)/2)
	out[0] = payloadVersion
	return zstdEncoder.EncodeAll(raw, out), nil
}

// DecodeJobs parses a payload produced by EncodeJobs.
func DecodeJobs(payload []byte) ([]*job.Job, error) {
	if len(payload) == 0 || payload[0] != payloadVersion {
		return nil, errPayloadVersion
	}
	raw, err := zstdDecoder.DecodeAll(payload[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	var wire []wireJob
	if err := decMode.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}
	jobs := make([]*job.Job, len(wire))
	for i, w := range wire {
		j, err := fromWireJob(w)
		if err != nil {
			return nil, fmt.Errorf("decode job %d: %w", i, err)
		}
		jobs[i] = j
	}
	return jobs, nil
}

func toWireJob(j *job.Job) wireJob {
	w := wireJob{ContentType: uint8(j.ContentType())}
	if o := j.Origin(); o != nil {
		w.Origin = o.String()
	}
	if tp := j.Target(); tp != nil {
		w.Target = &wireTarget{Placeholder: tp.Placeholder, Attribute: tp.Attribute}
	}
	if t := j.Tree(); t != nil {
		w.File = t.File()
		if t.Root() != tree.NoNode {
			root := toWireNode(t, t.Root())
			w.Root = &root
		}
	}
	return w
}

func toWireNode(t *tree.Tree, id tree.NodeID) wireNode {
	n := t.At(id)
	w := wireNode{
		Kind:      uint16(n.Kind),
		Value:     n.Value,
		Aux:       n.Aux,
		Span:      n.Span,
		Synthetic: n.Synthetic,
		Invalid:   n.Invalid,
	}
	for _, c := range t.Children(id) {
		w.Children = append(w.Children, toWireNode(t, c))
	}
	return w
}

func fromWireJob(w wireJob) (*job.Job, error) {
	ct := job.ContentType(w.ContentType)
	switch ct {
	case job.CSS, job.JS, job.HTML:
	default:
		return nil, fmt.Errorf("unknown content type %d", w.ContentType)
	}
	var origin *url.URL
	if w.Origin != "" {
		u, err := url.Parse(w.Origin)
		if err != nil {
			return nil, fmt.Errorf("origin: %w", err)
		}
		origin = u
	}
	var target *job.InsertionPoint
	if w.Target != nil {
		target = &job.InsertionPoint{Placeholder: w.Target.Placeholder, Attribute: w.Target.Attribute}
	}
	t := tree.New(w.File)
	if w.Root != nil {
		root, err := fromWireNode(t, w.Root)
		if err != nil {
			return nil, err
		}
		t.SetRoot(root)
	}
	return job.New(ct, t, origin, target), nil
}

func fromWireNode(t *tree.Tree, w *wireNode) (tree.NodeID, error) {
	kind := tree.Kind(w.Kind)
	if !kind.IsValid() {
		return tree.NoNode, fmt.Errorf("unknown node kind %d", w.Kind)
	}
	children := make([]tree.NodeID, 0, len(w.Children))
	for i := range w.Children {
		c, err := fromWireNode(t, &w.Children[i])
		if err != nil {
			return tree.NoNode, err
		}
		children = append(children, c)
	}
	id := t.Add(kind, w.Value, w.Span, children...)
	n := t.At(id)
	n.Aux = w.Aux
	n.Synthetic = w.Synthetic
	n.Invalid = w.Invalid
	return id, nil
}
