package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// Version is the current snapshot format version.
// Increment when making breaking changes to Snapshot.
const Version = 1

// Snapshot is the persisted form of one node.
type Snapshot struct {
	Version        int            `json:"version" msgpack:"version"`
	WorkflowID     string         `json:"workflow_id" msgpack:"workflow_id"`
	NodeID         string         `json:"node_id" msgpack:"node_id"`
	Type           string         `json:"type" msgpack:"type"`
	Title          string         `json:"title" msgpack:"title"`
	Properties     map[string]any `json:"properties,omitempty" msgpack:"properties,omitempty"`
	Policy         string         `json:"policy" msgpack:"policy"`
	Dirty          bool           `json:"dirty" msgpack:"dirty"`
	ProcessingDone bool           `json:"processing_done" msgpack:"processing_done"`
	Cache          map[string]any `json:"cache,omitempty" msgpack:"cache,omitempty"`
	Timestamp      time.Time      `json:"timestamp" msgpack:"timestamp"`
}

// NewSnapshot captures n. The output cache is included when withCache is set.
func NewSnapshot(workflowID string, n *nodeflow.Node, withCache bool) *Snapshot {
	st := n.State(withCache)
	return &Snapshot{
		Version:        Version,
		WorkflowID:     workflowID,
		NodeID:         n.ID(),
		Type:           n.Type(),
		Title:          n.Title(),
		Properties:     st.Properties,
		Policy:         st.Policy.String(),
		Dirty:          st.Dirty,
		ProcessingDone: st.ProcessingDone,
		Cache:          st.Cache,
		Timestamp:      time.Now().UTC(),
	}
}

// State converts the snapshot back into node state.
func (s *Snapshot) State() (nodeflow.NodeState, error) {
	if s.Version > Version {
		return nodeflow.NodeState{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, s.Version)
	}
	policy, err := nodeflow.ParsePolicy(s.Policy)
	if err != nil {
		return nodeflow.NodeState{}, err
	}
	return nodeflow.NodeState{
		Properties:     s.Properties,
		Policy:         policy,
		Dirty:          s.Dirty,
		ProcessingDone: s.ProcessingDone,
		Cache:          s.Cache,
	}, nil
}

// Codec serializes snapshots.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec encodes snapshots as JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// MsgpackCodec encodes snapshots as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgpackCodec) Name() string                       { return "msgpack" }

// CodecByName returns the codec registered under name ("json" or "msgpack").
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Encode serializes s with codec, compressing the result with zstd when
// compress is set.
func Encode(codec Codec, s *Snapshot, compress bool) ([]byte, error) {
	data, err := codec.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%s encode: %w", codec.Name(), err)
	}
	if !compress {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// Decode reverses Encode. Compressed input is detected by its frame header.
func Decode(codec Codec, data []byte) (*Snapshot, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
	}
	var s Snapshot
	if err := codec.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s decode: %w", codec.Name(), err)
	}
	return &s, nil
}
