package node

import (
	"encoding/json"
	"fmt"

	"github.com/golang/snappy"
)

// Encode serializes a node as snappy-compressed JSON. This is the payload
// format written to the journal and the snapshot store.
func Encode(n *Node) ([]byte, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("marshal node %s: %w", n.NodeID, err)
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode.
func Decode(data []byte) (*Node, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("decompress node: %w", err)
	}
	var n Node
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("unmarshal node: %w", err)
	}
	return &n, nil
}
