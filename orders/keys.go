// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package orders

import (
	"encoding/json"
	"fmt"

	"github.com/shockpay/shockpay/lib/graph"
)

// Graph keys. Owner-scoped keys live under the owner's root; the node
// collections are global so any peer can append to them.
const (
	keyEncryptionPub           = "epub"
	keyCurrentOrderAddress     = "currentOrderAddress"
	keyCurrentHandshakeAddress = "currentHandshakeAddress"
	keyOrderToResponse         = "orderToResponse"
	keyOrderNodes              = "orderNodes"
	keyHandshakeNodes          = "handshakeNodes"
)

// placeholder is written at a fresh address so writers can resolve it
// before any entry exists.
var placeholder = graph.Value(`{"unused":0}`)

// Address names one inbound collection.
type Address string

func ownerPath(pub string, keys ...string) (graph.Path, error) {
	root, err := graph.OwnerRoot(pub)
	if err != nil {
		return "", err
	}
	path := root.Child(keys...)
	if err := path.Validate(); err != nil {
		return "", err
	}
	return path, nil
}

func orderNodesPath(address Address) (graph.Path, error) {
	return graph.Join(keyOrderNodes, string(address))
}

func responsePath(pub, key string) (graph.Path, error) {
	return ownerPath(pub, keyOrderToResponse, key)
}

// decodeString reads a value written as a JSON string.
func decodeString(value graph.Value) (string, error) {
	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return "", fmt.Errorf("%w: expected a string, got %s", ErrValidation, value)
	}
	return text, nil
}
