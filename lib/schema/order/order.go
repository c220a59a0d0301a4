// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package order

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shockpay/shockpay/lib/graph"
)

var (
	// ErrInvalidOrder is wrapped by every ParseOrder failure.
	ErrInvalidOrder = errors.New("order: invalid order")

	// ErrInvalidResponse is wrapped by every ParseResponse failure.
	ErrInvalidResponse = errors.New("order: invalid response")
)

// TargetType names what an order pays for.
type TargetType string

const (
	SpontaneousPayment TargetType = "spontaneousPayment"
	ContentReveal      TargetType = "contentReveal"
	TorrentSeed        TargetType = "torrentSeed"
	Service            TargetType = "service"
	Product            TargetType = "product"
)

type targetTraits struct {
	requiresAck  bool
	selfDelivery bool
}

var targetTypes = map[TargetType]targetTraits{
	SpontaneousPayment: {},
	ContentReveal:      {requiresAck: true},
	TorrentSeed:        {requiresAck: true, selfDelivery: true},
	Service:            {requiresAck: true},
	Product:            {requiresAck: true},
}

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	_, ok := targetTypes[t]
	return ok
}

// RequiresAck reports whether a paid order of this type is followed by
// an acknowledgement carrying the purchased data.
func (t TargetType) RequiresAck() bool { return targetTypes[t].requiresAck }

// SupportsSelfDelivery reports whether an order of this type addressed
// to oneself can be served locally without a payment.
func (t TargetType) SupportsSelfDelivery() bool { return targetTypes[t].selfDelivery }

// Order is a payment request written into a mailbox. Amount and Memo
// are ciphertexts. Timestamp is Unix milliseconds at commit time.
type Order struct {
	Amount     string     `json:"amount"`
	From       string     `json:"from"`
	Memo       string     `json:"memo"`
	Timestamp  int64      `json:"timestamp"`
	TargetType TargetType `json:"targetType,omitempty"`
	AckInfo    string     `json:"ackInfo,omitempty"`
}

// Validate checks the fields every order must carry.
func (o *Order) Validate() error {
	if o.Amount == "" {
		return fmt.Errorf("%w: amount is required", ErrInvalidOrder)
	}
	if o.From == "" {
		return fmt.Errorf("%w: from is required", ErrInvalidOrder)
	}
	if o.Memo == "" {
		return fmt.Errorf("%w: memo is required", ErrInvalidOrder)
	}
	if o.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive, got %d", ErrInvalidOrder, o.Timestamp)
	}
	if o.TargetType != "" && !o.TargetType.Valid() {
		return fmt.Errorf("%w: unknown target type %q", ErrInvalidOrder, o.TargetType)
	}
	return nil
}

// ParseOrder decodes and validates an order. An absent target type is
// read as SpontaneousPayment.
func ParseOrder(value graph.Value) (Order, error) {
	var o Order
	if !graph.IsObject(value) {
		return Order{}, fmt.Errorf("%w: not an object", ErrInvalidOrder)
	}
	if err := json.Unmarshal(value, &o); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	if o.TargetType == "" {
		o.TargetType = SpontaneousPayment
	}
	return o, nil
}

// ResponseType is the kind of reply in a Response.
type ResponseType string

const (
	TypeInvoice  ResponseType = "invoice"
	TypeError    ResponseType = "err"
	TypeOrderAck ResponseType = "orderAck"
)

// Response answers one order. Response holds the encrypted invoice or
// ack body, or the plaintext error message when Type is TypeError.
type Response struct {
	Type     ResponseType `json:"type"`
	Response string       `json:"response"`
	AckNode  string       `json:"ackNode,omitempty"`
}

// Validate checks type and payload presence.
func (r *Response) Validate() error {
	switch r.Type {
	case TypeInvoice, TypeError, TypeOrderAck:
	case "":
		return fmt.Errorf("%w: type is required", ErrInvalidResponse)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidResponse, r.Type)
	}
	if r.Response == "" && r.Type != TypeError {
		return fmt.Errorf("%w: response is required for type %s", ErrInvalidResponse, r.Type)
	}
	return nil
}

// ParseResponse decodes and validates a response.
func ParseResponse(value graph.Value) (Response, error) {
	var r Response
	if !graph.IsObject(value) {
		return Response{}, fmt.Errorf("%w: not an object", ErrInvalidResponse)
	}
	if err := json.Unmarshal(value, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := r.Validate(); err != nil {
		return Response{}, err
	}
	return r, nil
}

// Ack is the acknowledgement returned to a requester after a flow that
// requires one. Response is the decrypted JSON body.
type Ack struct {
	Response json.RawMessage `json:"response"`
	Type     ResponseType    `json:"type"`
}
