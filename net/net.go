// Package net decodes and copies the velocity networks by kind
package net

import "encoding/json"

import "github.com/pkg/errors"
import "github.com/tidwall/gjson"

import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/net/feedforward"
import "github.com/neurlang/rectifiedflow/net/unet"

// Network is a trainable velocity field whose parameters live in one flat
// weight vector.
type Network interface {
	flow.Model
	json.Marshaler

	DimIn() int
	DimOut() int
	DimCond() int
	TimeInputs() int

	// Weights returns the live parameter vector.
	Weights() []float64
	// NewGrads allocates a zero gradient vector aligned with Weights.
	NewGrads() []float64
	// Load copies a parameter vector into the network.
	Load(w []float64) error

	String() string
}

var _ Network = (*feedforward.FeedforwardNetwork)(nil)
var _ Network = (*unet.UNet)(nil)

// Kind reads the network kind of an encoded network.
func Kind(data []byte) string {
	if k := gjson.GetBytes(data, "kind"); k.Exists() {
		return k.String()
	}
	return feedforward.Kind
}

// FromJSON decodes a network of any kind.
func FromJSON(data []byte) (Network, error) {
	switch kind := Kind(data); kind {
	case feedforward.Kind:
		f, err := feedforward.FromJSON(data)
		if err != nil {
			return nil, err
		}
		return f, nil
	case unet.Kind:
		u, err := unet.FromJSON(data)
		if err != nil {
			return nil, err
		}
		return u, nil
	default:
		return nil, errors.Errorf("unknown network kind %q", kind)
	}
}

// Clone creates an independent network with the same shape and weights.
func Clone(n Network) (Network, error) {
	switch n := n.(type) {
	case *feedforward.FeedforwardNetwork:
		return n.Clone(), nil
	case *unet.UNet:
		return n.Clone(), nil
	}
	data, err := n.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encoding network")
	}
	return FromJSON(data)
}
