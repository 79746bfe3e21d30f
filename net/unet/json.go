package unet

import "encoding/json"
import "fmt"

import "github.com/pkg/errors"

// Kind tags encoded U-Nets.
const Kind = "unet"

type jsonParam struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Value []float64 `json:"value"`
}

type jsonNetwork struct {
	Kind   string      `json:"kind"`
	Config Config      `json:"config"`
	Params []jsonParam `json:"params"`
}

// MarshalJSON encodes configuration and named weights.
func (u *UNet) MarshalJSON() ([]byte, error) {
	o := jsonNetwork{Kind: Kind, Config: u.cfg}
	for i, p := range u.params {
		o.Params = append(o.Params, jsonParam{
			Name:  fmt.Sprintf("%d.%s", i, p.Name),
			Shape: p.Shape,
			Value: p.Value,
		})
	}
	return json.Marshal(o)
}

// FromJSON decodes a network encoded by MarshalJSON.
func FromJSON(data []byte) (*UNet, error) {
	var o jsonNetwork
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, errors.Wrap(err, "decoding unet")
	}
	if o.Kind != Kind {
		return nil, errors.Errorf("decoding unet: network kind %q", o.Kind)
	}
	u, err := New(o.Config)
	if err != nil {
		return nil, err
	}
	if len(o.Params) != len(u.params) {
		return nil, errors.Errorf("unet has %d parameters, file has %d", len(u.params), len(o.Params))
	}
	for i, p := range u.params {
		if len(o.Params[i].Value) != p.Len() {
			return nil, errors.Errorf("parameter %s has %d values, want %d", o.Params[i].Name, len(o.Params[i].Value), p.Len())
		}
		copy(p.Value, o.Params[i].Value)
	}
	return u, nil
}
