package feedforward

import "compress/lzw"
import "encoding/json"
import "fmt"
import "io"
import "os"

import "github.com/pkg/errors"

type jsonParam struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Value []float64 `json:"value"`
}

// Kind tags encoded feedforward networks. Encodings without a kind are
// feedforward networks too.
const Kind = "feedforward"

type jsonNetwork struct {
	Kind   string      `json:"kind,omitempty"`
	Config Config      `json:"config"`
	Params []jsonParam `json:"params"`
}

// MarshalJSON encodes configuration and named weights.
func (f *FeedforwardNetwork) MarshalJSON() ([]byte, error) {
	o := jsonNetwork{Kind: Kind, Config: f.cfg}
	for i, p := range f.params {
		o.Params = append(o.Params, jsonParam{
			Name:  fmt.Sprintf("%d.%s", i, p.Name),
			Shape: p.Shape,
			Value: p.Value,
		})
	}
	return json.Marshal(o)
}

// FromJSON decodes a network encoded by MarshalJSON.
func FromJSON(data []byte) (*FeedforwardNetwork, error) {
	var o jsonNetwork
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, errors.Wrap(err, "decoding network")
	}
	if o.Kind != "" && o.Kind != Kind {
		return nil, errors.Errorf("decoding network: network kind %q", o.Kind)
	}
	f, err := New(o.Config)
	if err != nil {
		return nil, err
	}
	if len(o.Params) != len(f.params) {
		return nil, errors.Errorf("network has %d parameters, file has %d", len(f.params), len(o.Params))
	}
	for i, p := range f.params {
		if len(o.Params[i].Value) != p.Len() {
			return nil, errors.Errorf("parameter %s has %d values, want %d", o.Params[i].Name, len(o.Params[i].Value), p.Len())
		}
		copy(p.Value, o.Params[i].Value)
	}
	return f, nil
}

// WriteCompressedWeightsToFile writes model weights to a lzw file
func (f *FeedforwardNetwork) WriteCompressedWeightsToFile(name string) error {
	file, err := os.Create(name)
	if err != nil {
		return errors.WithStack(err)
	}
	err = f.WriteCompressedWeights(file)
	if cerr := file.Close(); err == nil {
		err = errors.WithStack(cerr)
	}
	return err
}

// WriteCompressedWeights writes model weights to a writer
func (f *FeedforwardNetwork) WriteCompressedWeights(w io.Writer) error {
	data, err := f.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "encoding network")
	}
	lw := lzw.NewWriter(w, lzw.LSB, 8)
	if _, err = lw.Write(data); err != nil {
		lw.Close()
		return errors.Wrap(err, "compressing network")
	}
	return errors.WithStack(lw.Close())
}

// ReadCompressedWeightsFromFile reads a network from a lzw file
func ReadCompressedWeightsFromFile(name string) (*FeedforwardNetwork, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()
	return ReadCompressedWeights(file)
}

// ReadCompressedWeights reads a network from a reader
func ReadCompressedWeights(r io.Reader) (*FeedforwardNetwork, error) {
	lr := lzw.NewReader(r, lzw.LSB, 8)
	defer lr.Close()
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing network")
	}
	return FromJSON(data)
}
