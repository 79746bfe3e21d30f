// Package checkpoint saves and restores training state as lzw compressed
// JSON followed by an xxhash64 checksum of the compressed bytes.
package checkpoint

import "bytes"
import "compress/lzw"
import "encoding/binary"
import "encoding/json"
import "io"
import "os"
import "path/filepath"
import "time"

import "github.com/cespare/xxhash/v2"
import "github.com/google/uuid"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/ema"
import "github.com/neurlang/rectifiedflow/optim"

// Version is the current checkpoint format.
const Version = 1

const trailer = 8

// ErrCorrupt is returned when a checkpoint fails its checksum or is truncated.
var ErrCorrupt = errors.New("checkpoint: corrupt or truncated file")

// Checkpoint is the persisted training state. Header fields come first so
// that Inspect finds them early in the document.
type Checkpoint struct {
	Version   int               `json:"version"`
	RunID     string            `json:"run_id"`
	Step      int               `json:"step"`
	Objective string            `json:"objective"`
	NumParams int               `json:"num_params"`
	Created   time.Time         `json:"created"`
	Meta      map[string]string `json:"meta,omitempty"`
	Config    json.RawMessage   `json:"config,omitempty"`
	Model     json.RawMessage   `json:"model"`
	EMA       *ema.State        `json:"ema,omitempty"`
	Optimizer *optim.AdamState  `json:"optimizer,omitempty"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Encode writes c to w.
func Encode(w io.Writer, c *Checkpoint) error {
	if c.Version == 0 {
		c.Version = Version
	}
	if c.Created.IsZero() {
		c.Created = time.Now().UTC()
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	var buf bytes.Buffer
	lw := lzw.NewWriter(&buf, lzw.LSB, 8)
	if _, err = lw.Write(doc); err != nil {
		lw.Close()
		return errors.Wrap(err, "compressing checkpoint")
	}
	if err = lw.Close(); err != nil {
		return errors.Wrap(err, "compressing checkpoint")
	}
	sum := make([]byte, trailer)
	binary.LittleEndian.PutUint64(sum, xxhash.Sum64(buf.Bytes()))
	buf.Write(sum)
	_, err = w.Write(buf.Bytes())
	return errors.WithStack(err)
}

// payload verifies the checksum and returns the decompressed JSON document.
func payload(raw []byte) ([]byte, error) {
	if len(raw) < trailer {
		return nil, ErrCorrupt
	}
	body, sum := raw[:len(raw)-trailer], raw[len(raw)-trailer:]
	if xxhash.Sum64(body) != binary.LittleEndian.Uint64(sum) {
		return nil, ErrCorrupt
	}
	lr := lzw.NewReader(bytes.NewReader(body), lzw.LSB, 8)
	defer lr.Close()
	doc, err := io.ReadAll(lr)
	if err != nil {
		return nil, errors.Wrap(ErrCorrupt, err.Error())
	}
	return doc, nil
}

// Decode reads a checkpoint written by Encode.
func Decode(r io.Reader) (*Checkpoint, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading checkpoint")
	}
	doc, err := payload(raw)
	if err != nil {
		return nil, err
	}
	var c Checkpoint
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, errors.Wrap(err, "decoding checkpoint")
	}
	if c.Version > Version {
		return nil, errors.Errorf("checkpoint: format version %d is newer than %d", c.Version, Version)
	}
	return &c, nil
}

// Save writes c to path through a temporary file in the same directory, so
// an interrupted save never leaves a truncated checkpoint behind.
func Save(path string, c *Checkpoint) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())
	if err = Encode(tmp, c); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), path), "saving checkpoint %s", path)
}

// Load reads and verifies the checkpoint at path.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	c, err := Decode(f)
	return c, errors.Wrapf(err, "loading %s", path)
}
