package metrics

import "io"
import "os"

import goparquet "github.com/fraugster/parquet-go"
import "github.com/fraugster/parquet-go/parquet"
import "github.com/fraugster/parquet-go/parquetschema"
import "github.com/pkg/errors"

const historySchema = `message history {
	required int64 step;
	required double loss;
	required double main_loss;
	required double consistency_loss;
	required double grad_norm;
	required double lr;
	required double seconds;
}`

// Row is one logged training step.
type Row struct {
	Step            int64   `json:"step"`
	Loss            float64 `json:"loss"`
	MainLoss        float64 `json:"main_loss"`
	ConsistencyLoss float64 `json:"consistency_loss"`
	GradNorm        float64 `json:"grad_norm"`
	LR              float64 `json:"lr"`
	Seconds         float64 `json:"seconds"`
}

func (r Row) record() map[string]interface{} {
	return map[string]interface{}{
		"step":             r.Step,
		"loss":             r.Loss,
		"main_loss":        r.MainLoss,
		"consistency_loss": r.ConsistencyLoss,
		"grad_norm":        r.GradNorm,
		"lr":               r.LR,
		"seconds":          r.Seconds,
	}
}

// History appends rows to a snappy compressed parquet file. Rows are flushed
// as a row group every GroupSize rows and on Close. The file is only
// readable after Close.
type History struct {
	GroupSize int

	file    *os.File
	writer  *goparquet.FileWriter
	pending int
}

// NewHistory creates the parquet file at path.
func NewHistory(path string) (*History, error) {
	sd, err := parquetschema.ParseSchemaDefinition(historySchema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing history schema")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &History{
		GroupSize: 1000,
		file:      f,
		writer: goparquet.NewFileWriter(f,
			goparquet.WithSchemaDefinition(sd),
			goparquet.WithCompressionCodec(parquet.CompressionCodec_SNAPPY),
			goparquet.WithCreator("rectflow"),
		),
	}, nil
}

// Append adds a row.
func (h *History) Append(r Row) error {
	if err := h.writer.AddData(r.record()); err != nil {
		return errors.Wrap(err, "adding history row")
	}
	h.pending++
	if h.GroupSize > 0 && h.pending >= h.GroupSize {
		return h.Flush()
	}
	return nil
}

// Flush writes buffered rows as a row group.
func (h *History) Flush() error {
	if h.pending == 0 {
		return nil
	}
	h.pending = 0
	return errors.Wrap(h.writer.FlushRowGroup(), "flushing history")
}

// Close flushes remaining rows and writes the parquet footer.
func (h *History) Close() error {
	err := h.Flush()
	if werr := h.writer.Close(); err == nil {
		err = werr
	}
	if cerr := h.file.Close(); err == nil {
		err = cerr
	}
	return errors.Wrap(err, "closing history")
}

// ReadHistory reads every row of a history file.
func ReadHistory(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	fr, err := goparquet.NewFileReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "opening history %s", path)
	}
	var rows []Row
	for {
		rec, err := fr.NextRow()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, errors.Wrapf(err, "reading history %s", path)
		}
		var r Row
		r.Step, _ = rec["step"].(int64)
		r.Loss, _ = rec["loss"].(float64)
		r.MainLoss, _ = rec["main_loss"].(float64)
		r.ConsistencyLoss, _ = rec["consistency_loss"].(float64)
		r.GradNorm, _ = rec["grad_norm"].(float64)
		r.LR, _ = rec["lr"].(float64)
		r.Seconds, _ = rec["seconds"].(float64)
		rows = append(rows, r)
	}
}
