package parser

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/brdata-dev/cnpj-ingest/internal/models"
)

// RowDecoder streams semicolon-delimited, double-quote-quoted, headerless
// records from one payload entry and yields a positional DecodedRow per
// line. It is single pass: consuming the stream exhausts it.
type RowDecoder struct {
	reader  *csv.Reader
	columns int
	entry   string
}

// NewRowDecoder wraps a payload entry stream for the given file type. The
// configured column count decides the width of every decoded row.
func NewRowDecoder(r io.Reader, cfg models.FileTypeConfig, entryName string) *RowDecoder {
	reader := csv.NewReader(r)
	reader.Comma = ';'
	// The published files occasionally carry stray quotes inside fields and
	// rows with missing trailing columns; neither should abort the stream.
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true
	return &RowDecoder{reader: reader, columns: len(cfg.Columns), entry: entryName}
}

// Next returns the next decoded row, io.EOF at end of stream, or a
// DecodeError for stream-level failures. Rows shorter than the configured
// layout are padded with empty values; extra trailing fields are dropped.
func (d *RowDecoder) Next() (models.DecodedRow, error) {
	record, err := d.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &models.DecodeError{Entry: d.entry, Err: err}
	}

	row := make(models.DecodedRow, d.columns)
	for i := range row {
		if i < len(record) {
			row[i] = strings.TrimSpace(record[i])
		}
	}
	return row, nil
}
