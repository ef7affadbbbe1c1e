// Package csvinput reads population records from headerless CSV.
//
// Every row is "city,state,population". Extra columns are ignored and a short row
// gives a record with an empty value, which popcache.Manager.LoadBulk skips.
package csvinput

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"go.mercari.io/popcache"
)

var _ popcache.BulkInput = (*File)(nil)
var _ popcache.BulkInput = (*Reader)(nil)

// File is a CSV file read again on every Records call.
type File struct {
	path string
}

// Open returns the input of the CSV file at path. The file is opened by Records.
func Open(path string) *File {
	return &File{path: path}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Records implements popcache.BulkInput.
func (f *File) Records(ctx context.Context, yield func(r popcache.Record) error) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("csvinput: %w", err)
	}
	defer file.Close()

	return readRecords(ctx, file, yield)
}

// Reader is a CSV stream. It can be read once.
type Reader struct {
	r    io.Reader
	used bool
}

// FromReader returns the input of the CSV stream r.
func FromReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Records implements popcache.BulkInput.
func (r *Reader) Records(ctx context.Context, yield func(r popcache.Record) error) error {
	if r.used {
		return errors.New("csvinput: reader already consumed")
	}
	r.used = true
	return readRecords(ctx, r.r, yield)
}

func readRecords(ctx context.Context, r io.Reader, yield func(r popcache.Record) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := cr.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("csvinput: %w", err)
		}

		if err := yield(toRecord(row)); err != nil {
			return err
		}
	}
}

func toRecord(row []string) popcache.Record {
	var fields [3]string
	copy(fields[:], row)
	return popcache.Record{
		Locality: fields[0],
		Region:   fields[1],
		Value:    fields[2],
	}
}
