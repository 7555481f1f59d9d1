package sources

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/relloyd/forklift/aws/s3"
	"github.com/relloyd/forklift/logger"
	"github.com/relloyd/forklift/partition"
	"github.com/relloyd/forklift/retry"
	"github.com/relloyd/forklift/stream"
)

// FileSource reads CSV exports laid out as <partition>/<TYPE>_<partition>.csv below the client's prefix.
// Downloads are repeated on transient errors.
type FileSource struct {
	Log       logger.Logger
	Client    s3.Getter
	Delimiter rune          // defaults to ','
	Retry     *retry.Policy // optional
}

func NewFileSource(log logger.Logger, client s3.Getter, policy *retry.Policy) *FileSource {
	return &FileSource{Log: log, Client: client, Delimiter: ',', Retry: policy}
}

// FileKey returns the key of the fileType export for partition key.
func FileKey(key partition.Key, fileType string) string {
	return fmt.Sprintf("%v/%v_%v.csv", key, strings.ToUpper(fileType), key)
}

// Read fetches and parses the fileType export of partition key.
// The first record holds the column names. Empty fields are loaded as nil.
func (f *FileSource) Read(ctx context.Context, key partition.Key, fileType string) (*stream.Rows, error) {
	name := FileKey(key, fileType)
	f.Log.Info("importing ", name)
	data, err := retry.DoValue(ctx, f.Retry, func(ctx context.Context) ([]byte, error) {
		return f.Client.Get(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	rows, err := ParseCSV(bytes.NewReader(data), f.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("error parsing %v: %w", name, err)
	}
	f.Log.Debug("read ", rows.Len(), " rows from ", name)
	return rows, nil
}

// ParseCSV reads delimited text with a header record into rows.
func ParseCSV(r io.Reader, delimiter rune) (*stream.Rows, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	header, err := cr.Read()
	if err == io.EOF {
		return stream.NewRows(), nil
	}
	if err != nil {
		return nil, err
	}
	for idx, h := range header {
		header[idx] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	rows := stream.NewRows(header...)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(rec))
		for idx, v := range rec {
			if v != "" {
				values[idx] = v
			}
		}
		if err = rows.Append(values...); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
