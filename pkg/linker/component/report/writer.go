// Package report exports the per-image outcomes of a session as a Parquet file.
package report

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/logger"
)

const module = "report"

// Row is one written or skipped match.
type Row struct {
	SessionID  string `parquet:"name=session_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ImageName  string `parquet:"name=image_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ImageURL   string `parquet:"name=image_url, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProductID  string `parquet:"name=product_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	SKU        string `parquet:"name=sku, type=BYTE_ARRAY, convertedtype=UTF8"`
	Source     string `parquet:"name=source, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Confidence int32  `parquet:"name=confidence, type=INT32"`
	Outcome    string `parquet:"name=outcome, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Reason     string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordedAt int64  `parquet:"name=recorded_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// Writer buffers rows and uploads them as one Parquet object on Flush.
type Writer struct {
	uploader    storage.Uploader
	bucket      string
	prefix      string
	compression parquet.CompressionCodec

	mu   sync.Mutex
	rows []Row
}

// NewWriter creates a Writer storing reports under bucket/prefix. compression is SNAPPY,
// GZIP or NONE; empty means SNAPPY.
func NewWriter(uploader storage.Uploader, bucket, prefix, compression string) (*Writer, error) {
	if uploader == nil {
		return nil, exception.NewBatchError(module, "report writer requires a storage uploader", nil, false, false)
	}
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, exception.NewBatchError(module, "invalid report compression", err, false, false)
	}
	return &Writer{uploader: uploader, bucket: bucket, prefix: prefix, compression: codec}, nil
}

// Add buffers a row. RecordedAt defaults to now.
func (w *Writer) Add(row Row) {
	if row.RecordedAt == 0 {
		row.RecordedAt = time.Now().UnixMilli()
	}
	w.mu.Lock()
	w.rows = append(w.rows, row)
	w.mu.Unlock()
}

// Len returns the number of buffered rows.
func (w *Writer) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rows)
}

// ObjectName returns where the report of sessionID is stored.
func (w *Writer) ObjectName(sessionID string) string {
	return path.Join(strings.Trim(w.prefix, "/"), "session="+sessionID, "matches.parquet")
}

// Flush encodes the buffered rows and uploads them, returning the object name. Nothing is
// uploaded when no rows were added. The buffer is cleared in every case.
func (w *Writer) Flush(ctx context.Context, sessionID string) (string, error) {
	w.mu.Lock()
	rows := w.rows
	w.rows = nil
	w.mu.Unlock()

	if len(rows) == 0 {
		logger.Debugf("Report for session %s has no rows, skipping upload.", sessionID)
		return "", nil
	}

	buf, err := w.encode(rows)
	if err != nil {
		return "", err
	}

	objectName := w.ObjectName(sessionID)
	if err := w.uploader.Upload(ctx, w.bucket, objectName, buf, "application/vnd.apache.parquet"); err != nil {
		return "", exception.NewBatchError(module, fmt.Sprintf("failed to upload report to %s", objectName), err, false, true)
	}
	logger.Infof("Uploaded match report with %d rows to %s.", len(rows), objectName)
	return objectName, nil
}

func (w *Writer) encode(rows []Row) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(Row), 1)
	if err != nil {
		return nil, exception.NewBatchError(module, "failed to create parquet writer", err, false, false)
	}
	pw.CompressionType = w.compression

	var result error
	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			result = multierror.Append(result, fmt.Errorf("row %d: %w", i, err))
		}
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				result = multierror.Append(result, fmt.Errorf("parquet writer panicked during WriteStop: %v", r))
			}
		}()
		if err := pw.WriteStop(); err != nil {
			result = multierror.Append(result, err)
		}
	}()

	if result != nil {
		return nil, exception.NewBatchError(module, "failed to encode report", result, false, false)
	}
	return buf, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}
