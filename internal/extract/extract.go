package extract

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"

	"github.com/andresbrocco/finance-etl/internal/transform"
)

// ErrMissingColumns is returned when the source file lacks required columns.
var ErrMissingColumns = errors.New("source file is missing required columns")

// RequiredColumns are the columns every source file must provide.
var RequiredColumns = []string{
	"transaction_id", "date", "category", "amount",
	"merchant", "payment_method", "user_id",
}

// FileFormat represents supported source file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatJSON    FileFormat = "json"
	FormatParquet FileFormat = "parquet"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch {
	case strings.HasSuffix(filename, ".json"):
		return FormatJSON
	case strings.HasSuffix(filename, ".parquet"):
		return FormatParquet
	default:
		return FormatCSV
	}
}

// Reader extracts raw transaction record sets from source files.
type Reader struct {
	logger *zap.Logger
}

// NewReader creates a new source file reader.
func NewReader(logger *zap.Logger) *Reader {
	return &Reader{logger: logger}
}

// Extract reads the source file into a raw record set. Field values surface
// exactly as delivered; parsing and business validation happen downstream.
func (r *Reader) Extract(ctx context.Context, filePath string) ([]transform.RawRecord, error) {
	format := DetectFileFormat(filePath)
	r.logger.Info("Extracting source file",
		zap.String("file", filePath),
		zap.String("format", string(format)))

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}
	defer file.Close()

	var records []transform.RawRecord
	switch format {
	case FormatCSV:
		records, err = r.readCSV(ctx, file)
	case FormatJSON:
		records, err = r.readJSON(ctx, file)
	case FormatParquet:
		records, err = r.readParquet(ctx, file)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("Extraction completed", zap.Int("records", len(records)))
	return records, nil
}

func (r *Reader) readCSV(ctx context.Context, file *os.File) ([]transform.RawRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, column := range RequiredColumns {
		if _, ok := index[column]; !ok {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	var records []transform.RawRecord
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("Failed to read CSV record", zap.Error(err))
			continue
		}
		if len(row) != len(header) {
			r.logger.Warn("Skipping CSV record with unexpected field count",
				zap.Int("fields", len(row)))
			continue
		}

		records = append(records, transform.RawRecord{
			TransactionID: row[index["transaction_id"]],
			Date:          row[index["date"]],
			Category:      row[index["category"]],
			Amount:        row[index["amount"]],
			Merchant:      row[index["merchant"]],
			PaymentMethod: row[index["payment_method"]],
			UserID:        row[index["user_id"]],
		})
	}

	return records, nil
}

// readJSON reads one JSON object per line. Numeric amount and user_id values
// are carried through as their literal representation.
func (r *Reader) readJSON(ctx context.Context, file *os.File) ([]transform.RawRecord, error) {
	decoder := json.NewDecoder(file)
	decoder.UseNumber()

	var records []transform.RawRecord
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var row map[string]interface{}
		err := decoder.Decode(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("Failed to read JSON record", zap.Error(err))
			continue
		}

		records = append(records, transform.RawRecord{
			TransactionID: stringField(row, "transaction_id"),
			Date:          stringField(row, "date"),
			Category:      stringField(row, "category"),
			Amount:        stringField(row, "amount"),
			Merchant:      stringField(row, "merchant"),
			PaymentMethod: stringField(row, "payment_method"),
			UserID:        stringField(row, "user_id"),
		})
	}

	return records, nil
}

type parquetRecord struct {
	TransactionID string  `parquet:"transaction_id"`
	Date          string  `parquet:"date"`
	Category      string  `parquet:"category"`
	Amount        float64 `parquet:"amount"`
	Merchant      string  `parquet:"merchant"`
	PaymentMethod string  `parquet:"payment_method"`
	UserID        int64   `parquet:"user_id"`
}

func (r *Reader) readParquet(ctx context.Context, file *os.File) ([]transform.RawRecord, error) {
	reader := parquet.NewReader(file)
	defer reader.Close()

	var records []transform.RawRecord
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var row parquetRecord
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn("Failed to read Parquet record", zap.Error(err))
			continue
		}

		records = append(records, transform.RawRecord{
			TransactionID: row.TransactionID,
			Date:          row.Date,
			Category:      row.Category,
			Amount:        strconv.FormatFloat(row.Amount, 'f', -1, 64),
			Merchant:      row.Merchant,
			PaymentMethod: row.PaymentMethod,
			UserID:        strconv.FormatInt(row.UserID, 10),
		})
	}

	return records, nil
}

func stringField(row map[string]interface{}, key string) string {
	value, ok := row[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
