package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// csvHeader is the feed column order.
var csvHeader = []string{
	"product_url",
	"product_name",
	"price",
	"sku",
	"size",
	"color",
	"size_list",
	"color_list",
	"description",
	"care_instructions",
	"image_urls",
	"product_details",
	"currency",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends products to the CSV output.
func (cw *CSVWriter) Write(products []*models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		record, err := csvRecord(product)
		if err != nil {
			return err
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// csvRecord flattens p in header order. Lists are comma joined and the
// details map is encoded as a JSON object.
func csvRecord(p *models.Product) ([]string, error) {
	price := ""
	if p.Price != nil {
		price = strconv.FormatFloat(*p.Price, 'f', -1, 64)
	}
	details := ""
	if len(p.Details) > 0 {
		encoded, err := json.Marshal(p.Details)
		if err != nil {
			return nil, fmt.Errorf("encode product details: %w", err)
		}
		details = string(encoded)
	}
	return []string{
		p.URL,
		p.Name,
		price,
		p.SKU,
		p.Size,
		p.Color,
		strings.Join(p.Sizes, ","),
		strings.Join(p.Colors, ","),
		p.Description,
		p.CareInstructions,
		strings.Join(p.Images, ","),
		details,
		p.Currency,
	}, nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content besides the header.
func (cw *CSVWriter) Validate() error {
	return validateFile(cw.file, "csv")
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSONL writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	f, err := createFile(filename, "json")
	if err != nil {
		return nil, err
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends products in JSONL format.
func (jw *JSONWriter) Write(products []*models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.encoder.Encode(product); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	return validateFile(jw.file, "json")
}

// JSONArrayWriter writes a single JSON array, closed on Close.
type JSONArrayWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  int
	mu     sync.Mutex
}

// NewJSONArrayWriter creates the file and opens the array.
func NewJSONArrayWriter(filename string) (*JSONArrayWriter, error) {
	f, err := createFile(filename, "json")
	if err != nil {
		return nil, err
	}
	buffer := bufio.NewWriter(f)
	if _, err := buffer.WriteString("["); err != nil {
		f.Close()
		return nil, fmt.Errorf("write json array start: %w", err)
	}
	return &JSONArrayWriter{file: f, writer: buffer}, nil
}

// Write appends products as array elements.
func (aw *JSONArrayWriter) Write(products []*models.Product) error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	for _, product := range products {
		encoded, err := marshalProduct(product)
		if err != nil {
			return err
		}
		sep := ",\n"
		if aw.count == 0 {
			sep = "\n"
		}
		if _, err := aw.writer.WriteString(sep); err != nil {
			return fmt.Errorf("write json array: %w", err)
		}
		if _, err := aw.writer.Write(encoded); err != nil {
			return fmt.Errorf("write json array: %w", err)
		}
		aw.count++
	}
	if err := aw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json array: %w", err)
	}
	return nil
}

// Close terminates the array and closes the file.
func (aw *JSONArrayWriter) Close() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()

	if _, err := aw.writer.WriteString("\n]\n"); err != nil {
		return fmt.Errorf("write json array end: %w", err)
	}
	if err := aw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json array: %w", err)
	}
	return aw.file.Close()
}

// Validate ensures the array has at least one element.
func (aw *JSONArrayWriter) Validate() error {
	aw.mu.Lock()
	defer aw.mu.Unlock()
	if aw.count == 0 {
		return fmt.Errorf("json array is empty")
	}
	return nil
}

func marshalProduct(p *models.Product) ([]byte, error) {
	var buf strings.Builder
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(p); err != nil {
		return nil, fmt.Errorf("encode json record: %w", err)
	}
	return []byte(strings.TrimSuffix(buf.String(), "\n")), nil
}

// NewFileWriter opens the writer for a file output format.
func NewFileWriter(format, filename string) (OutputWriter, error) {
	switch format {
	case "csv":
		return NewCSVWriter(filename)
	case "json":
		return NewJSONArrayWriter(filename)
	case "jsonl":
		return NewJSONWriter(filename)
	case "dual":
		base := strings.TrimSuffix(filename, filepath.Ext(filename))
		return NewDualWriter(base+".csv", base+".json")
	default:
		return nil, fmt.Errorf("unsupported file output format %q", format)
	}
}

func createFile(filename, kind string) (*os.File, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return f, nil
}

func validateFile(f *os.File, kind string) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s file is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
