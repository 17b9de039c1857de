package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

func sampleProduct() *models.Product {
	price := 1299.5
	return &models.Product{
		URL:         "http://example.test/products/kurta",
		Name:        "Printed Kurta",
		Price:       &price,
		Currency:    "₹",
		SKU:         "SU-1",
		Size:        "M",
		Color:       "Red",
		Sizes:       []string{"M", "L"},
		Colors:      []string{"Red"},
		Description: "Soft cotton.",
		Images:      []string{"https://cdn.example.test/a.jpg", "https://cdn.example.test/b.jpg"},
		Details:     map[string]string{"Fabric": "Cotton"},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "product_url" || records[0][len(records[0])-1] != "currency" {
		t.Fatalf("unexpected header: %v", records[0])
	}

	row := records[1]
	tests := []struct {
		column int
		want   string
	}{
		{column: 0, want: "http://example.test/products/kurta"},
		{column: 2, want: "1299.5"},
		{column: 6, want: "M,L"},
		{column: 10, want: "https://cdn.example.test/a.jpg,https://cdn.example.test/b.jpg"},
		{column: 11, want: `{"Fabric":"Cotton"}`},
		{column: 12, want: "₹"},
	}
	for _, tt := range tests {
		if row[tt.column] != tt.want {
			t.Errorf("column %s = %q, want %q", records[0][tt.column], row[tt.column], tt.want)
		}
	}
}

func TestCSVRecordWithoutPrice(t *testing.T) {
	record, err := csvRecord(&models.Product{URL: "http://example.test/products/x"})
	if err != nil {
		t.Fatalf("csv record: %v", err)
	}
	if len(record) != len(csvHeader) {
		t.Fatalf("record has %d columns, header %d", len(record), len(csvHeader))
	}
	if record[2] != "" || record[11] != "" {
		t.Fatalf("missing price and details should be empty, got %q %q", record[2], record[11])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct(), sampleProduct()}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Product
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.Name != "Printed Kurta" {
			t.Fatalf("name = %q", decoded.Name)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 2 {
		t.Fatalf("json lines=%d, want 2", count)
	}
}

func TestJSONArrayWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.json")

	writer, err := NewJSONArrayWriter(path)
	if err != nil {
		t.Fatalf("create json array writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("empty array should fail validation")
	}
	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded []models.Product
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json array: %v\n%s", err, data)
	}
	if len(decoded) != 2 {
		t.Fatalf("elements=%d, want 2", len(decoded))
	}
	if !strings.Contains(string(data), "₹") {
		t.Fatalf("currency symbol should not be escaped")
	}
}

func TestEmptyJSONArrayIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	writer, err := NewJSONArrayWriter(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var decoded []models.Product
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("empty output should be a valid array: %v", err)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.json")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.Product{sampleProduct()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewFileWriter(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		format  string
		file    string
		want    string
		wantErr bool
	}{
		{format: "csv", file: "out.csv", want: "*pipeline.CSVWriter"},
		{format: "json", file: "out.json", want: "*pipeline.JSONArrayWriter"},
		{format: "jsonl", file: "out.jsonl", want: "*pipeline.JSONWriter"},
		{format: "dual", file: "out.csv", want: "*pipeline.DualWriter"},
		{format: "xml", file: "out.xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			writer, err := NewFileWriter(tt.format, filepath.Join(dir, tt.format, tt.file))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.format)
				}
				return
			}
			if err != nil {
				t.Fatalf("new writer: %v", err)
			}
			defer writer.Close()
			if got := typeName(writer); got != tt.want {
				t.Fatalf("writer type = %s, want %s", got, tt.want)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "dual", "out.json")); err != nil {
		t.Fatalf("dual json sibling not created: %v", err)
	}
}

func typeName(w OutputWriter) string {
	switch w.(type) {
	case *CSVWriter:
		return "*pipeline.CSVWriter"
	case *JSONArrayWriter:
		return "*pipeline.JSONArrayWriter"
	case *JSONWriter:
		return "*pipeline.JSONWriter"
	case *DualWriter:
		return "*pipeline.DualWriter"
	default:
		return "unknown"
	}
}

type fakeBatchResults struct {
	failAt int
	calls  int
	closed bool
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	r.calls++
	if r.failAt > 0 && r.calls == r.failAt {
		return pgconn.CommandTag{}, errors.New("unique violation")
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }

func (r *fakeBatchResults) QueryRow() pgx.Row { return nil }

func (r *fakeBatchResults) Close() error {
	r.closed = true
	return nil
}

type fakePG struct {
	execs   []string
	batches []*pgx.Batch
	results *fakeBatchResults
	closed  bool
}

func (f *fakePG) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakePG) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.batches = append(f.batches, b)
	return f.results
}

func (f *fakePG) Close() {
	f.closed = true
}

func TestPostgresWriterUpsertsBatch(t *testing.T) {
	conn := &fakePG{results: &fakeBatchResults{}}
	writer, err := newPostgresWriter(context.Background(), conn)
	if err != nil {
		t.Fatalf("new postgres writer: %v", err)
	}
	writer.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if len(conn.execs) != 1 || !strings.Contains(conn.execs[0], "CREATE TABLE IF NOT EXISTS products") {
		t.Fatalf("schema not created: %v", conn.execs)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("validate should fail before any write")
	}

	if err := writer.Write([]*models.Product{sampleProduct(), {URL: "http://example.test/products/bare"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(conn.batches) != 1 || conn.batches[0].Len() != 2 {
		t.Fatalf("expected one batch of 2 queries")
	}
	if !conn.results.closed {
		t.Fatalf("batch results should be closed")
	}

	bare := conn.batches[0].QueuedQueries[1].Arguments
	if sizes, ok := bare[7].([]string); !ok || sizes == nil {
		t.Fatalf("nil size list should be sent as an empty array, got %#v", bare[7])
	}
	if details := bare[12].(string); details != "{}" {
		t.Fatalf("details = %q, want {}", details)
	}

	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil || !conn.closed {
		t.Fatalf("close should release the pool")
	}
}

func TestPostgresWriterReportsFailingRow(t *testing.T) {
	conn := &fakePG{results: &fakeBatchResults{failAt: 2}}
	writer, err := newPostgresWriter(context.Background(), conn)
	if err != nil {
		t.Fatalf("new postgres writer: %v", err)
	}

	second := sampleProduct()
	second.URL = "http://example.test/products/second"
	err = writer.Write([]*models.Product{sampleProduct(), second})
	if err == nil || !strings.Contains(err.Error(), second.URL) {
		t.Fatalf("expected error naming %s, got %v", second.URL, err)
	}
}
