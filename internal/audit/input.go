package audit

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFile is returned for extensions other than csv, xlsx and xlsm.
var ErrUnsupportedFile = errors.New("audit: unsupported file type")

// Source is either a path on disk or an in-memory upload with its declared filename.
// The extension of the name selects the reader.
type Source struct {
	path string
	name string
	data []byte
}

// FromPath reads the file at path when loaded.
func FromPath(path string) Source {
	return Source{path: path, name: filepath.Base(path)}
}

// FromBytes wraps uploaded content; filename supplies the extension.
func FromBytes(filename string, data []byte) Source {
	return Source{name: filename, data: data}
}

// Name is the file name used for dispatch and messages.
func (s Source) Name() string { return s.name }

// Ext is the lower-cased extension including the dot.
func (s Source) Ext() string { return strings.ToLower(filepath.Ext(s.name)) }

func (s Source) open() ([]byte, error) {
	if s.path == "" {
		return s.data, nil
	}
	return os.ReadFile(s.path)
}

// Table is a header row plus data rows, every row padded to the header width.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Load reads the source into a table. Blank rows are skipped.
func Load(src Source) (*Table, error) {
	var read func([]byte) ([][]string, error)
	switch src.Ext() {
	case ".csv":
		read = readCSV
	case ".xlsx", ".xlsm":
		read = readWorkbook
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFile, src.Name())
	}

	data, err := src.open()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Name(), err)
	}
	records, err := read(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", src.Name(), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse %s: file has no header row", src.Name())
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}
	t := &Table{Headers: headers}
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make([]string, len(headers))
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func readWorkbook(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	// Raw values keep date cells as serial numbers instead of locale-formatted text.
	return f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
