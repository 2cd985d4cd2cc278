package loadcurve

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/loadprofile/internal/fsutil"
)

// DefaultFilePrefix is the file-name prefix of exported load-curve files,
// e.g. LU_ENO_DELPHI_LU_virtual_ind_00042.csv.
const DefaultFilePrefix = "LU_ENO_DELPHI_LU_virtual_ind_"

// customerIDWidth is the zero-padded width of numeric ids in file names.
const customerIDWidth = 5

// CSVSource reads one CSV file per customer from a directory.
type CSVSource struct {
	FS     fsutil.FileSystem
	Dir    string
	Prefix string
}

// NewCSVSource returns a CSVSource over dir using the default file prefix.
func NewCSVSource(fsys fsutil.FileSystem, dir string) *CSVSource {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &CSVSource{FS: fsys, Dir: dir, Prefix: DefaultFilePrefix}
}

// Path returns the file path holding a customer's series. Purely numeric
// ids are zero-padded to five digits, so "42" and "00042" name the same file.
func (s *CSVSource) Path(customerID string) string {
	id := customerID
	if isDigits(id) && len(id) < customerIDWidth {
		id = strings.Repeat("0", customerIDWidth-len(id)) + id
	}
	return filepath.Join(s.Dir, s.Prefix+id+".csv")
}

// ListCustomers returns, sorted, the ids of every CSV file in the directory
// that carries the source prefix. Other files are not series.
func (s *CSVSource) ListCustomers() ([]string, error) {
	paths, err := s.FS.Glob(filepath.Join(s.Dir, s.Prefix+"*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Dir, err)
	}
	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		ids = append(ids, CustomerIDFromPath(p))
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadSeries opens and parses the customer's CSV file.
func (s *CSVSource) ReadSeries(customerID string) ([]Reading, error) {
	path := s.Path(customerID)
	f, err := s.FS.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	readings, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return readings, nil
}

// CustomerIDFromPath extracts the customer id from a file name: the last
// underscore-separated segment of the stem.
func CustomerIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		return stem[i+1:]
	}
	return stem
}

// ParseCSV parses a "timestamp,value" CSV with a header row. Columns are
// located by header name. Any unparsable row aborts with ErrMalformedRecord.
// Values are passed through as found: negative readings are not rejected.
func ParseCSV(r io.Reader) ([]Reading, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: missing header", ErrMalformedRecord)
		}
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedRecord, err)
	}
	tsCol, valCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "timestamp":
			tsCol = i
		case "value":
			valCol = i
		}
	}
	if tsCol < 0 || valCol < 0 {
		return nil, fmt.Errorf("%w: header must contain timestamp and value columns, got %v", ErrMalformedRecord, header)
	}

	var readings []Reading
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, line, err)
		}
		if tsCol >= len(rec) || valCol >= len(rec) {
			return nil, fmt.Errorf("%w: line %d: expected %d columns, got %d", ErrMalformedRecord, line, len(header), len(rec))
		}
		ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(rec[tsCol]), time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: timestamp %q", ErrMalformedRecord, line, rec[tsCol])
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[valCol]), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: line %d: value %q", ErrMalformedRecord, line, rec[valCol])
		}
		readings = append(readings, Reading{Timestamp: ts, Value: v})
	}
	return readings, nil
}

// WriteCSV writes readings in the load-curve file format.
func WriteCSV(w io.Writer, readings []Reading) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "value"}); err != nil {
		return err
	}
	for _, r := range readings {
		row := []string{
			r.Timestamp.Format(TimestampLayout),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
