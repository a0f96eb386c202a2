package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
)

// ParseZip extracts routes.txt and stops.txt from a static GTFS archive.
// Other files are ignored.
func ParseZip(path string, logger *slog.Logger) (*Feed, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	feed := &Feed{}
	for _, f := range r.File {
		switch f.Name {
		case "routes.txt":
			feed.Routes, err = parseCSVFile[Route](f)
		case "stops.txt":
			feed.Stops, err = parseStops(f)
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", f.Name, err)
		}
	}
	if len(feed.Stops) == 0 {
		return nil, fmt.Errorf("stops.txt missing or empty")
	}

	logger.Info("GTFS feed parsed",
		"routes", len(feed.Routes),
		"stops", len(feed.Stops),
	)
	return feed, nil
}

// parseStops streams stops.txt, skipping rows without a usable id or position.
func parseStops(f *zip.File) ([]Stop, error) {
	streamer, err := OpenCSVStream[Stop](f)
	if err != nil {
		return nil, err
	}
	defer streamer.Close()

	var stops []Stop
	var s Stop
	for {
		s = Stop{}
		err := streamer.Next(&s)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read stop row %d: %w", len(stops), err)
		}
		if s.StopID == "" || s.StopLat == "" || s.StopLon == "" {
			continue
		}
		stops = append(stops, s)
	}
	return stops, nil
}

// parseCSVFile reads a single CSV file from the zip and decodes it into a slice of T.
func parseCSVFile[T any](f *zip.File) ([]T, error) {
	rc, reader, header, err := openCSV(f)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	fieldMap := buildFieldMap[T](header)
	var results []T
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		results = append(results, decodeRecord[T](record, fieldMap))
	}
	return results, nil
}

// openCSV opens a zip member as CSV and reads its header row.
func openCSV(f *zip.File) (io.ReadCloser, *csv.Reader, []string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open file: %w", err)
	}

	reader := csv.NewReader(rc)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		rc.Close()
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}
	// Strip BOM from first field if present
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\xef\xbb\xbf")
	}
	return rc, reader, header, nil
}

// CSVStreamer yields one decoded record at a time from a zip member.
type CSVStreamer struct {
	rc       io.ReadCloser
	reader   *csv.Reader
	fieldMap []fieldMapping
}

type fieldMapping struct {
	csvIndex   int
	fieldIndex int
}

// OpenCSVStream opens a CSV file from the zip for streaming into T values.
func OpenCSVStream[T any](f *zip.File) (*CSVStreamer, error) {
	rc, reader, header, err := openCSV(f)
	if err != nil {
		return nil, err
	}
	return &CSVStreamer{
		rc:       rc,
		reader:   reader,
		fieldMap: buildFieldMap[T](header),
	}, nil
}

// Next reads the next record into out, a pointer to the streamed type.
// Returns io.EOF when done.
func (s *CSVStreamer) Next(out any) error {
	record, err := s.reader.Read()
	if err != nil {
		return err
	}
	fill(reflect.ValueOf(out).Elem(), record, s.fieldMap)
	return nil
}

// Close releases the underlying reader.
func (s *CSVStreamer) Close() error {
	return s.rc.Close()
}

// buildFieldMap maps CSV column positions to struct fields by csv tag.
func buildFieldMap[T any](header []string) []fieldMapping {
	var t T
	typ := reflect.TypeOf(t)

	tagToField := make(map[string]int)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("csv"); tag != "" {
			tagToField[tag] = i
		}
	}

	var mappings []fieldMapping
	for csvIdx, colName := range header {
		if fieldIdx, ok := tagToField[strings.TrimSpace(colName)]; ok {
			mappings = append(mappings, fieldMapping{csvIndex: csvIdx, fieldIndex: fieldIdx})
		}
	}
	return mappings
}

func decodeRecord[T any](record []string, fieldMap []fieldMapping) T {
	var t T
	fill(reflect.ValueOf(&t).Elem(), record, fieldMap)
	return t
}

func fill(v reflect.Value, record []string, fieldMap []fieldMapping) {
	for _, fm := range fieldMap {
		if fm.csvIndex < len(record) {
			v.Field(fm.fieldIndex).SetString(record[fm.csvIndex])
		}
	}
}
