// Package csvio loads and saves the CSV datasets the rewriting pipeline
// operates on. It handles delimiter detection, UTF-8 BOM tolerance, and
// output path derivation so the rest of the pipeline only sees ordered
// headers and rows keyed by column name.
package csvio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultDelimiter is used when detection finds nothing better.
const DefaultDelimiter = ';'

// detectSampleSize bounds how much of the file is read for delimiter detection.
const detectSampleSize = 8192

// preferredDelimiters are the candidates considered during detection,
// in tie-breaking order.
var preferredDelimiters = []rune{';', ',', '\t', '|'}

const utf8BOM = "\ufeff"

// Dataset is a fully loaded CSV file: ordered header, rows keyed by
// column name, and the delimiter it was read with.
type Dataset struct {
	Header    []string
	Records   []map[string]string
	Delimiter rune
}

// DetectDelimiter infers the delimiter of the CSV file at path by scoring
// candidate separators over the first line of a sample. Returns
// DefaultDelimiter when the sample is empty or no candidate appears.
func DetectDelimiter(path string) (rune, error) {
	f, err := os.Open(path)
	if err != nil {
		return DefaultDelimiter, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	// Detection is best-effort: a failed sample read falls back to the
	// default delimiter instead of aborting the run.
	buf := make([]byte, detectSampleSize)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return DefaultDelimiter, nil
	}
	sample := strings.TrimPrefix(string(buf[:n]), utf8BOM)
	if sample == "" {
		return DefaultDelimiter, nil
	}

	firstLine := sample
	if idx := strings.IndexAny(sample, "\r\n"); idx >= 0 {
		firstLine = sample[:idx]
	}

	best := rune(0)
	bestCount := 0
	for _, cand := range preferredDelimiters {
		count := countOutsideQuotes(firstLine, cand)
		if count > bestCount {
			best = cand
			bestCount = count
		}
	}
	if bestCount == 0 {
		return DefaultDelimiter, nil
	}
	return best, nil
}

// countOutsideQuotes counts occurrences of sep in line, ignoring any that
// fall inside double-quoted sections.
func countOutsideQuotes(line string, sep rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == sep && !inQuotes:
			count++
		}
	}
	return count
}

// Load reads the CSV at path into a Dataset. A zero delimiter triggers
// auto-detection. A leading UTF-8 byte-order mark is stripped.
func Load(path string, delimiter rune) (*Dataset, error) {
	if delimiter == 0 {
		detected, err := DetectDelimiter(path)
		if err != nil {
			return nil, err
		}
		delimiter = detected
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(stripBOM(f))
	reader.Comma = delimiter
	// Ragged rows are tolerated: short records get empty strings for the
	// missing columns, long ones drop the extras.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: missing header row", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}

	records := make([]map[string]string, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d from %s: %w", len(records)+2, path, err)
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(record) {
				fields[name] = record[i]
			} else {
				fields[name] = ""
			}
		}
		records = append(records, fields)
	}

	return &Dataset{
		Header:    header,
		Records:   records,
		Delimiter: delimiter,
	}, nil
}

// Save writes the dataset to path using its header order and delimiter,
// creating the parent directory if needed.
func Save(path string, ds *Dataset) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	writer := csv.NewWriter(bw)
	writer.Comma = ds.Delimiter

	if err := writer.Write(ds.Header); err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}

	record := make([]string, len(ds.Header))
	for i, fields := range ds.Records {
		for j, name := range ds.Header {
			record[j] = fields[name]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d to %s: %w", i+2, path, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return nil
}

// BuildOutputPath returns provided when non-empty, otherwise derives the
// output path by appending "_rewritten" before the input's extension.
func BuildOutputPath(inputPath, provided string) string {
	if provided != "" {
		return provided
	}
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	if ext == "" {
		ext = ".csv"
	}
	return base + "_rewritten" + ext
}

// stripBOM removes a leading UTF-8 byte-order mark from the reader.
func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(len(utf8BOM))
	if err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
