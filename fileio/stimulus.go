package fileio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidStimulus is returned for malformed stimulus files or descriptions
var ErrInvalidStimulus = errors.New("invalid stimulus file")

// Stimulus types
const (
	StimulusImage = "image"
	StimulusVideo = "video"
)

// ColumnKind is the value type of a stimulus table column
type ColumnKind int

const (
	KindInt ColumnKind = iota
	KindFloat
	KindString
)

func (k ColumnKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "string"
	}
}

// Column is one named column of the stimulus table. Only the slice matching
// Kind is populated.
type Column struct {
	Name    string
	Kind    ColumnKind
	Ints    []int64
	Floats  []float64
	Strings []string
}

// IntColumn builds an integer column
func IntColumn(name string, values ...int64) Column {
	return Column{Name: name, Kind: KindInt, Ints: values}
}

// FloatColumn builds a float column
func FloatColumn(name string, values ...float64) Column {
	return Column{Name: name, Kind: KindFloat, Floats: values}
}

// StringColumn builds a string column
func StringColumn(name string, values ...string) Column {
	return Column{Name: name, Kind: KindString, Strings: values}
}

// Len returns the number of rows in the column
func (c Column) Len() int {
	switch c.Kind {
	case KindInt:
		return len(c.Ints)
	case KindFloat:
		return len(c.Floats)
	default:
		return len(c.Strings)
	}
}

func (c Column) format(row int) string {
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(c.Ints[row], 10)
	case KindFloat:
		s := strconv.FormatFloat(c.Floats[row], 'g', -1, 64)
		// keep integral floats readable as floats
		if !strings.ContainsAny(s, ".eEIN") {
			s += ".0"
		}
		return s
	default:
		return c.Strings[row]
	}
}

// quoteString writes string values quoted so they never read back as
// numbers and an empty single-column row is not a blank line
func quoteString(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// parseColumn types raw values as int, then float, else string. A column
// with any quoted field is a string column.
func parseColumn(name string, raw []string, quoted bool) Column {
	if quoted {
		return StringColumn(name, raw...)
	}
	ints := make([]int64, len(raw))
	isInt := true
	for i, s := range raw {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			isInt = false
			break
		}
		ints[i] = v
	}
	if isInt {
		return IntColumn(name, ints...)
	}

	floats := make([]float64, len(raw))
	for i, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return StringColumn(name, raw...)
		}
		floats[i] = v
	}
	return FloatColumn(name, floats...)
}

// Stimulus is the content of a stimulus description file
type Stimulus struct {
	Type    string // StimulusImage or StimulusVideo
	Path    string // directory or video file the IDs refer to
	Title   string
	Columns []Column
}

// Column returns the column with the given name
func (s *Stimulus) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Rows returns the row count, which every column shares
func (s *Stimulus) Rows() int {
	if len(s.Columns) == 0 {
		return 0
	}
	return s.Columns[0].Len()
}

func (s *Stimulus) validate() error {
	if s.Type != StimulusImage && s.Type != StimulusVideo {
		return fmt.Errorf("%w: type %q, want %q or %q", ErrInvalidStimulus, s.Type, StimulusImage, StimulusVideo)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no data columns", ErrInvalidStimulus)
	}
	seen := make(map[string]bool, len(s.Columns))
	rows := s.Columns[0].Len()
	for _, c := range s.Columns {
		if c.Name == "" || strings.ContainsAny(c.Name, "\r\n") {
			return fmt.Errorf("%w: bad column name %q", ErrInvalidStimulus, c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidStimulus, c.Name)
		}
		seen[c.Name] = true
		if c.Len() != rows {
			return fmt.Errorf("%w: column %s has %d rows, %s has %d",
				ErrInvalidStimulus, c.Name, c.Len(), s.Columns[0].Name, rows)
		}
	}
	for _, v := range []string{s.Path, s.Title} {
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: header values must be single-line", ErrInvalidStimulus)
		}
	}
	return nil
}

// StimulusFile reads and writes stimulus files:
//
//	type=image
//	path=/data/images
//	title=ImageNet validation subset
//	data=stimID,RT
//	n01930112_19568.JPEG,3.6309
type StimulusFile struct {
	Path string
}

// NewStimulusFile returns a handle for the file at path
func NewStimulusFile(path string) *StimulusFile {
	return &StimulusFile{Path: path}
}

// Read parses the file
func (f *StimulusFile) Read() (*Stimulus, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stimulus file: %w", err)
	}
	defer file.Close()

	stim, err := DecodeStimulus(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return stim, nil
}

// Write replaces the file with stim
func (f *StimulusFile) Write(stim *Stimulus) error {
	file, err := os.Create(f.Path)
	if err != nil {
		return fmt.Errorf("failed to create stimulus file: %w", err)
	}
	if err := EncodeStimulus(file, stim); err != nil {
		file.Close()
		return fmt.Errorf("%s: %w", f.Path, err)
	}
	return file.Close()
}

// DecodeStimulus reads a stimulus description from r
func DecodeStimulus(r io.Reader) (*Stimulus, error) {
	br := bufio.NewReader(r)
	stim := &Stimulus{}

	var header []string
	for header == nil {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: missing data= header", ErrInvalidStimulus)
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: expected key=value, got %q", ErrInvalidStimulus, line)
		}
		switch strings.TrimSpace(key) {
		case "type":
			stim.Type = value
		case "path":
			stim.Path = value
		case "title":
			stim.Title = value
		case "data":
			header, err = csv.NewReader(strings.NewReader(value)).Read()
			if err != nil {
				return nil, fmt.Errorf("%w: bad data header: %v", ErrInvalidStimulus, err)
			}
		default:
			return nil, fmt.Errorf("%w: unknown header key %q", ErrInvalidStimulus, key)
		}
	}

	rest, err := io.ReadAll(br)
	if err != nil {
		return nil, err
	}
	lines := bytes.Split(rest, []byte("\n"))

	cr := csv.NewReader(bytes.NewReader(rest))
	cr.FieldsPerRecord = len(header)
	quoted := make([]bool, len(header))
	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidStimulus, err)
		}
		for i := range rec {
			line, col := cr.FieldPos(i)
			if line-1 < len(lines) && col-1 < len(lines[line-1]) && lines[line-1][col-1] == '"' {
				quoted[i] = true
			}
		}
		records = append(records, rec)
	}

	for c, name := range header {
		raw := make([]string, len(records))
		for r, rec := range records {
			raw[r] = rec[c]
		}
		stim.Columns = append(stim.Columns, parseColumn(name, raw, quoted[c]))
	}

	if err := stim.validate(); err != nil {
		return nil, err
	}
	return stim, nil
}

// EncodeStimulus writes stim to w
func EncodeStimulus(w io.Writer, stim *Stimulus) error {
	if err := stim.validate(); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "type=%s\n", stim.Type)
	if stim.Path != "" {
		fmt.Fprintf(bw, "path=%s\n", stim.Path)
	}
	if stim.Title != "" {
		fmt.Fprintf(bw, "title=%s\n", stim.Title)
	}

	names := make([]string, len(stim.Columns))
	for i, c := range stim.Columns {
		names[i] = c.Name
	}
	bw.WriteString("data=")

	cw := csv.NewWriter(bw)
	if err := cw.Write(names); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}

	row := make([]string, len(stim.Columns))
	for r := 0; r < stim.Rows(); r++ {
		for i, c := range stim.Columns {
			if c.Kind == KindString {
				row[i] = quoteString(c.Strings[r])
			} else {
				row[i] = c.format(r)
			}
		}
		bw.WriteString(strings.Join(row, ","))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
