package model

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FieldReader is just a simple reader for whitespace-delimited text data.
type FieldReader struct {
	Pos    int
	Fields []string
}

// NewFieldReader constructs a new field reader around the given data
func NewFieldReader(data string) *FieldReader {
	return &FieldReader{0, strings.Fields(data)}
}

// Read returns the next space-delimited field/token
func (fr *FieldReader) Read() (string, error) {
	if fr.Pos >= len(fr.Fields) {
		return "", io.EOF
	}
	p := fr.Pos
	fr.Pos++
	return fr.Fields[p], nil
}

// ReadFloat reads the next token as a float
func (fr *FieldReader) ReadFloat() (float64, error) {
	s, err := fr.Read()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(s, 64)
}

// GroupObs is one group's observations from a two-column listing
type GroupObs struct {
	Name   string
	Values []float64
}

// ReadGroupData parses whitespace-separated "group value" pairs into
// per-group observation vectors. Groups appear in first-seen order, which
// keeps node naming stable for a given input. This is the entire on-disk
// surface: a model is hand-built in code, only its observations come from a
// file.
func ReadGroupData(data string) ([]GroupObs, error) {
	fr := NewFieldReader(data)

	idx := make(map[string]int)
	obs := make([]GroupObs, 0, 8)

	for {
		name, err := fr.Read()
		if err == io.EOF {
			break
		}

		v, err := fr.ReadFloat()
		if err != nil {
			return nil, errors.Wrapf(err, "Group %s is missing a usable value", name)
		}

		i, ok := idx[name]
		if !ok {
			i = len(obs)
			idx[name] = i
			obs = append(obs, GroupObs{Name: name})
		}
		obs[i].Values = append(obs[i].Values, v)
	}

	if len(obs) < 1 {
		return nil, errors.Errorf("No observations found")
	}

	return obs, nil
}
