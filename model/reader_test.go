package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupReader(t *testing.T) {
	assert := assert.New(t)

	obs, err := ReadGroupData("a 1.5\nb 2\na 2.5\nc -0.5 b 4\n")
	assert.NoError(err)

	assert.Equal([]GroupObs{
		{Name: "a", Values: []float64{1.5, 2.5}},
		{Name: "b", Values: []float64{2, 4}},
		{Name: "c", Values: []float64{-0.5}},
	}, obs)
}

func TestGroupReaderErrors(t *testing.T) {
	assert := assert.New(t)

	// empty, whitespace only, odd token count, non-numeric values
	cases := []string{
		"",
		"   \n\t ",
		"a 1.5 b",
		"a 1.5 b x",
		"a one.five",
	}

	for _, c := range cases {
		_, err := ReadGroupData(c)
		assert.Error(err, "%q should not parse", c)
	}
}
