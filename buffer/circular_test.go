package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircularFloat(t *testing.T) {
	assert := assert.New(t)

	cf := NewCircularFloat(6)
	assert.Equal(6, cf.BufSize)
	assert.Equal(0, cf.Count)

	cf.Add(1.5)
	cf.Add(2.5)
	cf.Add(3.5)
	cf.Add(4.5)
	cf.Add(5.5)
	assert.Equal(6, cf.BufSize)
	assert.Equal(5, cf.Count)
	assert.Nil(cf.FirstHalf())
	assert.Nil(cf.SecondHalf())

	cf.Add(6.5)
	assert.Equal(6, cf.BufSize)
	assert.Equal(6, cf.Count)

	exp := 0.5
	for iter := cf.FirstHalf(); iter.Next(); {
		val := iter.Value()
		exp++
		assert.Equal(exp, val)
	}
	for iter := cf.SecondHalf(); iter.Next(); {
		val := iter.Value()
		exp++
		assert.Equal(exp, val)
	}

	// 1.5 2.5 3.5 4.5 5.5 6.5 add 8.5 add 8.5 => 8.5 8.5 3.5 4.5 5.5 6.5
	// So first=3.5,4.5,5.5 second=6.5,8.5,8.5
	cf.Add(8.5)
	cf.Add(8.5)
	expVals := []float64{3.5, 4.5, 5.5, 6.5, 8.5, 8.5}
	idx := 0
	for iter := cf.FirstHalf(); iter.Next(); {
		val := iter.Value()
		exp := expVals[idx]
		idx++
		assert.Equal(exp, val)
	}
	for iter := cf.SecondHalf(); iter.Next(); {
		val := iter.Value()
		exp := expVals[idx]
		idx++
		assert.Equal(exp, val)
	}
}

func TestCircularFloatOddSize(t *testing.T) {
	assert := assert.New(t)

	cf := NewCircularFloat(7)
	assert.Equal(6, cf.BufSize) // rounded down to even

	for i := 0; i < 6; i++ {
		cf.Add(float64(i))
	}
	assert.Equal(int64(6), cf.TotalSeen)
	assert.NotNil(cf.FirstHalf())
}
