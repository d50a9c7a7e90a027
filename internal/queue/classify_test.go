package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySuccess(t *testing.T) {
	assert.Equal(t, outcomeOK, classify(nil, 0, 3))
}

func TestClassifyDelayWithinBudget(t *testing.T) {
	got := classify(Delay(errors.New("transient")), 1, 3)
	assert.Equal(t, outcomeDelay, got)
}

func TestClassifyDelayExceedsBudget(t *testing.T) {
	got := classify(Delay(errors.New("transient")), 4, 3)
	assert.Equal(t, outcomeFailed, got)
}

func TestClassifyExplicitFailAtAnyCount(t *testing.T) {
	assert.Equal(t, outcomeFailed, classify(Fail(errors.New("bad payload")), 0, 3))
}

func TestClassifyUntaggedErrorDefaultsToFailed(t *testing.T) {
	assert.Equal(t, outcomeFailed, classify(errors.New("boom"), 0, 3))
}

func TestDelayIsDetectedThroughWrapping(t *testing.T) {
	err := Delay(errors.New("inner"))
	assert.True(t, isDelay(err))
	assert.True(t, errors.Is(err, ErrDelay))
	assert.False(t, errors.Is(err, ErrFailed))
}

func TestFailIsNotDelay(t *testing.T) {
	err := Fail(errors.New("inner"))
	assert.False(t, isDelay(err))
	assert.True(t, errors.Is(err, ErrFailed))
}
