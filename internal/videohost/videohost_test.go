package videohost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyToken_DeterministicPerMeetingAndAttempt(t *testing.T) {
	a := IdempotencyToken("m1", 1)
	b := IdempotencyToken("m1", 1)
	assert.Equal(t, a, b)
}

func TestIdempotencyToken_DiffersByAttempt(t *testing.T) {
	a := IdempotencyToken("m1", 1)
	b := IdempotencyToken("m1", 2)
	assert.NotEqual(t, a, b)
}

func TestIdempotencyToken_DiffersByMeeting(t *testing.T) {
	a := IdempotencyToken("m1", 1)
	b := IdempotencyToken("m2", 1)
	assert.NotEqual(t, a, b)
}
