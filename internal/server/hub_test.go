package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdmissionAllowsNewMemberUnderCap(t *testing.T) {
	assert.NoError(t, admissionError(3, 10, false))
	assert.NoError(t, admissionError(9, 10, false))
}

func TestAdmissionRejectsFullRoom(t *testing.T) {
	assert.ErrorIs(t, admissionError(10, 10, false), errRoomFull)
	assert.ErrorIs(t, admissionError(11, 10, false), errRoomFull)
}

func TestAdmissionRejectsDuplicateIdentity(t *testing.T) {
	assert.ErrorIs(t, admissionError(3, 10, true), errAlreadyJoined)
	// A duplicate in a full room is reported as a duplicate, not as full.
	assert.ErrorIs(t, admissionError(10, 10, true), errAlreadyJoined)
}

func TestAdmissionZeroDisablesCap(t *testing.T) {
	assert.NoError(t, admissionError(1000, 0, false))
}
