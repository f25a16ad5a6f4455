package dectmon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDeriveUAK_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var pin = rapid.StringN(0, 8, -1).Draw(t, "pin")
		var rs = rapid.Uint64().Draw(t, "rs")

		assert.Equal(t, DeriveUAK(pin, rs), DeriveUAK(pin, rs))
	})
}

func TestDeriveUAK_EmptyOrNonNumericPinStillProducesKey(t *testing.T) {
	// Section 8 boundary behavior: "UAK derivation still runs but will
	// not verify; system remains stable."
	var uak = DeriveUAK("", 0xdeadbeef)

	assert.NotPanics(t, func() {
		_ = ComputeRES1(uak, 0xdeadbeef, 0xcafef00d)
	})

	var nonNumeric = DeriveUAK("abcd", 0xdeadbeef)
	assert.NotEqual(t, uak, nonNumeric)
}

func TestComputeRES1_MatchesOnSameInputs(t *testing.T) {
	var uak = DeriveUAK("1234", 0x1111222233334444)
	var rs = uint64(0x1111222233334444)
	var randF = uint64(0x5555666677778888)

	assert.Equal(t, ComputeRES1(uak, rs, randF), ComputeRES1(uak, rs, randF))
}

func TestComputeRES1_DiffersFromDeriveDCK(t *testing.T) {
	// RES1 and DCK derivation must never collide even given identical
	// (uak, rs, randF) inputs (auth.go's domain separation).
	var uak = DeriveUAK("0000", 42)
	var rs = uint64(42)
	var randF = uint64(99)

	var res1 = ComputeRES1(uak, rs, randF)
	var dck = DeriveDCK(uak, rs, randF)

	assert.NotEqual(t, res1[:], dck[:])
}

func TestDeriveDCK_DifferentRSYieldsDifferentKey(t *testing.T) {
	var uak = DeriveUAK("0000", 1)

	var a = DeriveDCK(uak, 1, 100)
	var b = DeriveDCK(uak, 2, 100)

	assert.NotEqual(t, a, b)
}
