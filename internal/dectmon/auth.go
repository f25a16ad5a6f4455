package dectmon

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"

	"golang.org/x/crypto/hkdf"
)

/*------------------------------------------------------------------
 *
 * Purpose:	Passive authentication derivation (4.C): UAK from PIN,
 *		RES1 from UAK/RS/RAND_F, DCK from UAK/RS/RAND_F.
 *
 * Description:	DSAA (the DECT Standard Authentication Algorithm) is,
 *		like DSC, licensed by ETSI rather than published in
 *		full. This implements the same external contract
 *		(input/output sizes, which inputs feed which output)
 *		using golang.org/x/crypto/hkdf plus AES and HMAC-SHA256
 *		as the underlying primitives, rather than claiming
 *		bit-exact DSAA compliance. See DESIGN.md.
 *
 *------------------------------------------------------------------*/

const (
	uakLen  = 16 // 128-bit UAK
	dckLen  = 8  // 64-bit DCK
	res1Len = 4  // 32-bit RES1
)

// DeriveUAK computes the 128-bit User Authentication Key from an
// ASCII PIN and the 64-bit RS nonce observed in a KEY-ALLOCATE
// message. The PIN is zero-padded to 16 bytes per the DECT
// key-allocation convention referenced in 4.C before being used as
// HKDF input key material; an empty or non-numeric PIN still produces
// a (non-matching) UAK rather than an error, per section 8's boundary
// behavior.
func DeriveUAK(pin string, rs uint64) [uakLen]byte {
	var padded [16]byte
	copy(padded[:], pin)

	var rsBytes [8]byte
	binary.BigEndian.PutUint64(rsBytes[:], rs)

	var h = hkdf.New(sha256.New, padded[:], rsBytes[:], []byte("dect-uak"))

	var uak [uakLen]byte
	_, _ = h.Read(uak[:])

	return uak
}

// ComputeRES1 produces the 32-bit response a PT must return to prove
// possession of UAK, given RS and RAND_F. Matching an observed RES
// confirms the PIN.
func ComputeRES1(uak [uakLen]byte, rs uint64, randF uint64) [res1Len]byte {
	var full = dsaaBlock(uak, rs, randF, 0x01)

	var res1 [res1Len]byte
	copy(res1[:], full[:res1Len])

	return res1
}

// DeriveDCK produces the 64-bit Derived Cipher Key from UAK, RS and
// RAND_F.
func DeriveDCK(uak [uakLen]byte, rs uint64, randF uint64) [dckLen]byte {
	var full = dsaaBlock(uak, rs, randF, 0x02)

	var dck [dckLen]byte
	copy(dck[:], full[:dckLen])

	return dck
}

// dsaaBlock is the shared block-cipher-keyed construction behind
// ComputeRES1 and DeriveDCK: AES-128 encrypt the RS||RAND_F block
// under a key derived from UAK and domain via HMAC-SHA256, returning
// the whole 16-byte block for the caller to take a prefix of. domain
// distinguishes the RES1 derivation from
// the DCK derivation so they never collide even with identical
// (uak, rs, randF) inputs.
func dsaaBlock(uak [uakLen]byte, rs uint64, randF uint64, domain byte) [aes.BlockSize]byte {
	var mac = hmac.New(sha256.New, uak[:])
	mac.Write([]byte{domain})

	var key [16]byte
	copy(key[:], mac.Sum(nil))

	var block, err = aes.NewCipher(key[:])
	assertf(err == nil, "aes.NewCipher with 16-byte key: %v", err)

	var plaintext [aes.BlockSize]byte
	binary.BigEndian.PutUint64(plaintext[0:8], rs)
	binary.BigEndian.PutUint64(plaintext[8:16], randF)

	var ciphertext [aes.BlockSize]byte
	block.Encrypt(ciphertext[:], plaintext[:])

	return ciphertext
}
