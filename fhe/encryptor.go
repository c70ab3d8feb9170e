package fhe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// InputCiphertext is the envelope a caller submits to the ledger: the
// ciphertext in hex plus a proof binding it to the submitting party. The
// survey contracts forward the pair to the oracle unopened.
type InputCiphertext struct {
	CtHex string `json:"ct"`
	Proof string `json:"proof"`
}

// Encryptor encrypts plaintext values under a Paillier public key.
type Encryptor struct {
	pk *PublicKey
}

// NewEncryptor returns an encryptor for the given public key.
func NewEncryptor(pk *PublicKey) *Encryptor {
	return &Encryptor{pk: pk}
}

// Encrypt returns Enc(value; r) for a fresh randomizer r in Z*_n.
func (e *Encryptor) Encrypt(value uint64) (*big.Int, error) {
	r, err := e.randomizer()
	if err != nil {
		return nil, err
	}
	return e.encryptWith(value, r), nil
}

// EncryptInput encrypts a value and wraps it with a proof bound to party.
func (e *Encryptor) EncryptInput(value uint64, party string) (*InputCiphertext, error) {
	c, err := e.Encrypt(value)
	if err != nil {
		return nil, err
	}
	ctHex := HexOf(c)
	return &InputCiphertext{CtHex: ctHex, Proof: BindingProof(ctHex, party)}, nil
}

func (e *Encryptor) encryptWith(value uint64, r *big.Int) *big.Int {
	m := new(big.Int).SetUint64(value)
	gm := new(big.Int).Exp(e.pk.G, m, e.pk.N2)
	rn := new(big.Int).Exp(r, e.pk.N, e.pk.N2)
	c := gm.Mul(gm, rn)
	return c.Mod(c, e.pk.N2)
}

func (e *Encryptor) randomizer() (*big.Int, error) {
	for i := 0; i < 64; i++ {
		r, err := rand.Int(rand.Reader, e.pk.N)
		if err != nil {
			return nil, fmt.Errorf("draw randomizer: %w", err)
		}
		if r.Sign() == 0 {
			continue
		}
		gcd := new(big.Int).GCD(nil, nil, r, e.pk.N)
		if gcd.Cmp(one) == 0 {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no invertible randomizer found")
}

// BindingProof ties a ciphertext to the party submitting it, so an envelope
// replayed by another identity is rejected at verification. A hash tag stands
// in for the zero-knowledge proof of plaintext knowledge a production
// deployment would carry.
func BindingProof(ctHex, party string) string {
	h := sha256.Sum256([]byte(ctHex + "|" + party))
	return hex.EncodeToString(h[:])
}

// VerifyInput checks an input envelope against the public key and the
// claimed submitting party.
func VerifyInput(pk *PublicKey, in *InputCiphertext, party string) (*big.Int, error) {
	if in == nil || in.CtHex == "" {
		return nil, fmt.Errorf("empty ciphertext")
	}
	c, err := ParseHex(in.CtHex)
	if err != nil {
		return nil, err
	}
	if err := CheckCiphertext(pk, c); err != nil {
		return nil, err
	}
	if in.Proof != BindingProof(in.CtHex, party) {
		return nil, fmt.Errorf("proof does not bind ciphertext to %q", party)
	}
	return c, nil
}
