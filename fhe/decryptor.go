package fhe

import (
	"fmt"
	"math/big"
)

// Decryptor recovers plaintexts from ciphertexts using the secret key.
type Decryptor struct {
	pk *PublicKey
	sk *SecretKey
}

// NewDecryptor returns a decryptor for the given key pair.
func NewDecryptor(pk *PublicKey, sk *SecretKey) *Decryptor {
	return &Decryptor{pk: pk, sk: sk}
}

// Decrypt returns the plaintext of c: L(c^lambda mod n^2) * mu mod n.
func (d *Decryptor) Decrypt(c *big.Int) (uint64, error) {
	if err := CheckCiphertext(d.pk, c); err != nil {
		return 0, err
	}
	u := new(big.Int).Exp(c, d.sk.Lambda, d.pk.N2)
	lu := new(big.Int).Sub(u, one)
	lu.Div(lu, d.pk.N)
	m := lu.Mul(lu, d.sk.Mu)
	m.Mod(m, d.pk.N)
	if !m.IsUint64() {
		return 0, fmt.Errorf("plaintext exceeds uint64 range")
	}
	return m.Uint64(), nil
}

// DecryptHex parses a hex ciphertext and decrypts it.
func (d *Decryptor) DecryptHex(ctHex string) (uint64, error) {
	c, err := ParseHex(ctHex)
	if err != nil {
		return 0, err
	}
	return d.Decrypt(c)
}
