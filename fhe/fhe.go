// Package fhe implements the homomorphic-encryption capability used by the
// survey ledger chaincodes.
//
// The scheme is additive Paillier: Enc(m; r) = g^m * r^n mod n^2 with g = n+1,
// so the product of two ciphertexts encrypts the sum of their plaintexts. The
// package provides key generation, an input envelope (ciphertext + binding
// proof) for values submitted from outside the ledger, and deterministic
// handle derivation for ciphertexts tracked by the fheoracle chaincode.
//
// Order comparisons (max/min) are not computable under Paillier; the oracle
// performs them inside its trusted-executor boundary. Callers on the survey
// side only ever see opaque handles.
package fhe

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

var one = big.NewInt(1)

// PublicKey holds the Paillier public parameters. JSON encoding uses the same
// hex field shape the ledger stores (n, g, n2).
type PublicKey struct {
	N  *big.Int
	G  *big.Int
	N2 *big.Int
}

// SecretKey holds the Paillier decryption parameters.
type SecretKey struct {
	Lambda *big.Int
	Mu     *big.Int
}

type publicKeyJSON struct {
	N  string `json:"n"`
	G  string `json:"g"`
	N2 string `json:"n2,omitempty"`
}

type secretKeyJSON struct {
	Lambda string `json:"lambda"`
	Mu     string `json:"mu"`
}

// MarshalJSON encodes the key as canonical lowercase hex.
func (pk *PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicKeyJSON{N: HexOf(pk.N), G: HexOf(pk.G), N2: HexOf(pk.N2)})
}

// UnmarshalJSON decodes hex fields; n2 is recomputed when absent.
func (pk *PublicKey) UnmarshalJSON(b []byte) error {
	var raw publicKeyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	n, err := ParseHex(raw.N)
	if err != nil {
		return fmt.Errorf("pk.n: %w", err)
	}
	g, err := ParseHex(raw.G)
	if err != nil {
		return fmt.Errorf("pk.g: %w", err)
	}
	var n2 *big.Int
	if raw.N2 != "" {
		if n2, err = ParseHex(raw.N2); err != nil {
			return fmt.Errorf("pk.n2: %w", err)
		}
	} else {
		n2 = new(big.Int).Mul(n, n)
	}
	pk.N, pk.G, pk.N2 = n, g, n2
	return nil
}

func (sk *SecretKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(secretKeyJSON{Lambda: HexOf(sk.Lambda), Mu: HexOf(sk.Mu)})
}

func (sk *SecretKey) UnmarshalJSON(b []byte) error {
	var raw secretKeyJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	lambda, err := ParseHex(raw.Lambda)
	if err != nil {
		return fmt.Errorf("sk.lambda: %w", err)
	}
	mu, err := ParseHex(raw.Mu)
	if err != nil {
		return fmt.Errorf("sk.mu: %w", err)
	}
	sk.Lambda, sk.Mu = lambda, mu
	return nil
}

// KeyGenerator produces Paillier key pairs of a configured modulus size.
type KeyGenerator struct {
	bits int
}

// NewKeyGenerator returns a generator for n of roughly the given bit length.
func NewKeyGenerator(bits int) *KeyGenerator {
	return &KeyGenerator{bits: bits}
}

// GenKeyPair draws two distinct primes and derives the key material.
func (kg *KeyGenerator) GenKeyPair() (*PublicKey, *SecretKey, error) {
	half := kg.bits / 2
	if half < 8 {
		return nil, nil, fmt.Errorf("modulus too small: %d bits", kg.bits)
	}
	p, err := rand.Prime(rand.Reader, half)
	if err != nil {
		return nil, nil, fmt.Errorf("gen prime p: %w", err)
	}
	var q *big.Int
	for {
		q, err = rand.Prime(rand.Reader, half)
		if err != nil {
			return nil, nil, fmt.Errorf("gen prime q: %w", err)
		}
		if q.Cmp(p) != 0 {
			break
		}
	}
	return keyPair(p, q)
}

// KeyPairFromPrimes derives a key pair from explicit primes. Intended for
// deterministic test fixtures with small moduli.
func KeyPairFromPrimes(p, q int64) (*PublicKey, *SecretKey, error) {
	return keyPair(big.NewInt(p), big.NewInt(q))
}

func keyPair(p, q *big.Int) (*PublicKey, *SecretKey, error) {
	n := new(big.Int).Mul(p, q)
	n2 := new(big.Int).Mul(n, n)
	g := new(big.Int).Add(n, one)

	// lambda = lcm(p-1, q-1)
	p1 := new(big.Int).Sub(p, one)
	q1 := new(big.Int).Sub(q, one)
	gcd := new(big.Int).GCD(nil, nil, p1, q1)
	lambda := new(big.Int).Div(p1, gcd)
	lambda.Mul(lambda, q1)

	// mu = (L(g^lambda mod n^2))^-1 mod n, L(u) = (u-1)/n
	u := new(big.Int).Exp(g, lambda, n2)
	lu := new(big.Int).Sub(u, one)
	lu.Div(lu, n)
	mu := new(big.Int).ModInverse(lu, n)
	if mu == nil {
		return nil, nil, fmt.Errorf("degenerate primes: L(g^lambda) not invertible mod n")
	}

	pk := &PublicKey{N: n, G: g, N2: n2}
	sk := &SecretKey{Lambda: lambda, Mu: mu}
	return pk, sk, nil
}

// CheckCiphertext rejects ciphertexts that cannot be valid Paillier elements:
// c must satisfy 1 < c < n^2 and gcd(c, n^2) = 1.
func CheckCiphertext(pk *PublicKey, c *big.Int) error {
	if c.Cmp(one) <= 0 || c.Cmp(pk.N2) >= 0 {
		return fmt.Errorf("ciphertext out of range")
	}
	g := new(big.Int).GCD(nil, nil, c, pk.N2)
	if g.Cmp(one) != 0 {
		return fmt.Errorf("ciphertext not invertible mod n²")
	}
	return nil
}

// DeriveHandle produces the deterministic identifier of a ciphertext tracked
// by the oracle. All endorsing peers must derive the same handle, so the
// inputs are the operation tag, its operands, and the transaction ID.
func DeriveHandle(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}

// ParseHex parses a hex string with or without 0x prefix into a big.Int.
func ParseHex(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("bad hex integer: %q", s)
	}
	return new(big.Int).SetBytes(b), nil
}

// HexOf encodes a big.Int as lowercase hex without 0x or leading zeros.
func HexOf(x *big.Int) string {
	if x == nil || x.Sign() == 0 {
		return "0"
	}
	s := strings.TrimLeft(strings.ToLower(x.Text(16)), "0")
	if s == "" {
		return "0"
	}
	return s
}
