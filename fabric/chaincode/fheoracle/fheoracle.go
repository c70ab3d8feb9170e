// -----------------------------------------------------------------------------
// fheoracle contract (Go, Fabric v3.1.1)
// Purpose: Homomorphic-encryption capability chaincode. Owns the mapping from
// Opaque ciphertext handles to values and performs every operation on them;
// Decryption material never leaves its private data collections.
// Role in system: Trusted-executor boundary consulted by the survey ledger
// Contracts over cc2cc; verifies externally encrypted inputs, mints encrypted
// Constants, and evaluates add/max/min behind fresh handles.
// Key dependencies: Hyperledger Fabric contractapi; private data collections
// For the secret key and the handle-addressed value store; local fhe package
// For Paillier arithmetic and envelope checks.
// -----------------------------------------------------------------------------

/*
fheoracle — homomorphic-encryption capability chaincode.

The survey ledger contracts treat encrypted values as opaque handles; this
chaincode owns the mapping from handle to value and performs every operation
on it. It is the trusted-executor boundary: order comparisons (max/min) are
not computable under Paillier, so the oracle evaluates them on plaintexts it
keeps in a private data collection, and no plaintext ever crosses back into
public state.

Exports:
  1) Initialize(pkJSON)
       PUBLIC state:  FHEPK → Paillier public key JSON
       PRIVATE DATA "fhe_keys_pdc": secret key via transient["secret"]
  2) VerifyCiphertext(ctHex, proof, party) → handle
       Validates the input envelope (range, invertibility, binding proof),
       decrypts it internally, and registers a fresh handle.
  3) TrivialEncrypt(value, tag) → handle
       Registers a contract-minted constant under a deterministic handle.
  4) HomAdd / HomMax / HomMin(a, b) → handle
  5) Decrypt(handle) → value
  6) GetPublicKey() → stored public key JSON
*/
package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	"github.com/gjfzlisa06/zama-fhe-survey/fhe"
)

const (
	valuesPDC = "fhe_values_pdc"
	keysPDC   = "fhe_keys_pdc"

	keyPublicKey = "FHEPK"
	keySecretKey = "SK"
)

func valueKey(handle string) string { return "CT::" + handle }

type valueRec struct {
	V uint64 `json:"v"`
}

// OracleContract implements the handle-addressed value store and the
// homomorphic primitives over it.
type OracleContract struct {
	contractapi.Contract
}

// Initialize stores the public key and loads the secret key from the
// transient map. It refuses to run twice.
func (o *OracleContract) Initialize(ctx contractapi.TransactionContextInterface, pkJSON string) error {
	existing, err := ctx.GetStub().GetState(keyPublicKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("oracle already initialized")
	}

	var pk fhe.PublicKey
	if err := json.Unmarshal([]byte(pkJSON), &pk); err != nil {
		return fmt.Errorf("bad pk json: %w", err)
	}
	canon, _ := json.Marshal(&pk)
	if err := ctx.GetStub().PutState(keyPublicKey, canon); err != nil {
		return err
	}

	tm, err := ctx.GetStub().GetTransient()
	if err != nil {
		return fmt.Errorf("get transient: %w", err)
	}
	raw, ok := tm["secret"]
	if !ok || len(raw) == 0 {
		return fmt.Errorf("transient[secret] missing")
	}
	var sk fhe.SecretKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return fmt.Errorf("bad sk json: %w", err)
	}
	skCanon, _ := json.Marshal(&sk)
	return ctx.GetStub().PutPrivateData(keysPDC, keySecretKey, skCanon)
}

// GetPublicKey returns the stored public key JSON.
func (o *OracleContract) GetPublicKey(ctx contractapi.TransactionContextInterface) (string, error) {
	raw, err := ctx.GetStub().GetState(keyPublicKey)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", fmt.Errorf("public key not set")
	}
	return string(raw), nil
}

func (o *OracleContract) loadPK(ctx contractapi.TransactionContextInterface) (*fhe.PublicKey, error) {
	raw, err := ctx.GetStub().GetState(keyPublicKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("public key not set")
	}
	var pk fhe.PublicKey
	if err := json.Unmarshal(raw, &pk); err != nil {
		return nil, fmt.Errorf("pk json: %w", err)
	}
	return &pk, nil
}

func (o *OracleContract) loadSK(ctx contractapi.TransactionContextInterface) (*fhe.SecretKey, error) {
	raw, err := ctx.GetStub().GetPrivateData(keysPDC, keySecretKey)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("secret key not loaded")
	}
	var sk fhe.SecretKey
	if err := json.Unmarshal(raw, &sk); err != nil {
		return nil, fmt.Errorf("sk json: %w", err)
	}
	return &sk, nil
}

func (o *OracleContract) putValue(ctx contractapi.TransactionContextInterface, handle string, v uint64) error {
	b, _ := json.Marshal(valueRec{V: v})
	return ctx.GetStub().PutPrivateData(valuesPDC, valueKey(handle), b)
}

func (o *OracleContract) getValue(ctx contractapi.TransactionContextInterface, handle string) (uint64, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return 0, fmt.Errorf("empty handle")
	}
	raw, err := ctx.GetStub().GetPrivateData(valuesPDC, valueKey(handle))
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, fmt.Errorf("unknown handle %s", handle)
	}
	var rec valueRec
	if err := json.Unmarshal(raw, &rec); err != nil {
		return 0, fmt.Errorf("value json: %w", err)
	}
	return rec.V, nil
}

// VerifyCiphertext accepts an externally encrypted input. The envelope must
// pass range and invertibility checks and the proof must bind the ciphertext
// to the submitting party.
func (o *OracleContract) VerifyCiphertext(ctx contractapi.TransactionContextInterface, ctHex, proof, party string) (string, error) {
	pk, err := o.loadPK(ctx)
	if err != nil {
		return "", err
	}
	in := &fhe.InputCiphertext{CtHex: strings.TrimSpace(ctHex), Proof: strings.TrimSpace(proof)}
	c, err := fhe.VerifyInput(pk, in, party)
	if err != nil {
		return "", err
	}
	sk, err := o.loadSK(ctx)
	if err != nil {
		return "", err
	}
	v, err := fhe.NewDecryptor(pk, sk).Decrypt(c)
	if err != nil {
		return "", err
	}
	handle := fhe.DeriveHandle("INPUT", fhe.HexOf(c), ctx.GetStub().GetTxID())
	if err := o.putValue(ctx, handle, v); err != nil {
		return "", err
	}
	return handle, nil
}

// TrivialEncrypt registers a contract-minted constant. The tag keeps handles
// distinct when one transaction mints the same value more than once.
func (o *OracleContract) TrivialEncrypt(ctx contractapi.TransactionContextInterface, value uint64, tag string) (string, error) {
	handle := fhe.DeriveHandle("TRIVIAL", strconv.FormatUint(value, 10), tag, ctx.GetStub().GetTxID())
	if err := o.putValue(ctx, handle, value); err != nil {
		return "", err
	}
	return handle, nil
}

func (o *OracleContract) binaryOp(ctx contractapi.TransactionContextInterface, op, a, b string) (string, error) {
	va, err := o.getValue(ctx, a)
	if err != nil {
		return "", err
	}
	vb, err := o.getValue(ctx, b)
	if err != nil {
		return "", err
	}
	var v uint64
	switch op {
	case "ADD":
		v = va + vb
	case "MAX":
		v = va
		if vb > va {
			v = vb
		}
	case "MIN":
		v = va
		if vb < va {
			v = vb
		}
	default:
		return "", fmt.Errorf("unknown op %q", op)
	}
	handle := fhe.DeriveHandle(op, a, b, ctx.GetStub().GetTxID())
	if err := o.putValue(ctx, handle, v); err != nil {
		return "", err
	}
	return handle, nil
}

// HomAdd returns a fresh handle for plaintext(a) + plaintext(b).
func (o *OracleContract) HomAdd(ctx contractapi.TransactionContextInterface, a, b string) (string, error) {
	return o.binaryOp(ctx, "ADD", a, b)
}

// HomMax returns a fresh handle for max(plaintext(a), plaintext(b)).
func (o *OracleContract) HomMax(ctx contractapi.TransactionContextInterface, a, b string) (string, error) {
	return o.binaryOp(ctx, "MAX", a, b)
}

// HomMin returns a fresh handle for min(plaintext(a), plaintext(b)).
func (o *OracleContract) HomMin(ctx contractapi.TransactionContextInterface, a, b string) (string, error) {
	return o.binaryOp(ctx, "MIN", a, b)
}

// Decrypt resolves a handle to its plaintext. Intended for the designated
// decrypter and offline tooling; the survey contracts never call it.
func (o *OracleContract) Decrypt(ctx contractapi.TransactionContextInterface, handle string) (uint64, error) {
	return o.getValue(ctx, handle)
}

func main() {
	cc, err := contractapi.NewChaincode(new(OracleContract))
	if err != nil {
		panic(err)
	}
	if err := cc.Start(); err != nil {
		panic(err)
	}
}
