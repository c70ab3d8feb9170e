// Harness_test.go
//
// Purpose: Minimal, deterministic test harness for the surveyenc chaincode.
// Role: Provides an in-memory world-state “ledger”, a mocked Fabric
// ChaincodeStub (via gomock), a switchable client identity, and an in-process
// Oracle stub that answers cc2cc calls with real homomorphic arithmetic over
// A toy key pair. Tests drive the contract without peers, orderers, or crypto
// Material.
// Key deps:
// - Hyperledger Fabric Go SDKs: chaincode-go/shim, contractapi, cid, protos (peer)
// - gomock for stub expectations and return paths
// - Local fhe package for the toy Paillier key pair and envelope checks
// - Local fakes package: github.com/gjfzlisa06/zama-fhe-survey/fakes
// Notes:
// - The oracle stub keeps a handle→plaintext map the way the real oracle
// Keeps its private value store; tests read it to “decrypt off-chain”.
// - Only the code paths used by the tests are mocked.

package main

import (
	"crypto/x509"
	"encoding/json"
	"strconv"
	"strings"
	testing "testing"

	pb "github.com/hyperledger/fabric-protos-go-apiv2/peer"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	contractapi "github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	f "github.com/gjfzlisa06/zama-fhe-survey/fakes"
	"github.com/gjfzlisa06/zama-fhe-survey/fhe"
)

const (
	testAdmin     = "x509::cn=admin,ou=org1"
	testDecrypter = "x509::cn=analyst,ou=org1"
	testResponder = "x509::cn=alice,ou=org1"
	testOther     = "x509::cn=bob,ou=org2"

	testOracleCC = "fheoracle"
)

/* in-memory WS harness */

// MemWorld is a tiny in-memory ledger used by the mock stub.
// It tracks world state (ws), emitted events, and op counts.
type memWorld struct {
	ws     map[string][]byte
	events []struct {
		name    string
		payload []byte
	}
	opsCounts struct {
		getState, putState, delState int
		setEvent                     int
	}
}

func newMemWorld() *memWorld {
	return &memWorld{ws: make(map[string][]byte)}
}

// GetState simulates GetState on the in-mem world state.
// Copies the value before returning to avoid aliasing in tests.
// Params: key (string).
// Returns: value ([]byte) or nil, error (always nil here).
func (m *memWorld) getState(key string) ([]byte, error) {
	m.opsCounts.getState++
	if v, ok := m.ws[key]; ok {
		return append([]byte(nil), v...), nil // Copy for safety
	}
	return nil, nil
}

// PutState simulates PutState on the in-mem world state.
// Params: key, value.
// Returns: error (always nil here).
func (m *memWorld) putState(key string, val []byte) error {
	m.opsCounts.putState++
	m.ws[key] = append([]byte(nil), val...) // Copy for safety
	return nil
}

// DelState simulates DelState on the in-mem world state.
// Params: key.
// Returns: error (always nil here).
func (m *memWorld) delState(key string) error {
	m.opsCounts.delState++
	delete(m.ws, key)
	return nil
}

// SetEvent records a chaincode event into the in-mem log.
// Params: name, payload.
// Returns: error (always nil here).
func (m *memWorld) setEvent(name string, payload []byte) error {
	m.opsCounts.setEvent++
	m.events = append(m.events, struct {
		name    string
		payload []byte
	}{name: name, payload: append([]byte(nil), payload...)}) // Copy for safety
	return nil
}

/* switchable client identity */

// TestIdentity satisfies cid.ClientIdentity with a plain string ID that the
// Harness can swap per call (h.actAs).
type testIdentity struct{ h *testHarness }

func (id *testIdentity) GetID() (string, error)    { return id.h.caller, nil }
func (id *testIdentity) GetMSPID() (string, error) { return "Org1MSP", nil }
func (id *testIdentity) GetX509Certificate() (*x509.Certificate, error) {
	return nil, nil
}
func (id *testIdentity) GetAttributeValue(string) (string, bool, error) {
	return "", false, nil
}
func (id *testIdentity) AssertAttributeValue(string, string) error { return nil }

/* tx context w/ real stub (no gomock ctx) */

// SimpleTxCtx adapts a raw shim.ChaincodeStubInterface plus the switchable
// Identity to a contractapi TransactionContext.
type simpleTxCtx struct {
	s  shim.ChaincodeStubInterface
	id cid.ClientIdentity
}

// GetStub returns the underlying ChaincodeStubInterface.
func (c *simpleTxCtx) GetStub() shim.ChaincodeStubInterface { return c.s }

// GetClientIdentity returns the harness-controlled identity.
func (c *simpleTxCtx) GetClientIdentity() cid.ClientIdentity { return c.id }

/* test harness (single definition) */

// TestHarness bundles the mock controller, stub, in-mem ledger, oracle stub
// State, and the contract under test. caller and txID are mutable so tests
// Can simulate different identities and transactions.
type testHarness struct {
	ctrl   *gomock.Controller
	ctx    contractapi.TransactionContextInterface
	stub   *f.MockChaincodeStubInterface
	mem    *memWorld
	cc     *EncSurveyContract
	t      *testing.T
	txID   string
	caller string

	// Oracle stub state: toy key pair plus the handle → plaintext store the
	// Real oracle keeps in its private data collection.
	pk   *fhe.PublicKey
	sk   *fhe.SecretKey
	vals map[string]uint64
}

// NewHarness builds a mocked Fabric transaction context for unit tests.
// World state and events are wired to in-memory maps; cc2cc calls to the
// Oracle are answered in-process with real arithmetic over a toy key pair.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ctrl := gomock.NewController(t)
	stub := f.NewMockChaincodeStubInterface(ctrl)
	mem := newMemWorld()

	pk, sk, err := fhe.KeyPairFromPrimes(61, 53)
	if err != nil {
		t.Fatalf("toy key pair: %v", err)
	}

	h := &testHarness{
		ctrl: ctrl, stub: stub, mem: mem,
		cc: new(EncSurveyContract), t: t,
		txID: "tx-0001", caller: testAdmin,
		pk: pk, sk: sk, vals: make(map[string]uint64),
	}
	h.ctx = &simpleTxCtx{s: stub, id: &testIdentity{h: h}}

	// Return the current harness txID; tests may override it per case.
	stub.EXPECT().GetTxID().AnyTimes().DoAndReturn(func() string { return h.txID })

	// Stable channel ID used by the contract.
	stub.EXPECT().GetChannelID().AnyTimes().Return("surveychan-01")

	// Wire world state to the in-mem maps.
	stub.EXPECT().GetState(gomock.Any()).AnyTimes().DoAndReturn(mem.getState)
	stub.EXPECT().PutState(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.putState)
	stub.EXPECT().DelState(gomock.Any()).AnyTimes().DoAndReturn(mem.delState)

	// Capture events into the in-mem log for assertions.
	stub.EXPECT().SetEvent(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.setEvent)

	h.stubOracleCC()
	return h
}

/* cc2cc oracle stub (pointer return matches the shim) */

// StubOracleCC wires gomock expectations to answer oracle calls in-process.
// It mirrors the real oracle's observable behavior: envelope verification,
// Deterministic handle derivation, and plaintext arithmetic behind handles.
// Params: none.
// Returns: none.
func (h *testHarness) stubOracleCC() {
	okHandle := func(handle string, v uint64) *pb.Response {
		h.vals[handle] = v
		return &pb.Response{Status: int32(shim.OK), Payload: []byte(handle)}
	}
	fail := func(msg string) *pb.Response {
		return &pb.Response{Status: int32(shim.ERROR), Message: msg}
	}

	h.stub.EXPECT().
		InvokeChaincode(
			gomock.Eq(testOracleCC),
			gomock.AssignableToTypeOf([][]byte{}),
			gomock.Any(),
		).
		AnyTimes().
		DoAndReturn(func(cc string, args [][]byte, ch string) *pb.Response {
			if len(args) == 0 {
				return fail("missing fcn")
			}
			fcn := string(args[0])
			rest := make([]string, 0, len(args)-1)
			for _, a := range args[1:] {
				rest = append(rest, string(a))
			}
			switch fcn {
			case "VerifyCiphertext":
				if len(rest) < 3 {
					return fail("bad args for VerifyCiphertext")
				}
				ctHex, proof, party := rest[0], rest[1], rest[2]
				in := &fhe.InputCiphertext{CtHex: ctHex, Proof: proof}
				c, err := fhe.VerifyInput(h.pk, in, party)
				if err != nil {
					return fail("verify: " + err.Error())
				}
				dec := fhe.NewDecryptor(h.pk, h.sk)
				v, err := dec.Decrypt(c)
				if err != nil {
					return fail("decrypt: " + err.Error())
				}
				return okHandle(fhe.DeriveHandle("INPUT", fhe.HexOf(c), h.txID), v)
			case "TrivialEncrypt":
				if len(rest) < 2 {
					return fail("bad args for TrivialEncrypt")
				}
				v, err := strconv.ParseUint(rest[0], 10, 64)
				if err != nil {
					return fail("bad value: " + err.Error())
				}
				return okHandle(fhe.DeriveHandle("TRIVIAL", rest[0], rest[1], h.txID), v)
			case "HomAdd", "HomMax", "HomMin":
				if len(rest) < 2 {
					return fail("bad args for " + fcn)
				}
				a, aok := h.vals[rest[0]]
				b, bok := h.vals[rest[1]]
				if !aok || !bok {
					return fail("unknown handle for " + fcn)
				}
				var v uint64
				switch fcn {
				case "HomAdd":
					v = a + b
				case "HomMax":
					v = a
					if b > v {
						v = b
					}
				case "HomMin":
					v = a
					if b < v {
						v = b
					}
				}
				op := strings.ToUpper(strings.TrimPrefix(fcn, "Hom"))
				return okHandle(fhe.DeriveHandle(op, rest[0], rest[1], h.txID), v)
			case "Decrypt":
				if len(rest) < 1 {
					return fail("bad args for Decrypt")
				}
				v, ok := h.vals[rest[0]]
				if !ok {
					return fail("unknown handle")
				}
				return &pb.Response{Status: int32(shim.OK), Payload: []byte(strconv.FormatUint(v, 10))}
			default:
				return &pb.Response{Status: 404, Message: "not mocked: " + fcn}
			}
		})
}

/* small helpers */

// ActAs switches the caller identity seen by the contract.
// Params: id.
// Returns: none.
func (h *testHarness) actAs(id string) { h.caller = id }

// SetTxID overrides the txID seen by the contract for the next operations.
// Params: id.
// Returns: none.
func (h *testHarness) setTxID(id string) { h.txID = id }

// InitAsAdmin runs Initialize under the admin identity and restores the
// Caller afterwards.
// Params: none.
// Returns: error from Initialize.
func (h *testHarness) initAsAdmin() error {
	prev := h.caller
	h.caller = testAdmin
	err := h.cc.Initialize(h.ctx)
	h.caller = prev
	return err
}

// SetDecrypter appoints a decrypter under the admin identity.
// Params: who (empty clears).
// Returns: error from the contract.
func (h *testHarness) setDecrypter(who string) error {
	prev := h.caller
	h.caller = testAdmin
	err := h.cc.SetDecrypter(h.ctx, who)
	h.caller = prev
	return err
}

// EncFor produces a bound input envelope for a value and party using the
// Toy key pair — the same math a gateway client would run.
// Params: t, value, party.
// Returns: ciphertext hex and binding proof.
func (h *testHarness) encFor(t *testing.T, value uint64, party string) (string, string) {
	t.Helper()
	enc := fhe.NewEncryptor(h.pk)
	in, err := enc.EncryptInput(value, party)
	if err != nil {
		t.Fatalf("encrypt input: %v", err)
	}
	return in.CtHex, in.Proof
}

// CreateQuestion appends an encrypted question under the admin identity,
// Supplying a freshly encrypted lowest sentinel.
// Params: t, text.
// Returns: new index and error from the contract.
func (h *testHarness) createQuestion(t *testing.T, text string) (uint64, error) {
	t.Helper()
	ct, proof := h.encFor(t, sentinelLowest, testAdmin)
	prev := h.caller
	h.caller = testAdmin
	idx, err := h.cc.CreateEncryptedQuestion(h.ctx, text, ct, proof)
	h.caller = prev
	return idx, err
}

// Submit folds one encrypted score in as the given identity, minting both
// Envelopes (score and one) bound to that identity.
// Params: t, who, index, score.
// Returns: error from the contract.
func (h *testHarness) submit(t *testing.T, who string, index uint64, score uint64) error {
	t.Helper()
	scoreCt, scoreProof := h.encFor(t, score, who)
	oneCt, oneProof := h.encFor(t, 1, who)
	prev := h.caller
	h.caller = who
	err := h.cc.SubmitEncryptedResponse(h.ctx, index, scoreCt, scoreProof, oneCt, oneProof)
	h.caller = prev
	return err
}

// OpenHandle resolves a handle to its plaintext through the oracle stub's
// Value store, the way the decrypter would off-chain.
// Params: t, handle.
// Returns: plaintext value.
func (h *testHarness) openHandle(t *testing.T, handle string) uint64 {
	t.Helper()
	v, ok := h.vals[handle]
	if !ok {
		t.Fatalf("unknown handle %q", handle)
	}
	return v
}

// ReadQuestion fetches the raw stored EncQuestion record straight from the
// In-mem world state, bypassing the contract read path.
// Params: t, index.
// Returns: EncQuestion value.
func (h *testHarness) readQuestion(t *testing.T, index uint64) EncQuestion {
	t.Helper()
	raw, ok := h.mem.ws[questionKey(index)]
	if !ok {
		t.Fatalf("missing WS key %s", questionKey(index))
	}
	var q EncQuestion
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("bad WS json for %s: %v", questionKey(index), err)
	}
	return q
}

// ReadGrant fetches the grant record for a handle from world state.
// Params: t, handle.
// Returns: GrantRecord value.
func (h *testHarness) readGrant(t *testing.T, handle string) GrantRecord {
	t.Helper()
	raw, ok := h.mem.ws[aclKey(handle)]
	if !ok {
		t.Fatalf("missing grant for handle %s", handle)
	}
	var g GrantRecord
	if err := json.Unmarshal(raw, &g); err != nil {
		t.Fatalf("bad grant json for %s: %v", handle, err)
	}
	return g
}

// RequireNoErr fails the test immediately if err != nil, labeling it unexpected.
// Params: t, err.
// Returns: none.
func requireNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// RequireErrContains asserts that err is non-nil and its message contains wantSubstr (case-insensitive).
// Params: t, err, wantSubstr (may be empty to assert only non-nil).
// Returns: none.
func requireErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", wantSubstr)
	}
	if wantSubstr != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(wantSubstr)) {
		t.Fatalf("error %q does not contain %q", err.Error(), wantSubstr)
	}
}
