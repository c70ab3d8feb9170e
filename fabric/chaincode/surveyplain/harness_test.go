// Harness_test.go
//
// Purpose: Minimal, deterministic test harness for the surveyplain chaincode.
// Role: Provides an in-memory world-state “ledger”, a mocked Fabric
// ChaincodeStub (via gomock), and a switchable client identity so tests can
// Act as admin or as arbitrary responders without real peers or crypto
// Material.
// Key deps:
// - Hyperledger Fabric Go SDKs: chaincode-go/shim, contractapi, cid
// - gomock for stub expectations and return paths
// - Local fakes package: github.com/gjfzlisa06/zama-fhe-survey/fakes
// Notes:
// - The harness makes defensive copies of byte slices to avoid aliasing
// Between test code and the “ledger” maps.
// - Only the code paths used by the tests are mocked.

package main

import (
	"crypto/x509"
	"encoding/json"
	"strings"
	testing "testing"

	"github.com/golang/mock/gomock"
	"github.com/hyperledger/fabric-chaincode-go/v2/pkg/cid"
	"github.com/hyperledger/fabric-chaincode-go/v2/shim"
	contractapi "github.com/hyperledger/fabric-contract-api-go/v2/contractapi"

	f "github.com/gjfzlisa06/zama-fhe-survey/fakes"
)

const (
	testAdmin     = "x509::cn=admin,ou=org1"
	testResponder = "x509::cn=alice,ou=org1"
	testOther     = "x509::cn=bob,ou=org2"
)

/* in-memory WS harness */

// MemWorld is a tiny in-memory ledger used by the mock stub.
// It tracks world state (ws), emitted events, and op counts.
type memWorld struct {
	ws        map[string][]byte
	events    []struct {
		name    string
		payload []byte
	}
	opsCounts struct {
		getState, putState int
		setEvent           int
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
// Harness can swap per call (h.actAs). Certificates and attributes are not
// Exercised by this contract.
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

// TestHarness bundles the mock controller, stub, in-mem ledger, and the
// Contract under test. caller and txID are mutable so tests can simulate
// Different identities and transactions.
type testHarness struct {
	ctrl   *gomock.Controller
	ctx    contractapi.TransactionContextInterface
	stub   *f.MockChaincodeStubInterface
	mem    *memWorld
	cc     *SurveyContract
	t      *testing.T
	txID   string
	caller string
}

// NewHarness builds a mocked Fabric transaction context for unit tests.
// World state and events are wired to in-memory maps; the default caller is
// The admin identity.
func newHarness(t *testing.T) *testHarness {
	t.Helper()

	ctrl := gomock.NewController(t)
	stub := f.NewMockChaincodeStubInterface(ctrl)
	mem := newMemWorld()

	h := &testHarness{
		ctrl: ctrl, stub: stub, mem: mem,
		cc: new(SurveyContract), t: t,
		txID: "tx-0001", caller: testAdmin,
	}
	h.ctx = &simpleTxCtx{s: stub, id: &testIdentity{h: h}}

	// Return the current harness txID; tests may override it per case.
	stub.EXPECT().GetTxID().AnyTimes().DoAndReturn(func() string { return h.txID })

	// Stable channel ID used by the contract.
	stub.EXPECT().GetChannelID().AnyTimes().Return("surveychan-01")

	// Wire world state to the in-mem maps.
	stub.EXPECT().GetState(gomock.Any()).AnyTimes().DoAndReturn(mem.getState)
	stub.EXPECT().PutState(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.putState)

	// Capture events into the in-mem log for assertions.
	stub.EXPECT().SetEvent(gomock.Any(), gomock.Any()).AnyTimes().DoAndReturn(mem.setEvent)

	return h
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

// CreateQuestion appends a question under the admin identity.
// Params: text.
// Returns: new index and error from the contract.
func (h *testHarness) createQuestion(text string) (uint64, error) {
	prev := h.caller
	h.caller = testAdmin
	idx, err := h.cc.CreateQuestion(h.ctx, text)
	h.caller = prev
	return idx, err
}

// Submit records one response as the given identity.
// Params: who, index, score.
// Returns: error from the contract.
func (h *testHarness) submit(who string, index uint64, score uint32) error {
	prev := h.caller
	h.caller = who
	err := h.cc.SubmitResponse(h.ctx, index, score)
	h.caller = prev
	return err
}

// ReadQuestion fetches the raw stored Question record straight from the
// In-mem world state, bypassing the contract read path.
// Params: t, index.
// Returns: Question value.
func (h *testHarness) readQuestion(t *testing.T, index uint64) Question {
	t.Helper()
	raw, ok := h.mem.ws[questionKey(index)]
	if !ok {
		t.Fatalf("missing WS key %s", questionKey(index))
	}
	var q Question
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("bad WS json for %s: %v", questionKey(index), err)
	}
	return q
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
