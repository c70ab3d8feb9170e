// -----------------------------------------------------------------------------
// surveyenc contract (Go, Fabric v3.1.1)
// Purpose: Encrypted variant of the survey aggregation ledger. Questions carry
// Four ciphertext handles (count, sum, highest, lowest) instead of plaintext
// Aggregates; all arithmetic is delegated to the fheoracle chaincode, which
// Holds the decryption material in private data collections.
// Role in system: Admin creates questions and appoints a decrypter; any
// Identity submits encrypted scores; the decrypter publishes plaintext
// Snapshots through the disclosure channel; the read path serves handles and
// Published snapshots, never plaintext derived from ciphertext.
// Key dependencies: Hyperledger Fabric contractapi and client identity;
// Cc2cc InvokeChaincode to the fheoracle on the same channel.
// -----------------------------------------------------------------------------

/*
surveyenc.go — Hyperledger Fabric chaincode for the encrypted survey ledger.

State layout:
- ADMIN           → normalized admin identity (set once by Initialize).
- DECRYPTER       → normalized decrypter identity (absent when unset).
- PARAMS          → runtime toggles (events, text clamp, oracle name).
- EQCOUNT         → store length as decimal string.
- EQ::<index>     → EncQuestion JSON with four ciphertext handles.
- STATS::<index>  → published plaintext snapshot (disclosure channel).
- ACL::<handle>   → JSON grant record for one handle.

Handles are opaque 64-char hex strings minted by the oracle; this contract
never sees plaintext scores. Aggregate updates replace all four handles in a
single record write, and grants are recorded for every fresh handle. The
decrypter is trusted for disclosure: published snapshots are stored as given,
with no cross-check against the ciphertext state.
*/
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

/* Keys & constants (single namespace for this chaincode) */

const (
	keyAdmin          = "ADMIN"
	keyDecrypter      = "DECRYPTER"
	keyParams         = "PARAMS"
	keyQuestionCount  = "EQCOUNT"
	keyQuestionPrefix = "EQ::"    // EQ::<index> → EncQuestion JSON
	keyStatsPrefix    = "STATS::" // STATS::<index> → PlainStats JSON
	keyACLPrefix      = "ACL::"   // ACL::<handle> → grant record JSON
)

const (
	eventQuestionCreated     = "QuestionCreated"
	eventResponseSubmitted   = "ResponseSubmitted"
	eventDecrypterChanged    = "DecrypterChanged"
	eventPlainStatsPublished = "PlainStatsPublished"
)

// Lowest starts above every legal score so the first submission always
// Replaces it. The encrypted sentinel arrives from the admin as a verified
// Input at question creation.
const sentinelLowest = 255

/* Error taxonomy */

// Sentinel errors for every failure class a caller can hit. Wrapped with
// context at each failure site; inspect with errors.Is.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidQuestion        = errors.New("invalid question")
	ErrInvalidCiphertext      = errors.New("invalid ciphertext")
	ErrDecrypterNotConfigured = errors.New("decrypter not configured")
)

/* Types & small data models */

// EncSurveyContract implements the encrypted survey ledger.
//
// Responsibilities:
// - Guard question creation behind the admin and disclosure behind the
//   decrypter.
// - Route every ciphertext through the oracle before it touches state.
// - Maintain grant records so handle custody stays auditable on-chain.
type EncSurveyContract struct{ contractapi.Contract }

// EncQuestion is the stored record for one encrypted question. The four
// Fields hold oracle handles, never ciphertext bytes.
type EncQuestion struct {
	Text    string `json:"text"`
	Total   string `json:"total"`
	Sum     string `json:"sum"`
	Highest string `json:"highest"`
	Lowest  string `json:"lowest"`
	Exists  bool   `json:"exists"`
}

// EncQuestionStats is the read-side projection: text plus the handles. A
// Caller without decrypt rights receives handles it cannot open.
type EncQuestionStats struct {
	Text    string `json:"text"`
	Total   string `json:"total"`
	Sum     string `json:"sum"`
	Highest string `json:"highest"`
	Lowest  string `json:"lowest"`
}

// PlainStats is one published disclosure snapshot. It reflects whatever the
// Decrypter published last; the contract never derives these numbers itself.
type PlainStats struct {
	TotalResponses uint32 `json:"totalResponses"`
	Sum            uint32 `json:"sum"`
	Average        uint32 `json:"average"`
	Highest        uint8  `json:"highest"`
	Lowest         uint8  `json:"lowest"`
	Exists         bool   `json:"exists"`
	PublishedBy    string `json:"publishedBy"`
	TxID           string `json:"txId"`
}

// PublishedSummary rolls up across published snapshots only.
type PublishedSummary struct {
	QuestionCount  uint64 `json:"questionCount"`
	PublishedCount uint64 `json:"publishedCount"`
	TotalResponses uint64 `json:"totalResponses"`
	MeanAverage    uint32 `json:"meanAverage"`
}

// GrantRecord lists the identities allowed to ask the oracle about one
// Handle. Operate covers homomorphic use; decrypt covers disclosure.
type GrantRecord struct {
	Operate []string `json:"operate"`
	Decrypt []string `json:"decrypt"`
}

// Params contains runtime toggles stored on-chain (PARAMS key) and merged
// over defaults on every read.
type Params struct {
	EmitEvents         bool   `json:"EMIT_EVENTS"`
	MaxQuestionTextLen int    `json:"MAX_QUESTION_TEXT_LEN"`
	OracleCCName       string `json:"ORACLE_CC_NAME"`
}

/* Small helpers */

// mustJSON marshals v and ignores errors (used for events and small writes).
func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

func questionKey(index uint64) string {
	return keyQuestionPrefix + strconv.FormatUint(index, 10)
}

func statsKey(index uint64) string {
	return keyStatsPrefix + strconv.FormatUint(index, 10)
}

func aclKey(handle string) string { return keyACLPrefix + handle }

// normalizeIdentity canonicalizes a caller identity for comparison. Identity
// strings compare case-insensitively in this domain.
func normalizeIdentity(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// callerID resolves the invoking identity from the transaction context.
func callerID(ctx contractapi.TransactionContextInterface) (string, error) {
	ci := ctx.GetClientIdentity()
	if ci == nil {
		return "", fmt.Errorf("no client identity")
	}
	id, err := ci.GetID()
	if err != nil {
		return "", fmt.Errorf("resolve caller: %w", err)
	}
	id = normalizeIdentity(id)
	if id == "" {
		return "", fmt.Errorf("empty caller identity")
	}
	return id, nil
}

func getParams(ctx contractapi.TransactionContextInterface) (*Params, error) {
	p := &Params{
		EmitEvents:         true,
		MaxQuestionTextLen: 256,
		OracleCCName:       "fheoracle",
	}
	if b, err := ctx.GetStub().GetState(keyParams); err == nil && b != nil {
		var on Params
		if json.Unmarshal(b, &on) == nil {
			if on.OracleCCName == "" {
				on.OracleCCName = p.OracleCCName
			}
			return &on, nil
		}
	}
	return p, nil
}

func getCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	raw, err := ctx.GetStub().GetState(keyQuestionCount)
	if err != nil {
		return 0, err
	}
	if raw == nil {
		return 0, nil
	}
	n, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt question count: %w", err)
	}
	return n, nil
}

func putCount(ctx contractapi.TransactionContextInterface, n uint64) error {
	return ctx.GetStub().PutState(keyQuestionCount, []byte(strconv.FormatUint(n, 10)))
}

func getQuestion(ctx contractapi.TransactionContextInterface, index uint64) (*EncQuestion, error) {
	count, err := getCount(ctx)
	if err != nil {
		return nil, err
	}
	if index >= count {
		return nil, fmt.Errorf("%w: index %d out of range (count %d)", ErrInvalidQuestion, index, count)
	}
	raw, err := ctx.GetStub().GetState(questionKey(index))
	if err != nil {
		return nil, err
	}
	var q EncQuestion
	if raw == nil || json.Unmarshal(raw, &q) != nil || !q.Exists {
		return nil, fmt.Errorf("%w: question %d missing", ErrInvalidQuestion, index)
	}
	return &q, nil
}

// requireAdmin fails with ErrUnauthorized for every identity except the one
// recorded by Initialize.
func requireAdmin(ctx contractapi.TransactionContextInterface) (string, error) {
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	raw, err := ctx.GetStub().GetState(keyAdmin)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", fmt.Errorf("%w: contract not initialized", ErrUnauthorized)
	}
	if caller != string(raw) {
		return "", fmt.Errorf("%w: caller is not admin", ErrUnauthorized)
	}
	return caller, nil
}

// requireDecrypter fails closed: an unset decrypter rejects everyone with
// ErrDecrypterNotConfigured before any identity comparison happens.
func requireDecrypter(ctx contractapi.TransactionContextInterface) (string, error) {
	raw, err := ctx.GetStub().GetState(keyDecrypter)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: no disclosure possible", ErrDecrypterNotConfigured)
	}
	caller, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	if caller != string(raw) {
		return "", fmt.Errorf("%w: caller is not the decrypter", ErrUnauthorized)
	}
	return caller, nil
}

/* cc2cc to the oracle */

// CallOracle is a safe wrapper for oracle functions on the same channel.
// Params: ctx, oracle CC name, function, args.
// Return: payload string (surrounding JSON quotes trimmed) or error on
// Non-200 or empty payload.
func callOracle(ctx contractapi.TransactionContextInterface, oracleCC, fcn string, args ...string) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("cc2cc %s: nil ctx", fcn)
	}
	s := ctx.GetStub()
	if s == nil {
		return "", fmt.Errorf("cc2cc %s: nil stub", fcn)
	}

	// Guard against typed-nil stub (interface is non-nil but underlying pointer is nil).
	if rv := reflect.ValueOf(s); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return "", fmt.Errorf("cc2cc %s: nil underlying stub", fcn)
	}

	argv := make([][]byte, 0, 1+len(args))
	argv = append(argv, []byte(fcn))
	for _, a := range args {
		argv = append(argv, []byte(a))
	}

	resp := s.InvokeChaincode(oracleCC, argv, "") // "" => same channel

	if resp.Status != 200 || len(resp.Payload) == 0 {
		return "", fmt.Errorf("cc2cc %s(%s) status=%d message=%q",
			fcn, strings.Join(args, ","), resp.Status, resp.Message)
	}
	// The contract API may JSON-quote scalar payloads; tolerate both shapes.
	return strings.Trim(string(resp.Payload), `"`), nil
}

// verifyInput routes a caller-supplied ciphertext envelope through the
// oracle. Any oracle rejection maps to ErrInvalidCiphertext.
func verifyInput(ctx contractapi.TransactionContextInterface, params *Params, ctHex, proof, party string) (string, error) {
	h, err := callOracle(ctx, params.OracleCCName, "VerifyCiphertext", ctHex, proof, party)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return h, nil
}

// mintZero asks the oracle for a contract-minted encrypted constant. The tag
// keeps same-value mints distinguishable within one transaction.
func mintZero(ctx contractapi.TransactionContextInterface, params *Params, tag string) (string, error) {
	return callOracle(ctx, params.OracleCCName, "TrivialEncrypt", "0", tag)
}

// recordGrants writes one ACL record per fresh handle. Grants are append-
// Style: records for superseded handles stay on the ledger as history.
func recordGrants(ctx contractapi.TransactionContextInterface, handles []string, g GrantRecord) error {
	for _, h := range handles {
		if h == "" {
			continue
		}
		if err := ctx.GetStub().PutState(aclKey(h), mustJSON(&g)); err != nil {
			return err
		}
	}
	return nil
}

// decrypterOrEmpty reads the configured decrypter without failing when unset.
func decrypterOrEmpty(ctx contractapi.TransactionContextInterface) (string, error) {
	raw, err := ctx.GetStub().GetState(keyDecrypter)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// grantFor builds the standard grant set for fresh aggregate handles: the
// contract operates, the submitter and the decrypter (when set) may decrypt.
func grantFor(submitter, decrypter string) GrantRecord {
	g := GrantRecord{Operate: []string{"surveyenc"}}
	if submitter != "" {
		g.Decrypt = append(g.Decrypt, submitter)
	}
	if decrypter != "" && decrypter != submitter {
		g.Decrypt = append(g.Decrypt, decrypter)
	}
	return g
}

/* Admin / Setup */

// Initialize records the invoking identity as the single admin. It can run
// exactly once; the admin is immutable afterwards.
func (c *EncSurveyContract) Initialize(ctx contractapi.TransactionContextInterface) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	existing, err := ctx.GetStub().GetState(keyAdmin)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("already initialized")
	}
	return ctx.GetStub().PutState(keyAdmin, []byte(caller))
}

// SetDecrypter appoints or replaces the single decrypter identity. Admin
// only. An empty string clears the appointment, which disables disclosure
// until a new decrypter is set.
func (c *EncSurveyContract) SetDecrypter(ctx contractapi.TransactionContextInterface, decrypter string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	old, err := decrypterOrEmpty(ctx)
	if err != nil {
		return err
	}
	next := normalizeIdentity(decrypter)
	if next == "" {
		if err := ctx.GetStub().DelState(keyDecrypter); err != nil {
			return err
		}
	} else if err := ctx.GetStub().PutState(keyDecrypter, []byte(next)); err != nil {
		return err
	}
	if params, _ := getParams(ctx); params.EmitEvents {
		_ = ctx.GetStub().SetEvent(eventDecrypterChanged, mustJSON(map[string]any{
			"old": old,
			"new": next,
		}))
	}
	return nil
}

// GetDecrypter returns the configured decrypter identity, empty when unset.
func (c *EncSurveyContract) GetDecrypter(ctx contractapi.TransactionContextInterface) (string, error) {
	return decrypterOrEmpty(ctx)
}

// SetParams merges runtime parameter overrides into the stored PARAMS blob.
func (c *EncSurveyContract) SetParams(ctx contractapi.TransactionContextInterface, paramsJSON string) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	cur, err := getParams(ctx)
	if err != nil {
		return err
	}
	var merged map[string]any
	_ = json.Unmarshal(mustJSON(cur), &merged)

	var upd map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &upd); err != nil {
		return fmt.Errorf("bad params json: %w", err)
	}
	for k, v := range upd {
		merged[k] = v
	}
	return ctx.GetStub().PutState(keyParams, mustJSON(merged))
}

// GetParams reads back the stored runtime parameters.
func (c *EncSurveyContract) GetParams(ctx contractapi.TransactionContextInterface) (*Params, error) {
	return getParams(ctx)
}

/* Hot path */

// CreateEncryptedQuestion appends a question whose aggregate lives entirely
// in ciphertext handles. The admin supplies the encrypted lowest sentinel as
// a bound input envelope (it must decrypt above every legal score); total,
// sum and highest start as contract-minted encrypted zeros.
func (c *EncSurveyContract) CreateEncryptedQuestion(ctx contractapi.TransactionContextInterface, text, sentinelCtHex, sentinelProof string) (uint64, error) {
	admin, err := requireAdmin(ctx)
	if err != nil {
		return 0, err
	}
	params, _ := getParams(ctx)

	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("question text empty")
	}
	if len(text) > params.MaxQuestionTextLen {
		return 0, fmt.Errorf("question text too long")
	}

	index, err := getCount(ctx)
	if err != nil {
		return 0, err
	}

	lowest, err := verifyInput(ctx, params, sentinelCtHex, sentinelProof, admin)
	if err != nil {
		return 0, err
	}
	idx := strconv.FormatUint(index, 10)
	total, err := mintZero(ctx, params, "q"+idx+":total")
	if err != nil {
		return 0, err
	}
	sum, err := mintZero(ctx, params, "q"+idx+":sum")
	if err != nil {
		return 0, err
	}
	highest, err := mintZero(ctx, params, "q"+idx+":highest")
	if err != nil {
		return 0, err
	}

	decrypter, err := decrypterOrEmpty(ctx)
	if err != nil {
		return 0, err
	}
	if err := recordGrants(ctx, []string{total, sum, highest, lowest}, grantFor("", decrypter)); err != nil {
		return 0, err
	}

	q := EncQuestion{
		Text:    text,
		Total:   total,
		Sum:     sum,
		Highest: highest,
		Lowest:  lowest,
		Exists:  true,
	}
	if err := ctx.GetStub().PutState(questionKey(index), mustJSON(&q)); err != nil {
		return 0, err
	}
	if err := putCount(ctx, index+1); err != nil {
		return 0, err
	}

	if params.EmitEvents {
		_ = ctx.GetStub().SetEvent(eventQuestionCreated, mustJSON(map[string]any{
			"index": index,
			"text":  text,
		}))
	}
	return index, nil
}

// SubmitEncryptedResponse folds one encrypted score into a question's
// aggregate. The caller supplies two bound envelopes: the encrypted score
// and an encrypted one used to advance the response count. The contract
// never sees either plaintext; validity of the score value is the
// submitter's obligation under the trusted-oracle model.
func (c *EncSurveyContract) SubmitEncryptedResponse(ctx contractapi.TransactionContextInterface, index uint64, scoreCtHex, scoreProof, oneCtHex, oneProof string) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}
	params, _ := getParams(ctx)

	q, err := getQuestion(ctx, index)
	if err != nil {
		return err
	}

	score, err := verifyInput(ctx, params, scoreCtHex, scoreProof, caller)
	if err != nil {
		return err
	}
	one, err := verifyInput(ctx, params, oneCtHex, oneProof, caller)
	if err != nil {
		return err
	}

	// Four fresh handles per accepted response; old handles stay valid but
	// Are no longer referenced by the record.
	newSum, err := callOracle(ctx, params.OracleCCName, "HomAdd", q.Sum, score)
	if err != nil {
		return err
	}
	newTotal, err := callOracle(ctx, params.OracleCCName, "HomAdd", q.Total, one)
	if err != nil {
		return err
	}
	newHighest, err := callOracle(ctx, params.OracleCCName, "HomMax", q.Highest, score)
	if err != nil {
		return err
	}
	newLowest, err := callOracle(ctx, params.OracleCCName, "HomMin", q.Lowest, score)
	if err != nil {
		return err
	}

	decrypter, err := decrypterOrEmpty(ctx)
	if err != nil {
		return err
	}
	if err := recordGrants(ctx, []string{newTotal, newSum, newHighest, newLowest}, grantFor(caller, decrypter)); err != nil {
		return err
	}

	q.Total, q.Sum, q.Highest, q.Lowest = newTotal, newSum, newHighest, newLowest
	if err := ctx.GetStub().PutState(questionKey(index), mustJSON(q)); err != nil {
		return err
	}

	if params.EmitEvents {
		// No score material in the event: handles and plaintext both stay out.
		_ = ctx.GetStub().SetEvent(eventResponseSubmitted, mustJSON(map[string]any{
			"index":     index,
			"responder": caller,
		}))
	}
	return nil
}

/* Queries */

// GetQuestionCount returns the store length. Never fails on an initialized
// ledger.
func (c *EncSurveyContract) GetQuestionCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return getCount(ctx)
}

// GetEncryptedQuestionStats returns the text and the four current handles.
// Any caller may read them; a caller without decrypt grants simply holds
// handles the oracle will not open for it.
func (c *EncSurveyContract) GetEncryptedQuestionStats(ctx contractapi.TransactionContextInterface, index uint64) (*EncQuestionStats, error) {
	q, err := getQuestion(ctx, index)
	if err != nil {
		return nil, err
	}
	return &EncQuestionStats{
		Text:    q.Text,
		Total:   q.Total,
		Sum:     q.Sum,
		Highest: q.Highest,
		Lowest:  q.Lowest,
	}, nil
}

/* Disclosure channel */

// PublishPlainStats stores a plaintext snapshot for one question. Decrypter
// only. The snapshot is stored as given, overwriting any earlier one; the
// contract performs no cross-check against the ciphertext state.
func (c *EncSurveyContract) PublishPlainStats(ctx contractapi.TransactionContextInterface, index uint64, totalResponses, sum, average uint32, highest, lowest uint32) error {
	caller, err := requireDecrypter(ctx)
	if err != nil {
		return err
	}
	if _, err := getQuestion(ctx, index); err != nil {
		return err
	}
	if highest > sentinelLowest || lowest > sentinelLowest {
		return fmt.Errorf("extrema out of byte range: highest=%d lowest=%d", highest, lowest)
	}

	st := PlainStats{
		TotalResponses: totalResponses,
		Sum:            sum,
		Average:        average,
		Highest:        uint8(highest),
		Lowest:         uint8(lowest),
		Exists:         true,
		PublishedBy:    caller,
		TxID:           ctx.GetStub().GetTxID(),
	}
	if err := ctx.GetStub().PutState(statsKey(index), mustJSON(&st)); err != nil {
		return err
	}

	if params, _ := getParams(ctx); params.EmitEvents {
		_ = ctx.GetStub().SetEvent(eventPlainStatsPublished, mustJSON(map[string]any{
			"index":          index,
			"totalResponses": totalResponses,
			"sum":            sum,
			"average":        average,
			"highest":        highest,
			"lowest":         lowest,
		}))
	}
	return nil
}

// GetPlainStats reads the published snapshot for one question. It never
// fails on valid state: any index without a snapshot, in range or not,
// reads back as a zero record with exists=false.
func (c *EncSurveyContract) GetPlainStats(ctx contractapi.TransactionContextInterface, index uint64) (*PlainStats, error) {
	raw, err := ctx.GetStub().GetState(statsKey(index))
	if err != nil {
		return nil, err
	}
	var st PlainStats
	if raw != nil {
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("corrupt stats record: %w", err)
		}
	}
	return &st, nil
}

// GetPublishedSummary rolls up across published snapshots only: published
// count, total responses, and the truncating mean of published averages.
// Unpublished questions contribute nothing.
func (c *EncSurveyContract) GetPublishedSummary(ctx contractapi.TransactionContextInterface) (*PublishedSummary, error) {
	count, err := getCount(ctx)
	if err != nil {
		return nil, err
	}
	sum := PublishedSummary{QuestionCount: count}
	var avgTotal uint64
	for i := uint64(0); i < count; i++ {
		st, err := c.GetPlainStats(ctx, i)
		if err != nil {
			return nil, err
		}
		if !st.Exists {
			continue
		}
		sum.PublishedCount++
		sum.TotalResponses += uint64(st.TotalResponses)
		avgTotal += uint64(st.Average)
	}
	if sum.PublishedCount > 0 {
		sum.MeanAverage = uint32(avgTotal / sum.PublishedCount)
	}
	return &sum, nil
}

/* Health */

// Ping is a simple health check used by deployment tooling and test harnesses.
func (c *EncSurveyContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return "OK:" + ctx.GetStub().GetTxID(), nil
}

func main() {
	cc, err := contractapi.NewChaincode(new(EncSurveyContract))
	if err != nil {
		panic(err)
	}
	if err := cc.Start(); err != nil {
		panic(err)
	}
}
