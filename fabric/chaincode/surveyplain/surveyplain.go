// -----------------------------------------------------------------------------
// surveyplain contract (Go, Fabric v3.1.1)
// Purpose: Plaintext variant of the survey aggregation ledger. Maintains an
// Append-only question store where every question carries its own running
// Aggregate (count, sum, highest, lowest); averages are derived at read time.
// Role in system: Admin creates questions; any identity may submit scored
// Responses; read path serves per-question stats and cross-question rollups.
// Key dependencies: Hyperledger Fabric contractapi for the contract surface
// And client identity; world state holds all records under a single namespace.
// -----------------------------------------------------------------------------

/*
surveyplain.go — Hyperledger Fabric chaincode for the plaintext survey ledger.

State layout:
- ADMIN        → normalized admin identity (set once by Initialize).
- PARAMS       → runtime toggles (events, text length clamp).
- QCOUNT       → store length as decimal string.
- Q::<index>   → Question JSON (0-based append-only index, never deleted).

All validation happens before the first state write, so a failed operation
leaves the ledger untouched. The chaincode exposes no transport of its own; a
gateway invokes these functions and subscribes to emitted events.
*/
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hyperledger/fabric-contract-api-go/v2/contractapi"
)

/* Keys & constants (single namespace for this chaincode) */

const (
	keyAdmin          = "ADMIN"
	keyParams         = "PARAMS"
	keyQuestionCount  = "QCOUNT"
	keyQuestionPrefix = "Q::" // Q::<index> → Question JSON
)

const (
	eventQuestionCreated   = "QuestionCreated"
	eventResponseSubmitted = "ResponseSubmitted"
)

const (
	minScore = 1
	maxScore = 5

	// First response always becomes the new lowest: the sentinel sits above
	// every legal score.
	sentinelLowest = math.MaxUint8
)

/* Error taxonomy */

// Sentinel errors for every failure class a caller can hit. Wrapped with
// context at each failure site; inspect with errors.Is.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidQuestion = errors.New("invalid question")
	ErrInvalidScore    = errors.New("invalid score")
	ErrOverflow        = errors.New("overflow")
)

/* Types & small data models */

// SurveyContract implements the plaintext survey ledger.
//
// Responsibilities:
// - Guard the question set behind the single admin identity.
// - Apply the aggregate update rules per accepted response.
// - Serve derived stats without ever storing the average.
type SurveyContract struct{ contractapi.Contract }

// Question is the stored record for one survey question. The aggregate only
// moves monotonically: count and sum grow, highest grows, lowest shrinks.
type Question struct {
	Text           string `json:"text"`
	TotalResponses uint32 `json:"totalResponses"`
	TotalScore     uint32 `json:"totalScore"`
	Highest        uint8  `json:"highest"`
	Lowest         uint8  `json:"lowest"`
	Exists         bool   `json:"exists"`
}

// QuestionStats is the read-side projection of one question. Average is
// derived here, never persisted.
type QuestionStats struct {
	Text           string `json:"text"`
	TotalResponses uint32 `json:"totalResponses"`
	Average        uint32 `json:"average"`
	Highest        uint8  `json:"highest"`
	Lowest         uint8  `json:"lowest"`
}

// SurveySummary is the cross-question rollup computed from already-derived
// per-question values.
type SurveySummary struct {
	QuestionCount  uint64 `json:"questionCount"`
	TotalResponses uint64 `json:"totalResponses"`
	MeanAverage    uint32 `json:"meanAverage"`
}

// Params contains runtime toggles stored on-chain (PARAMS key) and merged
// over defaults on every read.
type Params struct {
	EmitEvents         bool `json:"EMIT_EVENTS"`
	MaxQuestionTextLen int  `json:"MAX_QUESTION_TEXT_LEN"`
}

/* Small helpers */

// mustJSON marshals v and ignores errors (used for events and small writes).
func mustJSON(v any) []byte { b, _ := json.Marshal(v); return b }

func questionKey(index uint64) string {
	return keyQuestionPrefix + strconv.FormatUint(index, 10)
}

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
	}
	if b, err := ctx.GetStub().GetState(keyParams); err == nil && b != nil {
		var on Params
		if json.Unmarshal(b, &on) == nil {
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

func getQuestion(ctx contractapi.TransactionContextInterface, index uint64) (*Question, error) {
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
	var q Question
	if raw == nil || json.Unmarshal(raw, &q) != nil || !q.Exists {
		// Unreachable given append-only semantics, but checked anyway.
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

/* Admin / Setup */

// Initialize records the invoking identity as the single admin. It can run
// exactly once; the admin is immutable afterwards.
func (c *SurveyContract) Initialize(ctx contractapi.TransactionContextInterface) error {
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

// SetParams merges runtime parameter overrides into the stored PARAMS blob.
func (c *SurveyContract) SetParams(ctx contractapi.TransactionContextInterface, paramsJSON string) error {
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
func (c *SurveyContract) GetParams(ctx contractapi.TransactionContextInterface) (*Params, error) {
	return getParams(ctx)
}

/* Hot path */

// CreateQuestion appends a new question with a zeroed aggregate and returns
// its 0-based index. Admin only.
func (c *SurveyContract) CreateQuestion(ctx contractapi.TransactionContextInterface, text string) (uint64, error) {
	if _, err := requireAdmin(ctx); err != nil {
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

	q := Question{
		Text:    text,
		Highest: 0,
		Lowest:  sentinelLowest,
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

// SubmitResponse records a score for a question. Open to any caller; there is
// deliberately no per-identity dedup or rate limit. Aggregates are updated
// only after every check passes, so a rejected call changes nothing.
func (c *SurveyContract) SubmitResponse(ctx contractapi.TransactionContextInterface, index uint64, score uint32) error {
	caller, err := callerID(ctx)
	if err != nil {
		return err
	}

	q, err := getQuestion(ctx, index)
	if err != nil {
		return err
	}
	if score < minScore || score > maxScore {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidScore, score, minScore, maxScore)
	}

	// Check-then-act: both counters must have headroom before either moves.
	if q.TotalResponses == math.MaxUint32 {
		return fmt.Errorf("%w: response count at capacity", ErrOverflow)
	}
	if q.TotalScore > math.MaxUint32-score {
		return fmt.Errorf("%w: total score at capacity", ErrOverflow)
	}

	s := uint8(score)
	q.TotalResponses++
	q.TotalScore += score
	if s > q.Highest {
		q.Highest = s
	}
	if s < q.Lowest {
		q.Lowest = s
	}
	if err := ctx.GetStub().PutState(questionKey(index), mustJSON(q)); err != nil {
		return err
	}

	if params, _ := getParams(ctx); params.EmitEvents {
		// The score is visible in transaction parameters anyway in this
		// variant; the event still carries only index and responder.
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
func (c *SurveyContract) GetQuestionCount(ctx contractapi.TransactionContextInterface) (uint64, error) {
	return getCount(ctx)
}

// GetQuestionStats returns one question's projection. Average is truncating
// integer division, 0 while no responses exist; lowest stays at the sentinel
// until the first response.
func (c *SurveyContract) GetQuestionStats(ctx contractapi.TransactionContextInterface, index uint64) (*QuestionStats, error) {
	q, err := getQuestion(ctx, index)
	if err != nil {
		return nil, err
	}
	return &QuestionStats{
		Text:           q.Text,
		TotalResponses: q.TotalResponses,
		Average:        deriveAverage(q.TotalScore, q.TotalResponses),
		Highest:        q.Highest,
		Lowest:         q.Lowest,
	}, nil
}

// deriveAverage reproduces the reference truncating division exactly.
func deriveAverage(totalScore, totalResponses uint32) uint32 {
	if totalResponses == 0 {
		return 0
	}
	return totalScore / totalResponses
}

// GetSurveySummary rolls up across the whole store from already-derived
// per-question values: total responses and the truncating mean of the
// per-question averages.
func (c *SurveyContract) GetSurveySummary(ctx contractapi.TransactionContextInterface) (*SurveySummary, error) {
	count, err := getCount(ctx)
	if err != nil {
		return nil, err
	}
	sum := SurveySummary{QuestionCount: count}
	var avgTotal uint64
	for i := uint64(0); i < count; i++ {
		q, err := getQuestion(ctx, i)
		if err != nil {
			return nil, err
		}
		sum.TotalResponses += uint64(q.TotalResponses)
		avgTotal += uint64(deriveAverage(q.TotalScore, q.TotalResponses))
	}
	if count > 0 {
		sum.MeanAverage = uint32(avgTotal / count)
	}
	return &sum, nil
}

/* Health */

// Ping is a simple health check used by deployment tooling and test harnesses.
func (c *SurveyContract) Ping(ctx contractapi.TransactionContextInterface) (string, error) {
	return "OK:" + ctx.GetStub().GetTxID(), nil
}

func main() {
	cc, err := contractapi.NewChaincode(new(SurveyContract))
	if err != nil {
		panic(err)
	}
	if err := cc.Start(); err != nil {
		panic(err)
	}
}
