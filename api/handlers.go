package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/starledger"
	"github.com/xraph/starledger/catalog"
	"github.com/xraph/starledger/family"
	"github.com/xraph/starledger/id"
	"github.com/xraph/starledger/redemption"
	"github.com/xraph/starledger/transaction"
)

const maxBody = 1 << 20

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, param string, prefix id.Prefix) (id.ID, error) {
	v, err := id.ParseWithPrefix(chi.URLParam(r, param), prefix)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %s: %w", errBadRequest, param, err)
	}
	return v, nil
}

func queryID(r *http.Request, key string, prefix id.Prefix) (id.ID, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return id.Nil, nil
	}
	v, err := id.ParseWithPrefix(raw, prefix)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %s: %w", errBadRequest, key, err)
	}
	return v, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return 0, 0, fmt.Errorf("%w: limit %q", errBadRequest, v)
		}
	}
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("%w: offset %q", errBadRequest, v)
		}
	}
	return limit, offset, nil
}

// queryList splits a comma-separated query parameter.
func queryList[S ~string](r *http.Request, key string) []S {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]S, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, S(p))
		}
	}
	return out
}

// ──────────────────────────────────────────────────
// Families and catalog
// ──────────────────────────────────────────────────

func (s *Server) handleCreateFamily(w http.ResponseWriter, r *http.Request) {
	var in starledger.FamilyInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.ledger.CreateFamily(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleGetFamily(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.ledger.GetFamily(r.Context(), famID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in starledger.MemberInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.FamilyID = famID
	m, err := s.ledger.AddMember(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	members, err := s.ledger.ListMembers(r.Context(), famID, family.Role(r.URL.Query().Get("role")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.ledger.GetMember(r.Context(), memberID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func catalogOpts(r *http.Request) (catalog.ListOpts, error) {
	limit, offset, err := page(r)
	if err != nil {
		return catalog.ListOpts{}, err
	}
	return catalog.ListOpts{
		ActiveOnly: r.URL.Query().Get("active") == "true",
		Limit:      limit,
		Offset:     offset,
	}, nil
}

func (s *Server) handleCreateQuest(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in starledger.QuestInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.FamilyID = famID
	q, err := s.ledger.CreateQuest(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := catalogOpts(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	quests, err := s.ledger.ListQuests(r.Context(), famID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quests)
}

func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	questID, err := pathID(r, "questID", id.PrefixQuest)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.ledger.GetQuest(r.Context(), questID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleCreateReward(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in starledger.RewardInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.FamilyID = famID
	rw, err := s.ledger.CreateReward(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rw)
}

func (s *Server) handleListRewards(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := catalogOpts(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rewards, err := s.ledger.ListRewards(r.Context(), famID, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (s *Server) handleGetReward(w http.ResponseWriter, r *http.Request) {
	rewardID, err := pathID(r, "rewardID", id.PrefixReward)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rw, err := s.ledger.GetReward(r.Context(), rewardID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rw)
}

// ──────────────────────────────────────────────────
// Credit configuration
// ──────────────────────────────────────────────────

func (s *Server) handleConfigureCredit(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in starledger.CreditInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.ChildID = childID
	cs, err := s.ledger.ConfigureCredit(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleGetCreditSettings(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cs, err := s.ledger.GetCreditSettings(r.Context(), childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleListCreditTransactions(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListCreditTransactions(r.Context(), childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleSetInterestTiers(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in []starledger.TierInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	tiers, err := s.ledger.SetInterestTiers(r.Context(), famID, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

func (s *Server) handleListInterestTiers(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tiers, err := s.ledger.ListInterestTiers(r.Context(), famID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tiers)
}

// ──────────────────────────────────────────────────
// Ledger entries
// ──────────────────────────────────────────────────

func (s *Server) handleCreateChildRequest(w http.ResponseWriter, r *http.Request) {
	var in starledger.ChildRequestInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.ledger.CreateChildRequest(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleCreateParentRecord(w http.ResponseWriter, r *http.Request) {
	var in starledger.ParentRecordInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.ledger.CreateParentRecord(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleListStarTransactions(w http.ResponseWriter, r *http.Request) {
	f := transaction.ListFilter{
		Statuses: queryList[transaction.Status](r, "status"),
		Sources:  queryList[transaction.Source](r, "source"),
	}
	var err error
	if f.FamilyID, err = queryID(r, "family_id", id.PrefixFamily); err == nil {
		if f.ChildID, err = queryID(r, "child_id", id.PrefixMember); err == nil {
			if f.QuestID, err = queryID(r, "quest_id", id.PrefixQuest); err == nil {
				f.Limit, f.Offset, err = page(r)
			}
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ListStarTransactions(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateRedemptionRequest(w http.ResponseWriter, r *http.Request) {
	var in starledger.RedemptionInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	rd, err := s.ledger.CreateRedemptionRequest(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

func (s *Server) handleCreateParentRedemption(w http.ResponseWriter, r *http.Request) {
	var in starledger.ParentRedemptionInput
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	rd, err := s.ledger.CreateParentRedemption(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rd)
}

func (s *Server) handleListRedemptions(w http.ResponseWriter, r *http.Request) {
	f := redemption.ListFilter{Statuses: queryList[redemption.Status](r, "status")}
	var err error
	if f.FamilyID, err = queryID(r, "family_id", id.PrefixFamily); err == nil {
		if f.ChildID, err = queryID(r, "child_id", id.PrefixMember); err == nil {
			f.Limit, f.Offset, err = page(r)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rds, err := s.ledger.ListRedemptions(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rds)
}

// ──────────────────────────────────────────────────
// Review
// ──────────────────────────────────────────────────

type reviewRequest struct {
	ReviewerID  id.MemberID `json:"reviewer_id"`
	Response    string      `json:"response"`
	Reason      string      `json:"reason"`
	EffectiveAt *time.Time  `json:"effective_at"`
}

func (rr reviewRequest) options() []starledger.ReviewOption {
	var opts []starledger.ReviewOption
	if rr.Response != "" {
		opts = append(opts, starledger.WithResponse(rr.Response))
	}
	if rr.EffectiveAt != nil {
		opts = append(opts, starledger.WithEffectiveDate(*rr.EffectiveAt))
	}
	return opts
}

func entryID(r *http.Request) (id.ID, error) {
	v, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		return id.Nil, fmt.Errorf("%w: entryID: %w", errBadRequest, err)
	}
	return v, nil
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	eid, err := entryID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in reviewRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.ApproveEntry(r.Context(), eid, in.ReviewerID, in.options()...); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	eid, err := entryID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in reviewRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.RejectEntry(r.Context(), eid, in.ReviewerID, in.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	eid, err := entryID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in struct {
		Status     string      `json:"status"`
		ReviewerID id.MemberID `json:"reviewer_id"`
		Response   string      `json:"response"`
	}
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.SetStatus(r.Context(), eid, in.Status, in.ReviewerID, in.Response); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFulfillRedemption(w http.ResponseWriter, r *http.Request) {
	rid, err := pathID(r, "entryID", id.PrefixRedemption)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in reviewRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.ledger.FulfillRedemption(r.Context(), rid, in.ReviewerID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type batchRequest struct {
	reviewRequest
	IDs []id.ID `json:"ids"`
}

type batchFailure struct {
	ID    id.ID  `json:"id"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type batchResponse struct {
	Succeeded []id.ID        `json:"succeeded"`
	Failed    []batchFailure `json:"failed"`
}

func toBatchResponse(res *starledger.BatchResult) batchResponse {
	out := batchResponse{Succeeded: res.Succeeded, Failed: make([]batchFailure, 0, len(res.Failed))}
	if out.Succeeded == nil {
		out.Succeeded = []id.ID{}
	}
	for _, f := range res.Failed {
		_, code := statusFor(f.Err)
		out.Failed = append(out.Failed, batchFailure{ID: f.ID, Code: code, Error: f.Err.Error()})
	}
	return out
}

func (s *Server) handleBatchApprove(w http.ResponseWriter, r *http.Request) {
	var in batchRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.ledger.BatchApprove(r.Context(), in.IDs, in.ReviewerID, in.options()...)
	writeJSON(w, http.StatusOK, toBatchResponse(res))
}

func (s *Server) handleBatchReject(w http.ResponseWriter, r *http.Request) {
	var in batchRequest
	if err := decode(r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res := s.ledger.BatchReject(r.Context(), in.IDs, in.ReviewerID, in.Reason)
	writeJSON(w, http.StatusOK, toBatchResponse(res))
}

// ──────────────────────────────────────────────────
// Balance and settlement
// ──────────────────────────────────────────────────

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.ledger.GetBalance(r.Context(), childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleReconcileBalance(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, err := s.ledger.ReconcileBalance(r.Context(), childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type settleRequest struct {
	PeriodEnd time.Time `json:"period_end"`
}

func decodeSettle(r *http.Request) (time.Time, error) {
	var in settleRequest
	if err := decode(r, &in); err != nil {
		return time.Time{}, err
	}
	if in.PeriodEnd.IsZero() {
		return time.Time{}, starledger.ValidationError{Field: "period_end", Message: "is required"}
	}
	return in.PeriodEnd, nil
}

func (s *Server) handleRunSettlement(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	periodEnd, err := decodeSettle(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.ledger.RunSettlement(r.Context(), childID, periodEnd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

type childSettlementResult struct {
	starledger.ChildSettlement
	Skipped bool   `json:"skipped,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleRunFamilySettlement(w http.ResponseWriter, r *http.Request) {
	famID, err := pathID(r, "familyID", id.PrefixFamily)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	periodEnd, err := decodeSettle(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.ledger.RunFamilySettlement(r.Context(), famID, periodEnd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]childSettlementResult, 0, len(results))
	for _, res := range results {
		item := childSettlementResult{ChildSettlement: res, Skipped: res.Skipped()}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	childID, err := pathID(r, "childID", id.PrefixMember)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sts, err := s.ledger.ListSettlements(r.Context(), childID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sts)
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	stID, err := pathID(r, "settlementID", id.PrefixSettlement)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.ledger.GetSettlement(r.Context(), stID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
