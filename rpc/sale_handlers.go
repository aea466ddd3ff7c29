package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"launchpad/native/common"
	"launchpad/native/sale"
)

type depositParams struct {
	Participant string `json:"participant"`
	Amount      string `json:"amount"`
}

type participantParams struct {
	Address string `json:"address"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
}

type finalizeParams struct {
	Caller            string `json:"caller"`
	LiquidityReceiver string `json:"liquidityReceiver"`
}

type whitelistParams struct {
	Caller    string   `json:"caller"`
	Addresses []string `json:"addresses"`
}

type setModeParams struct {
	Caller     string `json:"caller"`
	Mode       string `json:"mode"`
	UnlockTime int64  `json:"unlockTime,omitempty"`
}

type cancelParams struct {
	Caller string `json:"caller"`
}

type setLockDelayParams struct {
	Caller string `json:"caller"`
	Delay  int64  `json:"delay"`
}

type setOwnerParams struct {
	Caller string `json:"caller"`
	Owner  string `json:"owner"`
}

type setFeeRecipientParams struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

// StatusResult is the sale_status response payload.
type StatusResult struct {
	Phase           string `json:"phase"`
	RaisedAmount    string `json:"raisedAmount"`
	SoldAmount      string `json:"soldAmount"`
	TokensWithdrawn string `json:"tokensWithdrawn"`
	BaseWithdrawn   string `json:"baseWithdrawn"`
	NumBuyers       uint64 `json:"numBuyers"`
	EndTime         int64  `json:"endTime,omitempty"`
	Finalized       bool   `json:"finalized"`
	Mode            string `json:"mode"`
	Hardcap         string `json:"hardcap"`
	Softcap         string `json:"softcap"`
}

// ProgressResult is the sale_progress response payload.
type ProgressResult struct {
	Percent uint64 `json:"percent"`
}

// ParticipantResult is the sale_participant response payload.
type ParticipantResult struct {
	Address       string `json:"address"`
	BaseDeposited string `json:"baseDeposited"`
	SaleAllocated string `json:"saleAllocated"`
	Whitelisted   bool   `json:"whitelisted"`
}

// DepositResult is the sale_deposit response payload.
type DepositResult struct {
	Accepted string `json:"accepted"`
	Returned string `json:"returned"`
	Tokens   string `json:"tokens"`
}

// AckResult acknowledges a mutating call with no other payload.
type AckResult struct {
	Status string `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	status, phase, err := s.engine.Status()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	cfg, err := s.engine.Config()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &StatusResult{
		Phase:           phase.String(),
		RaisedAmount:    status.RaisedAmount.Dec(),
		SoldAmount:      status.SoldAmount.Dec(),
		TokensWithdrawn: status.TokensWithdrawn.Dec(),
		BaseWithdrawn:   status.BaseWithdrawn.Dec(),
		NumBuyers:       status.NumBuyers,
		EndTime:         status.EndTime,
		Finalized:       status.Finalized,
		Mode:            cfg.Mode.String(),
		Hardcap:         cfg.Hardcap.Dec(),
		Softcap:         cfg.Softcap.Dec(),
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	percent, err := s.engine.Progress()
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &ProgressResult{Percent: percent})
}

func (s *Server) handleParticipant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params participantParams
	if !decodeParams(w, req, &params) {
		return
	}
	addr, ok := parseAddressParam(w, req.ID, params.Address, "address")
	if !ok {
		return
	}
	record, err := s.engine.Participant(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	listed, err := s.engine.Whitelisted(addr)
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &ParticipantResult{
		Address:       ethcommon.BytesToAddress(addr[:]).Hex(),
		BaseDeposited: record.BaseDeposited.Dec(),
		SaleAllocated: record.SaleAllocated.Dec(),
		Whitelisted:   listed,
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params depositParams
	if !decodeParams(w, req, &params) {
		return
	}
	participant, ok := parseAddressParam(w, req.ID, params.Participant, "participant")
	if !ok {
		return
	}
	amount, ok := parseAmountParam(w, req.ID, params.Amount, "amount")
	if !ok {
		return
	}
	result, err := s.engine.Deposit(participant, amount)
	if err != nil {
		s.metrics.ObserveDepositRejected(rejectReason(err))
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveDepositAccepted()
	if status, _, statusErr := s.engine.Status(); statusErr == nil {
		if raised, parseErr := strconv.ParseFloat(status.RaisedAmount.Dec(), 64); parseErr == nil {
			s.metrics.SetRaisedAmount(raised)
		}
	}
	writeResult(w, req.ID, &DepositResult{
		Accepted: result.Accepted.Dec(),
		Returned: result.Returned.Dec(),
		Tokens:   result.Tokens.Dec(),
	})
}

func (s *Server) handleWithdrawTokens(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	if err := s.engine.WithdrawTokens(caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveTokenClaim()
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleWithdrawRefund(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	if err := s.engine.WithdrawRefund(caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveRefund()
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleFinalize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params finalizeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	receiver, ok := parseAddressParam(w, req.ID, params.LiquidityReceiver, "liquidityReceiver")
	if !ok {
		return
	}
	if err := s.engine.Finalize(caller, receiver); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	s.metrics.ObserveFinalized()
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleSetWhitelist(w http.ResponseWriter, _ *http.Request, req *RPCRequest, add bool) {
	var params whitelistParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	if len(params.Addresses) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "addresses required", nil)
		return
	}
	addrs := make([][20]byte, 0, len(params.Addresses))
	for _, raw := range params.Addresses {
		addr, ok := parseAddressParam(w, req.ID, raw, "addresses")
		if !ok {
			return
		}
		addrs = append(addrs, addr)
	}
	var err error
	if add {
		err = s.engine.AddWhitelist(caller, addrs)
	} else {
		err = s.engine.RemoveWhitelist(caller, addrs)
	}
	if err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleSetSaleMode(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setModeParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	mode, err := sale.ParseSaleMode(params.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.engine.SetSaleMode(caller, mode, params.UnlockTime); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params cancelParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	if err := s.engine.SetCanceled(caller); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleSetLockDelay(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setLockDelayParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	if err := s.engine.SetLockDelay(caller, params.Delay); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleSetOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setOwnerParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	next, ok := parseAddressParam(w, req.ID, params.Owner, "owner")
	if !ok {
		return
	}
	if err := s.engine.SetOwner(caller, next); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func (s *Server) handleSetFeeRecipient(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params setFeeRecipientParams
	if !decodeParams(w, req, &params) {
		return
	}
	caller, ok := parseAddressParam(w, req.ID, params.Caller, "caller")
	if !ok {
		return
	}
	recipient, ok := parseAddressParam(w, req.ID, params.Recipient, "recipient")
	if !ok {
		return
	}
	if err := s.engine.SetFeeRecipient(caller, recipient); err != nil {
		s.writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, &AckResult{Status: "ok"})
}

func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected a single params object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params payload", err.Error())
		return false
	}
	return true
}

func parseAddressParam(w http.ResponseWriter, id interface{}, raw, field string) ([20]byte, bool) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if !ethcommon.IsHexAddress(trimmed) {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, field+" must be a hex address", raw)
		return addr, false
	}
	copy(addr[:], ethcommon.HexToAddress(trimmed).Bytes())
	return addr, true
}

func parseAmountParam(w http.ResponseWriter, id interface{}, raw, field string) (*uint256.Int, bool) {
	value, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, field+" must be a decimal amount", raw)
		return nil, false
	}
	return value, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status := http.StatusBadRequest
	code := codeInvalidParams
	switch {
	case errors.Is(err, sale.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeUnauthorized
	case errors.Is(err, sale.ErrNotConfigured):
		status = http.StatusNotFound
	case errors.Is(err, sale.ErrInvalidPhase),
		errors.Is(err, sale.ErrNotWhitelisted),
		errors.Is(err, sale.ErrOutOfBounds),
		errors.Is(err, sale.ErrZeroAllocation),
		errors.Is(err, sale.ErrNothingToWithdraw),
		errors.Is(err, sale.ErrAlreadyConfigured),
		errors.Is(err, sale.ErrInvalidConfiguration):
		status = http.StatusBadRequest
	default:
		status = http.StatusInternalServerError
		code = codeServerError
	}
	writeError(w, status, id, code, err.Error(), nil)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, sale.ErrInvalidPhase):
		return "phase"
	case errors.Is(err, sale.ErrNotWhitelisted):
		return "whitelist"
	case errors.Is(err, sale.ErrOutOfBounds):
		return "bounds"
	case errors.Is(err, sale.ErrZeroAllocation):
		return "zero_allocation"
	case errors.Is(err, sale.ErrInsufficientReserve):
		return "reserve"
	case errors.Is(err, sale.ErrTransferFailed):
		return "transfer"
	case errors.Is(err, common.ErrReentrantCall):
		return "reentrancy"
	default:
		return "other"
	}
}
