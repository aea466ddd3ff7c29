package sale

// derivePhase computes the campaign phase from configuration, ledger totals
// and wall-clock time. Conditions can overlap so the first match wins; the
// ordering below is normative. The only state the derivation ever records is
// the first-observed success timestamp, surfaced through the boolean so the
// caller can persist the memo.
func derivePhase(cfg *CampaignConfig, st *CampaignStatus, now int64) (Phase, bool) {
	if cfg == nil || st == nil {
		return PhaseQueued, false
	}
	raised := cloneAmount(st.RaisedAmount)
	switch {
	case st.Finalized:
		return PhaseFinalized, false
	case cfg.Canceled:
		return PhaseCanceled, false
	case now > cfg.EndTime && raised.Cmp(cfg.Softcap) < 0:
		return PhaseFailed, false
	case raised.Cmp(cfg.Hardcap) >= 0:
		return PhaseSuccessful, markSuccess(st, now)
	case now > cfg.EndTime && raised.Cmp(cfg.Softcap) >= 0:
		return PhaseSuccessful, markSuccess(st, now)
	case cfg.StartTime <= now && now <= cfg.EndTime:
		return PhaseActive, false
	default:
		return PhaseQueued, false
	}
}

// markSuccess records the first instant the campaign was observed successful.
// Later observations leave the memo untouched.
func markSuccess(st *CampaignStatus, now int64) bool {
	if st.EndTime != 0 {
		return false
	}
	st.EndTime = now
	return true
}
