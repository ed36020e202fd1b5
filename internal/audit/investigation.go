package audit

import "sort"

// Investigation is the result of correlating one entry against a corpus.
type Investigation struct {
	Related   []Entry
	RiskScore int
}

// Risk score tiers. The observed scoring is deliberately coarse: a baseline
// for routine entries and an escalated tier for critical ones. Related-entry
// count and recency intentionally do not feed the score until product
// specifies a richer policy.
const (
	riskBaseline = 20
	riskCritical = 90
)

// Investigate finds corpus entries related to target: entries sharing its
// source address (excluding the benign internal placeholder) or its actor.
// The corpus must already be scoped to what the caller is authorized to see;
// this function applies no authorization of its own.
func Investigate(target Entry, corpus []Entry) Investigation {
	related := make([]Entry, 0)
	for _, candidate := range corpus {
		if candidate.ID == target.ID {
			continue
		}
		if sharesOrigin(target, candidate) || sharesActor(target, candidate) {
			related = append(related, candidate)
		}
	}
	sort.SliceStable(related, func(i, j int) bool {
		return related[i].Timestamp.After(related[j].Timestamp)
	})

	score := riskBaseline
	if target.Severity == SeverityCritical {
		score = riskCritical
	}
	return Investigation{Related: related, RiskScore: score}
}

func sharesOrigin(target, candidate Entry) bool {
	if target.SourceAddress == "" || target.SourceAddress == InternalSourceAddress {
		return false
	}
	return candidate.SourceAddress == target.SourceAddress
}

func sharesActor(target, candidate Entry) bool {
	if target.ActorID == "" {
		return false
	}
	return candidate.ActorID == target.ActorID
}
