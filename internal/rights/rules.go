package rights

import (
	"errors"
	"fmt"
)

// Intent classifies what a requester wants the looked-up data for.
type Intent string

const (
	IntentGeneral     Intent = "general"
	IntentMarketing   Intent = "marketing"
	IntentSale        Intent = "sale"
	IntentProfiling   Intent = "profiling"
	IntentDataAccess  Intent = "data_access"
	IntentPortability Intent = "portability"
)

var intents = []Intent{
	IntentGeneral,
	IntentMarketing,
	IntentSale,
	IntentProfiling,
	IntentDataAccess,
	IntentPortability,
}

var ErrUnknownIntent = errors.New("unknown intent")

func ParseIntent(name string) (Intent, error) {
	if name == "" {
		return IntentGeneral, nil
	}
	for _, intent := range intents {
		if string(intent) == name {
			return intent, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownIntent, name)
}

// BlockRule maps an asserted right to the intents it blocks. An empty
// AppliesTo slice means the right blocks every intent.
type BlockRule struct {
	Right      Right
	AppliesTo  []Intent
	ReasonCode string
}

// BlockRules is the ordered rule table. Walk order encodes the fixed reason
// priority: anti_doxxing > erasure > no_sale > no_profiling > no_marketing >
// data_portability > access_request.
var BlockRules = []BlockRule{
	{Right: AntiDoxxing, ReasonCode: "ANTI_DOXXING_PROTECTED"},
	{Right: Erasure, ReasonCode: "RIGHT_ASSERTED:erasure"},
	{Right: NoSale, AppliesTo: []Intent{IntentSale}, ReasonCode: "RIGHT_ASSERTED:no_sale"},
	{Right: NoProfiling, AppliesTo: []Intent{IntentProfiling}, ReasonCode: "RIGHT_ASSERTED:no_profiling"},
	{Right: NoMarketing, AppliesTo: []Intent{IntentMarketing}, ReasonCode: "RIGHT_ASSERTED:no_marketing"},
	{Right: DataPortability, AppliesTo: []Intent{IntentPortability}, ReasonCode: "RIGHT_ASSERTED:data_portability"},
	{Right: AccessRequest, AppliesTo: []Intent{IntentDataAccess}, ReasonCode: "RIGHT_ASSERTED:access_request"},
}

func (r BlockRule) covers(intent Intent) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	for _, i := range r.AppliesTo {
		if i == intent {
			return true
		}
	}
	return false
}

// FirstBlock returns the highest-priority rule blocking intent for set, if any.
func FirstBlock(set Set, intent Intent) (BlockRule, bool) {
	for _, rule := range BlockRules {
		if !set.Asserted(rule.Right) {
			continue
		}
		if rule.covers(intent) {
			return rule, true
		}
	}
	return BlockRule{}, false
}
