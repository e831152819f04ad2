package classifier

import (
	"context"
	"strings"
	"time"

	"github.com/zf-portal/leadflow/store"
)

const (
	profileScoreCap    = 20
	messageScoreCap    = 15
	responseScoreCap   = 10
	meetingScoreCap    = 20
	decayCap           = 20
	decayGraceDays     = 30
	stageConversionMin = 80
	stageRelationMin   = 40
	stageAttractionMin = 10
)

// Intent keywords matched against inbound message content, Brazilian
// Portuguese as used by the prospect base.
var (
	pricingKeywords  = []string{"preço", "valor", "custo"}
	demoKeywords     = []string{"demo", "demonstração"}
	purchaseKeywords = []string{"comprar", "contratar", "assinar"}
)

// Heuristic scores leads with fixed weights over profile completeness,
// interaction volume, expressed intent and recency decay.
type Heuristic struct {
	now func() time.Time
}

// NewHeuristic creates the rule-based classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{now: time.Now}
}

// Classify derives the stage from the score thresholds. A lead with no
// interactions is always unknown with score zero, regardless of profile data.
func (h *Heuristic) Classify(_ context.Context, lead *store.Lead, interactions []*store.Interaction) (*Result, error) {
	if len(interactions) == 0 {
		return &Result{Stage: store.StageUnknown, Score: 0}, nil
	}

	score := h.profileScore(lead)
	score += h.engagementScore(interactions)
	score += h.intentBonus(interactions)
	score -= h.decay(interactions)

	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	return &Result{Stage: stageForScore(score), Score: score}, nil
}

func stageForScore(score int) store.FunnelStage {
	switch {
	case score >= stageConversionMin:
		return store.StageConversion
	case score >= stageRelationMin:
		return store.StageRelationship
	case score >= stageAttractionMin:
		return store.StageAttraction
	default:
		return store.StageUnknown
	}
}

func (h *Heuristic) profileScore(lead *store.Lead) int {
	score := 0
	if lead.Email != "" {
		score += 5
	}
	if lead.Phone != "" {
		score += 5
	}
	if lead.Company != "" {
		score += 3
	}
	if lead.Title != "" {
		score += 2
	}
	if lead.Industry != "" {
		score += 2
	}
	if lead.Website != "" {
		score += 1
	}
	if lead.ProfileURL != "" {
		score += 2
	}
	if score > profileScoreCap {
		score = profileScoreCap
	}
	return score
}

func (h *Heuristic) engagementScore(interactions []*store.Interaction) int {
	var messages, responses, meetings int
	for _, interaction := range interactions {
		switch interaction.Type {
		case store.InteractionMessage:
			messages++
		case store.InteractionRespond:
			responses++
		case store.InteractionMeeting:
			meetings++
		}
	}
	return min(messages*3, messageScoreCap) +
		min(responses*2, responseScoreCap) +
		min(meetings*10, meetingScoreCap)
}

// intentBonus awards each intent class at most once per pass, scanning
// inbound content only since outbound copy mentions the same terms.
func (h *Heuristic) intentBonus(interactions []*store.Interaction) int {
	var pricing, demo, purchase bool
	for _, interaction := range interactions {
		if interaction.Direction != store.DirectionInbound {
			continue
		}
		content := strings.ToLower(interaction.Content)
		if !pricing && containsAny(content, pricingKeywords) {
			pricing = true
		}
		if !demo && containsAny(content, demoKeywords) {
			demo = true
		}
		if !purchase && containsAny(content, purchaseKeywords) {
			purchase = true
		}
	}

	bonus := 0
	if pricing {
		bonus += 10
	}
	if demo {
		bonus += 15
	}
	if purchase {
		bonus += 20
	}
	return bonus
}

// decay penalizes silence beyond the grace period, one point per ten days.
func (h *Heuristic) decay(interactions []*store.Interaction) int {
	var last int64
	for _, interaction := range interactions {
		if interaction.CreatedTs > last {
			last = interaction.CreatedTs
		}
	}
	if last == 0 {
		return 0
	}

	days := int(h.now().Unix()-last) / int(24*time.Hour/time.Second)
	if days <= decayGraceDays {
		return 0
	}
	return min(days/10, decayCap)
}

func containsAny(content string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(content, keyword) {
			return true
		}
	}
	return false
}
