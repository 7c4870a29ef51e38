package stats

import (
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// VariantSummary is the per-variant aggregate of one test's events.
type VariantSummary struct {
	Variant     string  `json:"variant"`
	Impressions int     `json:"impressions"`
	AddToCarts  int     `json:"add_to_carts"`
	Purchases   int     `json:"purchases"`
	Revenue     float64 `json:"revenue"`
	Rate        float64 `json:"rate"` // add-to-carts / impressions
}

// Summary is the statistical outcome for one test. The canonical conversion
// event for Rate, Lift and the significance test is ADD_TO_CART; purchases
// and revenue are reported but do not drive the z-test.
type Summary struct {
	VariantA    VariantSummary `json:"variant_a"`
	VariantB    VariantSummary `json:"variant_b"`
	Lift        float64        `json:"lift"`
	ZScore      float64        `json:"z_score"`
	Confidence  float64        `json:"confidence"`
	Significant bool           `json:"significant"`
	// Winner is "A" or "B" when significant with a strict rate difference,
	// nil otherwise (including ties).
	Winner *string `json:"winner"`
}

// Summarize recomputes the full summary from the event list. It is a pure
// function and is re-run on every read so the result always reflects the
// latest events.
func Summarize(events []*types.TrackingEvent) Summary {
	a := VariantSummary{Variant: types.VariantTagA}
	b := VariantSummary{Variant: types.VariantTagB}

	for _, ev := range events {
		var side *VariantSummary
		switch ev.Variant {
		case types.VariantTagA:
			side = &a
		case types.VariantTagB:
			side = &b
		default:
			continue
		}
		switch ev.EventType {
		case types.EventImpression:
			side.Impressions++
		case types.EventAddToCart:
			side.AddToCarts++
		case types.EventPurchase:
			side.Purchases++
			if ev.Revenue != nil {
				side.Revenue += *ev.Revenue
			}
		}
	}

	if a.Impressions > 0 {
		a.Rate = float64(a.AddToCarts) / float64(a.Impressions)
	}
	if b.Impressions > 0 {
		b.Rate = float64(b.AddToCarts) / float64(b.Impressions)
	}

	z, confidence := ZTest(a.AddToCarts, a.Impressions, b.AddToCarts, b.Impressions)

	s := Summary{
		VariantA:    a,
		VariantB:    b,
		Lift:        Lift(a.Rate, b.Rate),
		ZScore:      z,
		Confidence:  confidence,
		Significant: confidence >= ConfidenceThreshold,
	}
	if s.Significant && a.Rate != b.Rate {
		winner := types.VariantTagA
		if b.Rate > a.Rate {
			winner = types.VariantTagB
		}
		s.Winner = &winner
	}
	return s
}
