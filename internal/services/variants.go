package services

import (
	"github.com/pixelsplit/pixelsplit-backend/internal/types"
)

// variantGroup is one usable A/B image pair. PRODUCT-scoped tests have a
// single group with a nil ScopeID; VARIANT-scoped tests have one group per
// shopify variant id, and a group missing either side is dropped.
type variantGroup struct {
	ScopeID *string
	A       *types.TestVariant
	B       *types.TestVariant
}

func usableGroups(variants []types.TestVariant) []variantGroup {
	byScope := map[string]*variantGroup{}
	var order []string
	for i := range variants {
		v := &variants[i]
		key := ""
		if v.ShopifyVariantID != nil {
			key = *v.ShopifyVariantID
		}
		g, ok := byScope[key]
		if !ok {
			g = &variantGroup{ScopeID: v.ShopifyVariantID}
			byScope[key] = g
			order = append(order, key)
		}
		switch v.Variant {
		case types.VariantTagA:
			g.A = v
		case types.VariantTagB:
			g.B = v
		}
	}
	var groups []variantGroup
	for _, key := range order {
		g := byScope[key]
		if g.A != nil && g.B != nil {
			groups = append(groups, *g)
		}
	}
	return groups
}

// variantTagForSlotCase maps the rotation store's CONTROL/TEST label to the
// test's A/B tag. The indirection lets the same slot serve tests whose image
// pairs are labeled independently.
func variantTagForSlotCase(c types.SlotCase) string {
	if c == types.SlotTest {
		return types.VariantTagB
	}
	return types.VariantTagA
}

func slotCaseForTestCase(c types.TestCase) types.SlotCase {
	if c == types.CaseTest {
		return types.SlotTest
	}
	return types.SlotControl
}

func testCaseForSlotCase(c types.SlotCase) types.TestCase {
	if c == types.SlotTest {
		return types.CaseTest
	}
	return types.CaseBase
}

func testCaseForVariantTag(tag string) types.TestCase {
	if tag == types.VariantTagB {
		return types.CaseTest
	}
	return types.CaseBase
}

func validVariantTag(tag string) bool {
	return tag == types.VariantTagA || tag == types.VariantTagB
}
