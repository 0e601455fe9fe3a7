package abtest

import (
	"context"
	"errors"

	"github.com/gkobilansky/cashloop/internal/store"
)

// AttributeProduct records an impression for the active test that contains
// templateID. The variant comes from the template's position in the test;
// variantHint is only used when the template maps to neither side. It
// reports false when no active test references the template.
func (c *Controller) AttributeProduct(ctx context.Context, templateID, variantHint string) (bool, error) {
	t, variant, err := c.resolve(ctx, templateID, variantHint)
	if t == nil || err != nil {
		return false, err
	}
	if err := c.RecordImpression(ctx, t.ID, variant); err != nil {
		return false, err
	}
	return true, nil
}

// AttributeSale records a conversion of amount for the active test that
// contains templateID.
func (c *Controller) AttributeSale(ctx context.Context, templateID, variantHint string, amount float64) (bool, error) {
	t, variant, err := c.resolve(ctx, templateID, variantHint)
	if t == nil || err != nil {
		return false, err
	}
	if err := c.RecordConversion(ctx, t.ID, variant, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) resolve(ctx context.Context, templateID, variantHint string) (*store.ABTest, string, error) {
	if templateID == "" {
		return nil, "", nil
	}
	t, err := c.store.ActiveTestForTemplate(ctx, templateID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	variant, ok := t.VariantFor(templateID)
	if !ok {
		variant = variantHint
	}
	return t, variant, nil
}
