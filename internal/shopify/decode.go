package shopify

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

// Shopify calls product/variant targeting "entitled".
const targetEntitled = "entitled"

// decodeEnvelope decodes the value under key of a {"<key>": ...} response
// and skips everything else.
func decodeEnvelope(d *jx.Decoder, key string, fn func(d *jx.Decoder) error) error {
	var found bool
	if err := d.ObjBytes(func(d *jx.Decoder, k []byte) error {
		if string(k) != key {
			return d.Skip()
		}
		found = true
		return fn(d)
	}); err != nil {
		return err
	}
	if !found {
		return errors.Errorf("missing %q", key)
	}
	return nil
}

func decodeDiscountCode(d *jx.Decoder, dc *discount.DiscountCode) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			dc.ID, err = discount.DecodeID(d)
		case "code":
			dc.Code, err = optString(d)
		case "price_rule_id":
			dc.PriceRuleID, err = discount.DecodeID(d)
		case "usage_count":
			dc.UsageCount, err = optInt(d)
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
}

func decodePriceRule(d *jx.Decoder, r *discount.PriceRule) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			r.ID, err = discount.DecodeID(d)
		case "title":
			r.Title, err = optString(d)
		case "value_type":
			var v string
			v, err = optString(d)
			r.ValueType = discount.ValueType(v)
		case "value":
			r.Value, err = discount.DecodeDecimal(d)
		case "starts_at":
			var startsAt *time.Time
			startsAt, err = discount.DecodeTime(d)
			if startsAt != nil {
				r.StartsAt = *startsAt
			}
		case "ends_at":
			r.EndsAt, err = discount.DecodeTime(d)
		case "usage_limit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var limit int
			limit, err = d.Int()
			r.UsageLimit = &limit
		case "usage_count", "times_used":
			var n int
			n, err = optInt(d)
			r.UsageCount = max(r.UsageCount, n)
		case "target_selection":
			var v string
			v, err = optString(d)
			r.TargetSelection = targetSelection(v)
		case "entitled_product_ids":
			r.EntitledProductIDs, err = discount.DecodeIDs(d)
		case "entitled_variant_ids":
			r.EntitledVariantIDs, err = discount.DecodeIDs(d)
		case "prerequisite_subtotal_range":
			err = decodeSubtotalRange(d, r)
		case "status":
			r.Status, err = optString(d)
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
}

// decodeSubtotalRange reads {"greater_than_or_equal_to": "40.0"}.
func decodeSubtotalRange(d *jx.Decoder, r *discount.PriceRule) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "greater_than_or_equal_to" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		v, text, err := discount.DecodeDecimalText(d)
		if err != nil {
			return err
		}
		r.MinimumSubtotal = &v
		r.MinimumSubtotalText = text
		return nil
	})
}

func targetSelection(v string) discount.TargetSelection {
	switch v {
	case targetEntitled, string(discount.TargetSpecific):
		return discount.TargetSpecific
	default:
		return discount.TargetAll
	}
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func optInt(d *jx.Decoder) (int, error) {
	if d.Next() == jx.Null {
		return 0, d.Null()
	}
	return d.Int()
}

func fieldErr(err error, key []byte) error {
	if err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}
