package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// Amounts are encoded as exact JSON numbers so that a persisted discount
// round-trips without rounding.

// Encode writes the rule as a JSON object.
func (r *PriceRule) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(r.ID)
	e.FieldStart("title")
	e.Str(r.Title)
	e.FieldStart("valueType")
	e.Str(string(r.ValueType))
	e.FieldStart("value")
	encodeDecimal(e, r.Value)
	e.FieldStart("startsAt")
	encodeTime(e, r.StartsAt)
	if r.EndsAt != nil {
		e.FieldStart("endsAt")
		encodeTime(e, *r.EndsAt)
	}
	if r.UsageLimit != nil {
		e.FieldStart("usageLimit")
		e.Int(*r.UsageLimit)
	}
	e.FieldStart("usageCount")
	e.Int(r.UsageCount)
	if r.MinimumSubtotal != nil {
		e.FieldStart("minimumSubtotal")
		encodeDecimal(e, *r.MinimumSubtotal)
	}
	if r.MinimumSubtotalText != "" {
		e.FieldStart("minimumSubtotalText")
		e.Str(r.MinimumSubtotalText)
	}
	e.FieldStart("targetSelection")
	e.Str(string(r.TargetSelection))
	if len(r.EntitledProductIDs) > 0 {
		e.FieldStart("entitledProductIds")
		encodeStrings(e, r.EntitledProductIDs)
	}
	if len(r.EntitledVariantIDs) > 0 {
		e.FieldStart("entitledVariantIds")
		encodeStrings(e, r.EntitledVariantIDs)
	}
	if r.Status != "" {
		e.FieldStart("status")
		e.Str(r.Status)
	}
	e.ObjEnd()
}

// Decode reads a rule previously written by Encode.
func (r *PriceRule) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			r.ID, err = DecodeID(d)
		case "title":
			r.Title, err = d.Str()
		case "valueType":
			var s string
			s, err = d.Str()
			r.ValueType = ValueType(s)
		case "value":
			r.Value, err = DecodeDecimal(d)
		case "startsAt":
			var t *time.Time
			if t, err = DecodeTime(d); t != nil {
				r.StartsAt = *t
			}
		case "endsAt":
			r.EndsAt, err = DecodeTime(d)
		case "usageLimit":
			r.UsageLimit, err = decodeOptInt(d)
		case "usageCount":
			r.UsageCount, err = d.Int()
		case "minimumSubtotal":
			r.MinimumSubtotal, err = decodeOptDecimal(d)
		case "minimumSubtotalText":
			r.MinimumSubtotalText, err = d.Str()
		case "targetSelection":
			var s string
			s, err = d.Str()
			r.TargetSelection = TargetSelection(s)
		case "entitledProductIds":
			r.EntitledProductIDs, err = DecodeIDs(d)
		case "entitledVariantIds":
			r.EntitledVariantIDs, err = DecodeIDs(d)
		case "status":
			r.Status, err = d.Str()
		default:
			return d.Skip()
		}
		return wrapField(err, key)
	})
}

// MarshalJSON implements json.Marshaler.
func (r PriceRule) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	r.Encode(&e)
	return e.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *PriceRule) UnmarshalJSON(data []byte) error {
	return r.Decode(jx.DecodeBytes(data))
}

// Encode writes the applied discount as a JSON object, including the price
// rule snapshot when present.
func (a *AppliedDiscount) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(a.Code)
	e.FieldStart("discountAmount")
	encodeDecimal(e, a.DiscountAmount)
	e.FieldStart("discountType")
	e.Str(string(a.DiscountType))
	e.FieldStart("discountValue")
	encodeDecimal(e, a.DiscountValue)
	e.FieldStart("priceRuleId")
	e.Str(a.PriceRuleID)
	e.FieldStart("title")
	e.Str(a.Title)
	if a.PriceRule != nil {
		e.FieldStart("priceRule")
		a.PriceRule.Encode(e)
	}
	e.ObjEnd()
}

// Decode reads an applied discount previously written by Encode.
func (a *AppliedDiscount) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			a.Code, err = d.Str()
		case "discountAmount":
			a.DiscountAmount, err = DecodeDecimal(d)
		case "discountType":
			var s string
			s, err = d.Str()
			a.DiscountType = ValueType(s)
		case "discountValue":
			a.DiscountValue, err = DecodeDecimal(d)
		case "priceRuleId":
			a.PriceRuleID, err = DecodeID(d)
		case "title":
			a.Title, err = d.Str()
		case "priceRule":
			if d.Next() == jx.Null {
				return d.Null()
			}
			rule := new(PriceRule)
			if err = rule.Decode(d); err == nil {
				a.PriceRule = rule
			}
		default:
			return d.Skip()
		}
		return wrapField(err, key)
	})
}

// MarshalJSON implements json.Marshaler.
func (a AppliedDiscount) MarshalJSON() ([]byte, error) {
	var e jx.Encoder
	a.Encode(&e)
	return e.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *AppliedDiscount) UnmarshalJSON(data []byte) error {
	return a.Decode(jx.DecodeBytes(data))
}

// Decode reads a cart line {id, variantId?, price, quantity}.
func (c *CartItem) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			c.ID, err = DecodeID(d)
		case "variantId":
			if d.Next() == jx.Null {
				return d.Null()
			}
			c.VariantID, err = DecodeID(d)
		case "price":
			c.Price, err = DecodeDecimal(d)
		case "quantity":
			c.Quantity, err = d.Int()
		default:
			return d.Skip()
		}
		return wrapField(err, key)
	})
}

// DecodeDecimal reads a decimal given either as a JSON number or a string.
// null decodes to zero.
func DecodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	v, _, err := DecodeDecimalText(d)
	return v, err
}

// DecodeDecimalText is DecodeDecimal that also returns the value's source
// text. null decodes to zero and "".
func DecodeDecimalText(d *jx.Decoder) (decimal.Decimal, string, error) {
	var text string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, "", err
		}
		text = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, "", err
		}
		text = n.String()
	case jx.Null:
		return decimal.Zero, "", d.Null()
	default:
		return decimal.Zero, "", errors.Errorf("unexpected %v for decimal", d.Next())
	}
	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, "", err
	}
	return v, text, nil
}

// DecodeID reads an identifier given either as a JSON string or number.
func DecodeID(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case jx.Null:
		return "", d.Null()
	default:
		return "", errors.Errorf("unexpected %v for id", d.Next())
	}
}

// DecodeIDs reads an array of identifiers. null decodes to an empty slice.
func DecodeIDs(d *jx.Decoder) ([]string, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var ids []string
	err := d.Arr(func(d *jx.Decoder) error {
		id, err := DecodeID(d)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// DecodeTime reads an RFC 3339 timestamp. null decodes to nil.
func DecodeTime(d *jx.Decoder) (*time.Time, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	s, err := d.Str()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func wrapField(err error, key []byte) error {
	if err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptDecimal(d *jx.Decoder) (*decimal.Decimal, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := DecodeDecimal(d)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}
