package handler

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

type checkRequest struct {
	Code      string
	Items     []discount.CartItem
	CartTotal *decimal.Decimal
}

func (req *checkRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "code":
			if d.Next() == jx.Null {
				return d.Null()
			}
			req.Code, err = d.Str()
		case "cartItems":
			req.Items, err = decodeItems(d)
		case "cartTotal":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			v, err = discount.DecodeDecimal(d)
			req.CartTotal = &v
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
}

func (req *checkRequest) validate() error {
	if strings.TrimSpace(req.Code) == "" {
		return errors.New(msgCodeRequired)
	}
	if req.CartTotal != nil && req.CartTotal.IsNegative() {
		return errors.New("Cart total must not be negative")
	}
	return validateItems(req.Items)
}

// total is the submitted cart total, or the items' subtotal when the client
// omitted it.
func (req *checkRequest) total() decimal.Decimal {
	if req.CartTotal != nil {
		return *req.CartTotal
	}
	return discount.Subtotal(req.Items)
}

// cartRequest is the body shared by recalculation and cart totals.
type cartRequest struct {
	Items       []discount.CartItem
	Quantities  map[string]int
	Applied     *discount.AppliedDiscount
	DeliveryFee decimal.Decimal
}

func (req *cartRequest) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "cartItems":
			req.Items, err = decodeItems(d)
		case "quantities":
			req.Quantities, err = decodeQuantities(d)
		case "appliedDiscount":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var a discount.AppliedDiscount
			err = a.Decode(d)
			req.Applied = &a
		case "deliveryFee":
			req.DeliveryFee, err = discount.DecodeDecimal(d)
		default:
			return d.Skip()
		}
		return fieldErr(err, key)
	})
}

func decodeItems(d *jx.Decoder) ([]discount.CartItem, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var items []discount.CartItem
	err := d.Arr(func(d *jx.Decoder) error {
		var item discount.CartItem
		if err := item.Decode(d); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	return items, err
}

func decodeQuantities(d *jx.Decoder) (map[string]int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	q := make(map[string]int)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		n, err := d.Int()
		if err != nil {
			return err
		}
		q[string(key)] = n
		return nil
	})
	return q, err
}

func (req *cartRequest) validate() error {
	if err := validateItems(req.Items); err != nil {
		return err
	}
	for id, qty := range req.Quantities {
		if qty < 0 {
			return errors.Errorf("Invalid quantity for item %s", id)
		}
	}
	return nil
}

func validateItems(items []discount.CartItem) error {
	for _, item := range items {
		if item.Price.IsNegative() {
			return errors.Errorf("Invalid price for item %s", item.ID)
		}
		if item.Quantity < 1 {
			return errors.Errorf("Invalid quantity for item %s", item.ID)
		}
	}
	return nil
}

func fieldErr(err error, key []byte) error {
	if err != nil {
		return errors.Wrapf(err, "decode %q", key)
	}
	return nil
}
