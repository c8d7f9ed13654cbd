package cart

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/happyhour-app/happyhour/internal/domain/inventory"
)

// Snapshot encodes the cart into the blob persisted at the client-durable
// storage boundary. The format only has to survive a reload of the same
// service version; it is not a public contract.
func Snapshot(c *Cart) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("store_id")
	e.Str(c.StoreID)
	e.FieldStart("event_id")
	e.Str(c.EventID)
	e.FieldStart("started_at")
	e.Str(c.StartedAt.Format(time.RFC3339Nano))

	e.FieldStart("meta")
	e.ObjStart()
	e.FieldStart("hh_start")
	e.Str(c.Meta.HappyHourStart)
	e.FieldStart("hh_end")
	e.Str(c.Meta.HappyHourEnd)
	e.FieldStart("weekdays")
	e.ArrStart()
	for _, wd := range c.Meta.Weekdays {
		e.Int(int(wd))
	}
	e.ArrEnd()
	e.ObjEnd()

	e.FieldStart("items")
	e.ArrStart()
	for i := range c.Items {
		encodeItem(&e, &c.Items[i])
	}
	e.ArrEnd()

	e.ObjEnd()
	return e.Bytes()
}

func encodeItem(e *jx.Encoder, it *Item) {
	e.ObjStart()
	e.FieldStart("kind")
	e.Str(string(it.Kind))
	e.FieldStart("ref_id")
	e.Str(it.RefID)
	e.FieldStart("menu_id")
	e.Str(it.MenuID)
	e.FieldStart("qty")
	e.Int(it.Quantity)
	e.FieldStart("menu_name")
	e.Str(it.MenuName)
	e.FieldStart("original_price")
	e.Str(it.OriginalPrice.String())
	e.FieldStart("discount_rate")
	e.Int(it.DiscountRate)
	e.FieldStart("final_price")
	e.Str(it.FinalPrice.String())
	e.ObjEnd()
}

// Restore decodes a snapshot previously produced by Snapshot.
func Restore(data []byte) (*Cart, error) {
	var c Cart
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "store_id":
			v, err := d.Str()
			c.StoreID = v
			return err
		case "event_id":
			v, err := d.Str()
			c.EventID = v
			return err
		case "started_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ts, err := time.Parse(time.RFC3339Nano, v)
			c.StartedAt = ts
			return err
		case "meta":
			return d.Obj(func(d *jx.Decoder, key string) error {
				switch key {
				case "hh_start":
					v, err := d.Str()
					c.Meta.HappyHourStart = v
					return err
				case "hh_end":
					v, err := d.Str()
					c.Meta.HappyHourEnd = v
					return err
				case "weekdays":
					return d.Arr(func(d *jx.Decoder) error {
						v, err := d.Int()
						if err != nil {
							return err
						}
						c.Meta.Weekdays = append(c.Meta.Weekdays, time.Weekday(v))
						return nil
					})
				default:
					return d.Skip()
				}
			})
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				it, err := decodeItem(d)
				if err != nil {
					return err
				}
				c.Items = append(c.Items, it)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cart snapshot")
	}
	return &c, nil
}

func decodeItem(d *jx.Decoder) (Item, error) {
	var it Item
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "kind":
			v, err := d.Str()
			it.Kind = inventory.Kind(v)
			return err
		case "ref_id":
			v, err := d.Str()
			it.RefID = v
			return err
		case "menu_id":
			v, err := d.Str()
			it.MenuID = v
			return err
		case "qty":
			v, err := d.Int()
			it.Quantity = v
			return err
		case "menu_name":
			v, err := d.Str()
			it.MenuName = v
			return err
		case "original_price":
			return decodeDecimal(d, &it.OriginalPrice)
		case "discount_rate":
			v, err := d.Int()
			it.DiscountRate = v
			return err
		case "final_price":
			return decodeDecimal(d, &it.FinalPrice)
		default:
			return d.Skip()
		}
	})
	return it, err
}

func decodeDecimal(d *jx.Decoder, out *decimal.Decimal) error {
	s, err := d.Str()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	*out = v
	return nil
}
