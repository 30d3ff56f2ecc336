// Package wire implements the envelope exchanged on the push channel:
//
//	{"event": "<name>", "data": <payload>}
//
// The payload is kept raw so receivers can inspect scan_id before paying for
// a full decode.
package wire

import (
	"encoding/json"
	"qrscanner/pkg/domain"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Message is one named message on the push channel.
type Message struct {
	Event string
	Data  jx.Raw
}

// New builds a message from a domain event.
func New(ev domain.Event) (Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Message{}, errors.Wrapf(err, "marshal %s", ev.EventName())
	}

	return Message{Event: ev.EventName(), Data: data}, nil
}

// Encode writes the envelope of msg. A message without data omits the field.
func Encode(msg Message) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("event")
	e.Str(msg.Event)
	if len(msg.Data) > 0 {
		e.FieldStart("data")
		e.Raw(msg.Data)
	}
	e.ObjEnd()

	return e.Bytes()
}

// Decode parses an envelope. Unknown fields are skipped.
func Decode(b []byte) (Message, error) {
	var msg Message
	d := jx.DecodeBytes(b)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "event":
			s, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "event")
			}
			msg.Event = s
		case "data":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "data")
			}
			msg.Data = append(jx.Raw(nil), raw...)
		default:
			return d.Skip()
		}

		return nil
	}); err != nil {
		return Message{}, errors.Wrap(err, "decode envelope")
	}
	if msg.Event == "" {
		return Message{}, errors.New("envelope without event name")
	}

	return msg, nil
}

// ScanID reads the top-level scan_id of a payload. ok is false when the
// payload is not an object or scan_id is missing or not a string.
func ScanID(data []byte) (id string, ok bool) {
	if len(data) == 0 {
		return "", false
	}

	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return "", false
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		if key != "scan_id" || d.Next() != jx.String {
			return d.Skip()
		}
		s, err := d.Str()
		if err != nil {
			return err
		}
		id, ok = s, true

		return nil
	})
	if err != nil {
		return "", false
	}

	return id, ok
}
