package codec

import "google.golang.org/protobuf/encoding/protowire"

// StringValue is a built-in single-field message ({value: string}, field
// 1), used by the echo demo service so it has something to marshal
// without pulling in a generated .pb.go file.
type StringValue struct {
	Value string
}

const stringValueField = protowire.Number(1)

// Marshal implements Marshaler.
func (this StringValue) Marshal() ([]byte, error) {
	var dst []byte
	dst = protowire.AppendTag(dst, stringValueField, protowire.BytesType)
	dst = protowire.AppendString(dst, this.Value)
	return dst, nil
}

// Unmarshal implements Unmarshaler.
func (this *StringValue) Unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if num == stringValueField {
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			this.Value = v
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
	}
	return nil
}
