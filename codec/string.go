package codec

// String stores Go strings as their raw bytes. The session store keeps
// the user -> token pointer with it, which is also what the legacy service
// wrote, so no JSON quoting is involved.
type String struct{}

var _ Codec[string] = String{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
