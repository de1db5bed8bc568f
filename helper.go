package insteon

// put is a variadic fixed-length buffer builder, narrowed from
// GoAethereal-modbus/helper.go's put() to the argument types Insteon
// frames need.
func put(length int, args ...interface{}) []byte {
	buf := make([]byte, length)
	rest := buf
	for _, arg := range args {
		switch v := arg.(type) {
		case byte:
			rest[0] = v
			rest = rest[1:]
		case []byte:
			rest = rest[copy(rest, v):]
		case Address:
			rest = rest[copy(rest, v.Bytes()):]
		case MessageFlags:
			rest[0] = v.Byte()
			rest = rest[1:]
		}
	}
	return buf
}

// padUserData right-pads data with zero bytes to exactly 14 bytes, as
// required for extended messages (spec.md §4.2). A payload longer than
// 14 bytes is a programmer error (EncodingError).
func padUserData(data []byte) ([14]byte, error) {
	var out [14]byte
	if len(data) > 14 {
		return out, &EncodingError{Reason: "user_data longer than 14 bytes"}
	}
	copy(out[:], data)
	return out, nil
}
