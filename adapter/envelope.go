package adapter

type Result string

const (
	Success      Result = "success"
	Failed       Result = "failed"
	InvalidParam Result = "invalid_param"
	// Unavailable is only produced when the bridge is configured to report
	// a missing store instead of dropping the command.
	Unavailable Result = "unavailable"
)

// Payload markers carried in Envelope.Data.
const (
	Undefined        = "undefined"
	InvalidParamData = "invalid_param"
)

// Envelope is the uniform result of every storage command.
//
// Data holds Undefined, InvalidParamData, the stored string, an int count
// or a []string of keys depending on the command.
type Envelope struct {
	Result Result `json:"result"`
	Data   any    `json:"data"`
}

func (e Envelope) OK() bool {
	return e.Result == Success
}

// Value returns Data as a string when the envelope carries one. Markers
// such as Undefined are strings too; check Result first.
func (e Envelope) Value() (string, bool) {
	s, ok := e.Data.(string)
	return s, ok
}

// Count returns Data as an integer. It accepts the float64 a JSON decoder
// produces.
func (e Envelope) Count() (int, bool) {
	switch n := e.Data.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Keys returns Data as a key list, decoding the []any a JSON decoder
// produces.
func (e Envelope) Keys() ([]string, bool) {
	switch ks := e.Data.(type) {
	case []string:
		return ks, true
	case []any:
		keys := make([]string, 0, len(ks))
		for _, k := range ks {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			keys = append(keys, s)
		}
		return keys, true
	}
	return nil, false
}
