package field

// Values reaching this package are JSON-shaped: nil, string, bool, float64,
// []any, or map[string]any. Typed Option and RewardValue structs are also
// accepted since action parameters construct them directly.

// Equal reports whether two values of the given type are the same.
// Empty values (nil, "", 0, empty list/map) all compare equal to each
// other, so a missing field never diffs against an explicit zero.
func Equal(t Type, a, b any) bool {
	if IsEmpty(a) && IsEmpty(b) {
		return true
	}
	if IsEmpty(a) != IsEmpty(b) {
		return false
	}

	switch t {
	case SingleSelect:
		return optionValue(a) == optionValue(b)
	case MultiSelect, MultiURL:
		return sameSet(optionValues(a), optionValues(b))
	case UserList:
		return sameSet(stringList(a), stringList(b))
	case Reward:
		ra, rb := rewardValue(a), rewardValue(b)
		return ra == rb
	case StatusMap, KudosMap:
		return sameMap(anyMap(a), anyMap(b))
	case Number, Slider:
		return toFloat(a) == toFloat(b)
	default:
		// Scalar types: text, date, email, url, user.
		return toString(a) == toString(b)
	}
}

// IsEmpty reports whether v is nil or a zero/empty value of its shape.
func IsEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case float64:
		return x == 0
	case int:
		return x == 0
	case bool:
		// A false flag and an absent flag are the same state.
		return !x
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case map[string]bool:
		return len(x) == 0
	case map[string]string:
		return len(x) == 0
	case Option:
		return x.Value == ""
	case *Option:
		return x == nil || x.Value == ""
	case RewardValue:
		return x.Amount == 0 && x.TokenAddress == "" && x.ChainID == ""
	case *RewardValue:
		return x == nil || IsEmpty(*x)
	default:
		return false
	}
}

// optionValue extracts the stable value key from a select option, which
// may arrive as an Option struct, a decoded JSON map, or a bare string.
func optionValue(v any) string {
	switch x := v.(type) {
	case Option:
		return x.Value
	case *Option:
		if x == nil {
			return ""
		}
		return x.Value
	case map[string]any:
		s, _ := x["value"].(string)
		return s
	case string:
		return x
	default:
		return ""
	}
}

// optionValues extracts the set of value keys from a multi-select value.
func optionValues(v any) []string {
	switch x := v.(type) {
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, optionValue(e))
		}
		return out
	case []Option:
		out := make([]string, 0, len(x))
		for _, e := range x {
			out = append(out, e.Value)
		}
		return out
	case []string:
		return x
	default:
		return nil
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// sameSet compares two string lists as sets, order-independent.
func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

func rewardValue(v any) RewardValue {
	switch x := v.(type) {
	case RewardValue:
		return x
	case *RewardValue:
		if x == nil {
			return RewardValue{}
		}
		return *x
	case map[string]any:
		return RewardValue{
			ChainID:      toString(x["chainId"]),
			TokenAddress: toString(x["tokenAddress"]),
			Amount:       toFloat(x["value"]),
		}
	default:
		return RewardValue{}
	}
}

// AsMap normalizes a map-valued field to map[string]any, returning nil
// for non-map values.
func AsMap(v any) map[string]any {
	return anyMap(v)
}

func anyMap(v any) map[string]any {
	switch x := v.(type) {
	case map[string]any:
		return x
	case map[string]bool:
		out := make(map[string]any, len(x))
		for k, b := range x {
			out[k] = b
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	default:
		return nil
	}
}

func sameMap(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !sameValue(av, bv) {
			return false
		}
	}
	return true
}

// sameValue compares two JSON-shaped values structurally: maps key-wise,
// lists element-wise in order, scalars by normalized form. Map fields
// can hold structured entries (kudos claims, column shapes), so scalar
// normalization alone would report two different objects as equal.
func sameValue(a, b any) bool {
	if IsEmpty(a) && IsEmpty(b) {
		return true
	}
	if am, bm := anyMap(a), anyMap(b); am != nil || bm != nil {
		if am == nil || bm == nil {
			return false
		}
		return sameMap(am, bm)
	}
	al, aok := listOfAny(a)
	bl, bok := listOfAny(b)
	if aok || bok {
		if !aok || !bok || len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !sameValue(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return toString(a) == toString(b) && toFloat(a) == toFloat(b)
}

func listOfAny(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
