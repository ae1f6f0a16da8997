package batch

import "fmt"

// CorrelationError reports a remote batch entry that could not be matched
// back to any requested key. Correlation failures poison the whole window:
// handing a caller a misaligned record is worse than failing all of them.
type CorrelationError struct {
	Backend string
	Field   string
	Reason  string
}

func (e *CorrelationError) Error() string {
	return fmt.Sprintf("correlating %s.%s batch response: %s", e.Backend, e.Field, e.Reason)
}

// Correlator assigns one result slot to every registered key, in registration
// order. entries is the normalized remote response, orderedKeys the keys as
// registered (duplicates retained), distinctKeys the deduplicated set that was
// sent to the backend (first-occurrence order).
//
// The returned slice always has len(orderedKeys) entries. A key the backend
// did not answer gets an explicit empty slot, never a shifted neighbor.
type Correlator func(entries []any, orderedKeys, distinctKeys []any) ([]any, error)

// canonicalKey renders a key for equality checks. Backends are free to echo
// an ID back as a number where the gateway sent a string; comparing canonical
// strings lets both renderings correlate.
func canonicalKey(key any) string {
	return fmt.Sprint(key)
}

// CorrelateByField matches entries to keys by reading the named field from
// each entry. Use for to-one relationships: every key maps to at most one
// record. When a backend hands back several records for one key, the first
// one wins; to-many relationships belong to CorrelateGroupsByField.
func CorrelateByField(field string) Correlator {
	return func(entries []any, orderedKeys, _ []any) ([]any, error) {
		index := make(map[string]any, len(entries))
		for _, entry := range entries {
			key, err := entryKey(entry, field)
			if err != nil {
				return nil, err
			}
			canon := canonicalKey(key)
			if _, ok := index[canon]; !ok {
				index[canon] = entry
			}
		}
		slots := make([]any, len(orderedKeys))
		for i, key := range orderedKeys {
			slots[i] = index[canonicalKey(key)]
		}
		return slots, nil
	}
}

// CorrelateGroupsByField groups entries by the named field and hands every
// key its whole group. Keys without records receive an empty list, so
// list-typed fields resolve to [] rather than null.
func CorrelateGroupsByField(field string) Correlator {
	return func(entries []any, orderedKeys, _ []any) ([]any, error) {
		groups := make(map[string][]any, len(entries))
		for _, entry := range entries {
			key, err := entryKey(entry, field)
			if err != nil {
				return nil, err
			}
			canon := canonicalKey(key)
			groups[canon] = append(groups[canon], entry)
		}
		slots := make([]any, len(orderedKeys))
		for i, key := range orderedKeys {
			group := groups[canonicalKey(key)]
			if group == nil {
				group = []any{}
			}
			slots[i] = group
		}
		return slots, nil
	}
}

// Positional assigns entry i to distinct key i. It fits backends whose batch
// field returns one aligned slot per requested key, representing a miss as an
// explicit null at that position. The entry count must equal the distinct key
// count; anything else means alignment is unknowable.
func Positional() Correlator {
	return func(entries []any, orderedKeys, distinctKeys []any) ([]any, error) {
		if len(entries) != len(distinctKeys) {
			return nil, &CorrelationError{
				Reason: fmt.Sprintf("positional response has %d entries for %d distinct keys", len(entries), len(distinctKeys)),
			}
		}
		byKey := make(map[string]any, len(distinctKeys))
		for i, key := range distinctKeys {
			byKey[canonicalKey(key)] = entries[i]
		}
		slots := make([]any, len(orderedKeys))
		for i, key := range orderedKeys {
			slots[i] = byKey[canonicalKey(key)]
		}
		return slots, nil
	}
}

// entryKey extracts the correlation key from one remote record. A record
// without the key field cannot be attributed to any caller.
func entryKey(entry any, field string) (any, error) {
	record, ok := entry.(map[string]any)
	if !ok {
		return nil, &CorrelationError{
			Reason: fmt.Sprintf("batch entry is %T, want an object carrying the %q field", entry, field),
		}
	}
	key, ok := record[field]
	if !ok || key == nil {
		return nil, &CorrelationError{
			Reason: fmt.Sprintf("batch entry is missing the %q key field", field),
		}
	}
	return key, nil
}
