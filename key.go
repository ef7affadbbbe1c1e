package popcache

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key is the normalized identity of an entry.
// Both parts are lower-cased and combined as a JSON array, `["region","locality"]`.
type Key string

// NewKey returns the normalized key of the (region, locality) pair.
func NewKey(region, locality string) Key {
	// marshaling a string array can not fail.
	b, _ := json.Marshal([2]string{strings.ToLower(region), strings.ToLower(locality)})
	return Key(b)
}

// Parts decodes the key back into its normalized region and locality.
func (key Key) Parts() (region, locality string, err error) {
	var parts [2]string
	if err := json.Unmarshal([]byte(key), &parts); err != nil {
		return "", "", fmt.Errorf("popcache: malformed key %q: %w", string(key), err)
	}
	return parts[0], parts[1], nil
}

func (key Key) String() string {
	return string(key)
}
