package agreement

import (
	"math/big"
)

// MetadataValueKind tags the leaf carried by a MetadataValue.
type MetadataValueKind uint8

const (
	MetadataText MetadataValueKind = iota
	MetadataNat
	MetadataInt
	MetadataBlob
	MetadataMap
)

// MetadataValue is the generic property bag attached to token metadata
// and deferred contracts: a tagged union of leaf values plus a nested
// mapping case referring back to itself. The nested case goes through a
// slice of entries (pointer-free recursion terminates at the leaves).
type MetadataValue struct {
	Kind MetadataValueKind

	Text string
	Nat  *big.Int
	Int  *big.Int
	Blob []byte
	Map  []MetadataEntry
}

// MetadataEntry is one named field of a nested MetadataValue map.
type MetadataEntry struct {
	Name  string
	Value *MetadataValue
}

func TextValue(s string) MetadataValue {
	return MetadataValue{Kind: MetadataText, Text: s}
}

func NatValue(n *big.Int) MetadataValue {
	return MetadataValue{Kind: MetadataNat, Nat: n}
}

func IntValue(n *big.Int) MetadataValue {
	return MetadataValue{Kind: MetadataInt, Int: n}
}

func BlobValue(b []byte) MetadataValue {
	return MetadataValue{Kind: MetadataBlob, Blob: b}
}

func MapValue(entries []MetadataEntry) MetadataValue {
	return MetadataValue{Kind: MetadataMap, Map: entries}
}

// Get walks one level of a nested map and returns the named value.
func (v *MetadataValue) Get(name string) (*MetadataValue, bool) {
	if v.Kind != MetadataMap {
		return nil, false
	}
	for _, entry := range v.Map {
		if entry.Name == name {
			return entry.Value, true
		}
	}
	return nil, false
}
