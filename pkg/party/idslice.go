package party

import (
	"fmt"
	"sort"
	"strings"
)

// IDSlice is a sorted list of unique IDs.
type IDSlice []ID

// NewIDSlice returns a sorted slice from partyIDs, with duplicates removed.
func NewIDSlice(partyIDs []ID) IDSlice {
	ids := make(IDSlice, 0, len(partyIDs))
	seen := make(map[ID]struct{}, len(partyIDs))
	for _, id := range partyIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	ids.sort()
	return ids
}

// Range returns the IDs 1, …, n.
func Range(n int) IDSlice {
	ids := make(IDSlice, n)
	for i := range ids {
		ids[i] = ID(i + 1)
	}
	return ids
}

// Contains returns true if partyIDs contains all of ids.
func (partyIDs IDSlice) Contains(ids ...ID) bool {
	for _, id := range ids {
		if _, found := partyIDs.search(id); !found {
			return false
		}
	}
	return true
}

// Valid returns true if the IDSlice is sorted, free of duplicates, and contains no zero ID.
func (partyIDs IDSlice) Valid() bool {
	for i, id := range partyIDs {
		if id == 0 {
			return false
		}
		if i > 0 && partyIDs[i-1] >= id {
			return false
		}
	}
	return true
}

// Copy returns an identical copy of the received.
func (partyIDs IDSlice) Copy() IDSlice {
	a := make(IDSlice, len(partyIDs))
	copy(a, partyIDs)
	return a
}

// Remove finds the first occurrence of id and returns a copy without it.
func (partyIDs IDSlice) Remove(id ID) IDSlice {
	newPartyIDs := make(IDSlice, 0, len(partyIDs))
	for _, partyID := range partyIDs {
		if partyID != id {
			newPartyIDs = append(newPartyIDs, partyID)
		}
	}
	return newPartyIDs
}

func (partyIDs IDSlice) search(x ID) (int, bool) {
	index := sort.Search(len(partyIDs), func(i int) bool { return partyIDs[i] >= x })
	if index < len(partyIDs) && partyIDs[index] == x {
		return index, true
	}
	return 0, false
}

func (partyIDs IDSlice) sort() {
	sort.Slice(partyIDs, func(i, j int) bool { return partyIDs[i] < partyIDs[j] })
}

func (partyIDs IDSlice) String() string {
	s := make([]string, len(partyIDs))
	for i, id := range partyIDs {
		s[i] = id.String()
	}
	return fmt.Sprintf("[%s]", strings.Join(s, ", "))
}
