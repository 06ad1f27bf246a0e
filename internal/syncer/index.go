package syncer

import "github.com/pepperpark/mailcopy/internal/message"

// Index is the set of message identifiers present in a destination folder
// when its processing started.
type Index map[string]struct{}

// BuildIndex collects the identifiers of headers.
func BuildIndex(headers []message.Header) Index {
	idx := make(Index, len(headers))
	for _, h := range headers {
		idx[h.ID] = struct{}{}
	}
	return idx
}

// Contains reports whether id is present.
func (idx Index) Contains(id string) bool {
	_, ok := idx[id]
	return ok
}

func (idx Index) Len() int { return len(idx) }
