package spoke

import (
	"weak"
)

// queryCache holds every query created by a Storage, keyed by the hash of its
// compiled key. Queries are held weakly, a query nobody references anymore is
// dropped on the next cleanup.
type queryCache struct {
	queries map[uint64][]weak.Pointer[Query]
}

func (qc *queryCache) Get(compiled CompiledQuery) *Query {
	for _, weakQuery := range qc.queries[compiled.Hash] {
		query := weakQuery.Value()
		if query != nil && query.compiled.Key == compiled.Key {
			return query
		}
	}

	return nil
}

func (qc *queryCache) Add(query *Query) {
	if qc.queries == nil {
		qc.queries = map[uint64][]weak.Pointer[Query]{}
	}

	hash := query.compiled.Hash
	qc.queries[hash] = append(qc.queries[hash], weak.Make(query))
}

// All iterates over all live queries and drops collected ones.
func (qc *queryCache) All(yield func(*Query)) {
	for hash, queries := range qc.queries {
		// reuse slice memory
		alive := queries[:0]

		for _, weakQuery := range queries {
			query := weakQuery.Value()
			if query == nil {
				continue
			}

			alive = append(alive, weakQuery)
			yield(query)
		}

		if len(alive) == 0 {
			delete(qc.queries, hash)
		} else {
			clear(queries[len(alive):])
			qc.queries[hash] = alive
		}
	}
}

func (qc *queryCache) Len() int {
	var count int
	qc.All(func(*Query) { count++ })
	return count
}
