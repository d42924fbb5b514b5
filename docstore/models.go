package docstore

// Record is one chunk ready to be written to the index.
type Record struct {
	ID      string
	Vector  []float32
	Text    string
	PartyID string
	Source  string
}

// Match is a chunk returned by a similarity query. Higher Score is more
// relevant.
type Match struct {
	ID      string
	Score   float32
	Text    string
	PartyID string
	Source  string
}

// Filter restricts a query by metadata equality. The zero value searches
// every party.
type Filter struct {
	PartyID string
}
