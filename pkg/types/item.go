package types

// ReferenceItem is one entry of the canonical reference catalogue.
// Code is the normalized, unique match key. Embedding is filled once during
// corpus embedding and is immutable after the vector index is built; all
// embeddings in a corpus share the same dimension.
type ReferenceItem struct {
	Code        string
	Description string
	Unit        string // optional, empty when the source row has none
	Category    string // optional
	Embedding   []float32
}

// QueryItem is an extracted line item to be matched against the catalogue.
// It is transient: one per match request, with no identity beyond the
// caller-supplied ID.
type QueryItem struct {
	ID          string
	Description string
	Code        string // optional
	Unit        string // optional
}

// Validate checks that a reference item can participate in matching.
func (r *ReferenceItem) Validate() error {
	if r.Code == "" {
		return ErrEmptyCode
	}
	if r.Description == "" {
		return ErrEmptyDescription
	}
	return nil
}

// Validate checks that a query item is well formed.
func (q *QueryItem) Validate() error {
	if q.Description == "" {
		return ErrEmptyDescription
	}
	return nil
}
