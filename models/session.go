package models

// Session is the per-form state kept between requests. Records stored in
// memdb must not be mutated in place; copy, change, re-insert.
type Session struct {
	ID       string
	Form     FormDetails
	ImageURL string
	Loading  bool
	Created  string
	Expiry   string
}

func (s *Session) Copy() *Session {
	c := *s
	return &c
}
