package ledger

// AccountIndex resolves account references by id or by normalized name
type AccountIndex struct {
	byID   map[string]int
	byName map[string]int
}

// NewAccountIndex indexes accounts. When names collide the first account wins.
func NewAccountIndex(accounts []Account) *AccountIndex {
	idx := &AccountIndex{
		byID:   make(map[string]int, len(accounts)),
		byName: make(map[string]int, len(accounts)),
	}
	for i, a := range accounts {
		if _, ok := idx.byID[a.ID]; !ok && a.ID != "" {
			idx.byID[a.ID] = i
		}
		key := NormalizeName(a.Name)
		if _, ok := idx.byName[key]; !ok && key != "" {
			idx.byName[key] = i
		}
	}
	return idx
}

// ByID returns the position of the account with id
func (x *AccountIndex) ByID(id string) (int, bool) {
	i, ok := x.byID[id]
	return i, ok
}

// ByName returns the position of the account whose trimmed, case-folded name matches
func (x *AccountIndex) ByName(name string) (int, bool) {
	i, ok := x.byName[NormalizeName(name)]
	return i, ok
}
