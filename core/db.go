package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops orderings on fields that are not in `allowed` ({field: column}),
// and maps the remaining ones to their column names.
func FilterOrderings(orderings []DBOrdering, allowed map[string]string) []DBOrdering {
	filtered := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if col, ok := allowed[ord.Field]; ok {
			filtered = append(filtered, DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	return filtered
}
