package pie

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

const (
	prefixPie   = "pie"
	prefixSlice = "slice"
)

// newID generates a K-sortable "prefix_suffix" identifier.
// It panics on an invalid prefix, which is a programming error.
func newID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("pie: invalid id prefix %q: %v", prefix, err))
	}
	return tid.String()
}
