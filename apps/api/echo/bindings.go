package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hamzaf287/focus-app/core"
)

const orderingParam = "ordering"

// Ordering binds `?ordering=-focus_percentage,created_at`: a leading "-" sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.ToLower(strings.TrimSpace(field))
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// Allowed keeps the bound orderings on the given fields, or returns dflt when none is left.
func (ord *Ordering) Allowed(dflt []core.DBOrdering, fields ...string) []core.DBOrdering {
	if orderings := core.FilterOrderings(ord.Orderings, fields...); len(orderings) > 0 {
		return orderings
	}
	return dflt
}
