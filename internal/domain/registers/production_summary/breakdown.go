package production_summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
)

// UnassignedSalesPerson labels orders placed without a sales person.
const UnassignedSalesPerson = "Unassigned"

// SalesLine is one order line of the product on the day, joined with its
// order's sales person.
type SalesLine struct {
	OrderID         id.ID          `db:"order_id"`
	SalesPersonID   *id.ID         `db:"sales_person_id"`
	SalesPersonName *string        `db:"sales_person_name"`
	Quantity        types.Quantity `db:"quantity"`
}

// BuildBreakdown groups lines by sales person. Lines of the same order add
// to the quantity but count as one order. Entries are sorted by name, then
// by ID, so identical input always yields identical output.
func BuildBreakdown(lines []SalesLine) []SalesBreakdownEntry {
	type acc struct {
		entry  SalesBreakdownEntry
		orders map[id.ID]struct{}
	}

	byPerson := make(map[id.ID]*acc)
	for _, line := range lines {
		personID := id.Deref(line.SalesPersonID)
		a, ok := byPerson[personID]
		if !ok {
			name := UnassignedSalesPerson
			if line.SalesPersonID != nil && line.SalesPersonName != nil {
				name = *line.SalesPersonName
			}
			a = &acc{
				entry: SalesBreakdownEntry{
					SalesPersonID:   personID,
					SalesPersonName: name,
					TotalQuantity:   decimal.Zero,
				},
				orders: make(map[id.ID]struct{}),
			}
			byPerson[personID] = a
		}
		a.entry.TotalQuantity = a.entry.TotalQuantity.Add(line.Quantity)
		a.orders[line.OrderID] = struct{}{}
	}

	entries := make([]SalesBreakdownEntry, 0, len(byPerson))
	for _, a := range byPerson {
		a.entry.OrderCount = len(a.orders)
		entries = append(entries, a.entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].SalesPersonName != entries[j].SalesPersonName {
			return entries[i].SalesPersonName < entries[j].SalesPersonName
		}
		return entries[i].SalesPersonID.String() < entries[j].SalesPersonID.String()
	})

	return entries
}
