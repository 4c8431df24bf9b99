package production_summary

import (
	"sort"

	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/internal/domain/catalogs/production_group"
)

// GroupView is a production group with the day's rows of its products, in
// the group's product order.
type GroupView struct {
	Group     *production_group.ProductionGroup `json:"group"`
	Summaries []*DailyProductSummary            `json:"summaries"`
}

// DayView is the aggregate-by-date result.
type DayView struct {
	Date      types.Day              `json:"date"`
	Groups    []GroupView            `json:"groups"`
	Ungrouped []*DailyProductSummary `json:"ungrouped"`
}

// BuildDayView lays rows out by production group. A product listed in
// several groups appears under each; rows of products in no group are
// ungrouped and sorted by product name. Groups keep the given order.
func BuildDayView(day types.Day, rows []*DailyProductSummary, groups []*production_group.ProductionGroup) *DayView {
	byProduct := make(map[id.ID]*DailyProductSummary, len(rows))
	for _, r := range rows {
		byProduct[r.ProductID] = r
	}

	view := &DayView{
		Date:      day,
		Groups:    make([]GroupView, 0, len(groups)),
		Ungrouped: []*DailyProductSummary{},
	}

	grouped := make(map[id.ID]struct{})
	for _, g := range groups {
		gv := GroupView{Group: g, Summaries: []*DailyProductSummary{}}
		for _, pid := range g.ProductIDs {
			grouped[pid] = struct{}{}
			if r, ok := byProduct[pid]; ok {
				gv.Summaries = append(gv.Summaries, r)
			}
		}
		view.Groups = append(view.Groups, gv)
	}

	for _, r := range rows {
		if _, ok := grouped[r.ProductID]; !ok {
			view.Ungrouped = append(view.Ungrouped, r)
		}
	}
	sort.SliceStable(view.Ungrouped, func(i, j int) bool {
		a, b := view.Ungrouped[i], view.Ungrouped[j]
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.ProductID.String() < b.ProductID.String()
	})

	return view
}
