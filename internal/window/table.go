// Package window aggregates metric rows into daily series and computes
// windowed sums over them.
package window

import (
	"sort"
	"time"

	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
)

// Record holds the column values of one group on one day.
type Record struct {
	Group  string
	Day    time.Time
	Values map[string]float64
}

func (r Record) Get(column string) float64 {
	return r.Values[column]
}

// Table is a set of records sorted by group and then by day.
type Table struct {
	Columns []string
	Records []Record
}

// GroupFunc names the group a row belongs to. Returning "" puts every row
// in one group.
type GroupFunc func(models.MetricRow) string

func ByNothing(models.MetricRow) string { return "" }

func ByFirstName(row models.MetricRow) string { return row.FirstName }

func ByUserAndKind(row models.MetricRow) string { return row.User + "/" + row.Kind }

// Pivot sums row values into one column per row kind, for every group and
// day of span. Days without rows are imputed with zeros so every group has
// a record for every day.
func Pivot(rows []models.MetricRow, span daterange.Range, groupBy GroupFunc, column func(models.MetricRow) string) Table {
	if column == nil {
		column = func(row models.MetricRow) string { return row.Kind }
	}

	sums := map[string]map[time.Time]map[string]float64{}
	columns := map[string]struct{}{}
	for _, row := range rows {
		if row.Date == nil || !span.Contains(*row.Date) {
			continue
		}
		group := groupBy(row)
		day := daterange.FloorDay(*row.Date)
		name := column(row)
		columns[name] = struct{}{}

		if sums[group] == nil {
			sums[group] = map[time.Time]map[string]float64{}
		}
		if sums[group][day] == nil {
			sums[group][day] = map[string]float64{}
		}
		sums[group][day][name] += row.Value
	}

	table := Table{Columns: sortedKeys(columns)}
	groups := make([]string, 0, len(sums))
	for group := range sums {
		groups = append(groups, group)
	}
	sort.Strings(groups)

	for _, group := range groups {
		span.EachDay(func(day time.Time) {
			values := make(map[string]float64, len(table.Columns))
			for _, name := range table.Columns {
				values[name] = sums[group][day][name]
			}
			table.Records = append(table.Records, Record{Group: group, Day: day, Values: values})
		})
	}
	return table
}

// Rolling replaces the given columns with their sums over frame, computed
// separately for each group.
func (t Table) Rolling(frame Frame, columns ...string) Table {
	out := t.clone()
	for _, part := range out.groups() {
		for i := range part {
			lo, hi := frame.bounds(i, len(part))
			for _, column := range columns {
				sum := 0.0
				for j := lo; j <= hi; j++ {
					sum += t.Records[part[j]].Values[column]
				}
				out.Records[part[i]].Values[column] = sum
			}
		}
	}
	return out
}

// Calculate adds or replaces a column computed from each record.
func (t Table) Calculate(column string, fn func(Record) float64) Table {
	out := t.clone()
	if !out.hasColumn(column) {
		out.Columns = append(out.Columns, column)
	}
	for i := range out.Records {
		out.Records[i].Values[column] = fn(out.Records[i])
	}
	return out
}

// Collapse sums all groups into one group per day.
func (t Table) Collapse() Table {
	byDay := map[time.Time]map[string]float64{}
	for _, record := range t.Records {
		if byDay[record.Day] == nil {
			byDay[record.Day] = map[string]float64{}
		}
		for column, value := range record.Values {
			byDay[record.Day][column] += value
		}
	}

	days := make([]time.Time, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := Table{Columns: append([]string(nil), t.Columns...)}
	for _, day := range days {
		out.Records = append(out.Records, Record{Day: day, Values: byDay[day]})
	}
	return out
}

// Column returns the values of a column in record order.
func (t Table) Column(column string) []float64 {
	values := make([]float64, len(t.Records))
	for i, record := range t.Records {
		values[i] = record.Values[column]
	}
	return values
}

func (t Table) Days() []time.Time {
	days := make([]time.Time, len(t.Records))
	for i, record := range t.Records {
		days[i] = record.Day
	}
	return days
}

// groups returns record indexes partitioned by group, in record order.
func (t Table) groups() [][]int {
	var parts [][]int
	for i, record := range t.Records {
		if i == 0 || t.Records[i-1].Group != record.Group {
			parts = append(parts, nil)
		}
		parts[len(parts)-1] = append(parts[len(parts)-1], i)
	}
	return parts
}

func (t Table) clone() Table {
	out := Table{Columns: append([]string(nil), t.Columns...), Records: make([]Record, len(t.Records))}
	for i, record := range t.Records {
		values := make(map[string]float64, len(record.Values))
		for k, v := range record.Values {
			values[k] = v
		}
		out.Records[i] = Record{Group: record.Group, Day: record.Day, Values: values}
	}
	return out
}

func (t Table) hasColumn(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
