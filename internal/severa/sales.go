package severa

import (
	"context"
	"net/url"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"kpi-backend/internal/models"
	"kpi-backend/internal/utils"
)

// Invalid sales case categories.
const (
	MissingOrderDate     = "Arvioitu tilauspäivä puuttuu"
	MissingValue         = "Myynnin arvo puuttuu"
	MissingProbability   = "Myynnin todennäköisyys puuttuu"
	MissingDeadline      = "Deadline puuttuu"
	MissingWorkEstimate  = "Työmääräarvio puuttuu"
	MissingPhaseEstimate = "Vaiheen työmääräarvio puuttuu"
	MissingPhaseDeadline = "Vaiheen deadline puuttuu"
	MissingPhase         = "Vaihe puuttuu"
	MissingKeywords      = "Avainsanat puuttuvat"
	OrderDateInThePast   = "Arvioitu tilauspäivä on menneisyydessä"
	minimumExpectedHours = 0.5
)

// Finding is one missing or stale field of an open sales case.
type Finding struct {
	Category string
	Name     string
	Phase    string
	SoldBy   string
	Owner    string
	GUID     string
}

// Sales returns the expected sales value and sales work of open sales
// cases. Unfiltered results are cached for an hour unless force is set.
// Cases tagged with any of skipKeywords are left out.
func (f *Fetcher) Sales(ctx context.Context, force bool, skipKeywords []string) ([]models.MetricRow, error) {
	res, err := f.salesCases(ctx, force, skipKeywords)
	return res.rows, err
}

type salesResult struct {
	rows     []models.MetricRow
	findings []Finding
}

// salesCases returns the rows and the findings of one fetch. A cache hit
// carries no findings.
func (f *Fetcher) salesCases(ctx context.Context, force bool, skipKeywords []string) (salesResult, error) {
	filtered := len(skipKeywords) > 0
	if !force && !filtered {
		if rows, ok := f.sales.Get(allKey); ok {
			return salesResult{rows: rows}, nil
		}
	}

	return shared(f, "salescases/"+strings.Join(skipKeywords, ","), func() (salesResult, error) {
		res, err := f.fetchSales(ctx, skipKeywords)
		if err != nil {
			return salesResult{}, err
		}
		if !filtered {
			f.sales.Add(allKey, res.rows)
		}
		return res, nil
	})
}

func (f *Fetcher) fetchSales(ctx context.Context, skipKeywords []string) (salesResult, error) {
	cases, err := getAll[Project](ctx, f.client, "salescases", url.Values{
		"businessUnitGuids":    f.businessUnits,
		"isClosed":             {"false"},
		"salesStatusTypeGuids": {StatusOffer, StatusOption},
	})
	if err != nil {
		return salesResult{}, err
	}

	results, err := gather(ctx, cases, func(ctx context.Context, sale Project) ([]salesResult, error) {
		rows, findings, err := f.salesCase(ctx, sale, skipKeywords)
		if err != nil {
			return nil, err
		}
		return []salesResult{{rows, findings}}, nil
	})
	if err != nil {
		return salesResult{}, err
	}

	res := salesResult{rows: []models.MetricRow{}}
	for _, r := range results {
		res.rows = append(res.rows, r.rows...)
		res.findings = append(res.findings, r.findings...)
	}

	log.WithFields(log.Fields{"cases": len(cases), "rows": len(res.rows), "findings": len(res.findings)}).
		Debug("severa: fetched sales")
	return res, nil
}

func hasKeyword(sale Project, keywords []string) bool {
	for _, kw := range sale.Keywords {
		if slices.Contains(keywords, kw.Name) {
			return true
		}
	}
	return false
}

func (f *Fetcher) salesCase(ctx context.Context, sale Project, skipKeywords []string) ([]models.MetricRow, []Finding, error) {
	if len(skipKeywords) > 0 && hasKeyword(sale, skipKeywords) {
		log.WithField("sale", sale.Name).Trace("severa: sale skipped by keyword")
		return nil, nil, nil
	}

	var findings []Finding
	report := func(category, phase string) {
		findings = append(findings, Finding{
			Category: category,
			Name:     sale.Name,
			Phase:    phase,
			SoldBy:   sale.sellerName(),
			Owner:    sale.ownerName(),
			GUID:     sale.GUID,
		})
	}

	today := f.today()
	canValue := true
	switch {
	case sale.ExpectedOrderDate == nil || sale.ExpectedOrderDate.IsZero():
		report(MissingOrderDate, "")
		canValue = false
	case sale.ExpectedOrderDate.Midnight().Before(today):
		report(OrderDateInThePast, "")
		canValue = false
	}
	if sale.ExpectedValue == nil || sale.ExpectedValue.Amount == nil {
		report(MissingValue, "")
		canValue = false
	}
	if sale.Probability == nil {
		report(MissingProbability, "")
		canValue = false
	}
	if sale.Deadline == nil {
		report(MissingDeadline, "")
	}
	if sale.Keywords == nil {
		report(MissingKeywords, "")
	}

	phases, err := getAll[Phase](ctx, f.client, "projects/"+sale.GUID+"/phaseswithhierarchy", nil)
	if err != nil {
		return nil, nil, err
	}

	probability := 0.0
	if sale.Probability != nil {
		probability = *sale.Probability / 100
	}

	var rows []models.MetricRow
	expected := 0.0
	if len(phases) == 0 {
		report(MissingPhase, "")
	}
	for _, phase := range phases {
		hasEstimate := phase.WorkHoursEstimate != nil && *phase.WorkHoursEstimate > 0
		if hasEstimate && phase.StartDate != nil && phase.Deadline != nil {
			value := *phase.WorkHoursEstimate * probability
			expected += value
			rows = append(rows, models.MetricRow{
				Kind:         models.KindSaleswork,
				Value:        value,
				User:         sale.ownerGUID(),
				StartDate:    dayPtr(phase.StartDate),
				EndDate:      dayPtr(phase.Deadline),
				Project:      phase.Project.GUID,
				Phase:        phase.GUID,
				SoldBy:       sale.sellerGUID(),
				Productive:   !sale.IsInternal,
				InternalGUID: phase.GUID,
			})
			continue
		}
		// Problems are only reported on leaf phases.
		if phase.HasChildren {
			continue
		}
		if phase.Deadline == nil {
			report(MissingPhaseDeadline, phase.Name)
		}
		if !hasEstimate {
			report(MissingPhaseEstimate, phase.Name)
		}
	}
	if expected < minimumExpectedHours {
		report(MissingWorkEstimate, "")
	}

	if canValue {
		rows = append(rows, models.MetricRow{
			Kind:         models.KindSalesvalue,
			Value:        sale.ExpectedValue.Value() * probability,
			User:         sale.ownerGUID(),
			Project:      sale.GUID,
			SoldBy:       sale.sellerGUID(),
			Date:         dayPtr(sale.ExpectedOrderDate),
			InternalGUID: sale.GUID,
		})
	}
	return rows, findings, nil
}

// InvalidSalesCases refetches the sales cases and returns the findings of
// the refresh, frame agreements excluded.
func (f *Fetcher) InvalidSalesCases(ctx context.Context) ([]models.InvalidSalesCase, error) {
	res, err := f.salesCases(ctx, true, ExcludedKeywords)
	if err != nil {
		return nil, err
	}
	findings := res.findings

	inserted := f.now().UTC()
	cases := make([]models.InvalidSalesCase, len(findings))
	for i, fd := range findings {
		cases[i] = models.InvalidSalesCase{
			RowID:    utils.StableID(fd.Category, fd.GUID, fd.Phase),
			Category: fd.Category,
			Name:     fd.Name,
			Phase:    fd.Phase,
			SoldBy:   fd.SoldBy,
			Owner:    fd.Owner,
			GUID:     fd.GUID,
			Inserted: inserted,
		}
	}
	return cases, nil
}
