package severa

import (
	"context"
	"net/url"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/daterange"
	"kpi-backend/internal/models"
	"kpi-backend/internal/utils"
)

const (
	usersTTL    = time.Hour
	salesTTL    = time.Hour
	projectsTTL = time.Hour

	contractCacheSize = 512

	// allKey is the single entry of the whole-listing caches.
	allKey = "all"

	// CacheMiss is the user of billing rows whose project is unknown.
	CacheMiss = "CACHE_MISS"
)

// Sales status types.
const (
	StatusOffer    = "04a8c06b-bddb-ed4f-586a-0a2098587633"
	StatusOption   = "faced04e-534c-1817-357f-75f3db6fd8a0"
	StatusOrder    = "fb1b8ca5-2026-4e0f-3169-500d1ad7603e"
	StatusRejected = "baaa8b0a-b77a-b10a-8372-7760a4b99d77"
)

// ExcludedKeywords keep frame agreements and unreported cases out of the
// invalid sales case report.
var ExcludedKeywords = []string{"Tie_Puitesopimus", "Tie_Pois_raportoinnista"}

var unitShortNames = map[string]string{
	"f6d9f1e8-afae-1a74-5bbd-54d840a3e40e": "TIE",
	"2a82464c-50b8-0df1-1cfc-51f5ae1bf667": "BAD",
	"12f817a4-1f54-8c34-9489-0ab1d58ccf48": "HAL",
	"1a361efe-8738-1ecf-0c16-e2bf91e21e3e": "JOH",
	"341f92f5-cc81-d933-dbf4-fc80849815ea": "LAH",
	"4260f308-7383-841a-8b5f-a40976bc22ca": "SOV",
	"6b49ead7-573f-f186-c508-1e8606b5e59a": "VIS",
}

// UnitShortName maps a business unit guid to its short name.
func UnitShortName(guid string) string {
	if name, ok := unitShortNames[guid]; ok {
		return name
	}
	return "MUU"
}

type userDirectory struct {
	list []User
	byID map[string]User
}

// Fetcher turns API resources into metric rows. Users, sales and projects
// are cached for an hour. Concurrent cold fetches of the same listing share
// one request.
type Fetcher struct {
	client        *Client
	businessUnits []string
	calendar      *calendar.Calendar
	now           func() time.Time

	users     *expirable.LRU[string, userDirectory]
	projects  *expirable.LRU[string, map[string]Project]
	sales     *expirable.LRU[string, []models.MetricRow]
	contracts *lru.Cache[string, []WorkContract]
	flight    singleflight.Group
}

func NewFetcher(client *Client, businessUnits []string, cal *calendar.Calendar) *Fetcher {
	contracts, _ := lru.New[string, []WorkContract](contractCacheSize)
	return &Fetcher{
		client:        client,
		businessUnits: businessUnits,
		calendar:      cal,
		now:           time.Now,
		users:         expirable.NewLRU[string, userDirectory](1, nil, usersTTL),
		projects:      expirable.NewLRU[string, map[string]Project](1, nil, projectsTTL),
		sales:         expirable.NewLRU[string, []models.MetricRow](1, nil, salesTTL),
		contracts:     contracts,
	}
}

// shared runs fetch once for all concurrent callers of key.
func shared[T any](f *Fetcher, key string, fetch func() (T, error)) (T, error) {
	v, err, _ := f.flight.Do(key, func() (any, error) { return fetch() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Client exposes the raw transport.
func (f *Fetcher) Client() *Client {
	return f.client
}

func (f *Fetcher) today() time.Time {
	return daterange.FloorDay(f.now())
}

// gather runs fn for every item, at most maxConcurrent at a time, and
// concatenates the results in item order.
func gather[T, R any](ctx context.Context, items []T, fn func(context.Context, T) ([]R, error)) ([]R, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	results := make([][]R, len(items))
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			r, err := fn(ctx, item)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []R
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Users lists the active users of the configured business units.
func (f *Fetcher) Users(ctx context.Context) ([]User, error) {
	dir, err := f.userDirectory(ctx)
	return dir.list, err
}

func (f *Fetcher) userDirectory(ctx context.Context) (userDirectory, error) {
	if dir, ok := f.users.Get(allKey); ok {
		return dir, nil
	}
	return shared(f, "users", func() (userDirectory, error) {
		users, err := getAll[User](ctx, f.client, "users", url.Values{
			"businessUnitGuids": f.businessUnits,
			"isActive":          {"true"},
		})
		if err != nil {
			return userDirectory{}, err
		}

		dir := userDirectory{list: users, byID: make(map[string]User, len(users))}
		for _, u := range users {
			dir.byID[u.GUID] = u
		}
		f.contracts.Purge()
		f.users.Add(allKey, dir)
		return dir, nil
	})
}

// UserByGUID finds a cached user.
func (f *Fetcher) UserByGUID(ctx context.Context, guid string) (User, bool, error) {
	dir, err := f.userDirectory(ctx)
	if err != nil {
		return User{}, false, err
	}
	u, ok := dir.byID[guid]
	return u, ok, nil
}

func (f *Fetcher) userGUIDs(ctx context.Context) ([]string, error) {
	users, err := f.Users(ctx)
	if err != nil {
		return nil, err
	}
	guids := make([]string, len(users))
	for i, u := range users {
		guids[i] = u.GUID
	}
	return guids, nil
}

// AllUsers lists every active user regardless of business unit.
func (f *Fetcher) AllUsers(ctx context.Context) ([]models.UserInfo, error) {
	users, err := getAll[User](ctx, f.client, "users", url.Values{"isActive": {"true"}})
	if err != nil {
		return nil, err
	}
	infos := make([]models.UserInfo, len(users))
	for i, u := range users {
		infos[i] = models.UserInfo{
			User:         u.GUID,
			FirstName:    u.FirstName,
			LastName:     u.LastName,
			BusinessUnit: u.BusinessUnit.GUID,
			UnitName:     u.BusinessUnit.Name,
		}
	}
	return infos, nil
}

func (f *Fetcher) workContracts(ctx context.Context, user User) ([]WorkContract, error) {
	if cached, ok := f.contracts.Get(user.GUID); ok {
		return cached, nil
	}
	contracts, err := getAll[WorkContract](ctx, f.client, "users/"+user.GUID+"/workcontracts", nil)
	if err != nil {
		return nil, err
	}
	f.contracts.Add(user.GUID, contracts)
	return contracts, nil
}

// UserInformation returns a maximum (daily hours) and an hour_cost row per
// work contract of every user, spanning the contract dates.
func (f *Fetcher) UserInformation(ctx context.Context) ([]models.MetricRow, error) {
	users, err := f.Users(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := gather(ctx, users, func(ctx context.Context, user User) ([]models.MetricRow, error) {
		contracts, err := f.workContracts(ctx, user)
		if err != nil {
			return nil, err
		}
		var rows []models.MetricRow
		for _, wc := range contracts {
			rows = append(rows, contractRows(user, wc)...)
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	log.WithField("rows", len(rows)).Debug("severa: fetched user information")
	return rows, nil
}

func contractRows(user User, wc WorkContract) []models.MetricRow {
	row := models.MetricRow{
		User:         user.GUID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		BusinessUnit: user.BusinessUnit.GUID,
		InternalGUID: wc.GUID,
		StartDate:    dayPtr(wc.StartDate),
		EndDate:      dayPtr(wc.EndDate),
	}

	maximum, cost := row, row
	maximum.Kind, maximum.Value = models.KindMaximum, wc.DailyHours
	maximum.RowID = utils.StableID(models.KindMaximum, user.GUID, wc.DailyHours, maximum.StartDate)
	cost.Kind, cost.Value = models.KindHourCost, wc.HourCost.Value()
	cost.RowID = utils.StableID(models.KindHourCost, user.GUID, cost.Value, cost.StartDate)
	return []models.MetricRow{maximum, cost}
}

func dayPtr(d *Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Midnight()
	return &t
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// stamp sets the forecast date and the stable id of fetched rows.
func stamp(rows []models.MetricRow, today time.Time) []models.MetricRow {
	for i := range rows {
		rows[i].ForecastDate = timePtr(today)
		rows[i].RowID = utils.StableID(rows[i].InternalGUID, rows[i].Kind, today)
	}
	return rows
}
