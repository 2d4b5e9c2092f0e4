package severa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Date accepts both the plain dates and the offset timestamps the API
// returns.
type Date struct {
	time.Time
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("severa: unknown date format %q", raw)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Time.Format(time.RFC3339))
}

// Midnight is the calendar day of the date as UTC midnight.
func (d Date) Midnight() time.Time {
	return time.Date(d.Year(), d.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

type Money struct {
	Amount       *float64 `json:"amount"`
	CurrencyCode string   `json:"currencyCode,omitempty"`
}

// Value is the amount, zero when unset.
func (m *Money) Value() float64 {
	if m == nil || m.Amount == nil {
		return 0
	}
	return *m.Amount
}

type Ref struct {
	GUID string `json:"guid"`
	Name string `json:"name,omitempty"`
}

type UserRef struct {
	GUID      string `json:"guid"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type ProjectRef struct {
	GUID       string `json:"guid"`
	Name       string `json:"name,omitempty"`
	IsInternal bool   `json:"isInternal"`
}

type Auth struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenType       string    `json:"access_token_type"`
	AccessTokenExpiresIn  int       `json:"access_token_expires_in"`
	AccessTokenExpiresUTC time.Time `json:"access_token_expires_utc"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresIn int       `json:"refresh_token_expires_in"`
	RefreshTokenExpires   time.Time `json:"refresh_token_expires_utc"`
}

type User struct {
	GUID         string        `json:"guid"`
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	IsActive     bool          `json:"isActive"`
	BusinessUnit Ref           `json:"businessUnit"`
	WorkContract *WorkContract `json:"workContract"`
}

// DailyHours is the daily hours of the current work contract.
func (u User) DailyHours() float64 {
	if u.WorkContract == nil {
		return 0
	}
	return u.WorkContract.DailyHours
}

type WorkContract struct {
	GUID       string  `json:"guid"`
	StartDate  *Date   `json:"startDate"`
	EndDate    *Date   `json:"endDate"`
	DailyHours float64 `json:"dailyHours"`
	HourCost   Money   `json:"hourCost"`
}

type Activity struct {
	GUID          string  `json:"guid"`
	Name          string  `json:"name"`
	StartDateTime Date    `json:"startDateTime"`
	EndDateTime   Date    `json:"endDateTime"`
	IsAllDay      bool    `json:"isAllDay"`
	OwnerUser     UserRef `json:"ownerUser"`
	ActivityType  Ref     `json:"activityType"`
}

type WorkHour struct {
	GUID         string  `json:"guid"`
	Quantity     float64 `json:"quantity"`
	EventDate    Date    `json:"eventDate"`
	Project      Ref     `json:"project"`
	Phase        Ref     `json:"phase"`
	IsProductive bool    `json:"isProductive"`
}

type ResourceAllocation struct {
	GUID                      string     `json:"guid"`
	Project                   ProjectRef `json:"project"`
	Phase                     Ref        `json:"phase"`
	CalculatedAllocationHours float64    `json:"calculatedAllocationHours"`
	DerivedStartDate          Date       `json:"derivedStartDate"`
	DerivedEndDate            Date       `json:"derivedEndDate"`
}

// Project is both an ordered project and an open sales case.
type Project struct {
	GUID              string   `json:"guid"`
	Name              string   `json:"name"`
	IsClosed          bool     `json:"isClosed"`
	IsInternal        bool     `json:"isInternal"`
	ExpectedOrderDate *Date    `json:"expectedOrderDate"`
	ExpectedValue     *Money   `json:"expectedValue"`
	Probability       *float64 `json:"probability"`
	Deadline          *Date    `json:"deadline"`
	Keywords          []Ref    `json:"keywords"`
	SalesPerson       *UserRef `json:"salesPerson"`
	ProjectOwner      *UserRef `json:"projectOwner"`
	BusinessUnit      *Ref     `json:"businessUnit"`
}

func (p Project) ownerGUID() string {
	if p.ProjectOwner == nil {
		return ""
	}
	return p.ProjectOwner.GUID
}

func (p Project) ownerName() string {
	if p.ProjectOwner == nil {
		return ""
	}
	return p.ProjectOwner.FirstName
}

func (p Project) sellerGUID() string {
	if p.SalesPerson == nil {
		return ""
	}
	return p.SalesPerson.GUID
}

func (p Project) sellerName() string {
	if p.SalesPerson == nil {
		return ""
	}
	return p.SalesPerson.FirstName
}

type Phase struct {
	GUID              string   `json:"guid"`
	Name              string   `json:"name"`
	WorkHoursEstimate *float64 `json:"workHoursEstimate"`
	StartDate         *Date    `json:"startDate"`
	Deadline          *Date    `json:"deadline"`
	HasChildren       bool     `json:"hasChildren"`
	Project           Ref      `json:"project"`
}

type Invoice struct {
	GUID              string `json:"guid"`
	TotalExcludingTax Money  `json:"totalExcludingTax"`
	Projects          []Ref  `json:"projects"`
	Date              Date   `json:"date"`
	Status            Ref    `json:"status"`
}

type ProjectForecast struct {
	GUID                 string `json:"guid"`
	Year                 int    `json:"year"`
	Month                int    `json:"month"`
	Project              Ref    `json:"project"`
	BillingForecast      *Money `json:"billingForecast"`
	ExpenseForecast      *Money `json:"expenseForecast"`
	RevenueForecast      *Money `json:"revenueForecast"`
	LaborExpenseForecast *Money `json:"laborExpenseForecast"`
}
