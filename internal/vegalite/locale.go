package vegalite

// EmbedOptions are passed to vega-embed next to a spec.
type EmbedOptions struct {
	Mode             string           `json:"mode"`
	Actions          bool             `json:"actions"`
	FormatLocale     FormatLocale     `json:"formatLocale"`
	TimeFormatLocale TimeFormatLocale `json:"timeFormatLocale"`
}

type FormatLocale struct {
	Currency  [2]string `json:"currency"`
	Decimal   string    `json:"decimal"`
	Thousands string    `json:"thousands"`
	Grouping  []int     `json:"grouping"`
}

type TimeFormatLocale struct {
	DateTime    string    `json:"dateTime"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Periods     [2]string `json:"periods"`
	Days        []string  `json:"days"`
	ShortDays   []string  `json:"shortDays"`
	Months      []string  `json:"months"`
	ShortMonths []string  `json:"shortMonths"`
}

// FinnishEmbedOptions formats numbers as euros and dates in Finnish.
func FinnishEmbedOptions() EmbedOptions {
	return EmbedOptions{
		Mode: "vega-lite",
		FormatLocale: FormatLocale{
			Currency:  [2]string{"", " €"},
			Decimal:   ".",
			Thousands: " ",
			Grouping:  []int{3},
		},
		TimeFormatLocale: TimeFormatLocale{
			DateTime:  "%A, %-d. %Bta %Y klo %X",
			Date:      "%-d.%-m.%Y",
			Time:      "%H:%M:%S",
			Periods:   [2]string{"a.m.", "p.m."},
			Days:      []string{"sunnuntai", "maanantai", "tiistai", "keskiviikko", "torstai", "perjantai", "lauantai"},
			ShortDays: []string{"Su", "Ma", "Ti", "Ke", "To", "Pe", "La"},
			Months: []string{
				"tammikuu", "helmikuu", "maaliskuu", "huhtikuu", "toukokuu", "kesäkuu",
				"heinäkuu", "elokuu", "syyskuu", "lokakuu", "marraskuu", "joulukuu",
			},
			ShortMonths: []string{
				"Tammi", "Helmi", "Maalis", "Huhti", "Touko", "Kesä",
				"Heinä", "Elo", "Syys", "Loka", "Marras", "Joulu",
			},
		},
	}
}
