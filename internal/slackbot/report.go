package slackbot

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/guptarohit/asciigraph"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"kpi-backend/internal/kpi"
	"kpi-backend/internal/models"
	"kpi-backend/internal/pressure"
)

const (
	kpiWindowDays = 30
	offersMonths  = 3
	severaProject = "https://severa.visma.com/project/"
)

type KPISource interface {
	CompareWeeks(ctx context.Context, windowDays int) (kpi.WeeklyComparison, error)
}

type SalesCaseSource interface {
	InvalidSalesCases(ctx context.Context) ([]models.InvalidSalesCase, error)
}

type PressureSource interface {
	WeeklySummary(ctx context.Context) (pressure.Summary, bool, error)
}

type ReportOptions struct {
	OffersChannel string
	Reaction      string
	PublicURL     string
	Greeting      string
	Links         [][2]string
	Location      *time.Location
}

// Section is one block of the weekly report. Fields render side by side.
type Section struct {
	Text   string
	Fields []string
}

type Report struct {
	Title    string
	Sections []Section
}

// Blocks renders the report as Slack blocks with dividers between
// sections.
func (r Report) Blocks() []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, r.Title, true, false)),
	}
	for _, s := range r.Sections {
		if s.Text == "" && len(s.Fields) == 0 {
			continue
		}
		if len(blocks) > 1 {
			blocks = append(blocks, slack.NewDividerBlock())
		}
		var text *slack.TextBlockObject
		if s.Text != "" {
			text = slack.NewTextBlockObject(slack.MarkdownType, s.Text, false, false)
		}
		var fields []*slack.TextBlockObject
		for _, f := range s.Fields {
			fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, f, false, false))
		}
		blocks = append(blocks, slack.NewSectionBlock(text, fields, nil))
	}
	return blocks
}

// PlainText renders the report without Slack markup.
func (r Report) PlainText() string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString("\n")
	for _, s := range r.Sections {
		b.WriteString("\n")
		if s.Text != "" {
			b.WriteString(Unformat(strings.ReplaceAll(s.Text, "```", "")))
			b.WriteString("\n")
		}
		for _, f := range s.Fields {
			b.WriteString(Unformat(f))
			b.WriteString("\n")
		}
	}
	return b.String()
}

type Reporter struct {
	bot      *Bot
	kpi      KPISource
	cases    SalesCaseSource
	pressure PressureSource
	opts     ReportOptions
	now      func() time.Time
}

func NewReporter(bot *Bot, kpiSource KPISource, cases SalesCaseSource, pressureSource PressureSource, opts ReportOptions) *Reporter {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Reporter{bot: bot, kpi: kpiSource, cases: cases, pressure: pressureSource, opts: opts, now: time.Now}
}

// Build gathers the weekly report. A failing section is logged and
// replaced by a notice so the rest of the report still goes out.
func (r *Reporter) Build(ctx context.Context) Report {
	now := r.now().In(r.opts.Location)
	report := Report{Title: "Viikkopalaveri " + now.Format("2.1.2006")}

	if r.opts.Greeting != "" {
		report.Sections = append(report.Sections, Section{Text: r.opts.Greeting})
	}
	if len(r.opts.Links) > 0 {
		links := Section{}
		for _, l := range r.opts.Links {
			links.Fields = append(links.Fields, fmt.Sprintf("<%s|%s>", l[1], l[0]))
		}
		report.Sections = append(report.Sections, links)
	}

	parts := []struct {
		name  string
		build func(context.Context, time.Time) (Section, error)
	}{
		{"offers", r.offersSection},
		{"sales cases", r.salesCasesSection},
		{"pressure", r.pressureSection},
		{"kpi", r.kpiSection},
	}
	for _, part := range parts {
		section, err := part.build(ctx, now)
		if err != nil {
			log.WithField("source", "weekly_report").WithError(err).Errorf("%s section failed", part.name)
			section = Section{Text: fmt.Sprintf(":warning: Osiota %q ei saatu muodostettua.", part.name)}
		}
		report.Sections = append(report.Sections, section)
	}
	return report
}

// Send builds the report and posts it to channel.
func (r *Reporter) Send(ctx context.Context, channel string) (Report, error) {
	report := r.Build(ctx)
	_, _, err := r.bot.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(report.Title, false),
		slack.MsgOptionBlocks(report.Blocks()...),
		slack.MsgOptionLinkNames(true),
		slack.MsgOptionDisableLinkUnfurl(),
		slack.MsgOptionDisableMediaUnfurl(),
	)
	if err != nil {
		return report, fmt.Errorf("post weekly report: %w", err)
	}
	log.WithFields(log.Fields{"source": "weekly_report", "channel": channel}).Info("weekly report sent")
	return report, nil
}

var finnishMagnitudes = []humanize.RelTimeMagnitude{
	{D: time.Minute, Format: "nyt", DivBy: time.Second},
	{D: time.Hour, Format: "%d minuuttia %s", DivBy: time.Minute},
	{D: 2 * time.Hour, Format: "tunti %s", DivBy: 1},
	{D: humanize.Day, Format: "%d tuntia %s", DivBy: time.Hour},
	{D: 2 * humanize.Day, Format: "päivä %s", DivBy: 1},
	{D: humanize.Week, Format: "%d päivää %s", DivBy: humanize.Day},
	{D: 2 * humanize.Week, Format: "viikko %s", DivBy: 1},
	{D: humanize.Month, Format: "%d viikkoa %s", DivBy: humanize.Week},
	{D: 2 * humanize.Month, Format: "kuukausi %s", DivBy: 1},
	{D: humanize.Year, Format: "%d kuukautta %s", DivBy: humanize.Month},
	{D: math.MaxInt64, Format: "yli vuosi %s", DivBy: 1},
}

// relativeFinnish describes then relative to now, e.g. "3 päivää kuluttua".
func relativeFinnish(then, now time.Time) string {
	return humanize.CustomRelTime(then, now, "sitten", "kuluttua", finnishMagnitudes)
}

func (r *Reporter) offersSection(ctx context.Context, now time.Time) (Section, error) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -offersMonths, 0)
	offers, err := r.bot.OpenOffers(ctx, r.opts.OffersChannel, r.opts.Reaction, start)
	if err != nil {
		return Section{}, err
	}
	if len(offers) == 0 {
		return Section{Text: fmt.Sprintf("📣 Kanavalla <#%s> ei käsittelemättömiä viestejä ✨", r.opts.OffersChannel)}, nil
	}

	lines := []string{fmt.Sprintf("📣 Kanavan <#%s> <%s/slack/offers.json|käsittelemättömät viestit>:", r.opts.OffersChannel, r.opts.PublicURL)}
	for _, o := range offers {
		line := fmt.Sprintf("> *<%s|%s>* |", o.URL, o.Posted().In(now.Location()).Format("02.01.2006"))
		if o.Deadline != nil {
			line += fmt.Sprintf(" *DL _%s_* |", relativeFinnish(*o.Deadline, now))
		}
		first, _, _ := strings.Cut(o.Message, "\n")
		lines = append(lines, line+" "+first)
	}
	return Section{Text: strings.Join(lines, "\n")}, nil
}

func (r *Reporter) salesCasesSection(ctx context.Context, _ time.Time) (Section, error) {
	cases, err := r.cases.InvalidSalesCases(ctx)
	if err != nil {
		return Section{}, err
	}
	sort.SliceStable(cases, func(i, j int) bool { return cases[i].Category < cases[j].Category })

	var b strings.Builder
	fmt.Fprintf(&b, ":sparkles: Sisällä olevien <%s/severa/salescases.json|tarjousten suolauslista>:\n", r.opts.PublicURL)
	for i, c := range cases {
		if i == 0 || cases[i-1].Category != c.Category {
			fmt.Fprintf(&b, "*%s*:\n", c.Category)
		}
		fmt.Fprintf(&b, "> <%s%s|%s>", severaProject, c.GUID, c.Name)
		if c.Phase != "" {
			fmt.Fprintf(&b, " vaihe _%s_", c.Phase)
		}
		fmt.Fprintf(&b, " (@%s)\n", c.SoldBy)
	}
	return Section{Text: b.String()}, nil
}

func percentWithChange(value, diff float64) string {
	arrow := "▲"
	if diff < 0 {
		arrow = "▼"
	}
	return fmt.Sprintf("*%.1f%%*\t(%s %+.1f%%)", value*100, arrow, diff*100)
}

func (r *Reporter) pressureSection(ctx context.Context, _ time.Time) (Section, error) {
	summary, ok, err := r.pressure.WeeklySummary(ctx)
	if err != nil {
		return Section{}, err
	}
	link := r.opts.PublicURL + "/kiire/"
	if !ok {
		return Section{Fields: []string{fmt.Sprintf(":hammer_and_pick: Edelliseltä viikolta ei <%s|kiirekyselyvastauksia>.", link)}}, nil
	}

	titles := fmt.Sprintf(":hammer_and_pick: Edellisen viikon kiireen määrä:\n:bomb: Edellisen viikon kiireen tuntu:\n"+
		"        ⤷ perustuu %d <%s|kyselyvastaukseen>", summary.Responses, link)
	values := fmt.Sprintf("%.1f%%\n%.1f%%\n", summary.Current.X*100, summary.Current.Y*100)
	if summary.Previous != nil {
		values = percentWithChange(summary.Current.X, summary.DiffX) + "\n" +
			percentWithChange(summary.Current.Y, summary.DiffY) + "\n"
	}
	return Section{Fields: []string{titles, values}}, nil
}

type kpiLine struct {
	column, title, unit string
	scale               float64
	decimals            int
}

var kpiLines = []kpiLine{
	{kpi.ColBilling, "Laskutus", "€", 1, 2},
	{kpi.ColCost, "Kulut", "€", 1, 2},
	{kpi.ColMargin, "Kate", "€", 1, 2},
	{kpi.ColMarginPercent, "Kate-%", "%", 100, 2},
	{kpi.ColBillingRate, "Laskutusaste", "%", 100, 2},
	{kpi.ColSalesvalue, "Tilaukset", "€", 1, 2},
	{kpi.ColUncounted, "Tuntikirjauksia hukassa", "h", 1, 1},
}

// spacedNumber formats v with spaces between thousands.
func spacedNumber(v float64, decimals int) string {
	return humanize.FormatFloat("# ###."+strings.Repeat("#", decimals), v)
}

// KPITable renders the rolling totals and their weekly change as aligned
// monospace lines.
func KPITable(cmp kpi.WeeklyComparison, windowDays int) string {
	const padding = 10
	width := 0
	for _, l := range kpiLines {
		width = max(width, len([]rune(l.title))+4)
	}

	lines := []string{fmt.Sprintf("%*s%*s", width+padding+3, fmt.Sprintf("%d vrk liukuva summa", windowDays), padding+18, "vrt viime viikoon")}
	for _, l := range kpiLines {
		current := cmp.Current[l.column] * l.scale
		diff := cmp.Diff[l.column] * l.scale
		arrow := "▲"
		sign := "+"
		if diff < 0 {
			arrow, sign = "▼", "-"
		}
		title := l.title + ":"
		lines = append(lines, fmt.Sprintf("%s%s %*s %s%s%s   %*s %s",
			title, strings.Repeat(" ", width-len([]rune(title))),
			padding, spacedNumber(current, l.decimals), l.unit,
			strings.Repeat(" ", 12), arrow,
			padding, sign+spacedNumber(math.Abs(diff), l.decimals), l.unit,
		))
	}
	return strings.Join(lines, "\n")
}

// Sparkline plots a series as ASCII art.
func Sparkline(series []float64, caption string) string {
	if len(series) == 0 {
		return ""
	}
	return asciigraph.Plot(series,
		asciigraph.Height(6),
		asciigraph.Width(60),
		asciigraph.Caption(caption),
	)
}

func (r *Reporter) kpiSection(ctx context.Context, _ time.Time) (Section, error) {
	cmp, err := r.kpi.CompareWeeks(ctx, kpiWindowDays)
	if err != nil {
		return Section{}, err
	}

	text := ":bar_chart: Tunnuslukuja:\n```" + KPITable(cmp, kpiWindowDays) + "```"
	billing := cmp.Billing
	if len(billing) > kpiWindowDays {
		billing = billing[len(billing)-kpiWindowDays:]
	}
	if spark := Sparkline(billing, fmt.Sprintf("Laskutus, %d vrk liukuva", kpiWindowDays)); spark != "" {
		text += "\n```" + spark + "```"
	}
	return Section{Text: text}, nil
}
