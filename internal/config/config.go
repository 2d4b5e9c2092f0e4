package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv            string
	Addr              string
	DbDsn             string
	LogLevel          string
	DebugRoutes       bool
	PrometheusAddr    string
	AllowedOriginsRaw string
	TimeZone          string

	SeveraBaseURL      string
	SeveraClientID     string
	SeveraClientSecret string
	SeveraClientScope  string
	BusinessUnitsRaw   string

	SlackBotToken       string
	SlackWorkspace      string
	SlackBotUser        string
	SlackBotName        string
	SlackSigningSecret  string
	ChannelOffers       string
	ChannelWeekly       string
	ChannelDebug        string
	OffersResolvedEmoji string
	WeeklyGreeting      string
	WeeklyLinksRaw      string

	OpenAIKey   string
	OpenAIOrg   string
	OpenAIModel string

	MonthlyBillingTarget int
	PublicURL            string

	CronDatabaseSave string
	CronWeeklySlack  string
	CronDebugSlack   string

	SmtpHost     string
	SmtpPort     int
	SmtpUser     string
	SmtpPass     string
	SmtpFrom     string
	ReportMailTo string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppEnv:            getEnv("APP_ENV", "local"),
		Addr:              getEnv("APP_ADDR", ":8080"),
		DbDsn:             os.Getenv("DB_DSN"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DebugRoutes:       getEnvBool("DEBUG_ROUTES", false),
		PrometheusAddr:    getEnv("PROMETHEUS", "false"),
		AllowedOriginsRaw: getEnv("ALLOWED_ORIGINS", ""),
		TimeZone:          getEnv("TIME_ZONE", "Europe/Helsinki"),

		SeveraBaseURL:      getEnv("SEVERA_BASE_URL", "https://api.severa.visma.com/rest-api/v1.0/"),
		SeveraClientID:     os.Getenv("SEVERA_CLIENT_ID"),
		SeveraClientSecret: os.Getenv("SEVERA_CLIENT_SECRET"),
		SeveraClientScope:  os.Getenv("SEVERA_CLIENT_SCOPE"),
		BusinessUnitsRaw:   getEnv("SEVERA_BUSINESS_UNITS", "f6d9f1e8-afae-1a74-5bbd-54d840a3e40e,2a82464c-50b8-0df1-1cfc-51f5ae1bf667"),

		SlackBotToken:       os.Getenv("SLACK_TOKEN_BOT"),
		SlackWorkspace:      getEnv("SLACK_WORKSPACE", "tietoa"),
		SlackBotUser:        getEnv("SLACK_BOT_USER", "U048USFG5B2"),
		SlackBotName:        getEnv("SLACK_BOT_NAME", "tie_botti"),
		SlackSigningSecret:  os.Getenv("SLACK_SIGNING_SECRET"),
		ChannelOffers:       getEnv("SLACK_CHANNEL_OFFERS", "CSFQ71ANA"),
		ChannelWeekly:       getEnv("SLACK_CHANNEL_WEEKLY", ""),
		ChannelDebug:        getEnv("SLACK_CHANNEL_DEBUG", ""),
		OffersResolvedEmoji: getEnv("SLACK_OFFERS_REACTION", "k"),
		WeeklyGreeting:      getEnv("SLACK_WEEKLY_GREETING", "Huomenta @timpat ja tervetuloa viikkopalaveriin!"),
		WeeklyLinksRaw:      os.Getenv("SLACK_WEEKLY_LINKS"),

		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIOrg:   os.Getenv("OPENAI_API_ORG"),
		OpenAIModel: getEnv("OPENAI_MODEL", "gpt-4"),

		MonthlyBillingTarget: getEnvInt("MONTHLY_BILLING_TARGET", 100000),
		PublicURL:            getEnv("PUBLIC_URL", "http://localhost:8080"),

		CronDatabaseSave: getEnv("CRON_DATABASE_SAVE", "0 2 * * *"),
		CronWeeklySlack:  getEnv("CRON_WEEKLY_SLACK", "0 5 * * MON"),
		CronDebugSlack:   getEnv("CRON_DEBUG_SLACK", "10 5/3 * * MON-FRI"),

		SmtpHost:     os.Getenv("SMTP_HOST"),
		SmtpPort:     getEnvInt("SMTP_PORT", 587),
		SmtpUser:     os.Getenv("SMTP_USER"),
		SmtpPass:     os.Getenv("SMTP_PASS"),
		SmtpFrom:     os.Getenv("SMTP_FROM"),
		ReportMailTo: os.Getenv("REPORT_MAIL_TO"),
	}

	missing := []string{}
	if cfg.DbDsn == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.SeveraClientID == "" {
		missing = append(missing, "SEVERA_CLIENT_ID")
	}
	if cfg.SeveraClientSecret == "" {
		missing = append(missing, "SEVERA_CLIENT_SECRET")
	}
	if cfg.SeveraClientScope == "" {
		missing = append(missing, "SEVERA_CLIENT_SCOPE")
	}

	if len(missing) > 0 {
		return cfg, errors.New("missing env: " + strings.Join(missing, ", "))
	}

	return cfg, nil
}

// BusinessUnits returns the configured ERP business unit guids.
func (c Config) BusinessUnits() []string {
	return splitList(c.BusinessUnitsRaw)
}

func (c Config) AllowedOrigins() []string {
	return splitList(c.AllowedOriginsRaw)
}

// WeeklyLinks parses "label|url" pairs for the weekly report.
func (c Config) WeeklyLinks() [][2]string {
	links := [][2]string{}
	for _, pair := range splitList(c.WeeklyLinksRaw) {
		label, url, ok := strings.Cut(pair, "|")
		if !ok || url == "" {
			continue
		}
		links = append(links, [2]string{strings.TrimSpace(label), strings.TrimSpace(url)})
	}
	return links
}

func (c Config) ReportRecipients() []string {
	return splitList(c.ReportMailTo)
}

// Location is the configured time zone, UTC when it cannot be loaded.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MailEnabled reports whether the weekly report is also mailed.
func (c Config) MailEnabled() bool {
	return c.SmtpHost != "" && c.SmtpFrom != "" && c.ReportMailTo != ""
}

func splitList(raw string) []string {
	values := []string{}
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			values = append(values, value)
		}
	}
	return values
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
