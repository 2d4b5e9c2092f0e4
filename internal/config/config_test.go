package config

import "testing"

func TestLoadMissing(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("SEVERA_CLIENT_ID", "")
	t.Setenv("SEVERA_CLIENT_SECRET", "secret")
	t.Setenv("SEVERA_CLIENT_SCOPE", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected missing env error")
	}
	want := "missing env: DB_DSN, SEVERA_CLIENT_ID, SEVERA_CLIENT_SCOPE"
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err, want)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "user:pass@tcp(localhost:3306)/kpi")
	t.Setenv("SEVERA_CLIENT_ID", "id")
	t.Setenv("SEVERA_CLIENT_SECRET", "secret")
	t.Setenv("SEVERA_CLIENT_SCOPE", "scope")
	t.Setenv("SEVERA_BUSINESS_UNITS", " a, b ,,")
	t.Setenv("SMTP_PORT", "not-a-number")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.SmtpPort != 587 {
		t.Fatalf("smtp port = %d", cfg.SmtpPort)
	}
	if !cfg.DebugRoutes {
		t.Fatal("debug routes should be enabled")
	}
	units := cfg.BusinessUnits()
	if len(units) != 2 || units[0] != "a" || units[1] != "b" {
		t.Fatalf("units = %v", units)
	}
	if cfg.CronWeeklySlack != "0 5 * * MON" {
		t.Fatalf("weekly cron = %q", cfg.CronWeeklySlack)
	}
}

func TestWeeklyLinks(t *testing.T) {
	cfg := Config{WeeklyLinksRaw: "Huddle|https://app.slack.com/huddle, broken, Miro | https://miro.com/app ,Tyhjä|"}
	links := cfg.WeeklyLinks()
	if len(links) != 2 {
		t.Fatalf("links = %v", links)
	}
	if links[1][0] != "Miro" || links[1][1] != "https://miro.com/app" {
		t.Fatalf("second link = %v", links[1])
	}
}

func TestLocation(t *testing.T) {
	if loc := (Config{TimeZone: "Europe/Helsinki"}).Location(); loc.String() != "Europe/Helsinki" {
		t.Fatalf("location = %s", loc)
	}
	if loc := (Config{TimeZone: "Mars/Olympus"}).Location(); loc.String() != "UTC" {
		t.Fatalf("fallback location = %s", loc)
	}
}
