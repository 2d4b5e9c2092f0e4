package main

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"kpi-backend/internal/calendar"
	"kpi-backend/internal/config"
	"kpi-backend/internal/db"
	"kpi-backend/internal/email"
	"kpi-backend/internal/jobs"
	"kpi-backend/internal/kpi"
	"kpi-backend/internal/logger"
	"kpi-backend/internal/middleware"
	"kpi-backend/internal/pressure"
	"kpi-backend/internal/process"
	"kpi-backend/internal/routes"
	"kpi-backend/internal/severa"
	"kpi-backend/internal/slackbot"
	"kpi-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger.Setup(cfg.AppEnv, cfg.LogLevel)

	database, err := db.Open(cfg.DbDsn)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	st := store.New(database)
	cal := calendar.NewFinland()

	client, err := severa.NewClient(cfg.SeveraBaseURL, severa.Credentials{
		ClientID:     cfg.SeveraClientID,
		ClientSecret: cfg.SeveraClientSecret,
		Scope:        cfg.SeveraClientScope,
	})
	if err != nil {
		log.Fatalf("severa error: %v", err)
	}
	fetcher := severa.NewFetcher(client, cfg.BusinessUnits(), cal)
	kpiService := kpi.NewService(fetcher, st, process.NewProcessor(cal))
	pressureService := pressure.NewService(st, cfg.Location())

	services := routes.Services{
		Store:    st,
		KPI:      kpiService,
		Pressure: pressureService,
		Severa:   client,
	}

	if cfg.SlackBotToken != "" {
		var chat slackbot.ChatCompleter
		if cfg.OpenAIKey != "" {
			chat = slackbot.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIOrg)
		}
		bot, err := slackbot.New(slack.New(cfg.SlackBotToken), chat, slackbot.Options{
			Workspace: cfg.SlackWorkspace,
			BotUser:   cfg.SlackBotUser,
			BotName:   cfg.SlackBotName,
			Model:     cfg.OpenAIModel,
		})
		if err != nil {
			log.Fatalf("slack error: %v", err)
		}
		services.Bot = bot
		services.Reporter = slackbot.NewReporter(bot, kpiService, kpiService, pressureService, slackbot.ReportOptions{
			OffersChannel: cfg.ChannelOffers,
			Reaction:      cfg.OffersResolvedEmoji,
			PublicURL:     cfg.PublicURL,
			Greeting:      cfg.WeeklyGreeting,
			Links:         cfg.WeeklyLinks(),
			Location:      cfg.Location(),
		})
	}

	scheduler := jobs.New(cfg.Location())
	specs := jobs.Specs{
		DatabaseSave:  cfg.CronDatabaseSave,
		WeeklySlack:   cfg.CronWeeklySlack,
		DebugSlack:    cfg.CronDebugSlack,
		WeeklyChannel: cfg.ChannelWeekly,
		DebugChannel:  cfg.ChannelDebug,
	}
	var mail jobs.Mailer
	if cfg.MailEnabled() {
		smtpConfig := email.Config{
			Host:     cfg.SmtpHost,
			Port:     cfg.SmtpPort,
			Username: cfg.SmtpUser,
			Password: cfg.SmtpPass,
			From:     cfg.SmtpFrom,
		}
		mail = func(report slackbot.Report) error {
			return email.SendReport(smtpConfig, cfg.ReportRecipients(), report.Title, report.PlainText())
		}
	}
	var reports jobs.ReportSender
	if services.Reporter != nil {
		reports = services.Reporter
	}
	if err := jobs.RegisterDefaults(scheduler, specs, kpiService, reports, mail); err != nil {
		log.Fatalf("scheduler error: %v", err)
	}
	scheduler.Start()
	services.Jobs = scheduler

	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())

	routes.Register(router, services, cfg)

	log.WithField("addr", cfg.Addr).Info("listening")
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
