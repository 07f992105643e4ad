package main

import (
	"context"
	"io"

	"github.com/CorrelAid/registration_uploader/handlers"
	"github.com/CorrelAid/registration_uploader/inits"
	"github.com/CorrelAid/registration_uploader/metrics"
	"github.com/CorrelAid/registration_uploader/operations"
	"github.com/CorrelAid/registration_uploader/registration"
	"github.com/CorrelAid/registration_uploader/routines"
	"github.com/CorrelAid/registration_uploader/validators"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-memdb"
)

// app wires configuration to the form service and its collaborators.
type app struct {
	conf     *inits.Config
	db       *memdb.MemDB
	sessions *operations.Sessions
	svc      *registration.Service
}

func newApp(flags *globalFlags, logOut io.Writer) (*app, error) {
	conf, err := inits.LoadConfig(flags.configPath, flags.envPath)
	if err != nil {
		return nil, err
	}
	logger := inits.InitLogger(conf.Log, logOut)

	db, err := inits.NewDB()
	if err != nil {
		return nil, err
	}
	sessions := operations.NewSessions(db, conf.Session.TTL)

	svc := &registration.Service{
		Store: sessions,
		Uploader: operations.NewImageHost(
			conf.ImageHost.BaseURL,
			conf.ImageHost.UploadPreset,
			conf.ImageHost.CloudName,
			conf.ImageHost.Timeout,
		),
		Registrar:  operations.NewBackend(conf.Backend.BaseURL, conf.Backend.RegisterPath, conf.Backend.Timeout),
		LoginRoute: "/login",
		Logger:     logger,
	}

	return &app{conf: conf, db: db, sessions: sessions, svc: svc}, nil
}

func (a *app) router() *gin.Engine {
	gin.SetMode(a.conf.Server.Mode)

	var turnstile *validators.TurnstileValidator
	if a.conf.Turnstile.Secret != "" {
		turnstile = validators.NewTurnstileValidator(
			a.conf.Turnstile.Secret,
			a.conf.Turnstile.TestToken,
			a.conf.Server.Mode == gin.ReleaseMode,
		)
	}

	m := metrics.New()
	h := handlers.NewHandler(a.svc, turnstile, m, a.conf.Session.Cookie, a.conf.Server.LoginURL)
	return handlers.SetupRouter(a.conf, h, a.sessions, m)
}

func (a *app) cleanup(ctx context.Context) {
	routines.StartCleanupRoutine(ctx, a.db, a.conf.Session.CleanupInterval)
}
