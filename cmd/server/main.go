package main

import (
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/walidbk/assurexpert-backend/internal/auth"
	"github.com/walidbk/assurexpert-backend/internal/contact"
	"github.com/walidbk/assurexpert-backend/internal/dossiers"
	"github.com/walidbk/assurexpert-backend/internal/mailer"
	"github.com/walidbk/assurexpert-backend/internal/requests"
	"github.com/walidbk/assurexpert-backend/internal/stats"
	"github.com/walidbk/assurexpert-backend/internal/storage"
	"github.com/walidbk/assurexpert-backend/internal/users"
	"github.com/walidbk/assurexpert-backend/pkg/config"
	"github.com/walidbk/assurexpert-backend/pkg/database"
	"github.com/walidbk/assurexpert-backend/pkg/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config: ", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db := database.Init()
	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatal("migration failed: ", err)
	}
	go revocationJanitor(db, logger)

	var store storage.Store
	if cfg.SupabaseURL != "" {
		store = storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, logger)
	} else {
		logger.Warn("SUPABASE_URL not set, storing documents in memory")
		store = storage.NewMemory()
	}

	var mail mailer.Mailer = mailer.Noop{}
	if cfg.SESRegion != "" && cfg.MailFrom != "" {
		m, err := mailer.NewSESMailer(cfg.SESRegion, cfg.MailFrom, logger)
		if err != nil {
			log.Fatal("mailer: ", err)
		}
		mail = m
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024, // multipart dossier uploads
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })

	api := app.Group("/api")

	requireAuth := auth.RequireAuth(db)
	authed := []fiber.Handler{requireAuth}
	adminOnly := []fiber.Handler{requireAuth, auth.RequireType(models.PrincipalAdmin)}
	superOnly := []fiber.Handler{requireAuth, auth.RequireType(models.PrincipalAdmin), auth.RequireSuperAdmin(db)}
	clientOnly := []fiber.Handler{requireAuth, auth.RequireType(models.PrincipalClient)}

	// Auth
	authH := auth.NewHandler(db)
	api.Post("/login", authH.Login)
	api.Get("/me", prepend(authed, authH.Me)...)
	api.Post("/logout", prepend(authed, authH.Logout)...)
	api.Post("/refresh", prepend(authed, authH.Refresh)...)
	api.Post("/change-password", prepend(authed, authH.ChangePassword)...)

	// Contact (public submission, super-admin inbox)
	contactH := contact.NewHandler(db)
	api.Post("/contact", contactH.Store)
	api.Post("/password-reset-request", contactH.PasswordReset)
	api.Get("/contact-messages", prepend(superOnly, contactH.List)...)
	api.Delete("/contact-messages/:id", prepend(superOnly, contactH.Delete)...)

	// Client onboarding requests (public submission, super-admin review)
	reqH := requests.NewHandler(db, mail, logger)
	api.Post("/client-requests", reqH.Submit)
	api.Get("/client-requests", prepend(superOnly, reqH.List)...)
	api.Get("/client-requests/:id", prepend(superOnly, reqH.Get)...)
	api.Put("/client-requests/:id/status", prepend(superOnly, reqH.UpdateStatus)...)

	// Dossiers
	dosH := dossiers.NewHandler(db, store)
	api.Post("/dossiers", prepend(clientOnly, dosH.Create)...)
	api.Get("/dossiers", prepend(authed, dosH.List)...)
	api.Get("/dossiers/with-experts", prepend(superOnly, dosH.ListWithExperts)...)
	api.Get("/dossiers/statistics", prepend(superOnly, dosH.Statistics)...)

	// Seen-flag counters must be registered before the :id routes.
	api.Get("/dossiers/seenadmin", prepend(adminOnly, dosH.CountUnseenByAdmin)...)
	api.Post("/dossiers/seenadmin", prepend(adminOnly, dosH.MarkSeenByAdmin)...)
	api.Get("/dossiers/adminchange", prepend(clientOnly, dosH.CountUnseenChanges)...)
	api.Post("/dossiers/adminchange", prepend(clientOnly, dosH.MarkChangesSeen)...)

	api.Get("/dossiers/:id", prepend(authed, dosH.Get)...)
	api.Put("/dossiers/:id", prepend(authed, dosH.Update)...)
	api.Delete("/dossiers/:id", prepend(authed, dosH.Delete)...)
	api.Put("/dossiers/:id/assign-expert", prepend(superOnly, dosH.AssignExpert)...)
	api.Put("/dossiers/:id/status", prepend(adminOnly, dosH.UpdateStatus)...)
	api.Post("/dossiers/:id/comments", prepend(adminOnly, dosH.AddComment)...)
	api.Post("/dossiers/:id/montant", prepend(adminOnly, dosH.AddMontant)...)
	api.Post("/dossiers/:id/admin-docs", prepend(adminOnly, dosH.UploadAdminDocs)...)
	api.Get("/dossiers/:id/files/:type", prepend(authed, dosH.FetchAttachment)...)
	api.Get("/dossiers/:id/photos/:index", prepend(authed, dosH.FetchAccidentPhoto)...)

	// Expert directory (projection depends on who asks)
	api.Get("/admins", prepend(authed, dosH.ListAdmins)...)

	// Principal management (super admin)
	userH := users.NewHandler(db, mail, logger)
	usersGroup := api.Group("/users", superOnly...)
	usersGroup.Post("/admins", userH.CreateAdmin)
	usersGroup.Post("/clients", userH.CreateClient)
	usersGroup.Get("/admins", userH.ListAdmins)
	usersGroup.Get("/clients", userH.ListClients)
	usersGroup.Post("/delete", userH.DeleteUser)
	usersGroup.Post("/import", userH.ImportUsers)
	usersGroup.Post("/force-password-reset", userH.ForcePasswordReset)
	usersGroup.Post("/send-credentials", userH.SendCredentials)

	// Statistics
	statsH := stats.NewHandler(db)
	api.Get("/stats/clients", prepend(adminOnly, statsH.ClientStats)...)
	api.Get("/system/stats", prepend(superOnly, statsH.SystemStats)...)

	logger.Info("server starting", "port", cfg.Port)
	log.Fatal(app.Listen(":" + cfg.Port))
}

// prepend returns the middleware chain followed by the terminal handler,
// since Fiber's route methods take handlers variadically.
func prepend(chain []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(chain)+1)
	out = append(out, chain...)
	return append(out, h)
}

// revocationJanitor drops expired jti blacklist rows once an hour.
func revocationJanitor(db *gorm.DB, logger *slog.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for range t.C {
		if n, err := auth.CleanupExpired(db); err != nil {
			logger.Error("revocation cleanup failed", "err", err)
		} else if n > 0 {
			logger.Info("revocation cleanup", "removed", n)
		}
	}
}
