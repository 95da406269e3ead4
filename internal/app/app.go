package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hopegrove/hopegrove/internal/config"
	"github.com/hopegrove/hopegrove/internal/db"
	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/service"
	"github.com/hopegrove/hopegrove/internal/storage"
)

// App holds the wired dependency graph. Construction order runs outside-in:
// database, repositories, storage, services.
type App struct {
	Cfg *config.Config
	DB  *sqlx.DB

	UserRepository repository.UserRepository
	FileRepository repository.FileRepository

	Storage      storage.Storage
	EmailService service.EmailSender
	AuthService  *service.AuthService
	ShareService *service.ShareService
	Janitor      *service.Janitor
}

func New(cfg *config.Config) (*App, error) {
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	userRepository := repository.NewUserRepository(database)
	fileRepository := repository.NewFileRepository(database)

	fileStorage, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %v", err)
	}

	emailService := service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.SupportEmail,
		cfg.IsDevelopment(),
	)

	authService := service.NewAuthService(
		userRepository,
		emailService,
		cfg.JWTSecret,
		cfg.IsProduction(),
		cfg.JWTExpiry,
		cfg.TokenSignupVerifyExpiry,
		cfg.TokenPasswordResetExpiry,
	)

	shareService := service.NewShareService(
		fileRepository,
		fileStorage,
		cfg.FileShareTTL,
		cfg.S3PresignExpiry,
	)

	janitor := service.NewJanitor(
		userRepository,
		fileRepository,
		fileStorage,
		cfg.CleanupInterval,
		cfg.UnverifiedAccountTTL,
	)

	return &App{
		Cfg:            cfg,
		DB:             database,
		UserRepository: userRepository,
		FileRepository: fileRepository,
		Storage:        fileStorage,
		EmailService:   emailService,
		AuthService:    authService,
		ShareService:   shareService,
		Janitor:        janitor,
	}, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
