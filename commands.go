package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bookingledger/config"
	"bookingledger/controllers"
	"bookingledger/database"
	"bookingledger/services"
	"bookingledger/utils"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
)

// app - собранные зависимости процесса
type app struct {
	cfg      *config.Config
	db       *database.Database
	services controllers.Services
}

// setup загружает конфигурацию, логгер, базу данных и сервисы
func setup() (*app, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}
	if err := utils.InitLogger(cfg.Log.Level, cfg.Log.Development); err != nil {
		return nil, err
	}

	directory, err := newDirectory(cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	notifier := services.MultiNotifier{services.LogNotifier{}}
	if cfg.SMTP.Enabled {
		notifier = append(notifier, services.NewEmailService(cfg, directory))
	}

	opts, err := services.OptionsFromConfig(cfg, directory, notifier)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg: cfg,
		db:  db,
		services: controllers.Services{
			Bookings:       services.NewBookingService(db.DB, opts),
			Payments:       services.NewPaymentService(db.DB, opts),
			Reconciliation: services.NewReconciliationService(db.DB, opts),
			Query:          services.NewQueryService(db.DB, opts),
			Overdue:        services.NewOverdueService(db.DB, opts),
		},
	}, nil
}

// newDirectory выбирает справочник. Без base_url запуск разрешен только при directory.disabled.
func newDirectory(cfg *config.Config) (services.Directory, error) {
	if cfg.Directory.BaseURL != "" {
		return services.NewHTTPDirectory(cfg.Directory.BaseURL, cfg.Directory.Timeout), nil
	}
	if !cfg.Directory.Disabled {
		return nil, errors.New("directory.base_url не задан: укажите справочник или явно отключите проверку ссылок (directory.disabled: true)")
	}
	utils.LogInfo("справочник отключен: проверка ссылок на объекты и клиентов не выполняется")
	return nil, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		utils.LogError("Ошибка при закрытии базы данных: %v", err)
	}
	utils.Sync()
}

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и планировщик просрочек",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			jwtKey := []byte(a.cfg.JWT.SecretKey)
			limiter := utils.NewRateLimiter(a.cfg.RateLimit.Requests, a.cfg.RateLimit.Window)

			router := mux.NewRouter()
			controllers.RegisterRoutes(router, a.services, jwtKey)
			router.PathPrefix("/ops").Handler(controllers.NewOpsEngine(a.db.DB, a.services.Overdue, limiter, jwtKey))

			if !noScheduler {
				if err := a.services.Overdue.Start(a.cfg.Scheduling.OverdueCron, a.cfg.Scheduling.ExpiryCron); err != nil {
					return err
				}
				defer a.services.Overdue.Stop()
			}

			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:      router,
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				utils.LogInfo("Сервер запущен на порту %d", a.cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("ошибка запуска сервера: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			utils.LogInfo("Остановка сервера")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "не запускать встроенный планировщик (задачи вызываются внешним cron)")
	return cmd
}

func migrateCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Применить или откатить SQL миграции",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return err
			}
			if err := utils.InitLogger(cfg.Log.Level, cfg.Log.Development); err != nil {
				return err
			}
			defer utils.Sync()

			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			if steps != 0 {
				if direction == "down" {
					steps = -steps
				}
				return database.Migrate(cfg, "steps", steps)
			}
			return database.Migrate(cfg, direction, 0)
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 0, "количество шагов миграции")
	return cmd
}

func markOverdueCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "mark-overdue",
		Short: "Отметить просроченные обязательства (для внешнего cron)",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseDateFlag(asOf)
			if err != nil {
				return err
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.services.Overdue.MarkOverdue(cmd.Context(), at)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "overdue: %d, late: %d\n", report.MarkedOverdue, report.MarkedLate)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "дата отсчета YYYY-MM-DD (по умолчанию сейчас)")
	return cmd
}

func expireRentalsCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "expire-rentals",
		Short: "Закрыть аренды с истекшим сроком и непогашенным долгом",
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := parseDateFlag(asOf)
			if err != nil {
				return err
			}
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			expired, err := a.services.Overdue.ExpireRentals(cmd.Context(), at)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\n", expired)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "дата отсчета YYYY-MM-DD (по умолчанию сейчас)")
	return cmd
}

func parseDateFlag(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("неверная дата %q: ожидается YYYY-MM-DD", raw)
	}
	return t, nil
}
