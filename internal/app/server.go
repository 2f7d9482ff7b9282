package app

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"telegate/internal/app/scheduleapi"
	"telegate/internal/channel"
	"telegate/internal/config"
	"telegate/internal/observability"
	"telegate/internal/repo"
	"telegate/internal/service/adapters"
	"telegate/internal/service/delivery"
	"telegate/internal/service/schedule"
)

const version = "0.1.0"

const (
	telegramChannelName = "telegram"
	channelSourceHeader = "X-Telegate-Source"

	scheduleStopTimeout = 10 * time.Second
)

type Server struct {
	cfg    config.Config
	logger *zap.Logger

	delivery  *delivery.Service
	schedules *schedule.Service
	telegram  *channel.TelegramChannel

	closeOnce sync.Once
}

func NewServer(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := repo.NewStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	stateStore := adapters.NewRepoStateStore(store)
	httpClient := &http.Client{}

	telegram := channel.NewTelegramChannel(httpClient, logger)
	deliverySvc := delivery.NewService(delivery.Dependencies{
		Store: stateStore,
		Channels: []channel.Channel{
			channel.NewConsoleChannel(logger),
			channel.NewWebhookChannel(httpClient, logger),
			telegram,
		},
		Logger: logger,
	})

	srv := &Server{
		cfg:      cfg,
		logger:   logger,
		delivery: deliverySvc,
		telegram: telegram,
		schedules: schedule.NewService(schedule.Dependencies{
			Store:   stateStore,
			Sender:  deliverySvc,
			Logger:  logger,
			DataDir: cfg.DataDir,
		}),
	}
	if err := srv.seedTelegramConfig(); err != nil {
		return nil, err
	}
	if !cfg.DisableScheduler {
		if err := srv.schedules.Start(); err != nil {
			return nil, err
		}
	}
	return srv, nil
}

func (s *Server) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), scheduleStopTimeout)
		defer cancel()
		if err := s.schedules.Stop(ctx); err != nil {
			s.logger.Error("schedule runner stop timed out", zap.Error(err))
		}
	})
}

// seedTelegramConfig copies bot settings from the process config into the
// stored telegram channel config when none has been saved yet.
func (s *Server) seedTelegramConfig() error {
	token := strings.TrimSpace(s.cfg.TelegramBotToken)
	if token == "" {
		return nil
	}
	current, err := s.delivery.ChannelConfig(telegramChannelName)
	if err != nil {
		return err
	}
	if existing, _ := current["bot_token"].(string); strings.TrimSpace(existing) != "" {
		return nil
	}
	current["enabled"] = true
	current["bot_token"] = token
	if chatID := strings.TrimSpace(s.cfg.TelegramChatID); chatID != "" {
		current["chat_id"] = chatID
	}
	if apiBase := strings.TrimSpace(s.cfg.TelegramAPIBase); apiBase != "" {
		current["api_base"] = apiBase
	}
	return s.delivery.PutChannel(telegramChannelName, current)
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(observability.Logging(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/version", s.handleVersion)
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		api.Use(observability.APIKey(s.cfg.APIKey))

		api.Post("/messages/render", s.renderMessage)
		api.Post("/messages/send", s.sendMessage)
		api.Post("/messages/edit", s.editMessage)
		api.Post("/messages/delete", s.deleteMessage)
		api.Post("/metadata/extract", s.extractMetadata)
		api.Post("/channels/telegram/inbound", s.processTelegramInbound)
		api.Put("/channels/telegram/commands", s.setTelegramCommands)

		api.Route("/schedules", scheduleapi.NewHandler(scheduleapi.HandlerDependencies{
			Service:   s.schedules,
			WriteJSON: writeJSON,
			WriteErr:  writeErr,
		}).Routes)

		api.Route("/config", func(r chi.Router) {
			r.Get("/channels", s.listChannels)
			r.Get("/channels/types", s.listChannelTypes)
			r.Put("/channels", s.putChannels)
			r.Get("/channels/{channel_name}", s.getChannel)
			r.Put("/channels/{channel_name}", s.putChannel)
		})
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-API-Key,X-Request-Id,"+channelSourceHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": version})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
