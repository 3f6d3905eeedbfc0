package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatline/internal/channel"
	"github.com/chatline/internal/config"
	"github.com/chatline/internal/engine"
	"github.com/chatline/internal/httpapi"
	"github.com/chatline/internal/logger"
	"github.com/chatline/internal/notify"
)

func main() {
	logger.SetPrefix("client")
	username := flag.String("username", "", "chat username (overrides config)")
	server := flag.String("server", "", "websocket server url (overrides config)")
	room := flag.String("room", "", "initial room (overrides config)")
	flag.Parse()

	logger.Info("starting chatline client")
	cfg := config.Load()
	if *username != "" {
		cfg.Username = *username
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *room != "" {
		cfg.DefaultRoom = *room
	}
	if cfg.Username == "" {
		logger.Error("no username: set -username, CHAT_USERNAME or username in config/client.yaml")
		os.Exit(1)
	}

	sock := channel.NewSocket(channel.Options{
		URL:               cfg.ServerURL,
		DialTimeout:       time.Duration(cfg.Socket.DialTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Socket.WriteTimeout) * time.Second,
		PongTimeout:       time.Duration(cfg.Socket.PongTimeout) * time.Second,
		MaxMessageSize:    int64(cfg.Socket.MaxMessageSize),
		SendBuffer:        cfg.Socket.SendBufferSize,
		ReconnectAttempts: cfg.Socket.ReconnectAttempts,
		ReconnectDelay:    time.Duration(cfg.Socket.ReconnectDelayMS) * time.Millisecond,
		ReconnectDelayMax: time.Duration(cfg.Socket.ReconnectDelayMax) * time.Millisecond,
	})

	var notifier notify.Notifier
	var push *notify.WebPush
	switch cfg.Notify.Mode {
	case "webpush":
		var err error
		push, err = notify.NewWebPush(cfg.Notify.VAPIDKeysFile, cfg.Notify.SubscriptionsFile)
		if err != nil {
			logger.Errorf("web push init: %v (falling back to log notifier)", err)
			notifier = notify.LogNotifier{}
		} else {
			notifier = push
		}
	case "off":
		notifier = notify.NopNotifier{}
	default:
		notifier = notify.LogNotifier{}
	}

	eng := engine.New(sock, notifier, cfg.DefaultRoom)
	if err := eng.Connect(cfg.Username); err != nil {
		logger.Errorf("connect %s: %v", cfg.ServerURL, err)
		os.Exit(1)
	}
	logger.Infof("connected to %s as %s", cfg.ServerURL, cfg.Username)
	if cfg.DefaultRoom != "" {
		if err := eng.JoinRoom(cfg.DefaultRoom); err != nil {
			logger.Errorf("join %s: %v", cfg.DefaultRoom, err)
		}
	}

	api := httpapi.New(eng, push, []string{cfg.CORSAllowedOrigins})
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("control api listening on %s", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Errorf("control api: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	eng.Disconnect()
	logger.Info("disconnected, bye")
}
