package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"hangout-service/chat"
	"hangout-service/config"
	"hangout-service/database"
	"hangout-service/event"
	"hangout-service/event/listener"
	"hangout-service/notify"
	"hangout-service/presence"
	"hangout-service/router"
	"hangout-service/session"
	"hangout-service/socketio"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	log.SetPrefix("hangout-service: ")

	rest := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StrictRouting:         true,
		AppName:               "hangout-service",
	})

	rest.Use(cors.New())

	database.RedisConnect()
	database.PostgresConnect()

	// Core components
	chatService := chat.NewService(database.Postgres)
	dispatcher := chat.NewDispatcher(chatService)
	tracker := presence.NewTracker()
	notifications := notify.NewService(database.Postgres)
	fanout := notify.NewFanout()

	// Run matchmaking listener
	go listener.Matchmaking(notifications, fanout)

	// The broker link is owned by a session manager: dropped connections
	// go through the bounded reconnect policy instead of killing the
	// service.
	event.OpenLogFiles()
	broker := &event.BrokerTransport{
		Queues: []string{
			"matchmaking",
			"backoffice",
		},
		Listeners: []event.RabbitMQSubscribeListener{
			{
				Queue:   "matchmaking",
				Channel: listener.MatchmakingChannel,
			},
		},
	}
	brokerLink := session.NewManager(broker, nil, session.DefaultPolicy())
	broker.OnDrop = brokerLink.Drop
	brokerLink.Subscribe(func(e session.Event) {
		if e.Err != nil {
			log.Printf("broker link %s (attempt %d): %v", e.State, e.Attempt, e.Err)
		} else {
			log.Printf("broker link %s", e.State)
		}
	})
	if _, err := brokerLink.Connect(context.Background(), event.URL()); err != nil {
		panic(fmt.Sprintf("failed to connect to RabbitMQ: %v", err))
	}

	// Init event logs
	event.Init()

	socket := socketio.Init(rest)

	deps := &router.SocketDeps{
		Chat:          chatService,
		Dispatcher:    dispatcher,
		Presence:      tracker,
		Notifications: notifications,
		Fanout:        fanout,
	}

	router.Rest(rest, deps)
	router.Socket(socket, deps)

	go rest.Listen(fmt.Sprintf(":%s", config.Config("SERVER_PORT")))

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	socket.Close(nil)
	brokerLink.Close()
	event.InLogFile.Close()
	event.OutLogFile.Close()
	os.Exit(0)
}
