// Command nudgechat-demo runs an interactive terminal session against a
// NudgeChat gateway: stdin lines go out as chat messages, inbound frames and
// derived signals are printed as they arrive.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	nudgechat "github.com/NudgeChat/nudgechat-go-sdk"
)

func main() {
	godotenv.Load()

	endpoint := os.Getenv("NUDGECHAT_ENDPOINT")
	if endpoint == "" {
		fmt.Fprintln(os.Stderr, "NUDGECHAT_ENDPOINT not set")
		os.Exit(1)
	}

	client, err := nudgechat.New(nudgechat.Config{
		Endpoint:    endpoint,
		APIEndpoint: os.Getenv("NUDGECHAT_API"),
		CheckoutURL: os.Getenv("NUDGECHAT_CHECKOUT_URL"),
		CheckoutKey: os.Getenv("NUDGECHAT_CHECKOUT_KEY"),
		DurablePath: os.Getenv("NUDGECHAT_DB"),
		ClientInfo:  "nudgechat-demo",
		Registerer:  prometheus.DefaultRegisterer,
	})
	if err != nil {
		slog.Error("client setup failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	client.OnStateChange(func(s nudgechat.ConnectionState) {
		fmt.Printf("[connection: %s]\n", s)
	})

	_, err = client.Subscribe(func(ev nudgechat.Event) {
		switch ev.Kind {
		case nudgechat.EventFrame:
			if ev.Frame.ChatBearing() {
				fmt.Printf("assistant: %s\n", ev.Frame.Text)
			}
			if link := ev.Frame.Link; link != "" {
				fmt.Printf("[payment link: %s, opening checkout]\n", link)
				if err := client.Payments().Open(context.Background()); err != nil {
					fmt.Printf("[checkout error: %v]\n", err)
				}
			}
		case nudgechat.EventTypingBegan:
			fmt.Println("[assistant is typing...]")
		case nudgechat.EventNewSession:
			fmt.Println("[new session started]")
		}
	})
	if err != nil {
		slog.Error("subscribe failed", "error", err)
		os.Exit(1)
	}

	if err := client.Connect(context.Background()); err != nil {
		slog.Warn("initial connect failed, will retry in background", "error", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		client.SendMessage(text)
	}
}
