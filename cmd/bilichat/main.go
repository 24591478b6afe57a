package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	bilichat "github.com/koyomi-dev/bilichat"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config.json")
	flag.Parse()

	cfg, err := bilichat.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting", "room", cfg.RoomID)

	client := bilichat.NewClient(bilichat.WithRoomID(cfg.RoomID))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events, err := client.Start(ctx)
	if err != nil {
		slog.Error("failed to start session", "error", err)
		os.Exit(1)
	}

	go printEvents(events)

	if err := client.Wait(); err != nil && ctx.Err() == nil {
		slog.Error("session stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("stopped")
}

func printEvents(events <-chan bilichat.ServerEvent) {
	for ev := range events {
		switch e := ev.(type) {
		case bilichat.LoginAck:
			fmt.Println("[login] authenticated")
		case bilichat.ServerHeartBeat:
			slog.Debug("heartbeat ack")
		case bilichat.Notification:
			printNotification(e.Msg)
		}
	}
}

func printNotification(msg bilichat.NotificationMsg) {
	switch m := msg.(type) {
	case bilichat.DanmuMsg:
		medal := ""
		if m.MedalName != "" {
			medal = fmt.Sprintf("[%s %d] ", m.MedalName, m.MedalLevel)
		}
		fmt.Printf("[danmu] %s%s: %s\n", medal, m.Uname, m.Text)
	case bilichat.SendGift:
		fmt.Printf("[gift] %s %s %s x%d\n", m.Uname, m.Action, m.GiftName, m.Num)
	case bilichat.ComboSend:
		fmt.Printf("[combo] %s sent %s x%d\n", m.Uname, m.GiftName, m.ComboNum)
	case bilichat.GuardBuy:
		fmt.Printf("[guard] %s bought guard level %d\n", m.Username, m.GuardLevel)
	case bilichat.InteractWord:
		fmt.Printf("[interact] %s (type=%d)\n", m.Uname, m.MsgType)
	case bilichat.EntryEffect:
		fmt.Printf("[entry] %s\n", m.Uname)
	case bilichat.LiveMsg:
		fmt.Println("[live] room started broadcasting")
	case bilichat.PreparingMsg:
		fmt.Println("[live] room stopped broadcasting")
	case bilichat.Other:
		slog.Debug("unhandled notification", "cmd", m.CmdName)
	}
}
