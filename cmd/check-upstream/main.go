package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/deviantnotify/deviant-notify/internal/config"
	"github.com/deviantnotify/deviant-notify/internal/monitoring"
	"github.com/deviantnotify/deviant-notify/internal/notifications"
	"github.com/deviantnotify/deviant-notify/internal/options"
	"github.com/deviantnotify/deviant-notify/internal/readstate"
	"github.com/deviantnotify/deviant-notify/internal/storage"
	"github.com/deviantnotify/deviant-notify/internal/upstream"
)

func main() {
	fmt.Println("🔍 Deviant Notify - Upstream Connectivity Check")
	fmt.Println("===============================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// nothing is persisted by a one-shot check
	optionsManager := options.NewManager(storage.NewMemoryStorage(), cfg.AllowedDomains)
	if errs, err := optionsManager.Init(ctx, cfg.OptionsFile); err != nil {
		log.Fatalf("Failed to read options: %v", err)
	} else if errs.Count() > 0 {
		fmt.Printf("⚠️  Ignored invalid options: %s\n", strings.Join(errs.Keys(), ", "))
	}
	opts := optionsManager.Get()

	client, err := upstream.NewClient("https://"+opts.PreferredDomain, cfg.CookieFile, cfg.RequestsPerSecond)
	if err != nil {
		log.Fatalf("Failed to create upstream client: %v", err)
	}

	fmt.Println("\n🔑 Checking session...")
	fmt.Println(strings.Repeat("-", 40))

	username, err := client.SignedInUser()
	if err != nil {
		fmt.Printf("❌ Not signed in: %v\n", err)
		fmt.Printf("   💡 Export your cookies for %s into %s\n", opts.PreferredDomain, cfg.CookieFile)
		return
	}
	fmt.Printf("✅ Cookie belongs to %s\n", username)

	session, err := client.ResolveSession(ctx)
	var parseErr *upstream.ParseError
	switch {
	case errors.As(err, &parseErr):
		fmt.Printf("❌ Page layout changed: %s\n", parseErr.Reason)
		return
	case err != nil:
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}
	fmt.Printf("✅ Request id %s, theme %s\n", session.RequestID, monitoring.ThemeFromBodyClass(session.BodyClass))

	fmt.Println("\n📡 Counting unread items...")
	fmt.Println(strings.Repeat("-", 40))

	presenter := notifications.NewPresenter(&notifications.LogSink{}, optionsManager, cfg.NotifMaxNew, cfg.NotesMaxNew)
	readState := readstate.NewStore(storage.NewMemoryStorage())
	service := monitoring.NewService(cfg, client, optionsManager, readState, presenter, nil)

	if err := service.Refresh(ctx); err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	data := service.PopupData()
	printGroup("Feedback", data.Counts.Feedback)
	printGroup("Watch", data.Counts.Watch)
	fmt.Printf("🔸 Notes: %s\n", notifications.CapWithPlus(data.Counts.Messages, cfg.NotesMaxNew))

	fmt.Printf("\n✅ Upstream check completed! Badge would read %q\n", data.Badge)
}

func printGroup[K ~string](name string, counts map[K]int) {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	fmt.Printf("🔸 %s:\n", name)
	for _, key := range keys {
		fmt.Printf("   %-16s %d\n", key, counts[K(key)])
	}
}
