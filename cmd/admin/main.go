package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"chatmatch/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  active-sessions          list sessions that are still open in the archive
  transcript <session_id>  print the messages of a session
  user <username>          show a stored profile
  close-stale              close every open session (run only while the server is down)
  watch                    stream live events from Redis`

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	var rdb *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	}
	storageSvc := storage.NewStorageService(db, rdb)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	command := os.Args[1]
	switch command {
	case "active-sessions":
		if err := listActiveSessions(ctx, storageSvc); err != nil {
			log.Fatalf("Error listing sessions: %v", err)
		}
	case "transcript":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin transcript <session_id>")
			os.Exit(1)
		}
		if err := printTranscript(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error reading transcript: %v", err)
		}
	case "user":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin user <username>")
			os.Exit(1)
		}
		if err := showUser(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error reading user: %v", err)
		}
	case "close-stale":
		n, err := storageSvc.CloseStaleSessions(ctx, time.Now())
		if err != nil {
			log.Fatalf("Error closing sessions: %v", err)
		}
		fmt.Printf("Closed %d sessions.\n", n)
	case "watch":
		if err := watch(ctx, storageSvc); err != nil {
			log.Fatalf("Error watching events: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func listActiveSessions(ctx context.Context, s storage.Storage) error {
	ids, err := s.GetActiveSessionIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s  started %s  %s <-> %s\n", session.SessionID,
			session.StartedAt.Format(time.RFC3339), session.User1ID, session.User2ID)
	}
	fmt.Printf("%d open sessions\n", len(ids))
	return nil
}

func printTranscript(ctx context.Context, s storage.Storage, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	msgs, err := s.GetSessionMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (%s <-> %s)\n", session.SessionID, session.User1ID, session.User2ID)
	for _, m := range msgs {
		fmt.Printf("[%s] #%d %s: %s\n", m.CreatedAt.Format(time.RFC3339Nano), m.ID, m.SenderID, m.Body)
	}
	if session.EndedAt != nil {
		fmt.Printf("Ended %s by %q\n", session.EndedAt.Format(time.RFC3339), session.EndedBy)
	}
	return nil
}

func showUser(ctx context.Context, s *storage.Service, username string) error {
	u, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return err
	}
	fmt.Printf("ID:         %s\n", u.ID)
	fmt.Printf("Username:   %s\n", u.Username)
	fmt.Printf("Gender:     %s\n", u.Gender)
	fmt.Printf("Preference: %s\n", u.Preference)
	fmt.Printf("Interests:  %s\n", strings.Join(u.Interests, ", "))
	if u.TelegramID != nil {
		fmt.Printf("Telegram:   %d\n", *u.TelegramID)
	}

	online, err := s.OnlineUsers(ctx)
	if err != nil {
		return err
	}
	for _, id := range online {
		if id == u.ID {
			fmt.Println("Online:     yes")
			return nil
		}
	}
	fmt.Println("Online:     no")
	return nil
}

func watch(ctx context.Context, s *storage.Service) error {
	evs, err := s.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	for ev := range evs {
		line := fmt.Sprintf("%s %-15s", ev.At.Format(time.RFC3339Nano), ev.Type)
		if ev.UserID != "" {
			line += " user=" + ev.UserID
		}
		if ev.Session != nil {
			line += " session=" + ev.Session.SessionID
		}
		if ev.Message != nil {
			line += fmt.Sprintf(" message=#%d", ev.Message.ID)
		}
		fmt.Println(line)
	}
	return nil
}
