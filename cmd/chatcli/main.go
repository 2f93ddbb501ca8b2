// chatcli is a terminal client for the chat server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/client"
	"nhanz-chat/internal/models"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("CHAT_URL", "http://localhost:4000"), "chat server base URL")
	email := flag.String("email", os.Getenv("CHAT_EMAIL"), "account email")
	password := flag.String("password", os.Getenv("CHAT_PASSWORD"), "account password")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "Usage: chatcli -email <email> -password <password> [-server url]")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *server, *email, *password); err != nil {
		logger.Fatal().Err(err).Msg("chatcli failed")
	}
}

func run(ctx context.Context, logger zerolog.Logger, server, email, password string) error {
	api := client.NewClient(server)
	auth, err := api.Login(ctx, email, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	logger.Info().Str("username", auth.User.Username).Msg("logged in")

	state := client.NewState(auth.User.Profile())
	convs, err := api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("list conversations: %w", err)
	}
	state.SetConversations(convs)

	conn, err := api.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sess := client.NewSession(conn, state)
	sess.OnEvent = func(env models.Envelope, res client.IncomingResult) {
		render(state, env, res)
		if res.Unknown {
			if convs, err := api.Conversations(ctx); err == nil {
				state.SetConversations(convs)
			}
		}
	}

	general, err := api.General(ctx)
	if err != nil {
		return fmt.Errorf("load general: %w", err)
	}
	if err := open(ctx, api, sess, general); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Run(ctx, conn) }()
	go readInput(ctx, logger, api, sess, state)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func open(ctx context.Context, api *client.Client, sess *client.Session, conv models.Conversation) error {
	history, err := api.History(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if err := sess.Open(conv, history); err != nil {
		return err
	}
	fmt.Printf("-- %s --\n", title(conv))
	for _, msg := range history {
		printMessage(msg)
	}
	return nil
}

func readInput(ctx context.Context, logger zerolog.Logger, api *client.Client, sess *client.Session, state *client.State) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case line == "/list":
			for _, conv := range state.Conversations() {
				fmt.Printf("  %s  %s\n", conv.ID, title(conv))
			}
		case strings.HasPrefix(line, "/open "):
			conv, err := startWith(ctx, api, strings.TrimSpace(strings.TrimPrefix(line, "/open ")))
			if err == nil {
				err = open(ctx, api, sess, conv)
			}
			if err != nil {
				logger.Error().Err(err).Msg("open conversation")
			}
		default:
			active := state.ActiveConversationID()
			if err := sess.Typing(active); err != nil {
				logger.Debug().Err(err).Msg("typing")
			}
			if err := sess.Send(active, line); err != nil {
				logger.Error().Err(err).Msg("send failed")
			}
			if err := sess.StopTyping(active); err != nil {
				logger.Debug().Err(err).Msg("stop typing")
			}
		}
	}
}

func startWith(ctx context.Context, api *client.Client, username string) (models.Conversation, error) {
	contacts, err := api.Contacts(ctx)
	if err != nil {
		return models.Conversation{}, err
	}
	for _, contact := range contacts {
		if contact.Username == username {
			return api.StartConversation(ctx, contact.ID)
		}
	}
	return models.Conversation{}, errors.New("no user named " + username)
}

func render(state *client.State, env models.Envelope, res client.IncomingResult) {
	active := state.ActiveConversationID()
	switch env.Event {
	case models.EventReceiveMessage:
		if !res.Appended {
			return
		}
		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err == nil {
			printMessage(msg)
		}
	case models.EventTyping, models.EventStopTyping:
		if typing := state.TypingUsers(active); len(typing) > 0 {
			fmt.Printf("   %s typing...\n", strings.Join(typing, ", "))
		}
	case models.EventSendFailed:
		fmt.Println("!! a message could not be delivered")
	}
}

func printMessage(msg models.Message) {
	from := msg.SenderID
	if msg.Sender != nil {
		from = msg.Sender.Username
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), from, msg.Text)
}

func title(conv models.Conversation) string {
	if conv.Name != nil {
		return *conv.Name
	}
	names := make([]string, 0, len(conv.Members))
	for _, m := range conv.Members {
		names = append(names, m.Username)
	}
	return strings.Join(names, ", ")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
