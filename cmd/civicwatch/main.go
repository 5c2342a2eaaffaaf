package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"civicstream/internal/core/domain"
	"civicstream/internal/realtime"
	"civicstream/pkg/logging"

	"github.com/fatih/color"
)

// civicwatch is a terminal client for the realtime layer: it opens a
// channel as a given user, joins the rooms named on the environment and
// renders alerts and event traffic to the console. Useful both as a
// smoke-test tool against a running gateway and as the reference
// embedding of the realtime client.

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiBase := getenv("CIVICWATCH_API", "http://localhost:8080")
	wsURL := getenv("CIVICWATCH_WS", "ws://localhost:8080/ws")
	userID := getenv("CIVICWATCH_USER", "watcher-1")
	userName := getenv("CIVICWATCH_NAME", "watcher")
	role := getenv("CIVICWATCH_ROLE", domain.RoleCitizen)

	log := logging.NewLogger("civicwatch")

	token, err := fetchToken(ctx, apiBase, userID, userName, role)
	if err != nil {
		log.Error("civicwatch - token fetch failed", logging.Err(err))
		os.Exit(1)
	}

	client := realtime.New(realtime.Config{
		URL:        wsURL,
		APIBaseURL: apiBase,
		Logger:     log,
		Alerts:     consoleSink{},
		OnStateChange: func(s realtime.State) {
			color.New(color.FgHiBlack).Printf("[state] %s\n", s)
		},
	})

	for _, eventType := range []string{
		domain.EventIssueStatusChanged,
		domain.EventNewIssueSubmitted,
		domain.EventCommentAdded,
		domain.EventUpvoteUpdated,
		domain.EventUserTypingComment,
		domain.EventLeaderboardUpdated,
		domain.EventOnlineUsersUpdated,
	} {
		client.Bus().Subscribe(eventType, printEvent)
	}

	session := domain.Session{UserID: userID, UserName: userName, UserRole: role, AuthToken: token}
	if err := client.Connect(ctx, session); err != nil {
		log.Error("civicwatch - connect failed", logging.Err(err))
		os.Exit(1)
	}

	// CIVICWATCH_ROOMS="issue:42,location:dr5r"
	for _, room := range strings.Split(getenv("CIVICWATCH_ROOMS", ""), ",") {
		if room = strings.TrimSpace(room); room != "" {
			client.JoinRoom(domain.Room(room))
		}
	}

	<-ctx.Done()
	client.Disconnect()
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fetchToken(ctx context.Context, apiBase, userID, userName, role string) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"user_id": userID, "user_name": userName, "role": role,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(apiBase, "/")+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint: HTTP %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// consoleSink renders alerts with a severity color.
type consoleSink struct{}

func (consoleSink) Show(a realtime.Alert) {
	var c *color.Color
	switch a.Severity {
	case realtime.SeveritySuccess:
		c = color.New(color.FgGreen)
	case realtime.SeverityWarning:
		c = color.New(color.FgYellow, color.Bold)
	case realtime.SeverityError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	c.Printf("[%s] %s\n", a.Severity, a.Message)
}

func printEvent(eventType string, payload json.RawMessage) {
	color.New(color.FgWhite).Printf("[%s] %s\n", eventType, string(payload))
}
