// ABOUTME: Terminal client for chatting with AI colleagues through the gateway
// ABOUTME: Drives the client core: select scope, send, reply, cancel, view threads

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/cohortlabs/cohort/internal/client"
	"github.com/cohortlabs/cohort/internal/model"
	"github.com/cohortlabs/cohort/internal/resolver"
	"github.com/cohortlabs/cohort/internal/thread"
)

var (
	rootColor   = color.New(color.FgCyan)
	replyColor  = color.New(color.FgHiBlack)
	orphanColor = color.New(color.FgYellow)
	failColor   = color.New(color.FgRed)
	agentColor  = color.New(color.FgGreen)
)

func main() {
	_ = godotenv.Load()

	gateway := flag.String("gateway", "ws://localhost:8080/ws", "Gateway websocket URL")
	user := flag.String("user", "me", "User id")
	name := flag.String("name", "Me", "Display name")
	project := flag.String("project", "demo", "Project id")
	team := flag.String("team", "", "Team id (optional)")
	agentID := flag.String("agent", "", "Agent id (optional)")
	rosterSpec := flag.String("roster", "ada:Ada:platform,lin:Lin:platform,kai:Kai:design", "Roster as id:name:team triples")
	flag.Parse()

	token := os.Getenv("COHORT_TOKEN")
	if token == "" {
		fmt.Println("warning: COHORT_TOKEN not set; the gateway will reject the connection")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	c := client.New(client.Config{
		GatewayURL: *gateway,
		Token:      token,
		UserID:     *user,
		UserName:   *name,
		Roster:     parseRoster(*rosterSpec, *project),
		Logger:     logger,
	})
	go c.Run(ctx)

	conv := c.Select(resolver.Selection{
		ProjectID: *project,
		TeamID:    *team,
		AgentID:   *agentID,
	})
	fmt.Printf("conversation: %s (%s, %d participants)\n", conv.ID, conv.Mode, len(conv.ParticipantIDs))
	fmt.Println(`commands: /reply <message-id> <text>, /react <message-id> <type>, /cancel, /threads, /quit; anything else is sent as a message`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/cancel":
			if !c.CancelStreaming() {
				fmt.Println("nothing to cancel")
			}
		case line == "/threads":
			printThreads(c.Threads(time.Time{}))
		case strings.HasPrefix(line, "/reply "):
			rest := strings.TrimPrefix(line, "/reply ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /reply <message-id> <text>")
				continue
			}
			submit(c, parts[1], parts[0])
		case strings.HasPrefix(line, "/react "):
			rest := strings.TrimPrefix(line, "/react ")
			parts := strings.SplitN(rest, " ", 2)
			if len(parts) != 2 {
				fmt.Println("usage: /react <message-id> <type>")
				continue
			}
			err := client.PostReaction(ctx, nil, restBaseURL(*gateway), token, parts[0], client.Reaction{
				ReactionType: parts[1],
				AgentID:      *agentID,
			})
			if err != nil {
				failColor.Printf("reaction failed: %v\n", err)
			}
		default:
			submit(c, line, "")
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func submit(c *client.Client, content, replyTo string) {
	msg, err := c.Submit(content, replyTo)
	if err != nil {
		failColor.Printf("send failed: %v\n", err)
		return
	}
	fmt.Printf("[%s] %s (%s)\n", shortID(msg.ID), msg.Content, msg.Status)
	if pending := c.Pending(); pending > 0 {
		fmt.Printf("%d message(s) queued for reconnect\n", pending)
	}
}

func printThreads(forest thread.Forest) {
	for _, rootID := range forest.RootOrder {
		th := forest.Threads[rootID]
		printMessage(rootColor, th.Root, 0)
		for _, reply := range th.Replies {
			printMessage(replyColor, reply, reply.ThreadDepth)
		}
	}
	for _, orphan := range forest.Orphans {
		printMessage(orphanColor, orphan, 1)
	}
}

func printMessage(c *color.Color, m model.Message, depth int) {
	indent := strings.Repeat("  ", depth)
	who := m.SenderName
	if who == "" {
		who = m.SenderID
	}
	line := fmt.Sprintf("%s[%s] %s: %s", indent, shortID(m.ID), who, m.Content)
	switch {
	case m.Status == model.StatusFailed:
		failColor.Println(line + " (failed)")
	case m.Streaming:
		agentColor.Println(line + " ...")
	case m.Type == model.MessageTypeAgent:
		agentColor.Println(line)
	default:
		c.Println(line)
	}
}

// restBaseURL maps the websocket endpoint to the gateway's REST root.
func restBaseURL(wsURL string) string {
	base := strings.TrimSuffix(wsURL, "/ws")
	base = strings.Replace(base, "wss://", "https://", 1)
	return strings.Replace(base, "ws://", "http://", 1)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseRoster(spec, projectID string) model.Roster {
	roster := model.Roster{ProjectID: projectID}
	for _, part := range strings.Split(spec, ",") {
		fields := strings.SplitN(strings.TrimSpace(part), ":", 3)
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		agent := model.Agent{ID: fields[0], Name: fields[1]}
		if len(fields) == 3 {
			agent.TeamID = fields[2]
		}
		roster.Agents = append(roster.Agents, agent)
	}
	return roster
}
