package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/boat-builder/agentwire"
	"github.com/joho/godotenv"
)

type currentTimeArgs struct {
	Timezone string `json:"timezone,omitempty" jsonschema_description:"IANA timezone name, defaults to local"`
}

func main() {
	chatCmd := flag.NewFlagSet("chat", flag.ExitOnError)
	endpoint := chatCmd.String("endpoint", "", "Streaming chat endpoint URL (required)")
	dbPath := chatCmd.String("db", "", "Optional SQLite file for session metadata")

	if len(os.Args) < 2 {
		fmt.Println("Expected 'chat' subcommand")
		os.Exit(1)
	}

	switch os.Args[1] {
	case "chat":
		chatCmd.Parse(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println("Expected 'chat' subcommand")
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file, falling back to environment variables")
	}

	if *endpoint == "" {
		*endpoint = os.Getenv("AGENTWIRE_ENDPOINT")
	}
	if *endpoint == "" {
		fmt.Println("Error: --endpoint flag or AGENTWIRE_ENDPOINT is required")
		chatCmd.PrintDefaults()
		os.Exit(1)
	}

	registry := agentwire.NewActionRegistry()
	registry.Register(
		"current_time",
		"Returns the client's current local time",
		agentwire.GenerateSchema[currentTimeArgs](),
		func(ctx context.Context, args map[string]any) (string, error) {
			if tz, ok := args["timezone"].(string); ok && tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("unknown timezone %q", tz)
				}
				return time.Now().In(loc).Format(time.RFC1123), nil
			}
			return time.Now().Format(time.RFC1123), nil
		},
	)

	transport := agentwire.NewHTTPTransport(*endpoint, os.Getenv("AGENTWIRE_API_KEY"))
	session := agentwire.NewSession(context.Background(), transport, registry)
	defer session.Close()

	if *dbPath != "" {
		store, err := agentwire.NewSQLiteMetadataStore(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open metadata store: %v", err)
		}
		defer store.Close()
		session.SetMetadataSink(store)
	}

	stdin := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}
		session.In(line)

		for {
			update := session.Out()
			if update.Type == agentwire.UpdateTypeEnd {
				printMessages(update.Messages)
				break
			}
			if update.Type == agentwire.UpdateTypeError {
				fmt.Printf("error: %v\n", update.Err)
			}
		}
		fmt.Print("> ")
	}
}

func printMessages(msgs []agentwire.Message) {
	for _, msg := range msgs {
		switch m := msg.(type) {
		case *agentwire.TextMessage:
			if m.Role == agentwire.RoleAssistant {
				fmt.Println(m.Content)
			}
		case *agentwire.ResultMessage:
			fmt.Printf("[%s] %s\n", m.ActionName, m.Result)
		}
	}
}
