// SimpleRemote CLI - submit alerts to a mirror from scripts
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eldtechnologies/simpleremote/clients/go/simpleremote"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("SR_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := simpleremote.NewClient(baseURL, os.Getenv("SR_EXTERNAL_KEY"))
	if bp, ok := os.LookupEnv("SR_BASE_PATH"); ok {
		client.BasePath = strings.TrimRight(bp, "/")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		if resp != nil {
			printJSON(resp)
		}
		exitOnError(err)

	case "submit":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: simpleremote submit <message> [title]")
			os.Exit(1)
		}
		title := ""
		if len(os.Args) > 3 {
			title = os.Args[3]
		}
		alert, err := client.Submit(ctx, title, os.Args[2])
		exitOnError(err)
		fmt.Printf("Queued: %s\n", alert.ID)

	case "list":
		login(ctx, client)
		resp, err := client.Alerts(ctx)
		exitOnError(err)
		if resp.Active != nil {
			until := time.UnixMilli(resp.ActiveUntil).Format("15:04:05")
			fmt.Printf("showing until %s: [%s] %s\n", until, resp.Active.Title, resp.Active.Message)
		}
		for i, a := range resp.Queue {
			fmt.Printf("%2d. [%s] %s\n", i+1, a.Title, a.Message)
		}

	case "clear":
		login(ctx, client)
		exitOnError(client.Clear(ctx))
		fmt.Println("Cleared")

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func login(ctx context.Context, client *simpleremote.Client) {
	exitOnError(client.Login(ctx, os.Getenv("SR_USER"), os.Getenv("SR_PASSWORD")))
}

func usage() {
	fmt.Println(`SimpleRemote CLI - queue alerts on a MagicMirror

Usage: simpleremote <command> [options]

Commands:
  submit <message> [title]  Queue an alert (needs SR_EXTERNAL_KEY)
  list                      Show the active alert and the queue
  clear                     Remove every alert
  health                    Check server health

Environment:
  SR_URL           Server URL (default: http://localhost:8080)
  SR_BASE_PATH     Route prefix (default: /mm-simple-remote)
  SR_EXTERNAL_KEY  Key for submit
  SR_USER          Operator name for list and clear
  SR_PASSWORD      Operator password for list and clear`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
