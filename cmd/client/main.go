package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/atroshin/resumesync/internal/client"
	"github.com/atroshin/resumesync/internal/client/remote"
	"github.com/atroshin/resumesync/internal/config"
	"github.com/atroshin/resumesync/internal/models"
)

var (
	version   string
	buildDate string
)

// repl runs the interactive shell loop, accepting commands to edit resume
// sections and inspect the sync layer.
func repl(ctx context.Context, c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var watch *remote.Subscription
	defer func() {
		if watch != nil {
			watch.Unsubscribe()
		}
	}()

	for {
		fmt.Print("resumesync> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Available commands:")
			fmt.Println("  register <email> <password> [full name]")
			fmt.Println("  login <email> <password>")
			fmt.Println("  logout | state | profile | setname <full name>")
			fmt.Println("  edit <type> <json> | show <type> | pull <type> | del <type>")
			fmt.Println("  types | pending | sync | online | offline | watch | unwatch | exit")
		case "register":
			if len(args) < 3 {
				fmt.Println("Usage: register <email> <password> [full name]")
				continue
			}
			fullName := strings.Join(args[3:], " ")
			if err := c.Register(ctx, args[1], args[2], fullName); err != nil {
				fmt.Println("Registration failed:", err)
				continue
			}
			fmt.Println("Registered as", args[1])
		case "login":
			if len(args) < 3 {
				fmt.Println("Usage: login <email> <password>")
				continue
			}
			if err := c.Login(ctx, args[1], args[2]); err != nil {
				fmt.Println("Login failed:", err)
				continue
			}
			fmt.Println("Logged in, session state:", c.Session().State())
		case "logout":
			if watch != nil {
				watch.Unsubscribe()
				watch = nil
			}
			c.SignOut()
			fmt.Println("Logged out")
		case "state":
			fmt.Println("Session:", c.Session().State())
			if c.Monitor().Offline() {
				fmt.Println("Network: offline")
			} else {
				fmt.Println("Network: online")
			}
		case "profile":
			p := c.Session().Profile()
			if p == nil {
				fmt.Println("No profile loaded")
				continue
			}
			b, _ := json.MarshalIndent(p, "", "  ")
			fmt.Println(string(b))
		case "setname":
			if len(args) < 2 {
				fmt.Println("Usage: setname <full name>")
				continue
			}
			name := strings.Join(args[1:], " ")
			patch := models.ProfilePatch{FullName: &name}
			if err := c.Session().UpdateProfile(ctx, patch); err != nil {
				fmt.Println("Profile update failed:", err)
				continue
			}
			fmt.Println("Profile updated")
		case "edit":
			if len(args) < 3 {
				fmt.Println("Usage: edit <type> <json>")
				continue
			}
			content := json.RawMessage(strings.Join(args[2:], " "))
			if !json.Valid(content) {
				fmt.Println("Content is not valid JSON")
				continue
			}
			id, err := c.DefaultResumeID()
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := c.EditSection(id, models.SectionType(args[1]), content); err != nil {
				fmt.Println("Edit failed:", err)
				continue
			}
			fmt.Println("Saved locally, sync scheduled")
		case "show":
			if len(args) < 2 {
				fmt.Println("Usage: show <type>")
				continue
			}
			id, err := c.DefaultResumeID()
			if err != nil {
				fmt.Println(err)
				continue
			}
			content, ok := c.Section(id, models.SectionType(args[1]))
			if !ok {
				fmt.Println("No local copy")
				continue
			}
			fmt.Println(string(content))
		case "pull":
			if len(args) < 2 {
				fmt.Println("Usage: pull <type>")
				continue
			}
			id, err := c.DefaultResumeID()
			if err != nil {
				fmt.Println(err)
				continue
			}
			content, err := c.PullSection(ctx, id, models.SectionType(args[1]))
			if err != nil {
				fmt.Println("Pull failed:", err)
				continue
			}
			if len(content) == 0 {
				fmt.Println("Section is empty on the server")
				continue
			}
			fmt.Println(string(content))
		case "del":
			if len(args) < 2 {
				fmt.Println("Usage: del <type>")
				continue
			}
			id, err := c.DefaultResumeID()
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := c.DeleteSection(id, models.SectionType(args[1])); err != nil {
				fmt.Println("Delete failed:", err)
				continue
			}
			fmt.Println("Deleted locally, sync scheduled")
		case "types":
			for _, t := range models.SectionTypes {
				fmt.Println(" ", t)
			}
		case "pending":
			pending := c.Pending()
			if len(pending) == 0 {
				fmt.Println("Nothing pending")
				continue
			}
			for t, changes := range pending {
				for _, ch := range changes {
					fmt.Printf("  %s/%s: %s\n", t, ch.Key, ch.Operation)
				}
			}
		case "sync":
			c.SyncNow(ctx)
			fmt.Println("Sync pass done")
		case "online":
			c.Monitor().Set(true)
			fmt.Println("Marked online")
		case "offline":
			c.Monitor().Set(false)
			fmt.Println("Marked offline (next probe may flip it back)")
		case "watch":
			if watch != nil {
				fmt.Println("Already watching")
				continue
			}
			id, err := c.DefaultResumeID()
			if err != nil {
				fmt.Println(err)
				continue
			}
			sub, err := c.Remote().Changes(ctx, id, func(ev models.ChangeEvent) {
				if ev.Deleted {
					fmt.Printf("\n[change] %s deleted\n", ev.Type)
					return
				}
				fmt.Printf("\n[change] %s updated\n", ev.Type)
			})
			if err != nil {
				fmt.Println("Watch failed:", err)
				continue
			}
			watch = sub
			fmt.Println("Watching changes for resume", id)
		case "unwatch":
			if watch == nil {
				fmt.Println("Not watching")
				continue
			}
			watch.Unsubscribe()
			watch = nil
			fmt.Println("Stopped watching")
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

func main() {
	var (
		serverURL string
		dataDir   string
		showVer   bool
	)

	flag.StringVar(&serverURL, "url", "", "server base URL (overrides config)")
	flag.StringVar(&dataDir, "data", "", "local data directory (overrides config)")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("ResumeSync Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	opts, err := config.Parse()
	if err != nil {
		log.Fatal(err)
	}
	if serverURL != "" {
		opts.Client.ServerURL = serverURL
	}
	if dataDir != "" {
		opts.Client.DataDir = dataDir
	}

	c, err := client.New(opts.Client, opts.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Init(ctx); err != nil {
		log.Fatal(err)
	}

	repl(ctx, c)
}
