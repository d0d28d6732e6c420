package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/client"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/protocol"
)

var (
	tailUser    string
	tailURL     string
	tailHistory bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Connect as a user, resync history and print live events",
	Long: `Connect to a running server as --user, fetch the latest page of every chat the
user belongs to, then print live events until interrupted.

Messages the user sent from this connection are not echoed, except images.

Examples:
  huddle tail --user U1
  huddle tail --user U1 --url http://chat.internal:3000 --history=false`,
	RunE: runTail,
}

func runTail(cmd *cobra.Command, args []string) error {
	c, err := client.New(tailURL, tailUser)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	out := cmd.OutOrStdout()

	// Connect first so nothing published during the resync is missed.
	conn, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	if tailHistory {
		pages, err := c.Resync(ctx)
		if err != nil {
			return fmt.Errorf("resync: %w", err)
		}
		printHistory(out, pages)
	}

	for {
		ev, err := conn.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if !conn.Visible(ev) {
			continue
		}
		printEvent(out, ev)
	}
}

func printHistory(w io.Writer, pages map[string]domain.Page) {
	ids := make([]string, 0, len(pages))
	for id := range pages {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(w, "== %s (%d messages)\n", id, len(pages[id].Messages))
		for _, m := range pages[id].Messages {
			printMessage(w, m)
		}
	}
}

func printMessage(w io.Writer, m domain.Message) {
	fmt.Fprintf(w, "%s [%s] %s: %s\n", m.TimeStamp.Format("15:04:05"), m.ChatID, m.SenderID, m.Content)
}

func printEvent(w io.Writer, ev client.Event) {
	switch {
	case ev.Name == protocol.EventChatMessage:
		printMessage(w, ev.Envelope.Message)
	case ev.Name == protocol.EventNotification:
		// the same message already arrived as chat-message
	case ev.Typing != nil && ev.Name == protocol.EventUserTyping:
		fmt.Fprintf(w, "[%s] %s is typing\n", ev.Typing.ChatID, displayName(ev.Typing))
	case ev.Typing != nil:
		fmt.Fprintf(w, "[%s] %s stopped typing\n", ev.Typing.ChatID, displayName(ev.Typing))
	case ev.Name == protocol.EventOnlineUser:
		fmt.Fprintf(w, "* %s is online\n", ev.UserID)
	case ev.Name == protocol.EventUserOffline:
		fmt.Fprintf(w, "* %s went offline\n", ev.UserID)
	case ev.Error != nil:
		fmt.Fprintf(w, "! %s: %s\n", ev.Error.Event, ev.Error.Message)
	default:
		fmt.Fprintf(w, "? %s\n", ev.Name)
	}
}

func displayName(t *protocol.TypingEvent) string {
	if t.Username != "" {
		return t.Username
	}
	return t.UserID
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().StringVarP(&tailUser, "user", "u", "", "User id to connect as")
	tailCmd.Flags().StringVar(&tailURL, "url", "http://localhost:3000", "Server base URL")
	tailCmd.Flags().BoolVar(&tailHistory, "history", true, "Print the latest page of each chat before live events")
	_ = tailCmd.MarkFlagRequired("user")
}
