package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/pubsub"
)

var topicsFormat string

var topicsCmd = &cobra.Command{
	Use:   "topics [name]",
	Short: "List the pub/sub topics the server uses",
	Long: `List the backbone topics with their payload types. With a name, show a single
topic; concrete notification topics such as notifications:c1 resolve to their pattern.

Examples:
  huddle topics
  huddle topics --format json
  huddle topics notifications:c1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTopics,
}

func runTopics(cmd *cobra.Command, args []string) error {
	topics := pubsub.Catalog()
	if len(args) == 1 {
		info, ok := pubsub.LookupTopic(args[0])
		if !ok {
			return fmt.Errorf("unknown topic %q", args[0])
		}
		topics = []pubsub.TopicInfo{info}
	}

	switch topicsFormat {
	case "table":
		return writeTopicsTable(cmd.OutOrStdout(), topics)
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Topics []pubsub.TopicInfo `json:"topics"`
			Count  int                `json:"count"`
		}{topics, len(topics)})
	default:
		return fmt.Errorf("unsupported output format %q, use table or json", topicsFormat)
	}
}

func writeTopicsTable(out io.Writer, topics []pubsub.TopicInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPAYLOAD\tDESCRIPTION")
	fmt.Fprintln(w, "----\t-------\t-----------")
	for _, t := range topics {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.Payload, t.Description)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.Flags().StringVarP(&topicsFormat, "format", "f", "table", "Output format (table, json)")
}
