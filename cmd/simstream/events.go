package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/query"
)

func newEventsCmd() *cobra.Command {
	var (
		types     []string
		agents    []string
		turnStart int
		turnEnd   int
		since     string
		until     string
		where     string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "events <simulation-id>",
		Short: "Query events from a simulation log",
		Long: `Events prints matching events as JSON lines, oldest first. All
filters combine with AND; --where accepts a boolean expression over the
event fields, e.g. 'turn_number > 3 && event_type == "ACTION"'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := query.Filter{
				AgentIDs: agents,
				Where:    where,
				Limit:    limit,
				Offset:   offset,
			}

			for _, t := range types {
				typ := event.Type(strings.ToUpper(t))
				if !typ.Valid() {
					return fmt.Errorf("unknown event type %q", t)
				}
				filter.Types = append(filter.Types, typ)
			}
			if cmd.Flags().Changed("turn-start") {
				filter.TurnStart = &turnStart
			}
			if cmd.Flags().Changed("turn-end") {
				filter.TurnEnd = &turnEnd
			}
			if since != "" {
				ts, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("parsing --since: %w", err)
				}
				filter.StartTime = &ts
			}
			if until != "" {
				ts, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("parsing --until: %w", err)
				}
				filter.EndTime = &ts
			}

			svc, err := newService()
			if err != nil {
				return err
			}

			page, err := svc.Events(cmd.Context(), args[0], filter)
			if err != nil {
				return fmt.Errorf("querying events: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			for _, e := range page.Events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			if page.HasMore {
				fmt.Fprintf(os.Stderr, "Showing %d of %d matching events; use --offset %d for the next page.\n",
					len(page.Events), page.Total, offset+len(page.Events))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&types, "type", nil, "Event type to include (repeatable)")
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "Agent ID to include (repeatable)")
	cmd.Flags().IntVar(&turnStart, "turn-start", 0, "Lowest turn number to include")
	cmd.Flags().IntVar(&turnEnd, "turn-end", 0, "Highest turn number to include")
	cmd.Flags().StringVar(&since, "since", "", "Only events at or after this RFC3339 timestamp")
	cmd.Flags().StringVar(&until, "until", "", "Only events at or before this RFC3339 timestamp")
	cmd.Flags().StringVar(&where, "where", "", "Boolean filter expression")
	cmd.Flags().IntVar(&limit, "limit", query.DefaultLimit, "Maximum events to print")
	cmd.Flags().IntVar(&offset, "offset", 0, "Events to skip from the start of the result")

	return cmd
}
