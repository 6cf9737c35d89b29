package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"campuscal/internal/calendar"
	"campuscal/internal/config"
	"campuscal/internal/ics"
	"campuscal/internal/model"
	"campuscal/internal/recurrence"
	"campuscal/internal/store"
)

func layoutCmd() *cobra.Command {
	var (
		view string
		date string
		tz   string
	)

	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the positioned events of a day, week or month view",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			g, err := calendar.ParseGranularity(view)
			if err != nil {
				return err
			}
			zone := cfg.Location()
			if tz != "" {
				if zone, err = time.LoadLocation(tz); err != nil {
					return fmt.Errorf("unknown timezone %q: %w", tz, err)
				}
			}
			ref := time.Now().In(zone)
			if date != "" {
				if ref, err = time.ParseInLocation(time.DateOnly, date, zone); err != nil {
					return fmt.Errorf("date must be YYYY-MM-DD: %w", err)
				}
			}

			events, err := store.New(cfg.EventsPath()).List()
			if err != nil {
				return err
			}

			v := calendar.NewView(ref, g, zone)
			v.WeekStart = cfg.WeekStartDay()
			printResult(cmd.OutOrStdout(), calendar.Render(events, v))
			return nil
		},
	}

	cmd.Flags().StringVar(&view, "view", "week", "day, week or month")
	cmd.Flags().StringVar(&date, "date", "", "reference date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&tz, "tz", "", "display timezone (default from config)")
	return cmd
}

func printResult(w io.Writer, res calendar.Result) {
	fmt.Fprintf(w, "%s %s .. %s\n", res.Window.Granularity,
		res.Window.Start.Format(time.RFC3339), res.Window.End.Format(time.RFC3339))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if res.Cells != nil {
		fmt.Fprintln(tw, "DATE\tMONTH\tEVENTS")
		for _, c := range res.Cells {
			titles := make([]string, 0, len(c.Events))
			for _, ne := range c.Events {
				titles = append(titles, ne.Event.Title)
			}
			marker := ""
			if c.InMonth {
				marker = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Key, marker, strings.Join(titles, ", "))
		}
		return
	}

	fmt.Fprintln(tw, "DAY\tGROUP\tCOLUMN\tSTART\tEND\tTITLE")
	for _, p := range res.Positions {
		day := "-"
		if p.Day != calendar.NoDay {
			day = fmt.Sprint(p.Day)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%s\t%s\t%s\n", day, p.Group, p.Column, p.Columns,
			p.Event.Start.Format("Mon 15:04"), p.Event.End.Format("Mon 15:04"), p.Event.Event.Title)
	}
}

func rruleCmd() *cobra.Command {
	var (
		freq     string
		days     []string
		interval int
		start    string
	)

	cmd := &cobra.Command{
		Use:   "rrule",
		Short: "Build a recurrence rule from form choices",
		RunE: func(cmd *cobra.Command, args []string) error {
			anchor := time.Now()
			if start != "" {
				var err error
				if anchor, err = calendar.ParseInstant(start, time.UTC); err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
			}
			d, err := recurrence.NewDescriptor(freq, days, interval, anchor)
			if err != nil {
				return err
			}
			rule, err := recurrence.Build(d)
			if err != nil {
				return err
			}
			if rule == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(no recurrence)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), rule)
			return nil
		},
	}

	cmd.Flags().StringVar(&freq, "freq", "none", "none, daily, weekly or monthly")
	cmd.Flags().StringSliceVar(&days, "days", nil, "weekday codes for weekly rules, e.g. MO,WE,FR")
	cmd.Flags().IntVar(&interval, "interval", 1, "month step for monthly rules")
	cmd.Flags().StringVar(&start, "start", "", "rule anchor (RFC 3339 or wall-clock UTC)")
	return cmd
}

func importCmd() *cobra.Command {
	var (
		feedID string
		name   string
	)

	cmd := &cobra.Command{
		Use:   "import <file-or-url>",
		Short: "Import an ICS file or URL into the events store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			src := args[0]
			feed := ics.Feed{ID: feedID, Name: name, URL: src}
			if feed.ID == "" {
				feed = ics.FeedsFromConfig([]config.ICSConfig{{Name: name, URL: src}})[0]
			}

			var body []byte
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				payload, err := newFetcher(cfg).Fetch(cmd.Context(), feed)
				if err != nil {
					return err
				}
				body = payload.Body
			} else if body, err = os.ReadFile(src); err != nil {
				return err
			}

			events, err := ics.ParseFeed(feed, bytes.NewReader(body))
			if err != nil {
				return err
			}
			if err := store.New(cfg.EventsPath()).ReplaceSource(feed.ID, events); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d events from feed %s\n", len(events), feed.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&feedID, "feed", "", "feed id (default: hash of the source)")
	cmd.Flags().StringVar(&name, "name", "", "organizer name for imported events")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		out string
		all bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the approved events as an ICS document",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var events []model.Event
			st := store.New(cfg.EventsPath())
			if all {
				events, err = st.List()
			} else {
				events, err = st.ListByStatus(model.StatusApproved)
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return ics.Export(w, events, cfg.Location(), time.Now())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&all, "all", false, "include events that are not approved")
	return cmd
}
