package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/quailyquaily/taskernetbot/internal/inline"
	"github.com/quailyquaily/taskernetbot/internal/resultcache"
	"github.com/quailyquaily/taskernetbot/internal/taskernet"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type searchResultOutput struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	URL         string `json:"url,omitempty" yaml:"url,omitempty"`
	Message     string `json:"message" yaml:"message"`
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query|share url>",
		Short: "Print the inline results a query would produce",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			format = strings.ToLower(strings.TrimSpace(format))
			if format != "yaml" && format != "json" {
				return fmt.Errorf("invalid --format %q (want yaml|json)", format)
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("empty query")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			deps, err := buildRuntime(ctx, cmd, resultcache.NewMemoryStore())
			if err != nil {
				return err
			}
			defer deps.Close()

			results, err := presentQuery(ctx, deps, query)
			if err != nil {
				return err
			}
			return writeSearchResults(cmd.OutOrStdout(), format, results)
		},
	}
	cmd.Flags().String("format", "yaml", "Output format: yaml|json.")
	addTaskernetFlags(cmd)
	return cmd
}

func presentQuery(ctx context.Context, deps *runtimeDeps, query string) ([]inline.Result, error) {
	if deps.Shares.IsShareURL(query) {
		detail, err := deps.Shares.FetchShareDetail(ctx, query)
		if err != nil {
			if errors.Is(err, taskernet.ErrUnavailable) {
				return nil, nil
			}
			return nil, err
		}
		res, err := deps.Presenter.PresentURLResult(ctx, query, *detail)
		if err != nil {
			return nil, err
		}
		return []inline.Result{res}, nil
	}
	shares, err := deps.Shares.SearchShares(ctx, query)
	if err != nil {
		return nil, nil
	}
	return deps.Presenter.PresentSearchResults(ctx, query, shares)
}

func writeSearchResults(w io.Writer, format string, results []inline.Result) error {
	out := make([]searchResultOutput, 0, len(results))
	for _, res := range results {
		out = append(out, searchResultOutput{
			ID:          res.ID,
			Title:       res.Title,
			Description: res.Description,
			URL:         res.CanonicalURL,
			Message:     res.Body.Text,
		})
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	}
}
