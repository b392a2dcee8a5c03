package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/khobor-desk/internal/listing"
	"github.com/Adda-Baaj/khobor-desk/internal/render"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
	"github.com/Adda-Baaj/khobor-desk/pkg/storyclient"
)

var (
	serverURL string
	termWidth int
	listQuery listing.Query
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show one page of stories from a running server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := storyclient.New(serverURL, httpclient.NewRestyClient(0))
		if err != nil {
			return err
		}
		q := listQuery.Normalize()

		resp, err := client.List(cmd.Context(), q)
		if err != nil {
			log.ErrorObj("story list failed", "list_error", map[string]any{"error": err.Error()})
			fmt.Fprintln(cmd.OutOrStdout(), render.LoadFailed)
			return err
		}
		view := render.NewListView(render.ListPath, resp.Page(q))
		return render.NewTextRenderer(termWidth).Render(cmd.OutOrStdout(), view)
	},
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Read queries from stdin; each new query supersedes the previous one",
	Long: `browse reads one query per line, for example:

  acme date=2025-03-04 page=2

Bare words form the title search. A query still loading when the next line
arrives is cancelled and its result discarded.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := storyclient.New(serverURL, httpclient.NewRestyClient(0))
		if err != nil {
			return err
		}
		return browse(cmd.Context(), storyclient.NewLoader(client), cmd.InOrStdin(), cmd.OutOrStdout(), render.NewTextRenderer(termWidth))
	},
}

// browse starts a load per input line and renders only responses that were
// not superseded.
func browse(ctx context.Context, loader *storyclient.Loader, in io.Reader, out io.Writer, tr *render.TextRenderer) error {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	defer loader.Cancel()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		q, err := parseQueryLine(scanner.Text())
		if err != nil {
			mu.Lock()
			fmt.Fprintln(out, err)
			mu.Unlock()
			continue
		}

		pending := loader.Begin(ctx, q)
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := pending.Wait()
			if errors.Is(err, storyclient.ErrSuperseded) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.WarnObj("story load failed", "browse_error", map[string]any{"error": err.Error()})
				fmt.Fprintln(out, render.LoadFailed)
				return
			}
			_ = tr.Render(out, render.NewListView(render.ListPath, resp.Page(q)))
		}()
	}
	wg.Wait()
	return scanner.Err()
}

// parseQueryLine turns "words date=YYYY-MM-DD page=N" into a query.
func parseQueryLine(line string) (listing.Query, error) {
	var q listing.Query
	var words []string
	for _, f := range strings.Fields(line) {
		switch {
		case strings.HasPrefix(f, "date="):
			q.Date = strings.TrimPrefix(f, "date=")
		case strings.HasPrefix(f, "page="):
			n, err := strconv.Atoi(strings.TrimPrefix(f, "page="))
			if err != nil {
				return listing.Query{}, fmt.Errorf("invalid page %q", f)
			}
			q.Page = n
		default:
			words = append(words, f)
		}
	}
	q.Q = strings.Join(words, " ")
	return q.Normalize(), nil
}

func init() {
	for _, c := range []*cobra.Command{listCmd, browseCmd} {
		c.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "story server base URL")
		c.Flags().IntVar(&termWidth, "width", 100, "card width in columns")
	}
	listCmd.Flags().StringVar(&listQuery.Q, "q", "", "title search")
	listCmd.Flags().StringVar(&listQuery.Date, "date", "", "published date (YYYY-MM-DD)")
	listCmd.Flags().IntVar(&listQuery.Page, "page", 1, "page number")
}
