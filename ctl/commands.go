package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/DeafMist/crm-spotlight/backend/internal/ingest"
	"github.com/DeafMist/crm-spotlight/backend/internal/models"
)

type newsStore interface {
	FetchNews(ctx context.Context) []models.NewsItem
	FetchDeployments(ctx context.Context) []models.DeploymentRecord
	CheckAvailability(ctx context.Context) bool
}

type refresher interface {
	Refresh(ctx context.Context) (ingest.Result, error)
}

type deployer interface {
	Run(ctx context.Context, deployedBy, commit string) (models.DeploymentRecord, error)
}

type app struct {
	store   newsStore
	refresh refresher
	deploy  deployer
	close   func()
	timeout time.Duration
}

var errNoGenerator = errors.New("GEMINI_API_KEY is not set")

// newRootCmd builds the command tree. The returned func releases whatever open acquired.
func newRootCmd(open func(ctx context.Context) (*app, error)) (*cobra.Command, func()) {
	var (
		jsonOutput bool
		a          *app
	)

	root := &cobra.Command{
		Use:           "spotlight",
		Short:         "CRM industry news spotlight",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = open(cmd.Context())
			return err
		},
	}
	root.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	emit := func(cmd *cobra.Command, v any, text func(w io.Writer)) error {
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), v)
		}
		text(cmd.OutOrStdout())
		return nil
	}

	newsCmd := &cobra.Command{Use: "news", Short: "Inspect and refresh stored news"}

	var category string
	listNews := &cobra.Command{
		Use:   "list",
		Short: "List stored news, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			items := a.store.FetchNews(cmd.Context())
			if category != "" {
				filtered := make([]models.NewsItem, 0, len(items))
				for _, it := range items {
					if strings.EqualFold(it.Category, category) {
						filtered = append(filtered, it)
					}
				}
				items = filtered
			}
			return emit(cmd, items, func(w io.Writer) { printNews(w, items) })
		},
	}
	listNews.Flags().StringVar(&category, "category", "", "Only show this category")

	refreshNews := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch fresh news from the generator and merge it into the store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.refresh == nil {
				return errNoGenerator
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
			defer cancel()

			res, err := a.refresh.Refresh(ctx)
			if err != nil {
				return err
			}
			return emit(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "fetched %d, valid %d, added %d\n", res.Fetched, res.Valid, len(res.Added))
				printNews(w, res.Added)
			})
		},
	}
	newsCmd.AddCommand(listNews, refreshNews)

	deploymentsCmd := &cobra.Command{Use: "deployments", Short: "Inspect deployment history"}
	deploymentsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List deployments, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recs := a.store.FetchDeployments(cmd.Context())
			return emit(cmd, recs, func(w io.Writer) { printDeployments(w, recs) })
		},
	})

	var by, commit string
	deployCmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a simulated deployment and record it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := a.deploy.Run(cmd.Context(), by, commit)
			if err != nil {
				return err
			}
			return emit(cmd, rec, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s by %s (%s)\n", rec.Version, rec.Status, rec.DeployedBy, rec.Commit)
				for _, line := range rec.Log {
					fmt.Fprintf(w, "  %s\n", line)
				}
			})
		},
	}
	deployCmd.Flags().StringVar(&by, "by", "", "Who triggered the deployment")
	deployCmd.Flags().StringVar(&commit, "commit", "", "Commit hash (random when empty)")

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the store is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			ok := a.store.CheckAvailability(ctx)
			status := map[string]bool{"available": ok}
			if err := emit(cmd, status, func(w io.Writer) {
				if ok {
					fmt.Fprintln(w, "store available")
				}
			}); err != nil {
				return err
			}
			if !ok {
				return errors.New("store unavailable")
			}
			return nil
		},
	}

	root.AddCommand(newsCmd, deploymentsCmd, deployCmd, healthCmd)
	cleanup := func() {
		if a != nil && a.close != nil {
			a.close()
		}
	}
	return root, cleanup
}

func printNews(w io.Writer, items []models.NewsItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCATEGORY\tSOURCE\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", it.Timestamp.Format(time.DateTime), it.Category, it.Source, it.Title)
	}
	tw.Flush()
}

func printDeployments(w io.Writer, recs []models.DeploymentRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tVERSION\tSTATUS\tBY\tCOMMIT")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Timestamp.Format(time.DateTime), r.Version, r.Status, r.DeployedBy, r.Commit)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
