package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/khobor-desk/internal/crawler"
	"github.com/Adda-Baaj/khobor-desk/internal/dedupe"
	"github.com/Adda-Baaj/khobor-desk/internal/ingest"
	"github.com/Adda-Baaj/khobor-desk/internal/ner"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
	"github.com/Adda-Baaj/khobor-desk/pkg/providers"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Harvest provider feeds and file stories for tracked companies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		provs, err := providers.LoadProviders(cfg.Ingest.ProvidersFile)
		if err != nil {
			return err
		}
		companies, err := ingest.LoadCompanies(cfg.Ingest.CompaniesFile)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		events, release, err := eventPublisher(ctx)
		if err != nil {
			return err
		}
		defer release()

		client := httpclient.NewRestyClient(cfg.Ingest.HTTPTimeout)
		p := ingest.NewPipeline(
			store,
			providers.DefaultFetcherRegistry(client),
			crawler.NewScraper(client, log),
			events,
			cfg.Ingest.AddedBy,
			log,
		)
		if err := p.SyncCompanies(companies); err != nil {
			return err
		}

		res, err := p.Run(ctx, provs, companies)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "providers: %d  fetched: %d  matched: %d  created: %d  duplicates: %d\n",
			res.Providers, res.Fetched, res.Matched, res.Created, res.Duplicates)
		if len(res.Failed) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "failed providers: %s\n", strings.Join(res.Failed, ", "))
		}
		return nil
	},
}

var (
	dedupeMethod    string
	dedupeThreshold float64
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Link near identical root stories to the earliest one",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		method := cfg.Dedupe.Method
		if cmd.Flags().Changed("method") {
			method = dedupeMethod
		}
		threshold := cfg.Dedupe.Threshold
		if cmd.Flags().Changed("threshold") {
			threshold = dedupeThreshold
		}
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
		}

		var vec dedupe.Vectorizer
		switch strings.ToLower(method) {
		case dedupe.MethodHashing:
			vec = dedupe.NewHashingVectorizer(cfg.Dedupe.Features)
		case dedupe.MethodEmbedding:
			client, err := ner.NewClient(cfg.Dedupe.EmbeddingAPIKey, cfg.Dedupe.EmbeddingEndpoint)
			if err != nil {
				return fmt.Errorf("embedding client: %w", err)
			}
			vec = dedupe.NewEmbeddingVectorizer(&client.Embeddings, cfg.Dedupe.EmbeddingModel)
		default:
			return fmt.Errorf("unknown dedupe method %q (want %s or %s)", method, dedupe.MethodHashing, dedupe.MethodEmbedding)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		events, release, err := eventPublisher(ctx)
		if err != nil {
			return err
		}
		defer release()

		n, err := dedupe.New(store, vec, threshold, events, log).Run(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Linked %d duplicate stories.\n", n)
		return nil
	},
}

var (
	extractLimit int
	extractSave  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract-entities",
	Short: "Extract persons, organisations and locations with an LLM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		limit := cfg.NER.Limit
		if cmd.Flags().Changed("limit") {
			limit = extractLimit
		}

		llm, err := ner.NewChatCompleter(cfg.NER.APIKey, cfg.NER.Endpoint, cfg.NER.Model)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		events, release, err := eventPublisher(ctx)
		if err != nil {
			return err
		}
		defer release()

		out, err := ner.NewExtractor(store, llm, events, log).Run(ctx, ner.Options{Limit: limit, Save: extractSave})
		if err != nil {
			return err
		}
		if len(out) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No stories found.")
			return nil
		}
		w := cmd.OutOrStdout()
		for _, oc := range out {
			if oc.Skipped != "" {
				fmt.Fprintf(w, "! Story #%d skipped: %s\n", oc.StoryID, oc.Skipped)
				continue
			}
			fmt.Fprintf(w, "Story #%d: %s\n", oc.StoryID, oc.Title)
			fmt.Fprintf(w, "  Persons: %s\n", strings.Join(oc.Entities.Persons, ", "))
			fmt.Fprintf(w, "  Organizations: %s\n", strings.Join(oc.Entities.Organizations, ", "))
			fmt.Fprintf(w, "  Locations: %s\n", strings.Join(oc.Entities.Locations, ", "))
			if oc.Saved {
				fmt.Fprintln(w, "  saved")
			}
		}
		return nil
	},
}

func init() {
	dedupeCmd.Flags().StringVar(&dedupeMethod, "method", dedupe.MethodHashing, "similarity method: hashing or embedding")
	dedupeCmd.Flags().Float64Var(&dedupeThreshold, "threshold", dedupe.DefaultThreshold, "cosine similarity threshold in (0, 1]")

	extractCmd.Flags().IntVar(&extractLimit, "limit", ner.DefaultLimit, "number of stories to process")
	extractCmd.Flags().BoolVar(&extractSave, "save", false, "save the extracted entities")
}
