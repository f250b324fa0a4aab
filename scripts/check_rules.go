// check_rules.go - Fetch a category's source pages directly (no relays) and
// show what the extraction rules find on them.
//
// Usage: go run scripts/check_rules.go <category> [rules.yaml]
//
// Example:
//   go run scripts/check_rules.go publications
//   go run scripts/check_rules.go members ./my-rules.yaml

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/harvest/pkg/content"
	"github.com/jmylchreest/harvest/pkg/extract"
	"github.com/jmylchreest/harvest/pkg/fetcher"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run scripts/check_rules.go <category> [rules.yaml]")
		fmt.Println()
		fmt.Println("Categories:", content.Categories)
		os.Exit(1)
	}

	cat, err := content.ParseCategory(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	rules, err := extract.DefaultRules()
	if len(os.Args) > 2 {
		rules, err = extract.LoadRules(os.Args[2])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rules: %v\n", err)
		os.Exit(1)
	}

	f := fetcher.NewStatic(fetcher.DefaultStaticConfig())
	defer func() { _ = f.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var all []content.Item
	for i, src := range rules.Sources(cat) {
		fmt.Println(strings.Repeat("=", 61))
		fmt.Printf("SOURCE %d: %s\n", i, src.URL)
		fmt.Println(strings.Repeat("=", 61))

		page, err := f.Fetch(ctx, src.URL, fetcher.Options{})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error fetching: %v\n", err)
			continue
		}

		verdict := harvest.ClassifyPayload(page.Body)
		fmt.Printf("Fetched %d bytes in %s (html=%v, length=%d, valid=%v)\n",
			len(page.Body), page.Duration.Round(time.Millisecond),
			verdict.IsHTML, verdict.Length, verdict.Valid(harvest.DefaultMinPageLength))

		items, err := src.Page(cat, page.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error extracting: %v\n", err)
			continue
		}
		fmt.Printf("Rules matched %d items\n\n", len(items))
		for _, it := range items {
			fmt.Printf("  [%s] %-12s %s\n", it.ID, coalesce(it.Date, it.Pillar), it.Title)
			if it.URL != "" {
				fmt.Printf("  %s %s\n", strings.Repeat(" ", 27), it.URL)
			}
		}
		all = append(all, items...)
	}

	fmt.Println("\n" + strings.Repeat("=", 61))
	fmt.Println("SUMMARY")
	fmt.Println(strings.Repeat("=", 61))
	fmt.Printf("%s: %d items, %d after de-duplication\n", cat.Label(), len(all), len(content.Dedupe(all)))
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return "-"
}
