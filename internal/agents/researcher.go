package agents

import (
	"context"
	"strings"

	"symphony/internal/logging"
	"symphony/internal/prompt"
	"symphony/internal/types"
)

// Researcher gathers background for other tasks. When the task description
// references URLs it scrapes them and feeds the extracts into the prompt as
// reference material.
type Researcher struct {
	client  types.LLMClient
	scraper *Scraper
}

// NewResearcher returns a researcher with the default scraper.
func NewResearcher(client types.LLMClient) *Researcher {
	return &Researcher{client: client, scraper: NewScraper()}
}

// AgentType reports the researcher role.
func (r *Researcher) AgentType() types.AgentType {
	return types.AgentResearcher
}

// Execute runs one research task. Unreachable reference pages are skipped,
// not fatal.
func (r *Researcher) Execute(ctx context.Context, task types.AgentTask, tctx types.TaskContext) (types.AgentResult, error) {
	urls := ExtractURLs(task.Description, maxReferenceURLs)
	keywords := taskKeywords(task, 8)

	var extracts []string
	sources := []string{}
	for _, u := range urls {
		page, err := r.scraper.Fetch(ctx, u, keywords)
		if err != nil {
			logging.ResearcherDebug("task %d: skipping %s: %v", task.ID, u, err)
			continue
		}
		extracts = append(extracts, page.Render())
		sources = append(sources, u)
	}
	if len(urls) > 0 {
		logging.Researcher("task %d: scraped %d/%d reference pages", task.ID, len(sources), len(urls))
	}

	extra := prompt.BuildReferenceSection(extracts)
	return execute(ctx, r.client, types.AgentResearcher, task, tctx, extra, func(raw string) interface{} {
		return ResearchOutput{
			Findings:        []string{strings.TrimSpace(raw)},
			Recommendations: []string{},
			Sources:         sources,
		}
	})
}

// taskKeywords derives scrape-relevance keywords from the task text. Short
// words and URLs carry no signal and are dropped.
func taskKeywords(task types.AgentTask, limit int) []string {
	seen := make(map[string]bool)
	var kws []string
	for _, w := range strings.Fields(strings.ToLower(task.Title + " " + task.Description)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) < 4 || seen[w] || strings.HasPrefix(w, "http") {
			continue
		}
		seen[w] = true
		kws = append(kws, w)
		if len(kws) >= limit {
			break
		}
	}
	return kws
}
