package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/leadscout/internal/llm"
	"github.com/TobiSchelling/leadscout/internal/metrics"
)

// Post is a short text item, such as a feed entry, to be filtered by topic.
type Post struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	URL       string    `json:"url,omitempty"`
	Source    string    `json:"source,omitempty"`
	Published time.Time `json:"published"`
}

// FilterPostsByTopic asks the oracle, one chunk at a time, which posts are
// about topic and returns those posts in input order. Posts are numbered
// from 1 across the whole input; IDs outside the current chunk are ignored
// and a chunk whose answer cannot be read contributes nothing.
func (o *Oracle) FilterPostsByTopic(ctx context.Context, posts []Post, topic string) []Post {
	if len(posts) == 0 {
		return nil
	}
	if o.provider == nil {
		metrics.RecordOracle("posts", "unconfigured")
		o.logger.Warn("post filtering skipped: no scoring provider configured")
		return nil
	}

	keep := make([]bool, len(posts))
	for start := 0; start < len(posts); start += o.chunkSize {
		end := min(start+o.chunkSize, len(posts))
		if err := o.pacer.Wait(ctx); err != nil {
			o.logger.Warn("post filtering stopped", zap.Error(err), zap.Int("chunk_start", start))
			break
		}

		prompt := fmt.Sprintf(postsPrompt, topic, formatPosts(posts[start:end], start))
		text, err := o.provider.Generate(ctx, prompt, llm.Options{
			System:      postsSystem,
			Temperature: binaryTemperature,
			MaxTokens:   o.maxTokens,
		})
		if err != nil {
			metrics.RecordOracle("posts", "error")
			o.logger.Warn("post filter call failed", zap.Int("chunk_start", start), zap.Error(err))
			continue
		}

		ids, ok := parseIDs(text)
		if !ok {
			metrics.RecordOracle("posts", "unparsable")
			o.logger.Warn("unparsable post filter response", zap.Int("chunk_start", start), zap.String("response", truncateForLog(text)))
			continue
		}
		metrics.RecordOracle("posts", "ok")
		for _, id := range ids {
			idx := id - 1
			if idx < start || idx >= end {
				continue
			}
			keep[idx] = true
		}
	}

	var out []Post
	for i, p := range posts {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}
