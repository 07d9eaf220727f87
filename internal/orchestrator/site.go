package orchestrator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	slugMaxLen   = 30
	suffixLen    = 6
	fallbackSlug = "site"
)

// DefaultSiteURLPattern matches a Vercel deployment address in agent output.
const DefaultSiteURLPattern = `(?i)https://[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.vercel\.app`

// Slugify lowercases the prompt, collapses runs of anything that is not an
// ASCII letter or digit into a single dash and bounds the result.
func Slugify(prompt string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(prompt) {
		if b.Len() >= slugMaxLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// SimulatedSiteURL synthesizes the address a simulated build "deploys" to.
func SimulatedSiteURL(prompt string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLen]
	return fmt.Sprintf("https://%s-%s.vercel.app", Slugify(prompt), suffix)
}

func compileSitePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = DefaultSiteURLPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile site url pattern: %w", err)
	}
	return re, nil
}
