package agent

import (
	"fmt"
	"strings"
)

// BuildTask renders the instructions handed to the remote agent. The
// credential is embedded because the agent performs the deploy itself.
func BuildTask(prompt, style, colorTheme, credential string) string {
	var b strings.Builder
	b.WriteString("Build and deploy a website for the following request.\n\n")
	fmt.Fprintf(&b, "Request: %s\n", strings.TrimSpace(prompt))
	fmt.Fprintf(&b, "Style: %s\n", style)
	fmt.Fprintf(&b, "Color theme: %s\n\n", colorTheme)
	b.WriteString("Steps:\n")
	b.WriteString("1. Generate a complete static site that satisfies the request.\n")
	b.WriteString("2. Deploy it to Vercel using the token below.\n")
	b.WriteString("3. Reply with the live https URL of the deployment.\n\n")
	fmt.Fprintf(&b, "Vercel token: %s\n", credential)
	return b.String()
}

// Label names the remote session after the job.
func Label(jobID string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return "forge-build-" + short
}
