package oracle

import (
	"fmt"
	"strings"
)

// SystemInstruction frames every session.
const SystemInstruction = `You classify retail products and retailer category paths into a product taxonomy.
Each turn you are shown a list of options and must answer with exactly one option name, copied verbatim.
Never invent an option, never add commentary.`

// Prompt renders the user turn for q.
func Prompt(q Query) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Input: %s\n\n", q.Text)
	fmt.Fprintf(&sb, "Choose the best match among these %s:\n", q.Label)
	for _, o := range q.Options {
		switch {
		case o.Terminal:
			fmt.Fprintf(&sb, "- %s (choose this if none of the other options fit)\n", o.Name)
		case o.Leaf:
			fmt.Fprintf(&sb, "- %s (most specific)\n", o.Name)
		default:
			fmt.Fprintf(&sb, "- %s\n", o.Name)
		}
	}
	sb.WriteString("\nAnswer with the option name only.")

	return sb.String()
}
