package notify

import (
	"fmt"
	"strconv"
	"strings"

	"transferwatch/apps/watcher/internal/model"
)

// Summary describes the run a batch of alerts came from.
type Summary struct {
	ChainID string
	Range   model.BlockRange
}

// Formatter renders alerts with the Telegram legacy Markdown dialect.
type Formatter struct {
	ExplorerURL   string
	MaskAddresses bool
}

func (f Formatter) Header(summary Summary, count int) string {
	return fmt.Sprintf("*%d transfer(s) over threshold* on %s, blocks %d-%d",
		count, escapeMarkdown(summary.ChainID), summary.Range.Start, summary.Range.End)
}

func (f Formatter) Alert(c model.AlertCandidate) string {
	var b strings.Builder
	b.WriteString("Token Transfer detected:\n")
	fmt.Fprintf(&b, "From: `%s`\n", f.address(c.From))
	fmt.Fprintf(&b, "To: `%s`\n", f.address(c.To))
	fmt.Fprintf(&b, "Value: %s %s", c.AmountNormalized(), escapeMarkdown(c.AssetSymbol))
	if link := f.Link(c.TransferRecord); link != "" {
		fmt.Fprintf(&b, "\n[View on explorer](%s)", link)
	}
	return b.String()
}

// Batch renders several alerts into one message body.
func (f Formatter) Batch(candidates []model.AlertCandidate) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		parts = append(parts, f.Alert(c))
	}
	return strings.Join(parts, "\n\n")
}

// Link points at the extrinsic or transaction when the record carries one,
// and at the block otherwise.
func (f Formatter) Link(r model.TransferRecord) string {
	if f.ExplorerURL == "" {
		return ""
	}
	switch {
	case strings.HasPrefix(r.ExtrinsicRef, "0x"):
		return f.ExplorerURL + "/tx/" + r.ExtrinsicRef
	case r.ExtrinsicRef != "":
		return f.ExplorerURL + "/extrinsic/" + r.ExtrinsicRef
	default:
		return f.ExplorerURL + "/block/" + strconv.FormatUint(r.Block, 10)
	}
}

func (f Formatter) address(addr string) string {
	if f.MaskAddresses {
		return MaskAddress(addr)
	}
	return addr
}

// MaskAddress keeps the first six and last four characters.
func MaskAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
