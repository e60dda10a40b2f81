package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/osmowager/wagerbot/internal/domain"
)

// MarketArchiver implements domain.MarketArchiver by serializing the evicted
// market to JSON and uploading it. Objects are keyed by id plus a question
// slug so operators can find a record without opening it.
type MarketArchiver struct {
	writer *Writer
	prefix string
}

// NewMarketArchiver creates a MarketArchiver writing under the given key
// prefix (e.g. "markets").
func NewMarketArchiver(writer *Writer, prefix string) *MarketArchiver {
	return &MarketArchiver{
		writer: writer,
		prefix: strings.Trim(prefix, "/"),
	}
}

// ArchiveMarket uploads the market record before its slot is recycled.
func (a *MarketArchiver) ArchiveMarket(ctx context.Context, m domain.Market) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: encode market %d: %w", m.ID, err)
	}

	key := fmt.Sprintf("%s/%d-%s.json", a.prefix, m.ID, slugify(m.Question))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.writer.Put(ctx, key, bytes.NewReader(data), "application/json")
}

// slugify reduces a question to a short, key-safe fragment.
func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
		if b.Len() >= 40 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}

// Compile-time interface check.
var _ domain.MarketArchiver = (*MarketArchiver)(nil)
