// Package proofs loads the decorative NFT receipt gallery. It is a
// best-effort read-only integration: a failed load leaves the gallery empty
// and never delays or blocks the paid-action machinery.
package proofs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kaikasekai/forecastd/internal/domain"
)

// maxItems caps how many receipts the gallery shows.
const maxItems = 6

// TokenReader is the slice of the ledger gateway the gallery reads through.
type TokenReader interface {
	NFTTotalSupply(ctx context.Context) (int64, error)
	NFTTokenURI(ctx context.Context, id int64) (string, error)
}

// Config holds gallery parameters.
type Config struct {
	NFTAddress  string
	ExplorerURL string
	IPFSGateway string
}

// Gallery fetches proof token metadata and publishes the loaded records.
type Gallery struct {
	reader     TokenReader
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	records []domain.ProofRecord
}

// NewGallery creates a Gallery reading through the given TokenReader.
func NewGallery(reader TokenReader, cfg Config, logger *slog.Logger) *Gallery {
	return &Gallery{
		reader:     reader,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With(slog.String("component", "proofs")),
	}
}

// Records returns the loaded gallery, possibly empty.
func (g *Gallery) Records() []domain.ProofRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]domain.ProofRecord, len(g.records))
	copy(out, g.records)
	return out
}

// Load reads token metadata for ids 2 through min(totalSupply, 6) — token 1
// is the collection placeholder and is never shown — and publishes whatever
// it could fetch. Individual token failures are skipped.
func (g *Gallery) Load(ctx context.Context) error {
	if g.cfg.NFTAddress == "" {
		return nil
	}

	total, err := g.reader.NFTTotalSupply(ctx)
	if err != nil {
		return fmt.Errorf("proofs: total supply: %w", err)
	}

	count := total
	if count > maxItems {
		count = maxItems
	}

	var records []domain.ProofRecord
	for id := int64(2); id <= count; id++ {
		rec, err := g.loadOne(ctx, id)
		if err != nil {
			g.logger.Warn("skipping proof token",
				slog.Int64("id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, rec)
	}

	g.mu.Lock()
	g.records = records
	g.mu.Unlock()

	g.logger.Info("proof gallery loaded", slog.Int("records", len(records)))
	return nil
}

// metadata is the subset of the ERC-721 metadata JSON the gallery renders.
type metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (g *Gallery) loadOne(ctx context.Context, id int64) (domain.ProofRecord, error) {
	uri, err := g.reader.NFTTokenURI(ctx, id)
	if err != nil {
		return domain.ProofRecord{}, err
	}

	md, err := g.fetchMetadata(ctx, g.resolveURI(uri))
	if err != nil {
		return domain.ProofRecord{}, err
	}

	return domain.ProofRecord{
		ID:           id,
		Name:         md.Name,
		Description:  md.Description,
		ImageURL:     g.resolveURI(md.Image),
		ExplorerLink: fmt.Sprintf("%s/token/%s?a=%d", strings.TrimRight(g.cfg.ExplorerURL, "/"), g.cfg.NFTAddress, id),
	}, nil
}

// resolveURI rewrites ipfs:// URIs onto the configured HTTP gateway.
func (g *Gallery) resolveURI(uri string) string {
	const ipfsScheme = "ipfs://"
	if strings.HasPrefix(uri, ipfsScheme) {
		return g.cfg.IPFSGateway + strings.TrimPrefix(uri, ipfsScheme)
	}
	return uri
}

func (g *Gallery) fetchMetadata(ctx context.Context, uri string) (metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return metadata{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return metadata{}, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return metadata{}, fmt.Errorf("fetch metadata: unexpected status %d", resp.StatusCode)
	}

	var md metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&md); err != nil {
		return metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return md, nil
}
