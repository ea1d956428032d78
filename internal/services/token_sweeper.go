package services

import (
	"context"
	"log"
	"time"

	"findixi/internal/repositories"
)

const maxSweepFailureSamples = 10

type SweepFailure struct {
	MerchantID int64  `json:"idComercio"`
	Error      string `json:"error"`
}

// SweepResult summarises one pass over every stored connection.
type SweepResult struct {
	Total     int            `json:"total"`
	Refreshed int            `json:"refreshed"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Failures  []SweepFailure `json:"failures"`
}

// TokenSweeper refreshes tokens ahead of expiry so that order submissions
// rarely have to.
type TokenSweeper struct {
	connections repositories.ConnectionRepository
	tokens      *TokenManager
	window      time.Duration
	pageSize    int
}

func NewTokenSweeper(connections repositories.ConnectionRepository, tokens *TokenManager, window time.Duration, pageSize int) *TokenSweeper {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &TokenSweeper{connections: connections, tokens: tokens, window: window, pageSize: pageSize}
}

// Run pages through all connections by id. Connections without a refresh
// token, or not expiring within the window, are skipped.
func (s *TokenSweeper) Run(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{Failures: []SweepFailure{}}
	var afterID int64
	for {
		page, err := s.connections.ListPage(ctx, afterID, s.pageSize)
		if err != nil {
			return result, err
		}
		now := s.tokens.now()
		for _, conn := range page {
			result.Total++
			afterID = conn.ID
			if !conn.HasRefreshToken() || !NeedsRefresh(conn, now, s.window) {
				result.Skipped++
				continue
			}
			if err := s.tokens.Refresh(ctx, conn); err != nil {
				result.Failed++
				if len(result.Failures) < maxSweepFailureSamples {
					result.Failures = append(result.Failures, SweepFailure{MerchantID: conn.MerchantID, Error: err.Error()})
				}
				continue
			}
			result.Refreshed++
		}
		if len(page) < s.pageSize || ctx.Err() != nil {
			break
		}
	}

	log.Printf("DEBUG: [clover-refresh] total=%d refreshed=%d skipped=%d failed=%d",
		result.Total, result.Refreshed, result.Skipped, result.Failed)
	return result, ctx.Err()
}
