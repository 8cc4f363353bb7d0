// =============================
// File: internal/gas/estimator.go
// =============================
package gas

import (
	"context"
	"fmt"
	"time"

	"github.com/rovshanmuradov/defi-router/internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceFeed supplies per-chain gas prices in gwei. The engine consumes the
// numbers; where they come from is the feed's concern.
type PriceFeed interface {
	CurrentGasPrice(ctx context.Context, chain types.Chain) (decimal.Decimal, error)
	AverageGasPrice(ctx context.Context, chain types.Chain) (decimal.Decimal, error)
}

var gweiPerNative = decimal.NewFromInt(1_000_000_000)

// Plan is the estimator's read on a chain's current gas market.
type Plan struct {
	Chain           types.Chain
	CurrentGwei     decimal.Decimal
	AverageGwei     decimal.Decimal
	Priority        Priority
	RecommendedGwei decimal.Decimal
	Wait            time.Duration
	SavingsPct      float64
}

// Estimator converts gas units into asset-denominated costs and classifies
// gas market conditions. Missing data is a hard error, never a zero cost.
type Estimator struct {
	feed     PriceFeed
	logger   *zap.Logger
	profiles map[Priority]profile
}

func NewEstimator(feed PriceFeed, logger *zap.Logger) *Estimator {
	return &Estimator{
		feed:     feed,
		logger:   logger.Named("gas"),
		profiles: defaultProfiles(),
	}
}

// EstimateNative returns the cost of gasUnits at the current price,
// denominated in the chain's native asset.
func (e *Estimator) EstimateNative(ctx context.Context, chain types.Chain, gasUnits uint64) (decimal.Decimal, error) {
	gwei, err := e.currentPrice(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}
	units := decimal.NewFromInt(int64(gasUnits))
	return gwei.Mul(units).Div(gweiPerNative), nil
}

// Plan classifies the current price against the rolling average and, when
// conditions are elevated, recommends waiting for the average price.
func (e *Estimator) Plan(ctx context.Context, chain types.Chain) (*Plan, error) {
	current, err := e.currentPrice(ctx, chain)
	if err != nil {
		return nil, err
	}
	average, err := e.feed.AverageGasPrice(ctx, chain)
	if err != nil || !average.IsPositive() {
		return nil, fmt.Errorf("rolling average gas price for %s: %w", chain, types.ErrGasDataUnavailable)
	}

	ratio := current.Div(average).InexactFloat64()
	priority, wait := e.classify(ratio)

	plan := &Plan{
		Chain:           chain,
		CurrentGwei:     current,
		AverageGwei:     average,
		Priority:        priority,
		RecommendedGwei: current,
	}

	if priority != PriorityLow {
		plan.RecommendedGwei = average
		plan.Wait = wait
		plan.SavingsPct = current.Sub(average).Div(current).InexactFloat64() * 100.0
	}

	e.logger.Debug("Gas plan",
		zap.String("chain", string(chain)),
		zap.String("current_gwei", current.String()),
		zap.String("average_gwei", average.String()),
		zap.String("priority", string(priority)),
		zap.Duration("wait", plan.Wait))

	return plan, nil
}

// EstimateSavings projects the native-asset amount saved by waiting for the
// recommended price instead of paying the current one.
func (e *Estimator) EstimateSavings(ctx context.Context, chain types.Chain, gasUnits uint64) (decimal.Decimal, error) {
	plan, err := e.Plan(ctx, chain)
	if err != nil {
		return decimal.Zero, err
	}
	if plan.Priority == PriorityLow {
		return decimal.Zero, nil
	}
	units := decimal.NewFromInt(int64(gasUnits))
	return plan.CurrentGwei.Sub(plan.RecommendedGwei).Mul(units).Div(gweiPerNative), nil
}

func (e *Estimator) currentPrice(ctx context.Context, chain types.Chain) (decimal.Decimal, error) {
	if !chain.Valid() {
		return decimal.Zero, fmt.Errorf("unknown chain %q: %w", chain, types.ErrGasDataUnavailable)
	}
	gwei, err := e.feed.CurrentGasPrice(ctx, chain)
	if err != nil {
		e.logger.Debug("Gas price fetch failed", zap.String("chain", string(chain)), zap.Error(err))
		return decimal.Zero, fmt.Errorf("current gas price for %s: %w", chain, types.ErrGasDataUnavailable)
	}
	if !gwei.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive gas price for %s: %w", chain, types.ErrGasDataUnavailable)
	}
	return gwei, nil
}

func (e *Estimator) classify(ratio float64) (Priority, time.Duration) {
	for _, level := range classifyOrder {
		p := e.profiles[level]
		if ratio >= p.Threshold {
			return level, p.Wait
		}
	}
	return PriorityLow, 0
}
