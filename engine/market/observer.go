// Package market ingests competitor price observations and derives
// positioning, segments, and opportunity insights from them.
package market

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pod-pricing/internal/snapshot"
	"pod-pricing/internal/stats"
	"pod-pricing/pkg/clock"
	"pod-pricing/pkg/confidence"
	pricingerr "pod-pricing/pkg/errors"
)

// Tier buckets a competitor or segment by price level.
type Tier string

const (
	TierBudget  Tier = "budget"
	TierMid     Tier = "mid_range"
	TierPremium Tier = "premium"
	TierLuxury  Tier = "luxury"
)

// Source records how an observation was collected.
type Source string

const (
	SourceManual  Source = "manual"
	SourceAPI     Source = "api"
	SourceScraper Source = "scraper"
	SourceCSV     Source = "csv_import"
)

// Availability is the stock state at observation time.
type Availability string

const (
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
	AvailabilityLimited    Availability = "limited"
)

// Impact grades how much an insight matters.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// InsightKind classifies an opportunity.
type InsightKind string

const (
	InsightPriceGap   InsightKind = "price_gap"
	InsightClustering InsightKind = "price_clustering"
	InsightTrend      InsightKind = "market_trend"
)

// Competitor is a tracked price source.
type Competitor struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Tier       Tier      `json:"tier"`
	Categories []string  `json:"categories"`
	AddedAt    time.Time `json:"added_at"`
}

// Observation is one competitor price sample. Price is cents.
type Observation struct {
	CompetitorID   string          `json:"competitor_id"`
	CompetitorName string          `json:"competitor_name"`
	ProductName    string          `json:"product_name"`
	Category       string          `json:"category"`
	Price          decimal.Decimal `json:"price"`
	Currency       string          `json:"currency"`
	URL            string          `json:"url,omitempty"`
	Availability   Availability    `json:"availability"`
	Source         Source          `json:"source"`
	Confidence     float64         `json:"confidence"`
	Timestamp      time.Time       `json:"timestamp"`
}

// ObserveOpts carries the optional observation fields.
type ObserveOpts struct {
	Currency     string
	URL          string
	Availability Availability
	Source       Source
	Confidence   float64
	Timestamp    time.Time
}

// Segment is the statistical shape of one category's recent prices.
type Segment struct {
	Category     string          `json:"category"`
	Tier         Tier            `json:"tier"`
	Competitors  int             `json:"competitor_count"`
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	AveragePrice float64         `json:"average_price"`
	MedianPrice  float64         `json:"median_price"`
	Volatility   float64         `json:"volatility"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PriceRange summarizes the spread of a set of prices, in cents.
type PriceRange struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Median  float64 `json:"median"`
}

// Neighbors holds the nearest competitor prices around ours.
type Neighbors struct {
	Lower       *float64 `json:"lower"`
	Higher      *float64 `json:"higher"`
	GapToLower  *float64 `json:"gap_to_lower"`
	GapToHigher *float64 `json:"gap_to_higher"`
}

// Position locates one of our prices inside a category's market.
type Position struct {
	Category        string          `json:"category"`
	OurPrice        decimal.Decimal `json:"our_price"`
	TotalCompetitors int            `json:"total_competitors"`
	Percentile      float64         `json:"percentile"`
	Label           string          `json:"position"`
	Competitiveness string          `json:"competitiveness"`
	LowerPriced     int             `json:"lower_priced_competitors"`
	HigherPriced    int             `json:"higher_priced_competitors"`
	Range           PriceRange      `json:"price_range"`
	Nearest         Neighbors       `json:"nearest_competitors"`
	FreshnessDays   int             `json:"data_freshness_days"`
}

// Insight is a detected market opportunity.
type Insight struct {
	ID             uuid.UUID   `json:"id"`
	Kind           InsightKind `json:"kind"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	Impact         Impact      `json:"impact"`
	Confidence     float64     `json:"confidence"`
	Recommendation string      `json:"recommendation"`
	DataPoints     int         `json:"data_points"`
	DetectedAt     time.Time   `json:"detected_at"`
}

// CategorySummary aggregates one category's recent market data.
type CategorySummary struct {
	CompetitorCount int        `json:"competitor_count"`
	DataPoints      int        `json:"data_points"`
	Range           PriceRange `json:"price_range"`
	Volatility      float64    `json:"volatility"`
	FreshnessHours  float64    `json:"freshness_hours"`
	Segment         *Segment   `json:"segment,omitempty"`
}

// Summary aggregates observer state.
type Summary struct {
	Competitors     int                        `json:"total_competitors"`
	TotalDataPoints int                        `json:"total_data_points"`
	Categories      map[string]CategorySummary `json:"categories"`
	UpdatedAt       time.Time                  `json:"last_updated"`
}

// Config holds observer thresholds.
type Config struct {
	RetentionDays int     `yaml:"retention_days" json:"retention_days"`
	WindowDays    int     `yaml:"window_days" json:"window_days"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	GapPercent    float64 `yaml:"gap_percent" json:"gap_percent"`
	ClusterRatio  float64 `yaml:"cluster_ratio" json:"cluster_ratio"`
	TrendPercent  float64 `yaml:"trend_percent" json:"trend_percent"`
	MinSampleSize int     `yaml:"min_sample_size" json:"min_sample_size"`
}

// DefaultConfig returns the standard observer thresholds.
func DefaultConfig() Config {
	return Config{
		RetentionDays: 90,
		WindowDays:    30,
		MinConfidence: 0.7,
		GapPercent:    25.0,
		ClusterRatio:  0.5,
		TrendPercent:  5.0,
		MinSampleSize: 3,
	}
}

// Observer holds competitor observations keyed by competitor:category.
type Observer struct {
	mu  sync.Mutex
	cfg Config
	clk clock.Clock
	log zerolog.Logger

	competitors  map[string]Competitor
	observations map[string][]Observation
	segments     map[string]Segment
}

// New creates an observer pre-seeded with the default competitor set.
func New(cfg Config, clk clock.Clock, log zerolog.Logger) *Observer {
	if clk == nil {
		clk = clock.Wall{}
	}
	o := &Observer{
		cfg:          cfg,
		clk:          clk,
		log:          log,
		competitors:  make(map[string]Competitor),
		observations: make(map[string][]Observation),
		segments:     make(map[string]Segment),
	}
	now := clk.Now()
	defaults := []Competitor{
		{ID: "printful", Name: "Printful", Tier: TierMid,
			Categories: []string{"apparel", "accessories", "home-decor"}, AddedAt: now},
		{ID: "gooten", Name: "Gooten", Tier: TierBudget,
			Categories: []string{"apparel", "accessories"}, AddedAt: now},
		{ID: "printify_competitors", Name: "Other Printify Sellers", Tier: TierMid,
			Categories: []string{"all"}, AddedAt: now},
	}
	for _, c := range defaults {
		o.competitors[c.ID] = c
	}
	return o
}

// AddCompetitor registers a price source. Re-adding an id overwrites it.
func (o *Observer) AddCompetitor(id, name string, tier Tier, categories []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.competitors[id] = Competitor{
		ID: id, Name: name, Tier: tier, Categories: categories, AddedAt: o.clk.Now(),
	}
	o.log.Info().Str("competitor", id).Str("name", name).Msg("competitor registered")
}

func obsKey(competitorID, category string) string {
	return competitorID + ":" + category
}

// Observe records one competitor price sample, prunes old data, and
// refreshes the category segment.
func (o *Observer) Observe(competitorID, productName, category string, price decimal.Decimal, opts ObserveOpts) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observeLocked(competitorID, productName, category, price, opts)
}

func (o *Observer) observeLocked(competitorID, productName, category string, price decimal.Decimal, opts ObserveOpts) error {
	comp, ok := o.competitors[competitorID]
	if !ok {
		return pricingerr.NewUnknownCompetitorError(competitorID)
	}
	if price.Sign() <= 0 {
		return pricingerr.NewInvalidPriceError("observation price", obsKey(competitorID, category))
	}
	if category == "" {
		return &pricingerr.PricingError{
			Code: pricingerr.ErrCodeMalformedRow, Message: "observation missing category",
			Severity: pricingerr.SeverityWarning, Recoverable: true,
		}
	}

	now := o.clk.Now()
	obs := Observation{
		CompetitorID:   competitorID,
		CompetitorName: comp.Name,
		ProductName:    productName,
		Category:       category,
		Price:          price,
		Currency:       opts.Currency,
		URL:            opts.URL,
		Availability:   opts.Availability,
		Source:         opts.Source,
		Confidence:     opts.Confidence,
		Timestamp:      opts.Timestamp,
	}
	if obs.Currency == "" {
		obs.Currency = "USD"
	}
	if obs.Availability == "" {
		obs.Availability = AvailabilityInStock
	}
	if obs.Source == "" {
		obs.Source = SourceManual
	}
	if obs.Confidence == 0 {
		obs.Confidence = 1.0
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}

	k := obsKey(competitorID, category)
	o.observations[k] = append(o.observations[k], obs)
	o.pruneLocked(k, now)
	o.refreshSegmentLocked(category, now)

	o.log.Info().Str("competitor", comp.Name).Str("product", productName).
		Str("category", category).Str("price", price.String()).Msg("price observed")
	return nil
}

func (o *Observer) pruneLocked(k string, now time.Time) {
	cutoff := now.AddDate(0, 0, -o.cfg.RetentionDays)
	obs := o.observations[k]
	kept := obs[:0]
	for _, ob := range obs {
		if ob.Timestamp.After(cutoff) {
			kept = append(kept, ob)
		}
	}
	o.observations[k] = kept
}

// refreshSegmentLocked recomputes a category's segment from the confident
// observations inside the window. The competitor count covers every source
// with any retained data for the category, windowed or not.
func (o *Observer) refreshSegmentLocked(category string, now time.Time) {
	cutoff := now.AddDate(0, 0, -o.cfg.WindowDays)
	var prices []float64
	competitors := 0
	for k, obs := range o.observations {
		if !strings.HasSuffix(k, ":"+category) {
			continue
		}
		competitors++
		for _, ob := range obs {
			if ob.Timestamp.After(cutoff) && confidence.AboveThreshold(ob.Confidence, o.cfg.MinConfidence) {
				prices = append(prices, ob.Price.InexactFloat64())
			}
		}
	}
	if len(prices) == 0 {
		return
	}

	min, max := prices[0], prices[0]
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	avg := stats.Mean(prices)
	o.segments[category] = Segment{
		Category:     category,
		Tier:         tierFor(avg),
		Competitors:  competitors,
		MinPrice:     decimal.NewFromFloat(min),
		MaxPrice:     decimal.NewFromFloat(max),
		AveragePrice: avg,
		MedianPrice:  stats.Median(prices),
		Volatility:   stats.StdDev(prices),
		UpdatedAt:    now,
	}
}

// tierFor buckets a mean price in cents.
func tierFor(avgCents float64) Tier {
	switch {
	case avgCents < 1500:
		return TierBudget
	case avgCents < 3000:
		return TierMid
	case avgCents < 5000:
		return TierPremium
	default:
		return TierLuxury
	}
}

// Segment returns the stored segment analysis for a category.
func (o *Observer) Segment(category string) (Segment, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	seg, ok := o.segments[category]
	return seg, ok
}

// competitivePricesLocked returns confident observations for a category
// within the last days, newest first.
func (o *Observer) competitivePricesLocked(category string, days int, now time.Time) []Observation {
	cutoff := now.AddDate(0, 0, -days)
	var out []Observation
	for k, obs := range o.observations {
		if !strings.HasSuffix(k, ":"+category) {
			continue
		}
		for _, ob := range obs {
			if ob.Timestamp.After(cutoff) && confidence.AboveThreshold(ob.Confidence, o.cfg.MinConfidence) {
				out = append(out, ob)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// CompetitivePrices returns recent confident observations for a category.
func (o *Observer) CompetitivePrices(category string, days int) []Observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	if days <= 0 {
		days = o.cfg.WindowDays
	}
	return o.competitivePricesLocked(category, days, o.clk.Now())
}

// Prices returns just the price values for strategy evaluation.
func (o *Observer) Prices(category string) []decimal.Decimal {
	obs := o.CompetitivePrices(category, 0)
	out := make([]decimal.Decimal, len(obs))
	for i, ob := range obs {
		out[i] = ob.Price
	}
	return out
}

// Position analyzes where our price stands inside a category's market.
func (o *Observer) Position(ourPrice decimal.Decimal, category string) (*Position, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	recent := o.competitivePricesLocked(category, o.cfg.WindowDays, now)
	if len(recent) == 0 {
		return nil, pricingerr.NewInsufficientDataError("price position", 0, 1)
	}

	our := ourPrice.InexactFloat64()
	prices := make([]float64, len(recent))
	oldest := recent[0].Timestamp
	lower, higher := 0, 0
	for i, ob := range recent {
		p := ob.Price.InexactFloat64()
		prices[i] = p
		if p < our {
			lower++
		} else if p > our {
			higher++
		}
		if ob.Timestamp.Before(oldest) {
			oldest = ob.Timestamp
		}
	}
	percentile := float64(lower) / float64(len(prices)) * 100

	label, competitiveness := positionLabels(percentile)
	pos := &Position{
		Category:         category,
		OurPrice:         ourPrice,
		TotalCompetitors: len(prices),
		Percentile:       percentile,
		Label:            label,
		Competitiveness:  competitiveness,
		LowerPriced:      lower,
		HigherPriced:     higher,
		Range:            rangeOf(prices),
		Nearest:          nearestOf(prices, our),
		FreshnessDays:    int(now.Sub(oldest).Hours() / 24),
	}
	return pos, nil
}

func positionLabels(percentile float64) (string, string) {
	switch {
	case percentile <= 25:
		return "budget", "very_competitive"
	case percentile <= 50:
		return "low_mid_range", "competitive"
	case percentile <= 75:
		return "high_mid_range", "moderate"
	default:
		return "premium", "limited"
	}
}

func rangeOf(prices []float64) PriceRange {
	min, max := prices[0], prices[0]
	for _, p := range prices {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	return PriceRange{Min: min, Max: max, Average: stats.Mean(prices), Median: stats.Median(prices)}
}

func nearestOf(prices []float64, our float64) Neighbors {
	var n Neighbors
	for _, p := range prices {
		if p < our && (n.Lower == nil || p > *n.Lower) {
			v := p
			n.Lower = &v
		}
		if p > our && (n.Higher == nil || p < *n.Higher) {
			v := p
			n.Higher = &v
		}
	}
	if n.Lower != nil {
		gap := our - *n.Lower
		n.GapToLower = &gap
	}
	if n.Higher != nil {
		gap := *n.Higher - our
		n.GapToHigher = &gap
	}
	return n
}

// Opportunities scans a category for price gaps, clustering, and week-over-
// week trends. Insights below MinConfidence are dropped.
func (o *Observer) Opportunities(category string) []Insight {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	recent := o.competitivePricesLocked(category, o.cfg.WindowDays, now)
	if len(recent) < o.cfg.MinSampleSize {
		return nil
	}

	prices := make([]float64, len(recent))
	for i, ob := range recent {
		prices[i] = ob.Price.InexactFloat64()
	}

	var insights []Insight
	insights = append(insights, o.gapInsights(category, prices, len(recent), now)...)
	if in := o.clusterInsight(category, prices, len(recent), now); in != nil {
		insights = append(insights, *in)
	}
	if in := o.trendInsight(category, recent, now); in != nil {
		insights = append(insights, *in)
	}

	kept := insights[:0]
	for _, in := range insights {
		if confidence.AboveThreshold(in.Confidence, o.cfg.MinConfidence) {
			kept = append(kept, in)
		}
	}
	return kept
}

// gapInsights flags every adjacent sorted pair differing by more than the
// gap threshold.
func (o *Observer) gapInsights(category string, prices []float64, dataPoints int, now time.Time) []Insight {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var out []Insight
	for i := 1; i < len(sorted); i++ {
		low, high := sorted[i-1], sorted[i]
		if low <= 0 {
			continue
		}
		gapPercent := (high - low) / low * 100
		if gapPercent <= o.cfg.GapPercent {
			continue
		}
		out = append(out, Insight{
			ID:    uuid.New(),
			Kind:  InsightPriceGap,
			Title: fmt.Sprintf("Price Gap Opportunity in %s", category),
			Description: fmt.Sprintf("Gap of $%.2f (%.1f%%) between $%.2f and $%.2f",
				(high-low)/100, gapPercent, low/100, high/100),
			Impact:     ImpactMedium,
			Confidence: 0.8,
			Recommendation: fmt.Sprintf("Consider pricing between $%.2f and $%.2f",
				low/100, high/100),
			DataPoints: dataPoints,
			DetectedAt: now,
		})
	}
	return out
}

// clusterInsight fires when few distinct price points dominate the segment.
func (o *Observer) clusterInsight(category string, prices []float64, dataPoints int, now time.Time) *Insight {
	distinct := make(map[float64]bool, len(prices))
	for _, p := range prices {
		distinct[p] = true
	}
	if float64(len(distinct))/float64(len(prices)) >= o.cfg.ClusterRatio {
		return nil
	}
	mode := stats.Mode(prices)
	return &Insight{
		ID:             uuid.New(),
		Kind:           InsightClustering,
		Title:          fmt.Sprintf("Price Clustering in %s", category),
		Description:    fmt.Sprintf("Many competitors clustered around $%.2f", mode/100),
		Impact:         ImpactHigh,
		Confidence:     0.9,
		Recommendation: "Differentiate with value proposition or find price gap",
		DataPoints:     dataPoints,
		DetectedAt:     now,
	}
}

// trendInsight compares the last 7 days against the prior 7.
func (o *Observer) trendInsight(category string, recent []Observation, now time.Time) *Insight {
	weekAgo := now.AddDate(0, 0, -7)
	twoWeeksAgo := now.AddDate(0, 0, -14)

	var lastWeek, priorWeek []float64
	for _, ob := range recent {
		p := ob.Price.InexactFloat64()
		switch {
		case ob.Timestamp.After(weekAgo):
			lastWeek = append(lastWeek, p)
		case ob.Timestamp.After(twoWeeksAgo):
			priorWeek = append(priorWeek, p)
		}
	}
	if len(lastWeek) < 2 || len(priorWeek) == 0 {
		return nil
	}

	recentAvg, priorAvg := stats.Mean(lastWeek), stats.Mean(priorWeek)
	if priorAvg <= 0 {
		return nil
	}
	change := (recentAvg - priorAvg) / priorAvg * 100
	if math.Abs(change) <= o.cfg.TrendPercent {
		return nil
	}
	direction := "increasing"
	if change < 0 {
		direction = "decreasing"
	}
	return &Insight{
		ID:    uuid.New(),
		Kind:  InsightTrend,
		Title: fmt.Sprintf("Market Prices %s in %s", strings.ToUpper(direction[:1])+direction[1:], category),
		Description: fmt.Sprintf("Average competitor prices %s by %.1f%% in last week",
			direction, math.Abs(change)),
		Impact:         ImpactHigh,
		Confidence:     0.7,
		Recommendation: fmt.Sprintf("Monitor trend and consider %s prices", direction),
		DataPoints:     len(lastWeek) + len(priorWeek),
		DetectedAt:     now,
	}
}

// ImportRows ingests row-shaped records: competitor_id, product_name,
// category, price in dollars, then optional confidence and availability.
// Malformed rows are skipped with a log line; the return value is the
// number of rows accepted.
func (o *Observer) ImportRows(records [][]string) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	accepted := 0
	for i, rec := range records {
		if len(rec) < 4 {
			o.log.Warn().Int("row", i).Msg("import row too short, skipped")
			continue
		}
		dollars, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		if err != nil {
			o.log.Warn().Int("row", i).Str("price", rec[3]).Msg("import row has bad price, skipped")
			continue
		}
		opts := ObserveOpts{Source: SourceCSV}
		if len(rec) >= 5 && strings.TrimSpace(rec[4]) != "" {
			conf, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
			if err != nil {
				o.log.Warn().Int("row", i).Str("confidence", rec[4]).Msg("import row has bad confidence, skipped")
				continue
			}
			opts.Confidence = conf
		}
		if len(rec) >= 6 {
			opts.Availability = Availability(strings.TrimSpace(rec[5]))
		}
		price := decimal.NewFromFloat(dollars).Mul(decimal.NewFromInt(100)).Round(0)
		err = o.observeLocked(strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]),
			strings.TrimSpace(rec[2]), price, opts)
		if err != nil {
			o.log.Warn().Int("row", i).Err(err).Msg("import row rejected")
			continue
		}
		accepted++
	}
	o.log.Info().Int("accepted", accepted).Int("total", len(records)).Msg("import finished")
	return accepted
}

// Summary aggregates market state, for one category or all of them.
func (o *Observer) Summary(category string) Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clk.Now()
	categories := make(map[string]bool)
	if category != "" {
		categories[category] = true
	} else {
		for k := range o.observations {
			if idx := strings.LastIndex(k, ":"); idx >= 0 {
				categories[k[idx+1:]] = true
			}
		}
	}

	s := Summary{
		Competitors: len(o.competitors),
		Categories:  make(map[string]CategorySummary),
		UpdatedAt:   now,
	}
	for _, obs := range o.observations {
		s.TotalDataPoints += len(obs)
	}

	for cat := range categories {
		recent := o.competitivePricesLocked(cat, o.cfg.WindowDays, now)
		if len(recent) == 0 {
			continue
		}
		prices := make([]float64, len(recent))
		seen := make(map[string]bool)
		newest := recent[0].Timestamp
		for i, ob := range recent {
			prices[i] = ob.Price.InexactFloat64()
			seen[ob.CompetitorID] = true
			if ob.Timestamp.After(newest) {
				newest = ob.Timestamp
			}
		}
		cs := CategorySummary{
			CompetitorCount: len(seen),
			DataPoints:      len(recent),
			Range:           rangeOf(prices),
			Volatility:      stats.StdDev(prices),
			FreshnessHours:  now.Sub(newest).Hours(),
		}
		if seg, ok := o.segments[cat]; ok {
			segCopy := seg
			cs.Segment = &segCopy
		}
		s.Categories[cat] = cs
	}
	return s
}

type state struct {
	Competitors  map[string]Competitor    `json:"competitors"`
	Observations map[string][]Observation `json:"competitor_prices"`
	Segments     map[string]Segment       `json:"market_segments"`
	SavedAt      time.Time                `json:"saved_at"`
}

// Save snapshots observer state to path.
func (o *Observer) Save(path string) error {
	o.mu.Lock()
	st := state{
		Competitors:  o.competitors,
		Observations: o.observations,
		Segments:     o.segments,
		SavedAt:      o.clk.Now(),
	}
	o.mu.Unlock()
	return snapshot.Save(path, st)
}

// Load restores observer state from path. The default competitor seeds
// survive an empty or corrupt snapshot.
func (o *Observer) Load(path string) snapshot.LoadResult {
	var st state
	res := snapshot.Load(path, &st)
	if res.Status != snapshot.StatusOK {
		if res.Degraded() {
			o.log.Warn().Err(res.Err).Str("path", path).Msg("market snapshot unusable, starting empty")
		}
		return res
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if st.Competitors != nil {
		o.competitors = st.Competitors
	}
	if st.Observations != nil {
		o.observations = st.Observations
	}
	if st.Segments != nil {
		o.segments = st.Segments
	}
	return res
}
