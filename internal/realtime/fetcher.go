package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DefaultPollInterval is how often the alerts feed is re-read.
const DefaultPollInterval = 60 * time.Second

// Fetcher polls a GTFS-RT service alerts feed and updates the store.
type Fetcher struct {
	alertsURL string
	store     *Store
	client    *http.Client
	interval  time.Duration
	logger    *slog.Logger
}

// NewFetcher creates a GTFS-RT alerts fetcher.
func NewFetcher(alertsURL string, store *Store, requestTimeout time.Duration, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		alertsURL: alertsURL,
		store:     store,
		client:    &http.Client{Timeout: requestTimeout},
		interval:  DefaultPollInterval,
		logger:    logger,
	}
}

// Start begins polling the alerts feed. Blocks until context is cancelled.
func (f *Fetcher) Start(ctx context.Context) {
	// Fetch immediately on start
	if err := f.Refresh(ctx); err != nil {
		f.logger.Warn("fetch alerts failed", "error", err)
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Warn("fetch alerts failed", "error", err)
			}
		case <-ctx.Done():
			f.logger.Info("GTFS-RT fetcher stopped")
			return
		}
	}
}

// Refresh reads the feed once. On failure the store keeps its previous alerts.
func (f *Fetcher) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", f.alertsURL, nil)
	if err != nil {
		return fmt.Errorf("create alerts request: %w", err)
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("alerts feed: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read alerts body: %w", err)
	}

	alerts, err := DecodeAlerts(body)
	if err != nil {
		return err
	}

	f.store.SetAlerts(alerts)
	f.logger.Info("GTFS-RT alerts updated", "count", len(alerts))
	return nil
}

// DecodeAlerts extracts the alert entities of a GTFS-RT FeedMessage.
func DecodeAlerts(body []byte) ([]Alert, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parse alerts protobuf: %w", err)
	}

	alerts := []Alert{}
	for _, entity := range feed.GetEntity() {
		a := entity.GetAlert()
		if a == nil {
			continue
		}

		alert := Alert{
			ID:         entity.GetId(),
			HeaderText: getTranslation(a.GetHeaderText()),
			DescText:   getTranslation(a.GetDescriptionText()),
			Effect:     a.GetEffect().String(),
			Cause:      a.GetCause().String(),
		}

		// Affected routes, deduplicated
		routeSet := make(map[string]bool)
		for _, ie := range a.GetInformedEntity() {
			if rid := ie.GetRouteId(); rid != "" && !routeSet[rid] {
				alert.RouteIDs = append(alert.RouteIDs, rid)
				routeSet[rid] = true
			}
		}

		for _, p := range a.GetActivePeriod() {
			alert.Periods = append(alert.Periods, Period{Start: int64(p.GetStart()), End: int64(p.GetEnd())})
		}

		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func getTranslation(ts *gtfs.TranslatedString) string {
	if ts == nil {
		return ""
	}
	for _, t := range ts.GetTranslation() {
		if text := t.GetText(); text != "" {
			return text
		}
	}
	return ""
}
