package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"imuabridge/metrics"
	"imuabridge/types"

	log "github.com/sirupsen/logrus"
)

var ErrReportingFailed = errors.New("relay record submission failed")

// Reporter posts the record of a successful lock/burn to the relayer, exactly once, no retries
type Reporter struct {
	url    string
	client *http.Client
}

func NewReporter(url string, timeout time.Duration) *Reporter {
	return &Reporter{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Reporter) Submit(ctx context.Context, rec types.RelayRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReportingFailed, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReportingFailed, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.RelaySubmissions.WithLabelValues("error").Inc()
		log.Printf("Error submitting relay record for %s: %s", rec.SourceFromTxHash, err.Error())
		return fmt.Errorf("%w: %s", ErrReportingFailed, err.Error())
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RelaySubmissions.WithLabelValues("rejected").Inc()
		log.Printf("Relay record for %s rejected with status %d", rec.SourceFromTxHash, resp.StatusCode)
		return fmt.Errorf("%w: status %d", ErrReportingFailed, resp.StatusCode)
	}

	metrics.RelaySubmissions.WithLabelValues("ok").Inc()
	log.Printf("Relay record for %s accepted", rec.SourceFromTxHash)
	return nil
}
