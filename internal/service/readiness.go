package service

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/meziane/drclone/internal/logger"
)

const statusOK = "ok"

var errNotReady = errors.New("service not ready")

// healthDoc is the shape of the readiness endpoint's response. Both the
// top-level status and the first dependency check must report ok.
type healthDoc struct {
	Status      string `json:"status"`
	MasterCheck []struct {
		Status string `json:"status"`
	} `json:"master_check"`
}

// Poller blocks until the service's health endpoint reports ready.
type Poller struct {
	URL      string
	Interval time.Duration
	// MaxWait bounds the whole wait. Zero means wait forever, which
	// matches the original operational behavior; a hung service then
	// needs operator intervention.
	MaxWait time.Duration
	Client  *http.Client
	Logger  logger.Logger
}

// NewPoller builds a poller for the local readiness endpoint. The service
// serves a self-signed certificate on localhost, so verification is off.
func NewPoller(url string, interval, maxWait time.Duration) *Poller {
	return &Poller{
		URL:      url,
		Interval: interval,
		MaxWait:  maxWait,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
		Logger: logger.Global(),
	}
}

// Wait polls at a fixed interval until the endpoint reports ready. A
// failed or garbled probe counts as "not ready yet", never as an error.
func (p *Poller) Wait(ctx context.Context) error {
	if p.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.MaxWait)
		defer cancel()
	}

	probe := func() error {
		if p.ready(ctx) {
			return nil
		}
		return errNotReady
	}

	pace := backoff.WithContext(backoff.NewConstantBackOff(p.Interval), ctx)
	return backoff.Retry(probe, pace)
}

func (p *Poller) ready(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return false
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		p.Logger.Debug("readiness probe failed", "error", err.Error())
		return false
	}
	defer resp.Body.Close()

	var doc healthDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		p.Logger.Debug("readiness response unparseable", "error", err.Error())
		return false
	}

	if doc.Status != statusOK {
		return false
	}
	if len(doc.MasterCheck) == 0 || doc.MasterCheck[0].Status != statusOK {
		return false
	}
	return true
}
