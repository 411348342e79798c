package bandsim

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"

	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/result"
	"github.com/okian/duel/internal/domain/rotation"
	"github.com/okian/duel/pkg/logger"
)

// Report summarizes a played match.
type Report struct {
	MatchID      string
	Polls        int
	Phases       []model.Status
	RoundWinners [model.RoundCount]model.Winner
	Totals       result.Scores
	Winner       model.Winner
	Leaderboard  rotation.View
	Duration     time.Duration
}

// httpClient wraps http.Client with JSON helpers.
type httpClient struct {
	client *http.Client
	base   string
}

func newHTTPClient(base string, timeout time.Duration) *httpClient {
	return &httpClient{client: &http.Client{Timeout: timeout}, base: base}
}

// do sends a request and decodes a JSON reply into out when out is not nil.
func (c *httpClient) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, errors.Wrap(err, "marshal request body")
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return 0, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, errors.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, errors.Wrapf(err, "decode %s %s", method, path)
		}
	}
	return resp.StatusCode, nil
}

type roundBody struct {
	Movement string `json:"movement"`
	Axis     string `json:"axis"`
	Duration int    `json:"duration"`
}

type bandBody struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

type gameBody struct {
	Rounds []roundBody          `json:"rounds"`
	Bands  map[string]bandBody `json:"bands"`
}

func newGameBody(cfg PlayConfig) gameBody {
	body := gameBody{Bands: make(map[string]bandBody, len(cfg.Users))}
	for _, r := range cfg.Rounds {
		body.Rounds = append(body.Rounds, roundBody{Movement: r.Movement, Axis: string(r.Axis), Duration: r.Duration})
	}
	for band, u := range cfg.Users {
		body.Bands[string(band)] = bandBody{UserID: u.UserID, UserName: u.UserName}
	}
	return body
}

// Play creates a match on the display service, follows it to the end and
// checks the announced winners against the reported scores.
func Play(ctx context.Context, cfg PlayConfig, log logger.Logger) (*Report, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 250 * time.Millisecond
	}
	start := time.Now()
	c := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkHealth(ctx, c); err != nil {
		return nil, err
	}

	var ev model.GameEvent
	if _, err := c.do(ctx, http.MethodPost, "/game", newGameBody(cfg), &ev); err != nil {
		return nil, errors.Wrap(err, "create match")
	}
	log.Info(ctx, "match created", logger.String("match_id", ev.ID))

	report := &Report{MatchID: ev.ID}
	final, err := follow(ctx, c, cfg, report, log)
	if err != nil {
		return report, err
	}
	report.RoundWinners = final.RoundWinners
	report.Winner = final.Winner
	if final.Totals != nil {
		report.Totals = *final.Totals
	}

	if _, err := c.do(ctx, http.MethodGet, "/leaderboard?metric=points", nil, &report.Leaderboard); err != nil {
		return report, errors.Wrap(err, "fetch leaderboard")
	}
	report.Duration = time.Since(start)

	if err := verify(report, final); err != nil {
		return report, err
	}
	checkLeaderboard(ctx, report, cfg, log)
	log.Info(ctx, "match verified",
		logger.String("match_id", report.MatchID),
		logger.String("winner", string(report.Winner)),
		logger.Int("band010", report.Totals.Band010),
		logger.Int("band020", report.Totals.Band020),
		logger.Duration("duration", report.Duration))
	return report, nil
}

func checkHealth(ctx context.Context, c *httpClient) error {
	status, err := c.do(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return errors.Wrap(ErrUnhealthy, err.Error())
	}
	if status != http.StatusOK {
		return errors.Wrapf(ErrUnhealthy, "status %d", status)
	}
	return nil
}

// follow polls the display until the match finishes.
func follow(ctx context.Context, c *httpClient, cfg PlayConfig, report *Report, log logger.Logger) (service.Display, error) {
	var deadline <-chan time.Time
	if cfg.Deadline > 0 {
		t := time.NewTimer(cfg.Deadline)
		defer t.Stop()
		deadline = t.C
	}
	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	seen := false
	for {
		var d service.Display
		if _, err := c.do(ctx, http.MethodGet, "/game", nil, &d); err != nil {
			return d, errors.Wrap(err, "poll display")
		}
		report.Polls++
		switch {
		case d.MatchID == report.MatchID:
			seen = true
		case d.MatchID == "" && !seen:
			// the display has not picked the match up yet
		default:
			return d, errors.Wrapf(ErrReplaced, "display shows %q", d.MatchID)
		}
		if n := len(report.Phases); d.Status != "" && (n == 0 || report.Phases[n-1] != d.Status) {
			report.Phases = append(report.Phases, d.Status)
			log.Info(ctx, "phase", logger.String("status", string(d.Status)),
				logger.Int("round", d.Round),
				logger.Int("band010", d.LivePoints.Band010),
				logger.Int("band020", d.LivePoints.Band020))
		}
		if d.Status == model.StatusFinished {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return d, ctx.Err()
		case <-deadline:
			return d, errors.Wrapf(ErrDeadline, "last phase %s", d.Status)
		case <-ticker.C:
		}
	}
}

// verify checks the finished display is self-consistent.
func verify(report *Report, final service.Display) error {
	if final.Totals == nil {
		return errors.Wrap(ErrVerification, "finished display has no totals")
	}
	for i, w := range report.RoundWinners {
		if !w.Decided() {
			return errors.Wrapf(ErrVerification, "round %d has no winner", i+1)
		}
	}
	want := result.ResolveWinner(report.Totals.Band010, report.Totals.Band020)
	if report.Winner != want {
		return errors.Wrapf(ErrVerification, "winner %q does not match totals %d/%d (want %q)",
			report.Winner, report.Totals.Band010, report.Totals.Band020, want)
	}
	if final.LivePoints != report.Totals {
		return errors.Wrapf(ErrVerification, "live points %+v differ from totals %+v", final.LivePoints, report.Totals)
	}
	return nil
}

// checkLeaderboard warns when a scoring user is missing from the ranking.
// Other matches may have pushed them out of the top rows, so it never fails.
func checkLeaderboard(ctx context.Context, report *Report, cfg PlayConfig, log logger.Logger) {
	listed := make(map[string]bool, len(report.Leaderboard.Entries))
	for _, e := range report.Leaderboard.Entries {
		listed[e.UserID] = true
	}
	for _, band := range model.Bands {
		u, ok := cfg.Users[band]
		if !ok || !u.Bound() || report.Totals.Of(band) == 0 {
			continue
		}
		if !listed[u.UserID] {
			log.Warn(ctx, "scoring user missing from leaderboard", logger.String("user_id", u.UserID))
		}
	}
}
