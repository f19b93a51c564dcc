package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL  string
	Slots       int
	Contenders  int
	JWTSecret   []byte
	HTTPTimeout time.Duration
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0
	}
	latencies := append([]time.Duration(nil), om.Latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return at(50), at(95), latencies[len(latencies)-1]
}

// contestedSlot is one practitioner slot that every contender tries to book
// with a start offset smaller than the duration, so any two attempts overlap.
type contestedSlot struct {
	PractitionerID uuid.UUID
	Start          time.Time
	winners        int64
}

type Simulator struct {
	config  SimConfig
	client  *http.Client
	log     zerolog.Logger
	metrics OperationMetrics
	slots   []*contestedSlot
}

func main() {
	boot := logging.New("prod", "info", "simulate")
	base, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(base.Env, base.LogLevel, "simulate")

	cfg := SimConfig{
		APIBaseURL:  getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Slots:       getInt("SIM_SLOTS", 50),
		Contenders:  getInt("SIM_CONTENDERS", 10),
		JWTSecret:   []byte(base.JWTSecret),
		HTTPTimeout: 10 * time.Second,
	}
	log.Info().Int("slots", cfg.Slots).Int("contenders", cfg.Contenders).Str("api", cfg.APIBaseURL).Msg("simulator starting")

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		log:    log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sim.Run(ctx)
	violations := sim.Verify(ctx)
	sim.PrintReport(violations)
	if violations > 0 {
		os.Exit(1)
	}
}

func (s *Simulator) Run(ctx context.Context) {
	day := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, 7)
	for i := 0; i < s.config.Slots; i++ {
		s.slots = append(s.slots, &contestedSlot{
			PractitionerID: uuid.New(),
			Start:          day.Add(9 * time.Hour).Add(time.Duration(i%32) * 15 * time.Minute),
		})
	}

	var wg sync.WaitGroup
	for _, slot := range s.slots {
		release := make(chan struct{})
		for c := 0; c < s.config.Contenders; c++ {
			wg.Add(1)
			go func(offset time.Duration) {
				defer wg.Done()
				<-release
				s.book(ctx, slot, offset)
			}(time.Duration(rand.Intn(26)) * time.Minute)
		}
		close(release)
	}
	wg.Wait()
}

// book tries to take the slot as a fresh patient.
func (s *Simulator) book(ctx context.Context, slot *contestedSlot, offset time.Duration) {
	patient := appointment.Actor{ID: uuid.New(), Kind: appointment.ActorPatient}
	body, _ := json.Marshal(api.CreateAppointmentRequest{
		PatientID:       patient.ID.String(),
		PractitionerID:  slot.PractitionerID.String(),
		Start:           slot.Start.Add(offset),
		DurationMinutes: 30,
		Reason:          "contention run",
	})

	start := time.Now()
	status, err := s.do(ctx, patient, http.MethodPost, "/appointments", body, nil)
	latency := time.Since(start)
	if err != nil {
		s.log.Warn().Err(err).Msg("booking request failed")
	}
	s.metrics.Record(latency, status)
	if status == http.StatusCreated {
		atomic.AddInt64(&slot.winners, 1)
	}
}

// Verify counts slots with more than one winner and calendars whose busy
// intervals overlap.
func (s *Simulator) Verify(ctx context.Context) int {
	admin := appointment.Actor{ID: uuid.New(), Kind: appointment.ActorStaff, Role: appointment.RoleAdmin}
	violations := 0

	for _, slot := range s.slots {
		if w := atomic.LoadInt64(&slot.winners); w > 1 {
			s.log.Error().Str("practitioner_id", slot.PractitionerID.String()).Int64("winners", w).Msg("double booking")
			violations++
			continue
		}

		q := url.Values{}
		q.Set("from", slot.Start.Add(-time.Hour).Format(time.RFC3339))
		q.Set("to", slot.Start.Add(2*time.Hour).Format(time.RFC3339))

		var busy api.BusyResponse
		path := "/practitioners/" + slot.PractitionerID.String() + "/busy?" + q.Encode()
		status, err := s.do(ctx, admin, http.MethodGet, path, nil, &busy)
		if err != nil || status != http.StatusOK {
			s.log.Warn().Err(err).Int("status", status).Msg("busy lookup failed")
			continue
		}
		for i := 1; i < len(busy.Intervals); i++ {
			if appointment.Overlaps(busy.Intervals[i-1], busy.Intervals[i]) {
				violations++
			}
		}
	}
	return violations
}

func (s *Simulator) do(ctx context.Context, actor appointment.Actor, method, path string, body []byte, out any) (int, error) {
	token, err := api.SignActorToken(s.config.JWTSecret, actor, time.Minute)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Simulator) PrintReport(violations int) {
	total := atomic.LoadInt64(&s.metrics.Total)
	p50, p95, max := s.metrics.Percentiles()

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("CONTENTION REPORT")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Slots: %d  Contenders per slot: %d\n", s.config.Slots, s.config.Contenders)
	fmt.Printf("Requests: %d\n", total)
	fmt.Printf("  Booked:    %d\n", atomic.LoadInt64(&s.metrics.Success))
	fmt.Printf("  Conflicts: %d\n", atomic.LoadInt64(&s.metrics.Conflict))
	fmt.Printf("  Errors:    %d\n", atomic.LoadInt64(&s.metrics.Error))
	fmt.Printf("Latency: p50=%s p95=%s max=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), max.Round(time.Millisecond))
	fmt.Printf("Violations: %d\n", violations)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
