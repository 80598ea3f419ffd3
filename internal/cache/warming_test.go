package cache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

type mockWeatherFetcher struct {
	mu     sync.Mutex
	cities []string
	err    error
}

func (m *mockWeatherFetcher) GetWeather(ctx context.Context, city string) (models.Payload, error) {
	m.mu.Lock()
	m.cities = append(m.cities, city)
	m.mu.Unlock()
	if m.err != nil {
		return models.Payload{}, m.err
	}
	return models.Payload{Name: city}, nil
}

func (m *mockWeatherFetcher) seen() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.cities...)
	sort.Strings(out)
	return out
}

func TestWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), []string{"miami", "paris"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if got := fetcher.seen(); len(got) != 2 || got[0] != "miami" || got[1] != "paris" {
		t.Errorf("fetched = %v, want [miami paris]", got)
	}
}

func TestWarmer_Warm_Empty(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v", err)
	}
	if len(fetcher.seen()) != 0 {
		t.Error("Warm(nil) should not fetch")
	}
}

func TestWarmer_Warm_FetcherError(t *testing.T) {
	apiDown := errors.New("api down")
	warmer := NewWarmer(&mockWeatherFetcher{err: apiDown}, nil)

	err := warmer.Warm(context.Background(), []string{"miami"})
	if !errors.Is(err, apiDown) {
		t.Fatalf("Warm() error = %v, want wrapping api down", err)
	}
	if !strings.Contains(err.Error(), "warm miami") {
		t.Errorf("Warm() error = %q, want city in message", err)
	}
}

func TestWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	fetcher := &mockWeatherFetcher{}
	warmer := NewWarmer(fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"miami"}, 5*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not return after cancel")
	}
	if n := len(fetcher.seen()); n < 2 {
		t.Errorf("fetches = %d, want at least 2", n)
	}
}
