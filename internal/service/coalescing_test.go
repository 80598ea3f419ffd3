package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

func TestRequestCoalescer_GetOrDo_ConcurrentRequests(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls int32
	release := make(chan struct{})

	fn := func(ctx context.Context) (models.Payload, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.Payload{Name: "Miami"}, nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]models.Payload, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], _, errs[idx] = coalescer.GetOrDo(context.Background(), "miami", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("request %d error = %v, want nil", i, errs[i])
		}
		if results[i].Name != "Miami" {
			t.Errorf("request %d name = %q, want Miami", i, results[i].Name)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fn call count = %d, want 1", got)
	}
}

func TestRequestCoalescer_GetOrDo_ErrorPropagation(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	wantErr := errors.New("api failure")

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, _, errs[idx] = coalescer.GetOrDo(context.Background(), "miami", func(context.Context) (models.Payload, error) {
				time.Sleep(10 * time.Millisecond)
				return models.Payload{}, wantErr
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Errorf("request %d error = %v, want %v", i, err, wantErr)
		}
	}
}

func TestRequestCoalescer_GetOrDo_CallerCancelDoesNotFailOthers(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	release := make(chan struct{})
	fn := func(ctx context.Context) (models.Payload, error) {
		select {
		case <-release:
			return models.Payload{Name: "Miami"}, nil
		case <-ctx.Done():
			return models.Payload{}, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := coalescer.GetOrDo(firstCtx, "miami", fn)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	second := make(chan models.Payload, 1)
	go func() {
		p, shared, err := coalescer.GetOrDo(context.Background(), "miami", fn)
		if err != nil || !shared {
			t.Errorf("second caller: shared=%v err=%v", shared, err)
		}
		second <- p
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first caller error = %v, want context.Canceled", err)
	}
	close(release)

	select {
	case p := <-second:
		if p.Name != "Miami" {
			t.Errorf("second caller name = %q, want Miami", p.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("second caller did not complete")
	}
}

func TestRequestCoalescer_GetOrDo_Timeout(t *testing.T) {
	coalescer := newRequestCoalescer(30 * time.Millisecond)

	_, _, err := coalescer.GetOrDo(context.Background(), "miami", func(ctx context.Context) (models.Payload, error) {
		<-ctx.Done()
		return models.Payload{}, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRequestCoalescer_GetOrDo_DifferentKeys(t *testing.T) {
	coalescer := newRequestCoalescer(5 * time.Second)
	var calls int32

	fn := func(context.Context) (models.Payload, error) {
		atomic.AddInt32(&calls, 1)
		return models.Payload{}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _, _ = coalescer.GetOrDo(context.Background(), key, fn)
		}("key" + string(rune('a'+i)))
	}
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("fn call count = %d, want 5", got)
	}
}
